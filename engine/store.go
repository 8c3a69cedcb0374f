/*
store.go - Persistence interfaces for members, purchases, and the ledger

PURPOSE:
  Defines the boundary between the engine and the database. The engine's
  distribution math is pure; everything stateful - member records, the
  append-only ledger, wallet balances, structure versions - goes through
  these interfaces.

APPEND-ONLY CONTRACT:
  Ledger entries and purchase events are write-once. There is no update or
  delete on either; the only mutations a store performs are the wallet and
  counter increments that ride in the same transaction as an entry insert.

IDEMPOTENCY:
  Two layers, both enforced by the store:
  - Purchase events are unique on their idempotency key; recording the
    same key twice is reported, not duplicated.
  - Ledger entries are unique on (purchase_event_id, recipient_id, kind);
    applying an existing entry is a skip, not an error.

ATOMICITY:
  Apply() is all-or-nothing for one purchase batch. If any entry cannot be
  applied (for a reason other than "already there"), the whole batch rolls
  back - a purchase is never half-applied.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite store
  - engine/store: In-memory store for tests
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// MEMBER STORE
// =============================================================================

type MemberStore interface {
	// CreateMember inserts a new member. The sponsor, when set, must exist
	// (ErrSponsorNotFound otherwise). Members are never deleted.
	CreateMember(ctx context.Context, m Member) error

	// Member returns a member by ID, or nil when unknown.
	Member(ctx context.Context, id MemberID) (*Member, error)

	// ListMembers returns all members, pseudo-accounts included.
	ListMembers(ctx context.Context) ([]Member, error)

	// ActiveMemberIDs returns the members whose activation window covers
	// asOf, at a single consistent point. Pseudo-accounts are excluded.
	ActiveMemberIDs(ctx context.Context, asOf time.Time) ([]MemberID, error)

	// SetActiveUntil replaces a member's activation window end.
	SetActiveUntil(ctx context.Context, id MemberID, until time.Time) error

	// Sponsor implements SponsorLookup against the member table.
	Sponsor(ctx context.Context, id MemberID) (*MemberID, error)
}

// =============================================================================
// LEDGER STORE
// =============================================================================

// ApplyResult reports what a batch application did.
type ApplyResult struct {
	Applied int // Entries newly inserted
	Skipped int // Entries whose key already existed (idempotent retry)
}

// AlreadyApplied reports whether the batch was a complete no-op.
func (r ApplyResult) AlreadyApplied() bool {
	return r.Applied == 0 && r.Skipped > 0
}

// PurchaseRecord is a purchase event together with its activation outcome,
// persisted as one row so an idempotent retry can replay the full receipt.
type PurchaseRecord struct {
	Event          PurchaseEvent
	MonthsGranted  int
	NewActiveUntil time.Time
}

type LedgerStore interface {
	// RecordPurchase persists a purchase record, write-once by the event's
	// idempotency key. When the key is new, rec is stored and created is
	// true. When the key already exists, the previously stored record is
	// returned and created is false - the caller replays its receipt.
	RecordPurchase(ctx context.Context, rec PurchaseRecord) (stored PurchaseRecord, created bool, err error)

	// PurchaseByKey returns the stored record for an idempotency key, or nil.
	PurchaseByKey(ctx context.Context, idempotencyKey string) (*PurchaseRecord, error)

	// PurchaseByID returns the stored record for an event ID, or nil.
	PurchaseByID(ctx context.Context, id string) (*PurchaseRecord, error)

	// Apply inserts a batch of ledger entries atomically and idempotently.
	// For each entry whose (purchase_event_id, recipient_id, kind) key is
	// new: insert the row and, in the same transaction, increment the
	// recipient's wallet balance and matching earning counter. Existing
	// keys are skipped. Any other failure rolls back the whole batch.
	Apply(ctx context.Context, entries []LedgerEntry) (ApplyResult, error)

	// EntriesForPurchase returns the entries recorded for one purchase or
	// distribution batch.
	EntriesForPurchase(ctx context.Context, purchaseEventID string) ([]LedgerEntry, error)

	// EntriesForMember returns a member's entries, oldest first.
	EntriesForMember(ctx context.Context, id MemberID) ([]LedgerEntry, error)

	// PoolBalance returns the undistributed passive pool balance (the pool
	// pseudo-account's wallet).
	PoolBalance(ctx context.Context) (Money, error)
}

// =============================================================================
// STRUCTURE STORE
// =============================================================================

type StructureStore interface {
	// SaveStructure validates and persists a new structure version and
	// returns the assigned version number. Existing versions are immutable.
	SaveStructure(ctx context.Context, s Structure) (int, error)

	// CurrentStructure returns the highest structure version.
	CurrentStructure(ctx context.Context) (*Structure, error)

	// StructureByVersion returns a historical version, or nil.
	StructureByVersion(ctx context.Context, version int) (*Structure, error)
}

// Store is the full persistence surface the processor needs.
type Store interface {
	MemberStore
	LedgerStore
	StructureStore
}
