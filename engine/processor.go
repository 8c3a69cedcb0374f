/*
processor.go - End-to-end purchase processing

PURPOSE:
  ProcessPurchase is the engine's single entry point: it validates a
  purchase event, walks the buyer's upline, computes the distribution,
  writes the ledger batch, and extends the buyer's activation window.
  DistributePassivePool is the separate administrative trigger that splits
  the accumulated pool across active members.

CONCURRENCY:
  - Purchases by different buyers run fully in parallel.
  - Purchases by the same buyer are serialized on a per-buyer lock: the
    activation window extension is a read-modify-write on ActiveUntil.
  - Pool distribution holds a process-wide lock so a cycle never runs
    concurrently with itself and never double-pays the pool.
  - Activation thresholds are swappable at runtime; each purchase resolves
    months against a snapshot taken under a read lock.

RETRY SAFETY:
  The purchase record, the ledger batch, and the activation update are
  each idempotent: the record is write-once on the idempotency key, entry
  keys skip on conflict, and the window update is a monotone max. A retry
  after any partial failure converges on the same final state.
*/
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// PROCESSOR
// =============================================================================

type Processor struct {
	Store Store

	// MaxDepth caps the upline walk. Defaults to DepthLevels.
	MaxDepth int

	// Now is injectable for tests. Defaults to time.Now.
	Now func() time.Time

	// RetryAttempts/RetryDelay govern replays of transient storage
	// failures. The ledger batch is retried as a unit.
	RetryAttempts int
	RetryDelay    time.Duration

	mu         sync.Mutex
	buyerLocks map[MemberID]*sync.Mutex
	poolMu     sync.Mutex

	actMu      sync.RWMutex
	activation ActivationConfig
}

func NewProcessor(store Store) *Processor {
	return &Processor{
		Store:         store,
		activation:    DefaultActivationConfig(),
		MaxDepth:      DepthLevels,
		Now:           time.Now,
		RetryAttempts: 3,
		RetryDelay:    100 * time.Millisecond,
		buyerLocks:    make(map[MemberID]*sync.Mutex),
	}
}

// Receipt is the outcome of processing one purchase event.
type Receipt struct {
	Event          PurchaseEvent
	MonthsGranted  int
	NewActiveUntil time.Time
	Entries        []LedgerEntry

	// AlreadyApplied is true when the event's idempotency key had been
	// processed before; the receipt reflects the original processing.
	AlreadyApplied bool
}

// CurrentActivation returns the activation thresholds in effect.
func (p *Processor) CurrentActivation() ActivationConfig {
	p.actMu.RLock()
	defer p.actMu.RUnlock()
	return p.activation
}

// SetActivation swaps the activation thresholds at runtime. Only purchases
// processed after the swap resolve months under the new thresholds; replays
// of earlier purchases keep their recorded MonthsGranted.
func (p *Processor) SetActivation(cfg ActivationConfig) {
	p.actMu.Lock()
	defer p.actMu.Unlock()
	p.activation = cfg
}

// lockBuyer serializes processing per buyer.
func (p *Processor) lockBuyer(id MemberID) func() {
	p.mu.Lock()
	lock, ok := p.buyerLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		p.buyerLocks[id] = lock
	}
	p.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// =============================================================================
// PROCESS PURCHASE
// =============================================================================

// ProcessPurchase runs the full pipeline for one purchase event:
// activation resolution, upline walk, distribution, and ledger commit.
// Safe to retry: a replayed idempotency key returns the original receipt
// with AlreadyApplied set.
func (p *Processor) ProcessPurchase(ctx context.Context, event PurchaseEvent) (*Receipt, error) {
	if err := p.validate(event); err != nil {
		return nil, err
	}

	unlock := p.lockBuyer(event.BuyerID)
	defer unlock()

	buyer, err := p.Store.Member(ctx, event.BuyerID)
	if err != nil {
		return nil, err
	}
	if buyer == nil {
		return nil, &ValidationError{Field: "buyerId", Reason: fmt.Sprintf("unknown member %q", event.BuyerID)}
	}

	// Idempotent replay: the key has been processed before. Re-apply the
	// ledger batch (a no-op when complete, a gap-fill after a crash) and
	// return the original receipt.
	if existing, err := p.Store.PurchaseByKey(ctx, event.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return p.replay(ctx, buyer, *existing)
	}

	structure, err := p.Store.CurrentStructure(ctx)
	if err != nil {
		return nil, err
	}
	if structure == nil {
		return nil, &StructureError{Reason: "no commission structure loaded"}
	}

	upline, err := WalkUpline(ctx, p.Store, event.BuyerID, p.maxDepth())
	if err != nil {
		return nil, err
	}

	now := p.Now()
	event.ID = uuid.NewString()
	event.StructureVersion = structure.Version
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}

	months := p.CurrentActivation().ResolveActiveMonths(event.Amount, event.IsFirstPurchase, event.SourceKind)
	newActiveUntil := ExtendActiveUntil(buyer.ActiveUntil, now, months)
	entries := Distribute(event, upline, *structure)

	rec := PurchaseRecord{Event: event, MonthsGranted: months, NewActiveUntil: newActiveUntil}
	stored, created, err := p.Store.RecordPurchase(ctx, rec)
	if err != nil {
		return nil, err
	}
	if !created {
		// Lost a race on the idempotency key (e.g. a concurrent retry from
		// another process sharing the database).
		return p.replay(ctx, buyer, stored)
	}

	if err := p.applyWithRetry(ctx, event.ID, entries); err != nil {
		return nil, err
	}

	if err := p.extendActivation(ctx, *buyer, newActiveUntil, months); err != nil {
		return nil, err
	}

	applied, err := p.Store.EntriesForPurchase(ctx, event.ID)
	if err != nil {
		return nil, err
	}

	return &Receipt{
		Event:          event,
		MonthsGranted:  months,
		NewActiveUntil: newActiveUntil,
		Entries:        applied,
	}, nil
}

// replay reconstructs the receipt for a purchase that was (at least
// partially) processed before, converging any partial state: missing ledger
// entries are recomputed from the event's stamped structure version and
// re-applied, and the activation window is raised to its recorded end.
func (p *Processor) replay(ctx context.Context, buyer *Member, rec PurchaseRecord) (*Receipt, error) {
	entries, err := p.Store.EntriesForPurchase(ctx, rec.Event.ID)
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		// Crash window: the record exists but the batch never committed.
		// Recompute deterministically under the stamped structure version.
		structure, err := p.Store.StructureByVersion(ctx, rec.Event.StructureVersion)
		if err != nil {
			return nil, err
		}
		if structure == nil {
			return nil, &StructureError{Version: rec.Event.StructureVersion, Reason: "structure version missing for recorded purchase"}
		}
		upline, err := WalkUpline(ctx, p.Store, rec.Event.BuyerID, p.maxDepth())
		if err != nil {
			return nil, err
		}
		recomputed := Distribute(rec.Event, upline, *structure)
		if err := p.applyWithRetry(ctx, rec.Event.ID, recomputed); err != nil {
			return nil, err
		}
		if entries, err = p.Store.EntriesForPurchase(ctx, rec.Event.ID); err != nil {
			return nil, err
		}
	}

	if err := p.extendActivation(ctx, *buyer, rec.NewActiveUntil, rec.MonthsGranted); err != nil {
		return nil, err
	}

	return &Receipt{
		Event:          rec.Event,
		MonthsGranted:  rec.MonthsGranted,
		NewActiveUntil: rec.NewActiveUntil,
		Entries:        entries,
		AlreadyApplied: true,
	}, nil
}

func (p *Processor) applyWithRetry(ctx context.Context, purchaseEventID string, entries []LedgerEntry) error {
	return Retry(p.RetryAttempts, p.RetryDelay, func() error {
		_, err := p.Store.Apply(ctx, entries)
		if err != nil {
			return &BatchError{PurchaseEventID: purchaseEventID, Err: err}
		}
		return nil
	})
}

// extendActivation raises the buyer's window to newActiveUntil. Monotone:
// it never lowers an existing window, so replays are harmless.
func (p *Processor) extendActivation(ctx context.Context, buyer Member, newActiveUntil time.Time, months int) error {
	if months <= 0 || !newActiveUntil.After(buyer.ActiveUntil) {
		return nil
	}
	return p.Store.SetActiveUntil(ctx, buyer.ID, newActiveUntil)
}

func (p *Processor) maxDepth() int {
	if p.MaxDepth > 0 {
		return p.MaxDepth
	}
	return DepthLevels
}

// =============================================================================
// VALIDATION
// =============================================================================

func (p *Processor) validate(event PurchaseEvent) error {
	if event.BuyerID == "" {
		return &ValidationError{Field: "buyerId", Reason: "is required"}
	}
	if event.BuyerID.IsPseudoAccount() {
		return &ValidationError{Field: "buyerId", Reason: "pseudo-accounts cannot purchase"}
	}
	if event.IdempotencyKey == "" {
		return &ValidationError{Field: "idempotencyKey", Reason: "is required"}
	}
	if !event.SourceKind.Valid() {
		return &ValidationError{Field: "sourceKind", Reason: fmt.Sprintf("unknown kind %q", event.SourceKind)}
	}
	if !event.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if !event.Amount.HasCentPrecision() {
		return &ValidationError{Field: "amount", Reason: "must not have sub-cent precision"}
	}
	return nil
}
