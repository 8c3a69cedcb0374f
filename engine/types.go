/*
Package engine provides the commission distribution and activation engine.

PURPOSE:
  This package contains the core types and algorithms for processing
  purchase events in a multi-level network: resolving how many months a
  purchase keeps the buyer active, walking the buyer's sponsor chain, and
  splitting the purchase amount into exact, auditable ledger entries.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: An exact decimal amount (cents precision, no float drift)
  - Member: A participant in the sponsor network with a wallet
  - PurchaseEvent: An immutable record of one real-world payment
  - LedgerEntry: One credit to one recipient for one purchase
  - EntryKind: Which split of the purchase an entry represents

DESIGN PRINCIPLES:
  1. Exactness: All money uses decimal.Decimal - never float64
  2. Immutability: Purchase events and ledger entries are write-once
  3. Idempotency: (purchase, recipient, kind) uniquely keys every entry
  4. Conservation: Every cent of a purchase lands in exactly one entry

USAGE:
  event := engine.PurchaseEvent{
      BuyerID:        "m-042",
      Amount:         engine.NewMoney(200),
      SourceKind:     engine.SourceOrder,
      IdempotencyKey: "pay-8841",
  }
  receipt, err := processor.ProcessPurchase(ctx, event)

SEE ALSO:
  - structure.go: Commission percentage configuration
  - distribution.go: The pure split computation
  - processor.go: End-to-end purchase processing
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Exact decimal amount
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value)}
}

func NewMoneyFromInt(value int64) Money {
	return Money{Value: decimal.NewFromInt(value)}
}

func MoneyFromCents(cents int64) Money {
	return Money{Value: decimal.New(cents, -2)}
}

func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{Value: decimal.Zero}, err
	}
	return Money{Value: d}, nil
}

func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		return Money{Value: decimal.Zero}
	}
	return m
}

func ZeroMoney() Money { return Money{Value: decimal.Zero} }

func (m Money) Add(o Money) Money          { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money          { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Neg() Money                 { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool               { return m.Value.IsZero() }
func (m Money) IsNegative() bool           { return m.Value.IsNegative() }
func (m Money) IsPositive() bool           { return m.Value.IsPositive() }
func (m Money) Equal(o Money) bool         { return m.Value.Equal(o.Value) }
func (m Money) GreaterThan(o Money) bool   { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool      { return m.Value.LessThan(o.Value) }
func (m Money) GreaterOrEqual(o Money) bool { return m.Value.GreaterThanOrEqual(o.Value) }
func (m Money) String() string             { return m.Value.StringFixed(2) }

// HasCentPrecision reports whether the amount has at most two decimal places.
// Amounts with sub-cent precision cannot be split exactly and are rejected
// at validation time.
func (m Money) HasCentPrecision() bool {
	return m.Value.Equal(m.Value.Round(2))
}

// Share returns pct percent of m, truncated to whole cents. Truncation (not
// rounding) guarantees the sum of all shares never exceeds the base amount;
// the distribution remainder is absorbed by the company fund entry.
func (m Money) Share(pct decimal.Decimal) Money {
	return Money{Value: m.Value.Mul(pct).Div(decimal.NewFromInt(100)).RoundDown(2)}
}

// SplitEqually returns the per-recipient amount when m is divided among n
// recipients, truncated to whole cents. The caller keeps the remainder.
func (m Money) SplitEqually(n int) Money {
	if n <= 0 {
		return ZeroMoney()
	}
	return Money{Value: m.Value.Div(decimal.NewFromInt(int64(n))).RoundDown(2)}
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MemberID string

// Pseudo-accounts. These are ledger recipients, not people: the passive
// income pool holds undistributed pool shares, and the company account holds
// the company fund plus any redirected commissions. Both are seeded by the
// store and are never "active".
const (
	PoolAccountID    MemberID = "@pool"
	CompanyAccountID MemberID = "@company"
)

func (id MemberID) IsPseudoAccount() bool {
	return id == PoolAccountID || id == CompanyAccountID
}

// =============================================================================
// MEMBER - A participant in the sponsor network
// =============================================================================

type Member struct {
	ID        MemberID
	Name      string
	SponsorID *MemberID // nil only for root members and pseudo-accounts
	JoinedAt  time.Time

	// Activation window. A member is active while ActiveUntil >= now.
	ActiveUntil time.Time

	// Career level 1..7, maintained by the (out-of-scope) back office.
	CareerLevel int

	// Wallet state, maintained transactionally by the ledger writer.
	WalletBalance Money
	TotalEarnings Money

	// Per-kind earning counters. Informational read models - the ledger is
	// the authoritative record.
	SponsorBonusTotal  Money
	CareerBonusTotal   Money
	PassiveIncomeTotal Money
	CompanyFundTotal   Money
}

// IsActive reports whether the member's activation window covers asOf.
func (m Member) IsActive(asOf time.Time) bool {
	return !m.ActiveUntil.Before(asOf)
}

// =============================================================================
// PURCHASE EVENT - Immutable record of one real-world payment
// =============================================================================

type SourceKind string

const (
	SourceEntry        SourceKind = "entry"        // New member's entry package
	SourceSubscription SourceKind = "subscription" // Recurring monthly subscription
	SourceOrder        SourceKind = "order"        // One-off product order
)

func (k SourceKind) Valid() bool {
	switch k {
	case SourceEntry, SourceSubscription, SourceOrder:
		return true
	}
	return false
}

type PurchaseEvent struct {
	ID              string // Assigned when the event is recorded
	BuyerID         MemberID
	Amount          Money
	Currency        string
	SourceKind      SourceKind
	IsFirstPurchase bool
	Timestamp       time.Time
	IdempotencyKey  string

	// StructureVersion is stamped at processing time so historical
	// distributions stay reproducible after rate changes.
	StructureVersion int
}

// =============================================================================
// LEDGER ENTRY - One credit to one recipient for one purchase
// =============================================================================

type EntryKind string

const (
	KindDirectSponsor EntryKind = "direct_sponsor"
	KindPassivePool   EntryKind = "passive_pool"
	KindCompanyFund   EntryKind = "company_fund"

	// KindPoolPayout marks entries produced by a passive pool distribution
	// cycle, not by a purchase. Their PurchaseEventID is the distribution
	// batch ID.
	KindPoolPayout EntryKind = "pool_payout"
)

// KindDepth returns the entry kind for a depth commission level 1..7.
func KindDepth(level int) EntryKind {
	return EntryKind("depth_" + string(rune('0'+level)))
}

// DepthLevel returns the level for a depth kind, or 0 if k is not one.
func (k EntryKind) DepthLevel() int {
	s := string(k)
	if len(s) == 7 && s[:6] == "depth_" && s[6] >= '1' && s[6] <= '7' {
		return int(s[6] - '0')
	}
	return 0
}

type LedgerEntry struct {
	ID              string // Assigned by the ledger writer
	PurchaseEventID string
	RecipientID     MemberID
	Kind            EntryKind
	Amount          Money
	AppliedAt       time.Time
}

// SumEntries returns the total of a batch of entries. For a purchase batch
// this must equal the purchase amount exactly.
func SumEntries(entries []LedgerEntry) Money {
	total := ZeroMoney()
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total
}
