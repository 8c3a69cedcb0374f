/*
activation.go - Activation rule resolver

PURPOSE:
  Maps a purchase to a number of "active months" for the buyer. A member
  is active while their activation window (ActiveUntil) covers the current
  date; active members earn commissions and participate in passive pool
  distributions.

RULE ORDER:
  Rules are evaluated top to bottom, first match wins. This fixed order is
  what resolves overlaps deterministically: a $300 first purchase matches
  the first-purchase rule (1 month), never the per-amount rule (3 months).

EXTENSION SEMANTICS:
  Granted months EXTEND the current window - from ActiveUntil if it is
  still in the future, from now if it has expired. Zero granted months
  leave ActiveUntil untouched; granting can never shorten a window.

CONFIGURATION:
  Every threshold is a config field, not a constant, so rules can be tuned
  (and tests can inject edge values) without touching the resolver.
*/
package engine

import "time"

// =============================================================================
// ACTIVATION CONFIG - Injectable thresholds
// =============================================================================

type ActivationConfig struct {
	// Rule 1: exact-amount subscription renewal.
	SubscriptionAmount Money
	SubscriptionMonths int

	// Rule 2: first qualifying purchase.
	FirstPurchaseMinAmount Money
	FirstPurchaseMonths    int

	// Rule 3: large repeat purchase.
	LargePurchaseMinAmount Money
	LargePurchaseMonths    int

	// Rule 4: general per-amount activation. Grants
	// floor(amount / PerAmount) * PerAmountMonths.
	GeneralActivationPerAmount Money
	GeneralActivationMonths    int
}

func DefaultActivationConfig() ActivationConfig {
	return ActivationConfig{
		SubscriptionAmount:         NewMoneyFromInt(20),
		SubscriptionMonths:         1,
		FirstPurchaseMinAmount:     NewMoneyFromInt(100),
		FirstPurchaseMonths:        1,
		LargePurchaseMinAmount:     NewMoneyFromInt(200),
		LargePurchaseMonths:        12,
		GeneralActivationPerAmount: NewMoneyFromInt(100),
		GeneralActivationMonths:    1,
	}
}

// =============================================================================
// RESOLVER
// =============================================================================

// ResolveActiveMonths returns the months of activation a purchase grants.
// Never negative; 0 means the purchase does not affect the buyer's window.
//
// An entry package is the first product order a new member places, so the
// order rules (2-4) match both SourceOrder and SourceEntry.
func (c ActivationConfig) ResolveActiveMonths(amount Money, isFirstPurchase bool, sourceKind SourceKind) int {
	// Rule 1: subscription at the exact subscription price.
	if sourceKind == SourceSubscription && amount.Equal(c.SubscriptionAmount) {
		return c.SubscriptionMonths
	}

	orderLike := sourceKind == SourceOrder || sourceKind == SourceEntry

	// Rule 2: first qualifying purchase.
	if orderLike && isFirstPurchase && amount.GreaterOrEqual(c.FirstPurchaseMinAmount) {
		return c.FirstPurchaseMonths
	}

	// Rule 3: large repeat purchase.
	if orderLike && !isFirstPurchase && amount.GreaterOrEqual(c.LargePurchaseMinAmount) {
		return c.LargePurchaseMonths
	}

	// Rule 4: per-amount activation.
	if orderLike && amount.GreaterOrEqual(c.GeneralActivationPerAmount) {
		blocks := amount.Value.Div(c.GeneralActivationPerAmount.Value).IntPart()
		return int(blocks) * c.GeneralActivationMonths
	}

	return 0
}

// ExtendActiveUntil returns the buyer's new activation window end after a
// grant of months. Extension, not replacement: an unexpired window grows
// from its current end, an expired one grows from now. Zero months returns
// current unchanged.
func ExtendActiveUntil(current, now time.Time, months int) time.Time {
	if months <= 0 {
		return current
	}
	base := current
	if base.Before(now) {
		base = now
	}
	return base.AddDate(0, months, 0)
}
