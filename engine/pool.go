/*
pool.go - Passive income pool distribution

PURPOSE:
  The passive pool accumulates its share of every purchase and is paid out
  only by this explicit operation: an equal split of the pool balance
  across all members active at the distribution point. Leftover cents stay
  in the pool for the next cycle.

IDEMPOTENCY:
  A cycle's batch ID is derived from the distribution month, so rerunning
  a cycle (cron retry, manual re-trigger) replays the same batch and the
  ledger's uniqueness key makes it a no-op. The pool debit entry rides in
  the same batch, keeping the payout conserved.
*/
package engine

import (
	"context"
	"fmt"
	"time"
)

// PoolDistribution reports the outcome of one passive pool payout cycle.
type PoolDistribution struct {
	BatchID           string
	AsOf              time.Time
	Recipients        int
	AmountPerMember   Money
	DistributedAmount Money
	Leftover          Money // Stays in the pool for the next cycle

	// AlreadyApplied is true when this cycle's batch had been paid before.
	AlreadyApplied bool
}

// PoolBatchID derives the idempotent batch identifier for a distribution
// cycle. Cycles are monthly: two triggers within the same month pay the
// same batch once.
func PoolBatchID(asOf time.Time) string {
	return "pool-" + asOf.UTC().Format("2006-01")
}

// DistributePassivePool splits the pool balance equally among the members
// active at asOf. Snapshot semantics: the active set and the balance are
// both read under the distribution lock, at one consistent point.
//
// Zero active members, an empty pool, or a balance too small to give each
// member a whole cent all leave the pool untouched and report zero
// recipients.
func (p *Processor) DistributePassivePool(ctx context.Context, asOf time.Time) (*PoolDistribution, error) {
	if !p.poolMu.TryLock() {
		return nil, ErrDistributionInProgress
	}
	defer p.poolMu.Unlock()

	batchID := PoolBatchID(asOf)
	result := &PoolDistribution{
		BatchID:           batchID,
		AsOf:              asOf,
		AmountPerMember:   ZeroMoney(),
		DistributedAmount: ZeroMoney(),
	}

	// A batch already in the ledger means this cycle was paid; report it
	// without touching the pool again.
	existing, err := p.Store.EntriesForPurchase(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return p.describeExistingBatch(ctx, result, existing)
	}

	balance, err := p.Store.PoolBalance(ctx)
	if err != nil {
		return nil, err
	}
	result.Leftover = balance

	active, err := p.Store.ActiveMemberIDs(ctx, asOf)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 || !balance.IsPositive() {
		return result, nil
	}

	perMember := balance.SplitEqually(len(active))
	if !perMember.IsPositive() {
		return result, nil
	}

	total := ZeroMoney()
	entries := make([]LedgerEntry, 0, len(active)+1)
	for _, id := range active {
		entries = append(entries, LedgerEntry{
			PurchaseEventID: batchID,
			RecipientID:     id,
			Kind:            KindPoolPayout,
			Amount:          perMember,
		})
		total = total.Add(perMember)
	}
	// Debit the pool in the same batch so its balance drops by exactly the
	// amount paid out; the remainder stays behind.
	entries = append(entries, LedgerEntry{
		PurchaseEventID: batchID,
		RecipientID:     PoolAccountID,
		Kind:            KindPoolPayout,
		Amount:          total.Neg(),
	})

	if err := Retry(p.RetryAttempts, p.RetryDelay, func() error {
		_, err := p.Store.Apply(ctx, entries)
		if err != nil {
			return fmt.Errorf("pool batch %s: %w", batchID, err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	result.Recipients = len(active)
	result.AmountPerMember = perMember
	result.DistributedAmount = total
	result.Leftover = balance.Sub(total)
	return result, nil
}

// describeExistingBatch reconstructs a distribution report from a batch
// already in the ledger.
func (p *Processor) describeExistingBatch(ctx context.Context, result *PoolDistribution, entries []LedgerEntry) (*PoolDistribution, error) {
	for _, e := range entries {
		if e.RecipientID == PoolAccountID {
			continue // The pool debit
		}
		result.Recipients++
		result.AmountPerMember = e.Amount
		result.DistributedAmount = result.DistributedAmount.Add(e.Amount)
	}

	leftover, err := p.Store.PoolBalance(ctx)
	if err != nil {
		return nil, err
	}
	result.Leftover = leftover
	result.AlreadyApplied = true
	return result, nil
}
