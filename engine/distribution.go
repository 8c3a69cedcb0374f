/*
distribution.go - Pure commission distribution

PURPOSE:
  Turns one purchase event plus the buyer's upline chain into the exact
  list of ledger entries that split the purchase amount. This is a pure
  function: no I/O, no clock, no randomness - the same inputs always
  produce the same entries, which is what makes distributions auditable
  and replayable.

COMPUTATION ORDER:
  1. Direct sponsor bonus -> upline[0]; redirected to the company fund if
     the buyer has no sponsor (never silently dropped).
  2. Depth commissions, levels 1..7 -> upline[level-1]; levels past the
     end of the chain accumulate into the company fund.
  3. Passive income pool share -> pool pseudo-account (held until an
     explicit pool distribution, never auto-paid per purchase).
  4. Company fund -> company account: its own percentage, plus every
     redirect from steps 1-2, plus the cent-truncation remainder.

CONSERVATION:
  sum(entries) == purchase amount, exactly. Per-recipient shares are
  truncated to whole cents; the company fund entry is computed as
  amount - sum(everything else), so not a fraction of a cent is ever
  created or destroyed.
*/
package engine

// Distribute splits event.Amount across the upline chain per the structure.
// The chain is nearest-first, as produced by WalkUpline; only its first
// DepthLevels entries are ever paid. Entry IDs and AppliedAt timestamps are
// assigned later by the ledger writer.
//
// The structure must be valid (Validate() == nil); the event amount must be
// positive with cent precision. Both are checked upstream by the processor.
func Distribute(event PurchaseEvent, upline []MemberID, structure Structure) []LedgerEntry {
	entries := make([]LedgerEntry, 0, DepthLevels+3)
	paid := ZeroMoney()

	add := func(recipient MemberID, kind EntryKind, amount Money) {
		if !amount.IsPositive() {
			return
		}
		entries = append(entries, LedgerEntry{
			PurchaseEventID: event.ID,
			RecipientID:     recipient,
			Kind:            kind,
			Amount:          amount,
		})
		paid = paid.Add(amount)
	}

	// 1. Direct sponsor bonus. No sponsor -> the share stays in the batch
	// and lands in the company fund remainder below.
	direct := event.Amount.Share(structure.DirectSponsorPct)
	if len(upline) > 0 {
		add(upline[0], KindDirectSponsor, direct)
	}

	// 2. Depth commissions for levels the chain actually reaches. Absent
	// levels are not paid to anyone; their share accumulates into the
	// company fund remainder.
	for level := 1; level <= DepthLevels; level++ {
		if level > len(upline) {
			break
		}
		add(upline[level-1], KindDepth(level), event.Amount.Share(structure.DepthPct[level-1]))
	}

	// 3. Passive income pool share, held by the pool pseudo-account.
	add(PoolAccountID, KindPassivePool, event.Amount.Share(structure.PassivePoolPct))

	// 4. Company fund takes everything not paid above: its own percentage,
	// redirected sponsor/depth shares, and truncation remainders. This is
	// what makes the conservation invariant exact.
	remainder := event.Amount.Sub(paid)
	if remainder.IsPositive() {
		entries = append(entries, LedgerEntry{
			PurchaseEventID: event.ID,
			RecipientID:     CompanyAccountID,
			Kind:            KindCompanyFund,
			Amount:          remainder,
		})
	}

	return entries
}
