// Package store provides an in-memory Store implementation (for testing/dev).
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/commission-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation of engine.Store
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	members    map[engine.MemberID]engine.Member
	purchases  map[string]engine.PurchaseRecord // by idempotency key
	byEventID  map[string]string                // event ID -> idempotency key
	entries    []engine.LedgerEntry
	entryKeys  map[entryKey]bool
	structures []engine.Structure

	// FailApplies makes the next n Apply calls fail with ErrStorageFailure,
	// for retry tests.
	FailApplies int
}

type entryKey struct {
	PurchaseEventID string
	RecipientID     engine.MemberID
	Kind            engine.EntryKind
}

func NewMemory() *Memory {
	m := &Memory{
		members:   make(map[engine.MemberID]engine.Member),
		purchases: make(map[string]engine.PurchaseRecord),
		byEventID: make(map[string]string),
		entryKeys: make(map[entryKey]bool),
	}
	// Pseudo-accounts exist from the start, like the sqlite store seeds them.
	m.members[engine.PoolAccountID] = engine.Member{ID: engine.PoolAccountID, Name: "Passive Income Pool"}
	m.members[engine.CompanyAccountID] = engine.Member{ID: engine.CompanyAccountID, Name: "Company Fund"}
	return m
}

var _ engine.Store = (*Memory)(nil)

// =============================================================================
// MEMBER STORE
// =============================================================================

func (m *Memory) CreateMember(_ context.Context, member engine.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if member.SponsorID != nil {
		if _, ok := m.members[*member.SponsorID]; !ok {
			return engine.ErrSponsorNotFound
		}
	}
	m.members[member.ID] = member
	return nil
}

func (m *Memory) Member(_ context.Context, id engine.MemberID) (*engine.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	member, ok := m.members[id]
	if !ok {
		return nil, nil
	}
	return &member, nil
}

func (m *Memory) ListMembers(_ context.Context) ([]engine.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]engine.Member, 0, len(m.members))
	for _, member := range m.members {
		result = append(result, member)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) ActiveMemberIDs(_ context.Context, asOf time.Time) ([]engine.MemberID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []engine.MemberID
	for id, member := range m.members {
		if id.IsPseudoAccount() {
			continue
		}
		if member.IsActive(asOf) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *Memory) SetActiveUntil(_ context.Context, id engine.MemberID, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	member, ok := m.members[id]
	if !ok {
		return engine.ErrMemberNotFound
	}
	member.ActiveUntil = until
	m.members[id] = member
	return nil
}

// SetSponsor rewires a member's sponsor with no referential checks. Test
// hook for corrupt-graph scenarios.
func (m *Memory) SetSponsor(id engine.MemberID, sponsor *engine.MemberID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	member, ok := m.members[id]
	if !ok {
		return
	}
	member.SponsorID = sponsor
	m.members[id] = member
}

func (m *Memory) Sponsor(_ context.Context, id engine.MemberID) (*engine.MemberID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	member, ok := m.members[id]
	if !ok {
		return nil, engine.ErrMemberNotFound
	}
	return member.SponsorID, nil
}

// =============================================================================
// LEDGER STORE
// =============================================================================

func (m *Memory) RecordPurchase(_ context.Context, rec engine.PurchaseRecord) (engine.PurchaseRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.purchases[rec.Event.IdempotencyKey]; ok {
		return existing, false, nil
	}
	m.purchases[rec.Event.IdempotencyKey] = rec
	m.byEventID[rec.Event.ID] = rec.Event.IdempotencyKey
	return rec, true, nil
}

func (m *Memory) PurchaseByKey(_ context.Context, idempotencyKey string) (*engine.PurchaseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.purchases[idempotencyKey]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) PurchaseByID(_ context.Context, id string) (*engine.PurchaseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.byEventID[id]
	if !ok {
		return nil, nil
	}
	rec := m.purchases[key]
	return &rec, nil
}

func (m *Memory) Apply(_ context.Context, entries []engine.LedgerEntry) (engine.ApplyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailApplies > 0 {
		m.FailApplies--
		return engine.ApplyResult{}, engine.ErrStorageFailure
	}

	// Check phase: every new entry's recipient must exist, or the whole
	// batch is rejected before any write.
	var result engine.ApplyResult
	toApply := make([]engine.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		k := entryKey{e.PurchaseEventID, e.RecipientID, e.Kind}
		if m.entryKeys[k] {
			result.Skipped++
			continue
		}
		if _, ok := m.members[e.RecipientID]; !ok {
			return engine.ApplyResult{}, engine.ErrMemberNotFound
		}
		toApply = append(toApply, e)
	}

	// Write phase.
	now := time.Now().UTC()
	for _, e := range toApply {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.AppliedAt.IsZero() {
			e.AppliedAt = now
		}
		m.entries = append(m.entries, e)
		m.entryKeys[entryKey{e.PurchaseEventID, e.RecipientID, e.Kind}] = true
		m.credit(e)
		result.Applied++
	}
	return result, nil
}

func (m *Memory) credit(e engine.LedgerEntry) {
	member := m.members[e.RecipientID]
	member.WalletBalance = member.WalletBalance.Add(e.Amount)
	if e.Amount.IsPositive() {
		member.TotalEarnings = member.TotalEarnings.Add(e.Amount)
	}
	switch {
	case e.Kind == engine.KindDirectSponsor:
		member.SponsorBonusTotal = member.SponsorBonusTotal.Add(e.Amount)
	case e.Kind.DepthLevel() > 0:
		member.CareerBonusTotal = member.CareerBonusTotal.Add(e.Amount)
	case e.Kind == engine.KindPoolPayout && e.Amount.IsPositive():
		member.PassiveIncomeTotal = member.PassiveIncomeTotal.Add(e.Amount)
	case e.Kind == engine.KindCompanyFund:
		member.CompanyFundTotal = member.CompanyFundTotal.Add(e.Amount)
	}
	m.members[e.RecipientID] = member
}

func (m *Memory) EntriesForPurchase(_ context.Context, purchaseEventID string) ([]engine.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.LedgerEntry
	for _, e := range m.entries {
		if e.PurchaseEventID == purchaseEventID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *Memory) EntriesForMember(_ context.Context, id engine.MemberID) ([]engine.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.LedgerEntry
	for _, e := range m.entries {
		if e.RecipientID == id {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *Memory) PoolBalance(_ context.Context) (engine.Money, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.members[engine.PoolAccountID].WalletBalance, nil
}

// =============================================================================
// STRUCTURE STORE
// =============================================================================

func (m *Memory) SaveStructure(_ context.Context, s engine.Structure) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.Version = len(m.structures) + 1
	if err := s.Validate(); err != nil {
		return 0, err
	}
	m.structures = append(m.structures, s)
	return s.Version, nil
}

func (m *Memory) CurrentStructure(_ context.Context) (*engine.Structure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.structures) == 0 {
		return nil, nil
	}
	s := m.structures[len(m.structures)-1]
	return &s, nil
}

func (m *Memory) StructureByVersion(_ context.Context, version int) (*engine.Structure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if version < 1 || version > len(m.structures) {
		return nil, nil
	}
	s := m.structures[version-1]
	return &s, nil
}
