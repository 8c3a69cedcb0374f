package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var baseTime = time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)

func member(id string, sponsor *engine.MemberID) engine.Member {
	return engine.Member{
		ID:          engine.MemberID(id),
		Name:        "Member " + id,
		SponsorID:   sponsor,
		JoinedAt:    baseTime,
		CareerLevel: 1,
	}
}

func record(eventID, buyer, amount, key string) engine.PurchaseRecord {
	return engine.PurchaseRecord{
		Event: engine.PurchaseEvent{
			ID:               eventID,
			BuyerID:          engine.MemberID(buyer),
			Amount:           engine.MustParseMoney(amount),
			SourceKind:       engine.SourceOrder,
			Timestamp:        baseTime,
			IdempotencyKey:   key,
			StructureVersion: 1,
		},
		MonthsGranted:  1,
		NewActiveUntil: baseTime.AddDate(0, 1, 0),
	}
}

func entry(eventID, recipient string, kind engine.EntryKind, amount string) engine.LedgerEntry {
	return engine.LedgerEntry{
		PurchaseEventID: eventID,
		RecipientID:     engine.MemberID(recipient),
		Kind:            kind,
		Amount:          engine.MustParseMoney(amount),
	}
}

// =============================================================================
// MEMBERS
// =============================================================================

func TestStore_SeedsPseudoAccounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pool, err := store.Member(ctx, engine.PoolAccountID)
	require.NoError(t, err)
	require.NotNil(t, pool)
	assert.True(t, pool.WalletBalance.IsZero())

	company, err := store.Member(ctx, engine.CompanyAccountID)
	require.NoError(t, err)
	require.NotNil(t, company)
}

func TestStore_CreateAndGetMember(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateMember(ctx, member("root", nil)))
	rootID := engine.MemberID("root")
	require.NoError(t, store.CreateMember(ctx, member("child", &rootID)))

	got, err := store.Member(ctx, "child")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Member child", got.Name)
	require.NotNil(t, got.SponsorID)
	assert.Equal(t, rootID, *got.SponsorID)
	assert.True(t, got.WalletBalance.IsZero())
}

func TestStore_GetMember_Unknown_ReturnsNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Member(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_CreateMember_UnknownSponsor_Rejected(t *testing.T) {
	store := newTestStore(t)
	ghost := engine.MemberID("ghost")

	err := store.CreateMember(context.Background(), member("m1", &ghost))
	assert.ErrorIs(t, err, engine.ErrSponsorNotFound)
}

func TestStore_Sponsor_RootHasNone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateMember(ctx, member("root", nil)))

	sponsor, err := store.Sponsor(ctx, "root")
	require.NoError(t, err)
	assert.Nil(t, sponsor)

	_, err = store.Sponsor(ctx, "ghost")
	assert.ErrorIs(t, err, engine.ErrMemberNotFound)
}

func TestStore_ActiveMemberIDs_ExcludesExpiredAndPseudo(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateMember(ctx, member("active", nil)))
	require.NoError(t, store.CreateMember(ctx, member("expired", nil)))
	require.NoError(t, store.SetActiveUntil(ctx, "active", baseTime.AddDate(0, 1, 0)))
	require.NoError(t, store.SetActiveUntil(ctx, "expired", baseTime.AddDate(0, -1, 0)))

	ids, err := store.ActiveMemberIDs(ctx, baseTime)
	require.NoError(t, err)
	assert.Equal(t, []engine.MemberID{"active"}, ids)
}

func TestStore_SetActiveUntil_UnknownMember(t *testing.T) {
	store := newTestStore(t)

	err := store.SetActiveUntil(context.Background(), "ghost", baseTime)
	assert.ErrorIs(t, err, engine.ErrMemberNotFound)
}

// =============================================================================
// PURCHASES
// =============================================================================

func TestStore_RecordPurchase_WriteOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateMember(ctx, member("buyer", nil)))

	first := record("evt-1", "buyer", "100", "key-1")
	stored, created, err := store.RecordPurchase(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "evt-1", stored.Event.ID)

	// Same key, different event ID: the original record wins.
	dup := record("evt-2", "buyer", "100", "key-1")
	stored, created, err = store.RecordPurchase(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "evt-1", stored.Event.ID, "original record must be returned")
}

func TestStore_PurchaseRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateMember(ctx, member("buyer", nil)))

	rec := record("evt-1", "buyer", "123.45", "key-1")
	_, _, err := store.RecordPurchase(ctx, rec)
	require.NoError(t, err)

	byKey, err := store.PurchaseByKey(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, byKey)
	assert.Equal(t, rec.Event.ID, byKey.Event.ID)
	assert.True(t, byKey.Event.Amount.Equal(rec.Event.Amount))
	assert.Equal(t, rec.MonthsGranted, byKey.MonthsGranted)
	assert.True(t, byKey.NewActiveUntil.Equal(rec.NewActiveUntil))

	byID, err := store.PurchaseByID(ctx, "evt-1")
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, byKey.Event.IdempotencyKey, byID.Event.IdempotencyKey)

	missing, err := store.PurchaseByKey(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// =============================================================================
// LEDGER
// =============================================================================

func TestStore_Apply_CreditsWalletsAndCounters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateMember(ctx, member("sponsor", nil)))

	result, err := store.Apply(ctx, []engine.LedgerEntry{
		entry("evt-1", "sponsor", engine.KindDirectSponsor, "10.00"),
		entry("evt-1", "sponsor", engine.KindDepth(1), "5.00"),
		entry("evt-1", string(engine.PoolAccountID), engine.KindPassivePool, "10.00"),
		entry("evt-1", string(engine.CompanyAccountID), engine.KindCompanyFund, "75.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Applied)
	assert.Equal(t, 0, result.Skipped)

	sponsor, err := store.Member(ctx, "sponsor")
	require.NoError(t, err)
	assert.Equal(t, "15.00", sponsor.WalletBalance.String())
	assert.Equal(t, "15.00", sponsor.TotalEarnings.String())
	assert.Equal(t, "10.00", sponsor.SponsorBonusTotal.String())
	assert.Equal(t, "5.00", sponsor.CareerBonusTotal.String())

	pool, err := store.PoolBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10.00", pool.String())

	company, err := store.Member(ctx, engine.CompanyAccountID)
	require.NoError(t, err)
	assert.Equal(t, "75.00", company.CompanyFundTotal.String())
}

func TestStore_Apply_ReplayedBatch_SkipsEverything(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateMember(ctx, member("sponsor", nil)))

	batch := []engine.LedgerEntry{
		entry("evt-1", "sponsor", engine.KindDirectSponsor, "10.00"),
		entry("evt-1", string(engine.CompanyAccountID), engine.KindCompanyFund, "90.00"),
	}

	_, err := store.Apply(ctx, batch)
	require.NoError(t, err)

	result, err := store.Apply(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Applied)
	assert.Equal(t, 2, result.Skipped)
	assert.True(t, result.AlreadyApplied())

	sponsor, err := store.Member(ctx, "sponsor")
	require.NoError(t, err)
	assert.Equal(t, "10.00", sponsor.WalletBalance.String(), "replay must not double-credit")
}

func TestStore_Apply_PartialBatch_FillsOnlyTheGap(t *testing.T) {
	// GIVEN: A batch where one entry already landed
	// WHEN: The full batch is re-applied
	// THEN: Only the missing entry is written
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateMember(ctx, member("sponsor", nil)))

	first := entry("evt-1", "sponsor", engine.KindDirectSponsor, "10.00")
	_, err := store.Apply(ctx, []engine.LedgerEntry{first})
	require.NoError(t, err)

	result, err := store.Apply(ctx, []engine.LedgerEntry{
		first,
		entry("evt-1", string(engine.CompanyAccountID), engine.KindCompanyFund, "90.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, result.Skipped)

	sponsor, err := store.Member(ctx, "sponsor")
	require.NoError(t, err)
	assert.Equal(t, "10.00", sponsor.WalletBalance.String())
}

func TestStore_Apply_UnknownRecipient_RollsBackWholeBatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateMember(ctx, member("sponsor", nil)))

	_, err := store.Apply(ctx, []engine.LedgerEntry{
		entry("evt-1", "sponsor", engine.KindDirectSponsor, "10.00"),
		entry("evt-1", "ghost", engine.KindDepth(1), "5.00"),
	})
	require.Error(t, err)

	// The valid entry must have been rolled back with the batch.
	sponsor, err := store.Member(ctx, "sponsor")
	require.NoError(t, err)
	assert.True(t, sponsor.WalletBalance.IsZero(), "failed batch must not leave partial credits")

	entries, err := store.EntriesForPurchase(ctx, "evt-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_Apply_NegativeEntry_DebitsWallet(t *testing.T) {
	// Pool payouts carry a negative debit entry against the pool account.
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateMember(ctx, member("m1", nil)))

	_, err := store.Apply(ctx, []engine.LedgerEntry{
		entry("evt-1", string(engine.PoolAccountID), engine.KindPassivePool, "10.00"),
	})
	require.NoError(t, err)

	_, err = store.Apply(ctx, []engine.LedgerEntry{
		entry("pool-2026-06", "m1", engine.KindPoolPayout, "10.00"),
		entry("pool-2026-06", string(engine.PoolAccountID), engine.KindPoolPayout, "-10.00"),
	})
	require.NoError(t, err)

	pool, err := store.PoolBalance(ctx)
	require.NoError(t, err)
	assert.True(t, pool.IsZero())

	m1, err := store.Member(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "10.00", m1.PassiveIncomeTotal.String())
}

func TestStore_EntriesForMember(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateMember(ctx, member("m1", nil)))

	_, err := store.Apply(ctx, []engine.LedgerEntry{
		entry("evt-1", "m1", engine.KindDirectSponsor, "10.00"),
		entry("evt-2", "m1", engine.KindDepth(3), "3.00"),
	})
	require.NoError(t, err)

	entries, err := store.EntriesForMember(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, engine.MemberID("m1"), e.RecipientID)
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.AppliedAt.IsZero())
	}
}

// =============================================================================
// STRUCTURES
// =============================================================================

func TestStore_StructureVersioning(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v1, err := store.SaveStructure(ctx, engine.DefaultStructure())
	require.NoError(t, err)
	assert.Equal(t, 1, v1)

	second := engine.DefaultStructure()
	second.DirectSponsorPct = engine.MustParseMoney("15").Value
	second.CompanyFundPct = engine.MustParseMoney("55").Value
	v2, err := store.SaveStructure(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 2, v2)

	current, err := store.CurrentStructure(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, 2, current.Version)
	assert.Equal(t, "15", current.DirectSponsorPct.String())

	historical, err := store.StructureByVersion(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, historical)
	assert.Equal(t, "10", historical.DirectSponsorPct.String())
	for i, want := range []string{"5", "4", "3", "2", "2", "2", "2"} {
		assert.Equal(t, want, historical.DepthPct[i].String())
	}
}

func TestStore_SaveStructure_InvalidSum_Rejected(t *testing.T) {
	store := newTestStore(t)

	bad := engine.DefaultStructure()
	bad.CompanyFundPct = engine.MustParseMoney("61").Value

	_, err := store.SaveStructure(context.Background(), bad)
	assert.ErrorIs(t, err, engine.ErrConfigInvalid)
}

func TestStore_CurrentStructure_Empty_ReturnsNil(t *testing.T) {
	store := newTestStore(t)

	current, err := store.CurrentStructure(context.Background())
	require.NoError(t, err)
	assert.Nil(t, current)
}
