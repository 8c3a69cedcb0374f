/*
handlers_test.go - HTTP API tests

Tests the full request/response cycle against the in-memory store:
purchase submission, idempotent retries, member registration, structure
versioning, and pool distribution.
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/engine/store"
	"github.com/warp/commission-engine/factory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	handler := NewHandler(mem)
	ts := httptest.NewServer(NewRouter(handler))
	t.Cleanup(ts.Close)

	// A structure must exist before purchases can be processed.
	resp := postJSON(t, ts, "/api/structures", map[string]any{
		"direct_sponsor_pct": "10",
		"depth_pct":          []string{"5", "4", "3", "2", "2", "2", "2"},
		"passive_pool_pct":   "10",
		"company_fund_pct":   "60",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	return ts, mem
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func createMember(t *testing.T, ts *httptest.Server, id string, sponsor *string) {
	t.Helper()
	body := map[string]any{"id": id, "name": "Member " + id}
	if sponsor != nil {
		body["sponsor_id"] = *sponsor
	}
	resp := postJSON(t, ts, "/api/members", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func strPtr(s string) *string { return &s }

// =============================================================================
// MEMBERS
// =============================================================================

func TestAPI_CreateMember_UnderSponsor(t *testing.T) {
	ts, _ := newTestServer(t)

	createMember(t, ts, "root", nil)
	createMember(t, ts, "child", strPtr("root"))

	var dto MemberDTO
	resp := getJSON(t, ts, "/api/members/child", &dto)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "child", dto.ID)
	require.NotNil(t, dto.SponsorID)
	assert.Equal(t, "root", *dto.SponsorID)
	assert.False(t, dto.IsActive, "a new member starts inactive")
	assert.Equal(t, "0.00", dto.Wallet.Balance)
}

func TestAPI_CreateMember_UnknownSponsor_Rejected(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts, "/api/members", map[string]any{
		"name": "Orphan", "sponsor_id": "ghost",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_CreateMember_ReservedID_Rejected(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts, "/api/members", map[string]any{
		"id": "@pool", "name": "Impostor",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GetMember_NotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := getJSON(t, ts, "/api/members/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_MemberUpline_NearestFirst(t *testing.T) {
	ts, _ := newTestServer(t)
	createMember(t, ts, "a", nil)
	createMember(t, ts, "b", strPtr("a"))
	createMember(t, ts, "c", strPtr("b"))

	var upline []string
	resp := getJSON(t, ts, "/api/members/c/upline", &upline)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"b", "a"}, upline)
}

// =============================================================================
// PURCHASES
// =============================================================================

func TestAPI_SubmitPurchase_FullPipeline(t *testing.T) {
	ts, _ := newTestServer(t)
	createMember(t, ts, "a", nil)
	createMember(t, ts, "b", strPtr("a"))

	resp := postJSON(t, ts, "/api/purchases", SubmitPurchaseRequest{
		BuyerID:         "b",
		Amount:          "100",
		SourceKind:      "entry",
		IsFirstPurchase: true,
		IdempotencyKey:  "order-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	receipt := decode[PurchaseReceiptDTO](t, resp)

	assert.NotEmpty(t, receipt.PurchaseEventID)
	assert.Equal(t, 1, receipt.MonthsGranted)
	assert.False(t, receipt.AlreadyApplied)
	assert.NotEmpty(t, receipt.Entries)

	// The batch conserves the amount.
	total := engine.ZeroMoney()
	for _, e := range receipt.Entries {
		total = total.Add(engine.MustParseMoney(e.Amount))
	}
	assert.Equal(t, "100.00", total.String())

	// The buyer is now active.
	var buyer MemberDTO
	getJSON(t, ts, "/api/members/b", &buyer)
	assert.True(t, buyer.IsActive)

	// The sponsor's wallet reflects bonus + depth-1.
	var sponsor MemberDTO
	getJSON(t, ts, "/api/members/a", &sponsor)
	assert.Equal(t, "15.00", sponsor.Wallet.Balance)
	assert.Equal(t, "10.00", sponsor.Wallet.SponsorBonusTotal)
}

func TestAPI_SubmitPurchase_RetryReturnsOriginalReceipt(t *testing.T) {
	ts, _ := newTestServer(t)
	createMember(t, ts, "solo", nil)

	req := SubmitPurchaseRequest{
		BuyerID:        "solo",
		Amount:         "200",
		SourceKind:     "order",
		IdempotencyKey: "retry-me",
	}

	resp := postJSON(t, ts, "/api/purchases", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decode[PurchaseReceiptDTO](t, resp)

	resp = postJSON(t, ts, "/api/purchases", req)
	require.Equal(t, http.StatusOK, resp.StatusCode, "a retry is not an error")
	second := decode[PurchaseReceiptDTO](t, resp)

	assert.True(t, second.AlreadyApplied)
	assert.Equal(t, first.PurchaseEventID, second.PurchaseEventID)
	assert.Equal(t, first.NewActiveUntil, second.NewActiveUntil)
}

func TestAPI_SubmitPurchase_Invalid_Returns400(t *testing.T) {
	ts, _ := newTestServer(t)
	createMember(t, ts, "m1", nil)

	cases := []SubmitPurchaseRequest{
		{BuyerID: "m1", Amount: "0", SourceKind: "order", IdempotencyKey: "k1"},
		{BuyerID: "m1", Amount: "-5", SourceKind: "order", IdempotencyKey: "k2"},
		{BuyerID: "m1", Amount: "bogus", SourceKind: "order", IdempotencyKey: "k3"},
		{BuyerID: "m1", Amount: "100", SourceKind: "refund", IdempotencyKey: "k4"},
		{BuyerID: "m1", Amount: "100", SourceKind: "order"},
		{BuyerID: "ghost", Amount: "100", SourceKind: "order", IdempotencyKey: "k5"},
		{BuyerID: "@company", Amount: "100", SourceKind: "order", IdempotencyKey: "k6"},
	}
	for _, tc := range cases {
		resp := postJSON(t, ts, "/api/purchases", tc)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "request: %+v", tc)
		resp.Body.Close()
	}
}

func TestAPI_GetPurchase_AndEntries(t *testing.T) {
	ts, _ := newTestServer(t)
	createMember(t, ts, "m1", nil)

	resp := postJSON(t, ts, "/api/purchases", SubmitPurchaseRequest{
		BuyerID: "m1", Amount: "100", SourceKind: "order",
		IsFirstPurchase: true, IdempotencyKey: "lookup-me",
	})
	receipt := decode[PurchaseReceiptDTO](t, resp)

	var fetched PurchaseReceiptDTO
	r := getJSON(t, ts, "/api/purchases/"+receipt.PurchaseEventID, &fetched)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.Equal(t, receipt.PurchaseEventID, fetched.PurchaseEventID)
	assert.Len(t, fetched.Entries, len(receipt.Entries))

	var entries []LedgerEntryDTO
	r = getJSON(t, ts, "/api/purchases/"+receipt.PurchaseEventID+"/entries", &entries)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.Len(t, entries, len(receipt.Entries))

	r = getJSON(t, ts, "/api/purchases/nope", nil)
	assert.Equal(t, http.StatusNotFound, r.StatusCode)
}

// =============================================================================
// STRUCTURES
// =============================================================================

func TestAPI_CreateStructure_InvalidSum_Rejected(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts, "/api/structures", map[string]any{
		"direct_sponsor_pct": "10",
		"depth_pct":          []string{"5", "4", "3", "2", "2", "2", "2"},
		"passive_pool_pct":   "10",
		"company_fund_pct":   "61",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_StructureVersions(t *testing.T) {
	ts, _ := newTestServer(t)

	// v2 with a different split.
	resp := postJSON(t, ts, "/api/structures", map[string]any{
		"direct_sponsor_pct": "15",
		"depth_pct":          []string{"5", "4", "3", "2", "2", "2", "2"},
		"passive_pool_pct":   "10",
		"company_fund_pct":   "55",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[StructureDTO](t, resp)
	assert.Equal(t, 2, created.Version)

	var current StructureDTO
	getJSON(t, ts, "/api/structures/current", &current)
	assert.Equal(t, 2, current.Version)
	assert.Equal(t, "15", current.DirectSponsorPct)
	assert.Equal(t, "100", current.PctSum)

	var v1 StructureDTO
	r := getJSON(t, ts, "/api/structures/1", &v1)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.Equal(t, "10", v1.DirectSponsorPct)

	r = getJSON(t, ts, "/api/structures/99", nil)
	assert.Equal(t, http.StatusNotFound, r.StatusCode)
}

// =============================================================================
// POOL
// =============================================================================

func TestAPI_PoolStatusAndDistribution(t *testing.T) {
	ts, _ := newTestServer(t)
	createMember(t, ts, "m1", nil)
	createMember(t, ts, "m2", strPtr("m1"))

	for i, buyer := range []string{"m1", "m2"} {
		resp := postJSON(t, ts, "/api/purchases", SubmitPurchaseRequest{
			BuyerID: buyer, Amount: "100", SourceKind: "entry",
			IsFirstPurchase: true, IdempotencyKey: "pool-fill-" + string(rune('0'+i)),
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	var status PoolStatusDTO
	getJSON(t, ts, "/api/pool", &status)
	assert.Equal(t, "20.00", status.Balance)
	assert.Equal(t, 2, status.ActiveMembers)

	resp := postJSON(t, ts, "/api/pool/distribute", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[PoolDistributionDTO](t, resp)
	assert.Equal(t, 2, result.Recipients)
	assert.Equal(t, "10.00", result.AmountPerMember)
	assert.False(t, result.AlreadyApplied)

	// Re-trigger within the same cycle: original batch, no error.
	resp = postJSON(t, ts, "/api/pool/distribute", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	again := decode[PoolDistributionDTO](t, resp)
	assert.True(t, again.AlreadyApplied)
	assert.Equal(t, result.BatchID, again.BatchID)

	getJSON(t, ts, "/api/pool", &status)
	assert.Equal(t, "0.00", status.Balance)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestAPI_LoadScenario_SeedsWorkingData(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts, "/api/scenarios/load", map[string]string{"scenario_id": "starter-chain"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	var buyer MemberDTO
	r := getJSON(t, ts, "/api/members/starter-3", &buyer)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.True(t, buyer.IsActive)

	var sponsor MemberDTO
	getJSON(t, ts, "/api/members/starter-2", &sponsor)
	assert.Equal(t, "15.00", sponsor.Wallet.Balance)
}

func TestAPI_LoadScenario_Unknown_Returns404(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts, "/api/scenarios/load", map[string]string{"scenario_id": "nope"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_WalletAndFundReadModels(t *testing.T) {
	ts, _ := newTestServer(t)
	createMember(t, ts, "a", nil)
	createMember(t, ts, "b", strPtr("a"))

	resp := postJSON(t, ts, "/api/purchases", SubmitPurchaseRequest{
		BuyerID:         "b",
		Amount:          "100",
		SourceKind:      "entry",
		IsFirstPurchase: true,
		IdempotencyKey:  "funds-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Wallet endpoint returns just the wallet slice of the member.
	var wallet WalletDTO
	r := getJSON(t, ts, "/api/members/a/wallet", &wallet)
	require.Equal(t, http.StatusOK, r.StatusCode)
	assert.Equal(t, "15.00", wallet.Balance)
	assert.Equal(t, "10.00", wallet.SponsorBonusTotal)

	r = getJSON(t, ts, "/api/members/ghost/wallet", new(WalletDTO))
	assert.Equal(t, http.StatusNotFound, r.StatusCode)

	// Pool holds its 10% cut.
	var pool FundBalanceDTO
	getJSON(t, ts, "/api/pool/balance", &pool)
	assert.Equal(t, string(engine.PoolAccountID), pool.Account)
	assert.Equal(t, "10.00", pool.Balance)

	// Company fund absorbed base 60% plus depth levels 2-7 (no ancestors
	// behind the sponsor's sponsor): 60 + 15 = 75.
	var fund FundBalanceDTO
	getJSON(t, ts, "/api/company/fund", &fund)
	assert.Equal(t, string(engine.CompanyAccountID), fund.Account)
	assert.Equal(t, "75.00", fund.Balance)
}

func TestAPI_UpdateActivation_HotSwapsThresholds(t *testing.T) {
	ts, _ := newTestServer(t)
	createMember(t, ts, "a", nil)
	createMember(t, ts, "b", strPtr("a"))

	// Under defaults a $200 repeat order grants 12 months.
	resp := postJSON(t, ts, "/api/purchases", SubmitPurchaseRequest{
		BuyerID:        "b",
		Amount:         "200",
		SourceKind:     "order",
		IdempotencyKey: "before-swap",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	before := decode[PurchaseReceiptDTO](t, resp)
	assert.Equal(t, 12, before.MonthsGranted)

	// Raise the large-order threshold to $500.
	resp = postJSON(t, ts, "/api/activation", map[string]any{
		"repeat_order_large_min": "500",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The new thresholds are visible on the read side.
	var current factory.ActivationJSON
	r := getJSON(t, ts, "/api/activation", &current)
	require.Equal(t, http.StatusOK, r.StatusCode)
	assert.Equal(t, "500", current.RepeatOrderLargeMin)

	// The same order now falls through to the per-$100 rule.
	resp = postJSON(t, ts, "/api/purchases", SubmitPurchaseRequest{
		BuyerID:        "b",
		Amount:         "200",
		SourceKind:     "order",
		IdempotencyKey: "after-swap",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	after := decode[PurchaseReceiptDTO](t, resp)
	assert.Equal(t, 2, after.MonthsGranted)
}

func TestAPI_UpdateActivation_InvalidThreshold_Rejected(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts, "/api/activation", map[string]any{
		"subscription_price": "-20",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
