/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	genealogies and purchases for demos. Each scenario creates members,
	processes purchase events through the real processor, and leaves the
	resulting ledger for inspection via the read endpoints.

AVAILABLE SCENARIOS:

	starter-chain:  Root + sponsor + buyer; one $100 entry purchase
	deep-network:   9-member chain exercising all 7 depth levels
	pool-cycle:     Purchases filling the pool, then a distribution

HOW SCENARIOS WORK:
 1. Create members under scenario-prefixed IDs (no database reset;
    loading the same scenario twice is rejected)
 2. Process purchases through Processor.ProcessPurchase
 3. Optionally run a pool distribution cycle

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "deep-network"}

NOTE:

	Demo data only. Not wired in production deployments.

SEE ALSO:
  - handlers.go: Member and purchase handlers
  - engine/processor.go: ProcessPurchase
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/commission-engine/engine"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects the scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "starter-chain",
		Name:        "Starter Chain",
		Description: "Root, sponsor and buyer; one $100 entry purchase",
	},
	{
		ID:          "deep-network",
		Name:        "Deep Network",
		Description: "9-member chain exercising all 7 depth levels",
	},
	{
		ID:          "pool-cycle",
		Name:        "Pool Cycle",
		Description: "Purchases filling the pool, then a distribution cycle",
	},
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario seeds the selected scenario's members and purchases.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	var err error
	switch req.ScenarioID {
	case "starter-chain":
		err = h.loadStarterChain(ctx)
	case "deep-network":
		err = h.loadDeepNetwork(ctx)
	case "pool-cycle":
		err = h.loadPoolCycle(ctx)
	default:
		writeError(w, http.StatusNotFound, "Unknown scenario", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// seedChain creates a sponsor chain root-first. IDs are prefix-1 (root)
// through prefix-N; each member sponsors the next.
func (h *Handler) seedChain(ctx context.Context, prefix string, n int) ([]engine.MemberID, error) {
	now := time.Now().UTC()
	ids := make([]engine.MemberID, n)

	for i := 0; i < n; i++ {
		ids[i] = engine.MemberID(fmt.Sprintf("%s-%d", prefix, i+1))
		m := engine.Member{
			ID:          ids[i],
			Name:        fmt.Sprintf("Demo %s %d", prefix, i+1),
			JoinedAt:    now,
			CareerLevel: 1,
		}
		if i > 0 {
			m.SponsorID = &ids[i-1]
		}
		if err := h.Store.CreateMember(ctx, m); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (h *Handler) purchase(ctx context.Context, buyer engine.MemberID, amount string, first bool, kind engine.SourceKind) error {
	_, err := h.Processor.ProcessPurchase(ctx, engine.PurchaseEvent{
		BuyerID:         buyer,
		Amount:          engine.MustParseMoney(amount),
		SourceKind:      kind,
		IsFirstPurchase: first,
		Timestamp:       time.Now().UTC(),
		IdempotencyKey:  fmt.Sprintf("demo-%s-%s-%s", buyer, kind, amount),
	})
	return err
}

func (h *Handler) loadStarterChain(ctx context.Context) error {
	ids, err := h.seedChain(ctx, "starter", 3)
	if err != nil {
		return err
	}
	return h.purchase(ctx, ids[2], "100", true, engine.SourceEntry)
}

func (h *Handler) loadDeepNetwork(ctx context.Context) error {
	ids, err := h.seedChain(ctx, "deep", 9)
	if err != nil {
		return err
	}
	// The deepest member buys: levels 1-7 all have recipients and the
	// direct sponsor bonus lands one step up.
	if err := h.purchase(ctx, ids[8], "200", true, engine.SourceEntry); err != nil {
		return err
	}
	return h.purchase(ctx, ids[8], "150", false, engine.SourceOrder)
}

func (h *Handler) loadPoolCycle(ctx context.Context) error {
	ids, err := h.seedChain(ctx, "pool", 4)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := h.purchase(ctx, id, "100", true, engine.SourceEntry); err != nil {
			return err
		}
	}
	_, err = h.Processor.DistributePassivePool(ctx, time.Now().UTC())
	return err
}
