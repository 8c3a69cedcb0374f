/*
handlers.go - HTTP API handlers for the commission engine

PURPOSE:
  Exposes the commission engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Members:
    GET    /api/members                List all members (genealogy view)
    POST   /api/members                Register member under a sponsor
    GET    /api/members/{id}           Get member details and wallet
    GET    /api/members/{id}/ledger    Member's ledger entry history
    GET    /api/members/{id}/upline    Sponsor chain, nearest first

  Purchases:
    POST   /api/purchases              Process a purchase event
    GET    /api/purchases/{id}         Purchase receipt by event ID
    GET    /api/purchases/{id}/entries Ledger batch for a purchase

  Structures:
    GET    /api/structures/current     Current commission structure
    POST   /api/structures             Save a new structure version
    GET    /api/structures/{version}   Historical structure version

  Pool:
    GET    /api/pool                   Pool balance and active member count
    POST   /api/pool/distribute        Trigger a distribution cycle

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access
  - Processor: Purchase processing and pool distribution
  - PlanFactory: JSON to Structure/ActivationConfig conversion

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, structure sum != 100
  - 404: Member or purchase not found
  - 409: Distribution already in progress
  - 500: Storage errors

IDEMPOTENCY AT THE EDGE:
  POST /api/purchases with a seen idempotency key returns 200 with the
  ORIGINAL receipt (already_applied: true), not an error. Retrying clients
  need no special handling.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       engine.Store
	Processor   *engine.Processor
	PlanFactory *factory.PlanFactory
}

// NewHandler creates a new handler around the given store.
func NewHandler(store engine.Store) *Handler {
	return &Handler{
		Store:       store,
		Processor:   engine.NewProcessor(store),
		PlanFactory: factory.NewPlanFactory(),
	}
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListMembers returns all members, pseudo-accounts included.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Store.ListMembers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list members", err)
		return
	}

	now := time.Now()
	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m, now)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMember returns a single member with wallet state.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	id := engine.MemberID(chi.URLParam(r, "id"))

	m, err := h.Store.Member(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get member", err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "Member not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*m, time.Now()))
}

// GetMemberWallet returns just the wallet slice of a member's read model.
func (h *Handler) GetMemberWallet(w http.ResponseWriter, r *http.Request) {
	id := engine.MemberID(chi.URLParam(r, "id"))

	m, err := h.Store.Member(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get member", err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "Member not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*m, time.Now()).Wallet)
}

// CreateMember registers a new member under an optional sponsor.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if engine.MemberID(req.ID).IsPseudoAccount() {
		writeError(w, http.StatusBadRequest, "reserved member id", nil)
		return
	}

	m := engine.Member{
		ID:          engine.MemberID(req.ID),
		Name:        req.Name,
		JoinedAt:    time.Now().UTC(),
		CareerLevel: req.CareerLevel,
	}
	if m.CareerLevel == 0 {
		m.CareerLevel = 1
	}
	if req.SponsorID != nil {
		sid := engine.MemberID(*req.SponsorID)
		if sid.IsPseudoAccount() {
			writeError(w, http.StatusBadRequest, "sponsor may not be a pseudo-account", nil)
			return
		}
		m.SponsorID = &sid
	}

	if err := h.Store.CreateMember(r.Context(), m); err != nil {
		if errors.Is(err, engine.ErrSponsorNotFound) {
			writeError(w, http.StatusBadRequest, "Sponsor not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create member", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(m, time.Now()))
}

// GetMemberLedger returns a member's full ledger entry history.
func (h *Handler) GetMemberLedger(w http.ResponseWriter, r *http.Request) {
	id := engine.MemberID(chi.URLParam(r, "id"))

	m, err := h.Store.Member(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get member", err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "Member not found", nil)
		return
	}

	entries, err := h.Store.EntriesForMember(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerEntryDTOs(entries))
}

// GetMemberUpline returns the member's sponsor chain, nearest first.
func (h *Handler) GetMemberUpline(w http.ResponseWriter, r *http.Request) {
	id := engine.MemberID(chi.URLParam(r, "id"))
	ctx := r.Context()

	m, err := h.Store.Member(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get member", err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "Member not found", nil)
		return
	}

	upline, err := engine.WalkUpline(ctx, h.Store, id, h.Processor.MaxDepth)
	if err != nil {
		if errors.Is(err, engine.ErrCycleDetected) {
			writeError(w, http.StatusConflict, "Sponsor chain contains a cycle", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to walk upline", err)
		return
	}

	ids := make([]string, len(upline))
	for i, u := range upline {
		ids[i] = string(u)
	}
	writeJSON(w, http.StatusOK, ids)
}

// =============================================================================
// PURCHASE HANDLERS
// =============================================================================

// SubmitPurchase processes a purchase event: activation extension plus
// commission distribution, atomically and idempotently.
func (h *Handler) SubmitPurchase(w http.ResponseWriter, r *http.Request) {
	var req SubmitPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := parseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	event := engine.PurchaseEvent{
		BuyerID:         engine.MemberID(req.BuyerID),
		Amount:          amount,
		Currency:        req.Currency,
		SourceKind:      engine.SourceKind(req.SourceKind),
		IsFirstPurchase: req.IsFirstPurchase,
		Timestamp:       time.Now().UTC(),
		IdempotencyKey:  req.IdempotencyKey,
	}
	if req.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid timestamp", err)
			return
		}
		event.Timestamp = ts
	}

	receipt, err := h.Processor.ProcessPurchase(r.Context(), event)
	if err != nil {
		writeProcessingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptDTO(receipt))
}

// GetPurchase returns the receipt for a processed purchase event.
func (h *Handler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.Store.PurchaseByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load purchase", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "Purchase not found", nil)
		return
	}

	entries, err := h.Store.EntriesForPurchase(r.Context(), rec.Event.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load ledger batch", err)
		return
	}

	writeJSON(w, http.StatusOK, PurchaseReceiptDTO{
		PurchaseEventID: rec.Event.ID,
		BuyerID:         string(rec.Event.BuyerID),
		Amount:          rec.Event.Amount.String(),
		MonthsGranted:   rec.MonthsGranted,
		NewActiveUntil:  rec.NewActiveUntil.Format(time.RFC3339),
		AlreadyApplied:  true,
		Entries:         toLedgerEntryDTOs(entries),
	})
}

// GetPurchaseEntries returns the ledger batch for a purchase event.
func (h *Handler) GetPurchaseEntries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entries, err := h.Store.EntriesForPurchase(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load ledger batch", err)
		return
	}
	if len(entries) == 0 {
		writeError(w, http.StatusNotFound, "No entries for purchase", nil)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerEntryDTOs(entries))
}

// =============================================================================
// STRUCTURE HANDLERS
// =============================================================================

// GetCurrentStructure returns the active commission structure version.
func (h *Handler) GetCurrentStructure(w http.ResponseWriter, r *http.Request) {
	s, err := h.Store.CurrentStructure(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load structure", err)
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "No structure configured", nil)
		return
	}
	writeJSON(w, http.StatusOK, toStructureDTO(*s))
}

// GetStructureVersion returns a historical structure version.
func (h *Handler) GetStructureVersion(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid version", err)
		return
	}

	s, err := h.Store.StructureByVersion(r.Context(), version)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load structure", err)
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "Structure version not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toStructureDTO(*s))
}

// CreateStructure saves a new commission structure version. The new
// version applies to purchases processed AFTER this call; historical
// ledger batches keep their stamped version.
func (h *Handler) CreateStructure(w http.ResponseWriter, r *http.Request) {
	var sj factory.StructureJSON
	if err := json.NewDecoder(r.Body).Decode(&sj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	structure, _, err := h.PlanFactory.FromJSON(factory.PlanJSON{Structure: &sj})
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid structure", err)
		return
	}

	version, err := h.Store.SaveStructure(r.Context(), structure)
	if err != nil {
		if engine.IsClientError(err) {
			writeError(w, http.StatusBadRequest, "Invalid structure", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to save structure", err)
		return
	}
	structure.Version = version
	writeJSON(w, http.StatusCreated, toStructureDTO(structure))
}

// =============================================================================
// ACTIVATION HANDLERS
// =============================================================================

// GetActivation returns the activation thresholds currently in effect.
func (h *Handler) GetActivation(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.PlanFactory.ActivationToJSON(h.Processor.CurrentActivation()))
}

// UpdateActivation hot-swaps the activation thresholds. The new thresholds
// apply to purchases processed after the call; already-recorded purchases
// keep the months they were granted, so replays stay stable.
func (h *Handler) UpdateActivation(w http.ResponseWriter, r *http.Request) {
	var aj factory.ActivationJSON
	if err := json.NewDecoder(r.Body).Decode(&aj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cfg, err := h.PlanFactory.ActivationFromJSON(aj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid activation thresholds", err)
		return
	}

	h.Processor.SetActivation(cfg)
	writeJSON(w, http.StatusOK, h.PlanFactory.ActivationToJSON(cfg))
}

// =============================================================================
// POOL HANDLERS
// =============================================================================

// GetPoolStatus returns the pool balance and current active member count.
func (h *Handler) GetPoolStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now()

	balance, err := h.Store.PoolBalance(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read pool balance", err)
		return
	}
	active, err := h.Store.ActiveMemberIDs(ctx, now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count active members", err)
		return
	}

	writeJSON(w, http.StatusOK, PoolStatusDTO{
		Balance:       balance.String(),
		ActiveMembers: len(active),
		AsOf:          now.Format(time.RFC3339),
	})
}

// GetPoolBalance returns only the undistributed pool balance.
func (h *Handler) GetPoolBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.Store.PoolBalance(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read pool balance", err)
		return
	}
	writeJSON(w, http.StatusOK, FundBalanceDTO{
		Account: string(engine.PoolAccountID),
		Balance: balance.String(),
		AsOf:    time.Now().Format(time.RFC3339),
	})
}

// GetCompanyFund returns the accumulated company fund balance. Truncation
// dust and redirected upline shares both land here, so this is the exact
// complement of everything paid out.
func (h *Handler) GetCompanyFund(w http.ResponseWriter, r *http.Request) {
	company, err := h.Store.Member(r.Context(), engine.CompanyAccountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read company fund", err)
		return
	}
	if company == nil {
		writeError(w, http.StatusNotFound, "Company account not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, FundBalanceDTO{
		Account: string(engine.CompanyAccountID),
		Balance: company.CompanyFundTotal.String(),
		AsOf:    time.Now().Format(time.RFC3339),
	})
}

// DistributePool triggers a passive pool distribution cycle. Re-triggering
// within the same cycle returns the original batch (already_applied: true).
func (h *Handler) DistributePool(w http.ResponseWriter, r *http.Request) {
	var req DistributePoolRequest
	if r.Body != nil {
		// Empty body means "distribute now".
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	asOf := time.Now().UTC()
	if req.AsOf != "" {
		ts, err := time.Parse(time.RFC3339, req.AsOf)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of", err)
			return
		}
		asOf = ts
	}

	result, err := h.Processor.DistributePassivePool(r.Context(), asOf)
	if err != nil {
		if errors.Is(err, engine.ErrDistributionInProgress) {
			writeError(w, http.StatusConflict, "Distribution already in progress", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Distribution failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toPoolDistributionDTO(*result))
}

// =============================================================================
// HELPERS
// =============================================================================

func toReceiptDTO(receipt *engine.Receipt) PurchaseReceiptDTO {
	return PurchaseReceiptDTO{
		PurchaseEventID: receipt.Event.ID,
		BuyerID:         string(receipt.Event.BuyerID),
		Amount:          receipt.Event.Amount.String(),
		MonthsGranted:   receipt.MonthsGranted,
		NewActiveUntil:  receipt.NewActiveUntil.Format(time.RFC3339),
		AlreadyApplied:  receipt.AlreadyApplied,
		Entries:         toLedgerEntryDTOs(receipt.Entries),
	}
}

func parseMoney(s string) (engine.Money, error) {
	if s == "" {
		return engine.ZeroMoney(), errors.New("amount is required")
	}
	m, err := engine.ParseMoney(s)
	if err != nil {
		return engine.ZeroMoney(), err
	}
	return m, nil
}

// writeProcessingError maps engine errors to HTTP statuses.
func writeProcessingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrCycleDetected):
		writeError(w, http.StatusConflict, "Sponsor chain contains a cycle", err)
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid purchase", err)
	default:
		writeError(w, http.StatusInternalServerError, "Processing failed", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
