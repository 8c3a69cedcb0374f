/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Member:
    MemberDTO, CreateMemberRequest, WalletDTO

  Purchase:
    SubmitPurchaseRequest, PurchaseReceiptDTO

  Ledger:
    LedgerEntryDTO

  Structure:
    uses factory.PlanJSON directly (the JSON plan schema IS the API shape)

  Pool:
    DistributePoolRequest, PoolDistributionDTO

MONEY AS STRINGS:
  All amounts cross the wire as fixed two-decimal strings ("123.40").
  Floats are never used for money anywhere in the API.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/structure.go: PlanJSON type
*/
package api

import (
	"time"

	"github.com/warp/commission-engine/engine"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// MemberDTO represents a member in API responses.
type MemberDTO struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	SponsorID   *string `json:"sponsor_id,omitempty"`
	JoinedAt    string  `json:"joined_at"`
	ActiveUntil string  `json:"active_until"`
	IsActive    bool    `json:"is_active"`
	CareerLevel int     `json:"career_level"`
	Wallet      WalletDTO `json:"wallet"`
}

// WalletDTO is a member's wallet state.
type WalletDTO struct {
	Balance            string `json:"balance"`
	TotalEarnings      string `json:"total_earnings"`
	SponsorBonusTotal  string `json:"sponsor_bonus_total"`
	CareerBonusTotal   string `json:"career_bonus_total"`
	PassiveIncomeTotal string `json:"passive_income_total"`
	CompanyFundTotal   string `json:"company_fund_total"`
}

// CreateMemberRequest is the request to register a member.
type CreateMemberRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	SponsorID   *string `json:"sponsor_id,omitempty"`
	CareerLevel int     `json:"career_level,omitempty"`
}

// SubmitPurchaseRequest is the request to process a purchase event.
type SubmitPurchaseRequest struct {
	BuyerID         string `json:"buyer_id"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency,omitempty"`
	SourceKind      string `json:"source_kind"`
	IsFirstPurchase bool   `json:"is_first_purchase"`
	Timestamp       string `json:"timestamp,omitempty"`
	IdempotencyKey  string `json:"idempotency_key"`
}

// PurchaseReceiptDTO is the response after processing a purchase.
type PurchaseReceiptDTO struct {
	PurchaseEventID string           `json:"purchase_event_id"`
	BuyerID         string           `json:"buyer_id"`
	Amount          string           `json:"amount"`
	MonthsGranted   int              `json:"months_granted"`
	NewActiveUntil  string           `json:"new_active_until"`
	AlreadyApplied  bool             `json:"already_applied"`
	Entries         []LedgerEntryDTO `json:"entries"`
}

// LedgerEntryDTO represents one ledger entry.
type LedgerEntryDTO struct {
	ID              string `json:"id"`
	PurchaseEventID string `json:"purchase_event_id"`
	RecipientID     string `json:"recipient_id"`
	Kind            string `json:"kind"`
	Amount          string `json:"amount"`
	AppliedAt       string `json:"applied_at"`
}

// DistributePoolRequest triggers a passive pool distribution cycle.
type DistributePoolRequest struct {
	AsOf string `json:"as_of,omitempty"` // ISO date; defaults to now
}

// PoolDistributionDTO is the result of a pool distribution cycle.
type PoolDistributionDTO struct {
	BatchID           string `json:"batch_id"`
	AsOf              string `json:"as_of"`
	Recipients        int    `json:"recipients"`
	AmountPerMember   string `json:"amount_per_member"`
	DistributedAmount string `json:"distributed_amount"`
	Leftover          string `json:"leftover"`
	AlreadyApplied    bool   `json:"already_applied"`
}

// PoolStatusDTO is the current pool read model.
type PoolStatusDTO struct {
	Balance       string `json:"balance"`
	ActiveMembers int    `json:"active_members"`
	AsOf          string `json:"as_of"`
}

// FundBalanceDTO is a pseudo-account balance read model (pool, company fund).
type FundBalanceDTO struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
	AsOf    string `json:"as_of"`
}

// StructureDTO represents a stored commission structure version.
type StructureDTO struct {
	Version          int      `json:"version"`
	DirectSponsorPct string   `json:"direct_sponsor_pct"`
	DepthPct         []string `json:"depth_pct"`
	PassivePoolPct   string   `json:"passive_pool_pct"`
	CompanyFundPct   string   `json:"company_fund_pct"`
	PctSum           string   `json:"pct_sum"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toMemberDTO(m engine.Member, asOf time.Time) MemberDTO {
	dto := MemberDTO{
		ID:          string(m.ID),
		Name:        m.Name,
		JoinedAt:    m.JoinedAt.Format(time.RFC3339),
		ActiveUntil: m.ActiveUntil.Format(time.RFC3339),
		IsActive:    m.IsActive(asOf),
		CareerLevel: m.CareerLevel,
		Wallet: WalletDTO{
			Balance:            m.WalletBalance.String(),
			TotalEarnings:      m.TotalEarnings.String(),
			SponsorBonusTotal:  m.SponsorBonusTotal.String(),
			CareerBonusTotal:   m.CareerBonusTotal.String(),
			PassiveIncomeTotal: m.PassiveIncomeTotal.String(),
			CompanyFundTotal:   m.CompanyFundTotal.String(),
		},
	}
	if m.SponsorID != nil {
		s := string(*m.SponsorID)
		dto.SponsorID = &s
	}
	return dto
}

func toLedgerEntryDTO(e engine.LedgerEntry) LedgerEntryDTO {
	return LedgerEntryDTO{
		ID:              e.ID,
		PurchaseEventID: e.PurchaseEventID,
		RecipientID:     string(e.RecipientID),
		Kind:            string(e.Kind),
		Amount:          e.Amount.String(),
		AppliedAt:       e.AppliedAt.Format(time.RFC3339),
	}
}

func toLedgerEntryDTOs(entries []engine.LedgerEntry) []LedgerEntryDTO {
	dtos := make([]LedgerEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toLedgerEntryDTO(e)
	}
	return dtos
}

func toStructureDTO(s engine.Structure) StructureDTO {
	depths := make([]string, engine.DepthLevels)
	for i, pct := range s.DepthPct {
		depths[i] = pct.String()
	}
	return StructureDTO{
		Version:          s.Version,
		DirectSponsorPct: s.DirectSponsorPct.String(),
		DepthPct:         depths,
		PassivePoolPct:   s.PassivePoolPct.String(),
		CompanyFundPct:   s.CompanyFundPct.String(),
		PctSum:           s.PctSum().String(),
	}
}

func toPoolDistributionDTO(d engine.PoolDistribution) PoolDistributionDTO {
	return PoolDistributionDTO{
		BatchID:           d.BatchID,
		AsOf:              d.AsOf.Format(time.RFC3339),
		Recipients:        d.Recipients,
		AmountPerMember:   d.AmountPerMember.String(),
		DistributedAmount: d.DistributedAmount.String(),
		Leftover:          d.Leftover.String(),
		AlreadyApplied:    d.AlreadyApplied,
	}
}
