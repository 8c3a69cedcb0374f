/*
structure.go - Versioned commission structure

PURPOSE:
  A Structure is the immutable percentage table that decides how one
  purchase is split: direct sponsor bonus, seven depth commission levels,
  passive income pool, and company fund. All percentages must sum to
  exactly 100 - every cent of a purchase is accounted for.

VERSIONING:
  Structures are never edited in place. Publishing new rates creates a new
  version; the version in force is stamped on each purchase event at
  processing time, so historical distributions stay reproducible after a
  rate change. Hot-reloading rates therefore never reprocesses history.

VALIDATION:
  Validate() runs at load time, before any purchase can reference the
  structure. An invalid structure (sum != 100, negative field) fails fast
  with ErrConfigInvalid.
*/
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DepthLevels is the fixed depth of the career-bonus ladder. It also caps
// the upline walk: commission never reaches past the 7th ancestor.
const DepthLevels = 7

// =============================================================================
// STRUCTURE - Percentage splits for one purchase
// =============================================================================

type Structure struct {
	// Version is assigned by the structure store on save. Version 0 means
	// "not yet persisted".
	Version int

	DirectSponsorPct decimal.Decimal
	DepthPct         [DepthLevels]decimal.Decimal // DepthPct[0] is level 1
	PassivePoolPct   decimal.Decimal
	CompanyFundPct   decimal.Decimal
}

// DefaultStructure returns the standard rate table:
// 10% direct sponsor, 20% across depth levels (5/4/3/2/2/2/2),
// 10% passive pool, 60% company fund.
func DefaultStructure() Structure {
	return Structure{
		DirectSponsorPct: decimal.NewFromInt(10),
		DepthPct: [DepthLevels]decimal.Decimal{
			decimal.NewFromInt(5),
			decimal.NewFromInt(4),
			decimal.NewFromInt(3),
			decimal.NewFromInt(2),
			decimal.NewFromInt(2),
			decimal.NewFromInt(2),
			decimal.NewFromInt(2),
		},
		PassivePoolPct: decimal.NewFromInt(10),
		CompanyFundPct: decimal.NewFromInt(60),
	}
}

// PctSum returns the total of all percentage fields.
func (s Structure) PctSum() decimal.Decimal {
	sum := s.DirectSponsorPct.Add(s.PassivePoolPct).Add(s.CompanyFundPct)
	for _, pct := range s.DepthPct {
		sum = sum.Add(pct)
	}
	return sum
}

// Validate checks the conservation precondition: no negative percentage,
// and all fields summing to exactly 100.
func (s Structure) Validate() error {
	if s.DirectSponsorPct.IsNegative() {
		return &StructureError{Version: s.Version, Reason: "direct sponsor percentage is negative"}
	}
	for i, pct := range s.DepthPct {
		if pct.IsNegative() {
			return &StructureError{Version: s.Version, Reason: fmt.Sprintf("depth level %d percentage is negative", i+1)}
		}
	}
	if s.PassivePoolPct.IsNegative() {
		return &StructureError{Version: s.Version, Reason: "passive pool percentage is negative"}
	}
	if s.CompanyFundPct.IsNegative() {
		return &StructureError{Version: s.Version, Reason: "company fund percentage is negative"}
	}

	if sum := s.PctSum(); !sum.Equal(decimal.NewFromInt(100)) {
		return &StructureError{
			Version: s.Version,
			Reason:  fmt.Sprintf("percentages sum to %s, must be exactly 100", sum.String()),
		}
	}
	return nil
}
