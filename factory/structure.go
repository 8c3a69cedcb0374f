/*
Package factory provides JSON to Go plan conversion.

PURPOSE:
  Converts JSON compensation plan definitions into engine.Structure and
  engine.ActivationConfig objects. This enables plan configuration without
  code changes - operations staff can define the commission split and
  activation thresholds in JSON, and the factory creates the proper Go
  structs.

WHY JSON?
  - Non-developers can adjust the plan
  - Easy integration with an admin UI
  - Version control for plan definitions
  - Database storage of plan configs

JSON SCHEMA:
  {
    "structure": {
      "direct_sponsor_pct": "10",
      "depth_pct": ["5", "4", "3", "2", "2", "2", "2"],
      "passive_pool_pct": "10",
      "company_fund_pct": "60"
    },
    "activation": {
      "subscription_price": "20",
      "subscription_months": 1,
      "first_order_min": "100",
      "first_order_months": 1,
      "repeat_order_large_min": "200",
      "repeat_order_large_months": 12,
      "repeat_order_block": "100",
      "repeat_order_block_months": 1
    }
  }

KEY FEATURES:
  - Percentages as decimal strings (no float drift)
  - Validates the split sums to exactly 100
  - Omitted sections fall back to the engine defaults

USAGE:
  factory := NewPlanFactory()
  structure, activation, err := factory.ParsePlan(jsonStr)

  // Or straight from a config file:
  structure, activation, err := factory.LoadPlan("./config/plan.json")

SEE ALSO:
  - engine/structure.go: Structure type and validation
  - engine/activation.go: ActivationConfig and month resolution
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/engine"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PlanJSON is the JSON representation of a full compensation plan.
type PlanJSON struct {
	Structure  *StructureJSON  `json:"structure,omitempty"`
	Activation *ActivationJSON `json:"activation,omitempty"`
}

// StructureJSON represents the commission split. All percentages are decimal
// strings so "4.5" means exactly 4.5 percent.
type StructureJSON struct {
	DirectSponsorPct string   `json:"direct_sponsor_pct"`
	DepthPct         []string `json:"depth_pct"`
	PassivePoolPct   string   `json:"passive_pool_pct"`
	CompanyFundPct   string   `json:"company_fund_pct"`
}

// ActivationJSON represents the activation thresholds.
type ActivationJSON struct {
	SubscriptionPrice      string `json:"subscription_price"`
	SubscriptionMonths     int    `json:"subscription_months"`
	FirstOrderMin          string `json:"first_order_min"`
	FirstOrderMonths       int    `json:"first_order_months"`
	RepeatOrderLargeMin    string `json:"repeat_order_large_min"`
	RepeatOrderLargeMonths int    `json:"repeat_order_large_months"`
	RepeatOrderBlock       string `json:"repeat_order_block"`
	RepeatOrderBlockMonths int    `json:"repeat_order_block_months"`
}

// =============================================================================
// PLAN FACTORY
// =============================================================================

// PlanFactory converts JSON plans to Go structs.
type PlanFactory struct{}

// NewPlanFactory creates a new plan factory.
func NewPlanFactory() *PlanFactory {
	return &PlanFactory{}
}

// ParsePlan parses a JSON string into a Structure and ActivationConfig.
// Omitted sections fall back to the engine defaults.
func (f *PlanFactory) ParsePlan(jsonStr string) (engine.Structure, engine.ActivationConfig, error) {
	var pj PlanJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return engine.Structure{}, engine.ActivationConfig{}, fmt.Errorf("failed to parse plan JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// LoadPlan reads a plan JSON file from disk. A missing file is not an
// error: the engine defaults are returned.
func (f *PlanFactory) LoadPlan(path string) (engine.Structure, engine.ActivationConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return engine.DefaultStructure(), engine.DefaultActivationConfig(), nil
	}
	if err != nil {
		return engine.Structure{}, engine.ActivationConfig{}, fmt.Errorf("failed to read plan file: %w", err)
	}
	return f.ParsePlan(string(data))
}

// FromJSON converts PlanJSON to a Structure and ActivationConfig.
func (f *PlanFactory) FromJSON(pj PlanJSON) (engine.Structure, engine.ActivationConfig, error) {
	structure := engine.DefaultStructure()
	activation := engine.DefaultActivationConfig()

	if pj.Structure != nil {
		var err error
		structure, err = parseStructure(*pj.Structure)
		if err != nil {
			return engine.Structure{}, engine.ActivationConfig{}, err
		}
	}
	if pj.Activation != nil {
		var err error
		activation, err = parseActivation(*pj.Activation)
		if err != nil {
			return engine.Structure{}, engine.ActivationConfig{}, err
		}
	}

	if err := structure.Validate(); err != nil {
		return engine.Structure{}, engine.ActivationConfig{}, err
	}
	return structure, activation, nil
}

// ToJSON converts a Structure and ActivationConfig back to PlanJSON.
func (f *PlanFactory) ToJSON(structure engine.Structure, activation engine.ActivationConfig) PlanJSON {
	depths := make([]string, engine.DepthLevels)
	for i, pct := range structure.DepthPct {
		depths[i] = pct.String()
	}

	aj := f.ActivationToJSON(activation)
	return PlanJSON{
		Structure: &StructureJSON{
			DirectSponsorPct: structure.DirectSponsorPct.String(),
			DepthPct:         depths,
			PassivePoolPct:   structure.PassivePoolPct.String(),
			CompanyFundPct:   structure.CompanyFundPct.String(),
		},
		Activation: &aj,
	}
}

// ActivationFromJSON converts a standalone activation document, for plans
// and for runtime threshold updates. Omitted fields keep their defaults.
func (f *PlanFactory) ActivationFromJSON(aj ActivationJSON) (engine.ActivationConfig, error) {
	return parseActivation(aj)
}

// ActivationToJSON converts activation thresholds back to their JSON form.
func (f *PlanFactory) ActivationToJSON(activation engine.ActivationConfig) ActivationJSON {
	return ActivationJSON{
		SubscriptionPrice:      activation.SubscriptionAmount.String(),
		SubscriptionMonths:     activation.SubscriptionMonths,
		FirstOrderMin:          activation.FirstPurchaseMinAmount.String(),
		FirstOrderMonths:       activation.FirstPurchaseMonths,
		RepeatOrderLargeMin:    activation.LargePurchaseMinAmount.String(),
		RepeatOrderLargeMonths: activation.LargePurchaseMonths,
		RepeatOrderBlock:       activation.GeneralActivationPerAmount.String(),
		RepeatOrderBlockMonths: activation.GeneralActivationMonths,
	}
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseStructure(sj StructureJSON) (engine.Structure, error) {
	if len(sj.DepthPct) != engine.DepthLevels {
		return engine.Structure{}, fmt.Errorf("%w: depth_pct must list exactly %d levels, got %d",
			engine.ErrConfigInvalid, engine.DepthLevels, len(sj.DepthPct))
	}

	structure := engine.Structure{}
	var err error
	if structure.DirectSponsorPct, err = parsePct("direct_sponsor_pct", sj.DirectSponsorPct); err != nil {
		return engine.Structure{}, err
	}
	for i, raw := range sj.DepthPct {
		if structure.DepthPct[i], err = parsePct(fmt.Sprintf("depth_pct[%d]", i), raw); err != nil {
			return engine.Structure{}, err
		}
	}
	if structure.PassivePoolPct, err = parsePct("passive_pool_pct", sj.PassivePoolPct); err != nil {
		return engine.Structure{}, err
	}
	if structure.CompanyFundPct, err = parsePct("company_fund_pct", sj.CompanyFundPct); err != nil {
		return engine.Structure{}, err
	}
	return structure, nil
}

func parseActivation(aj ActivationJSON) (engine.ActivationConfig, error) {
	cfg := engine.DefaultActivationConfig()

	fields := []struct {
		name   string
		raw    string
		target *engine.Money
	}{
		{"subscription_price", aj.SubscriptionPrice, &cfg.SubscriptionAmount},
		{"first_order_min", aj.FirstOrderMin, &cfg.FirstPurchaseMinAmount},
		{"repeat_order_large_min", aj.RepeatOrderLargeMin, &cfg.LargePurchaseMinAmount},
		{"repeat_order_block", aj.RepeatOrderBlock, &cfg.GeneralActivationPerAmount},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return engine.ActivationConfig{}, fmt.Errorf("%w: %s: %v", engine.ErrConfigInvalid, f.name, err)
		}
		if d.IsNegative() || d.IsZero() {
			return engine.ActivationConfig{}, fmt.Errorf("%w: %s must be positive", engine.ErrConfigInvalid, f.name)
		}
		*f.target = engine.Money{Value: d}
	}

	if aj.SubscriptionMonths > 0 {
		cfg.SubscriptionMonths = aj.SubscriptionMonths
	}
	if aj.FirstOrderMonths > 0 {
		cfg.FirstPurchaseMonths = aj.FirstOrderMonths
	}
	if aj.RepeatOrderLargeMonths > 0 {
		cfg.LargePurchaseMonths = aj.RepeatOrderLargeMonths
	}
	if aj.RepeatOrderBlockMonths > 0 {
		cfg.GeneralActivationMonths = aj.RepeatOrderBlockMonths
	}
	return cfg, nil
}

func parsePct(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: %s is required", engine.ErrConfigInvalid, field)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", engine.ErrConfigInvalid, field, err)
	}
	return d, nil
}
