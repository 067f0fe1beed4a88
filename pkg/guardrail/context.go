package guardrail

import (
	"fmt"
	"math"
)

// Context is the flat value bag a guardrail reads from. Pricing and
// transfer evaluations share the same guardrails, so the chain operates on
// this common shape; typed contexts below build it.
type Context map[string]any

// Float reads a numeric key, returning def when absent or non-numeric.
// Non-finite values degrade to def as well.
func (c Context) Float(key string, def float64) float64 {
	v, ok := c[key]
	if !ok {
		return def
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return def
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

func (c Context) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// PricingContext feeds the cost-floor, delta-cap and ROI guardrails.
type PricingContext struct {
	Cost           float64
	CurrentPrice   float64
	CandidatePrice float64
	MinMarginPct   float64
	DeltaCapPct    float64
	ProjectedROI   float64
}

func (p PricingContext) Context() Context {
	ctx := Context{
		"cost":            p.Cost,
		"current_price":   p.CurrentPrice,
		"candidate_price": p.CandidatePrice,
		"projected_roi":   p.ProjectedROI,
	}
	if p.MinMarginPct > 0 {
		ctx["min_margin_pct"] = p.MinMarginPct
	}
	if p.DeltaCapPct > 0 {
		ctx["delta_cap_pct"] = p.DeltaCapPct
	}
	return ctx
}

// PricingKeys lists the fields a pricing evaluation can supply.
func PricingKeys() []string {
	return []string{"cost", "current_price", "candidate_price", "min_margin_pct", "delta_cap_pct", "projected_roi"}
}

// TransferContext feeds the DSR guardrails for allocation adjustments.
type TransferContext struct {
	DonorDSRPost    float64
	ReceiverDSRPost float64
	DonorMinDSR     float64
	ReceiverMaxDSR  float64
	ProjectedROI    float64
}

func (t TransferContext) Context() Context {
	ctx := Context{
		"donor_dsr_post":    t.DonorDSRPost,
		"receiver_dsr_post": t.ReceiverDSRPost,
		"projected_roi":     t.ProjectedROI,
	}
	if t.DonorMinDSR > 0 {
		ctx["donor_min_dsr"] = t.DonorMinDSR
	}
	if t.ReceiverMaxDSR > 0 {
		ctx["receiver_max_dsr"] = t.ReceiverMaxDSR
	}
	return ctx
}

// TransferKeys lists the fields a transfer evaluation can supply.
func TransferKeys() []string {
	return []string{"donor_dsr_post", "receiver_dsr_post", "donor_min_dsr", "receiver_max_dsr", "projected_roi"}
}

// ValidateKeys checks at registration time that every key a guardrail
// declares is part of the context shape it will run against.
func ValidateKeys(shape []string, guards ...Guardrail) error {
	allowed := make(map[string]struct{}, len(shape))
	for _, k := range shape {
		allowed[k] = struct{}{}
	}
	for _, g := range guards {
		kg, ok := g.(Keyed)
		if !ok {
			continue
		}
		for _, k := range kg.Keys() {
			if _, ok := allowed[k]; !ok {
				return fmt.Errorf("guardrail %s reads %q which the context shape does not provide", g.Code(), k)
			}
		}
	}
	return nil
}

// Epsilon tolerance for float comparisons, avoiding false positives on
// representation noise.
const epsilon = 1e-6

func lessThan(a, b float64) bool {
	return a < b-epsilon
}

func greaterThan(a, b float64) bool {
	return a > b+epsilon
}
