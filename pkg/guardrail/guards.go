package guardrail

import (
	"fmt"
	"math"
	"time"
)

// Guardrail codes.
const (
	CodeCostFloor         = "GR_COST_FLOOR"
	CodeDeltaCap          = "GR_DELTA_CAP"
	CodeDonorFloor        = "GR_DONOR_FLOOR"
	CodeReceiverOvershoot = "GR_RECEIVER_OVERSHOOT"
	CodeRoiViability      = "GR_ROI_VIABILITY"
)

// Default thresholds, overridable per guardrail instance or per context.
const (
	DefaultMinMarginPct   = 0.22
	DefaultDeltaCapPct    = 0.07
	DefaultDonorMinDSR    = 5.0
	DefaultReceiverMaxDSR = 18.0
)

// Guardrail is a single named safety check. Implementations are stateless
// and safe for concurrent use.
type Guardrail interface {
	Code() string
	Evaluate(ctx Context) Result
}

// Keyed guardrails declare the context keys they read so chains can be
// validated against a context shape at registration time.
type Keyed interface {
	Keys() []string
}

func pass(code, message string, data map[string]any, started time.Time) Result {
	res, _ := NewResult(code, StatusPass, "", "", message, data, time.Since(started))
	return res
}

func block(code, reason, message string, data map[string]any, started time.Time) Result {
	res, _ := NewResult(code, StatusBlock, "", reason, message, data, time.Since(started))
	return res
}

// CostFloor blocks candidate prices that would erode margin below the
// configured floor.
type CostFloor struct {
	MinMarginPct float64
}

func (CostFloor) Code() string { return CodeCostFloor }

func (CostFloor) Keys() []string { return []string{"cost", "candidate_price", "min_margin_pct"} }

func (g CostFloor) Evaluate(ctx Context) Result {
	started := time.Now()
	margin := g.MinMarginPct
	if margin <= 0 {
		margin = DefaultMinMarginPct
	}
	margin = ctx.Float("min_margin_pct", margin)
	cost := ctx.Float("cost", 0)
	candidate := ctx.Float("candidate_price", 0)
	if cost <= 0 || candidate <= 0 {
		return block(g.Code(), "invalid_inputs", "invalid cost or candidate price", map[string]any{
			"cost":            cost,
			"candidate_price": candidate,
		}, started)
	}
	minPrice := cost / (1 - margin)
	data := map[string]any{
		"candidate_price": candidate,
		"min_price":       minPrice,
		"min_margin_pct":  margin,
	}
	if lessThan(candidate, minPrice) {
		return block(g.Code(), "below_cost_floor",
			fmt.Sprintf("candidate %.4f below cost floor %.4f", candidate, minPrice), data, started)
	}
	return pass(g.Code(), "margin floor satisfied", data, started)
}

// DeltaCap blocks price moves larger than the configured percentage.
type DeltaCap struct {
	CapPct float64
}

func (DeltaCap) Code() string { return CodeDeltaCap }

func (DeltaCap) Keys() []string { return []string{"current_price", "candidate_price", "delta_cap_pct"} }

func (g DeltaCap) Evaluate(ctx Context) Result {
	started := time.Now()
	cap := g.CapPct
	if cap <= 0 {
		cap = DefaultDeltaCapPct
	}
	cap = ctx.Float("delta_cap_pct", cap)
	current := ctx.Float("current_price", 0)
	candidate := ctx.Float("candidate_price", 0)
	if current <= 0 || candidate <= 0 {
		return block(g.Code(), "invalid_inputs", "invalid current or candidate price", map[string]any{
			"current_price":   current,
			"candidate_price": candidate,
		}, started)
	}
	deltaPct := (candidate - current) / current
	data := map[string]any{
		"current_price":   current,
		"candidate_price": candidate,
		"delta_pct":       deltaPct,
		"cap_pct":         cap,
	}
	if greaterThan(math.Abs(deltaPct), cap) {
		return block(g.Code(), "delta_cap_exceeded",
			fmt.Sprintf("price delta %.4f exceeds cap %.4f", deltaPct, cap), data, started)
	}
	return pass(g.Code(), "price delta within cap", data, started)
}

// DonorFloor blocks transfers that would leave the donating location under
// its minimum days of supply.
type DonorFloor struct {
	MinDSR float64
}

func (DonorFloor) Code() string { return CodeDonorFloor }

func (DonorFloor) Keys() []string { return []string{"donor_dsr_post", "donor_min_dsr"} }

func (g DonorFloor) Evaluate(ctx Context) Result {
	started := time.Now()
	min := g.MinDSR
	if min <= 0 {
		min = DefaultDonorMinDSR
	}
	min = ctx.Float("donor_min_dsr", min)
	post := ctx.Float("donor_dsr_post", 0)
	data := map[string]any{
		"donor_dsr_post": post,
		"donor_min_dsr":  min,
	}
	if lessThan(post, min) {
		return block(g.Code(), "donor_below_floor",
			fmt.Sprintf("donor DSR %.2f would fall below floor %.2f", post, min), data, started)
	}
	return pass(g.Code(), "donor days of supply protected", data, started)
}

// ReceiverOvershoot blocks transfers that would over-stock the receiving
// location.
type ReceiverOvershoot struct {
	MaxDSR float64
}

func (ReceiverOvershoot) Code() string { return CodeReceiverOvershoot }

func (ReceiverOvershoot) Keys() []string { return []string{"receiver_dsr_post", "receiver_max_dsr"} }

func (g ReceiverOvershoot) Evaluate(ctx Context) Result {
	started := time.Now()
	max := g.MaxDSR
	if max <= 0 {
		max = DefaultReceiverMaxDSR
	}
	max = ctx.Float("receiver_max_dsr", max)
	post := ctx.Float("receiver_dsr_post", 0)
	data := map[string]any{
		"receiver_dsr_post": post,
		"receiver_max_dsr":  max,
	}
	if greaterThan(post, max) {
		return block(g.Code(), "receiver_overshoot",
			fmt.Sprintf("receiver DSR %.2f would exceed ceiling %.2f", post, max), data, started)
	}
	return pass(g.Code(), "receiver days of supply within ceiling", data, started)
}

// RoiViability blocks moves with a negative projected return.
type RoiViability struct{}

func (RoiViability) Code() string { return CodeRoiViability }

func (RoiViability) Keys() []string { return []string{"projected_roi"} }

func (g RoiViability) Evaluate(ctx Context) Result {
	started := time.Now()
	roi := ctx.Float("projected_roi", 0)
	data := map[string]any{"projected_roi": roi}
	if lessThan(roi, 0) {
		return block(g.Code(), "negative_roi",
			fmt.Sprintf("projected ROI %.4f is negative", roi), data, started)
	}
	return pass(g.Code(), "projected ROI viable", data, started)
}
