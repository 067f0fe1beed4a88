package guardrail

import (
	"context"
	"time"

	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/events"
)

// Verdict aggregates one chain evaluation. Results holds only the
// guardrails actually evaluated; a short-circuited chain stops appending
// after the first BLOCK.
type Verdict struct {
	Results     []Result      `json:"results"`
	FinalStatus string        `json:"final_status"`
	BlockedBy   string        `json:"blocked_by,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
}

func (v Verdict) Blocked() bool {
	return v.FinalStatus == StatusBlock
}

// Chain runs guardrails in registration order with short-circuit on BLOCK.
// A chain holds no mutable state and is safe for concurrent use.
type Chain struct {
	guards  []Guardrail
	emitter events.Emitter
}

// NewChain builds a chain over guards. emitter may be nil.
func NewChain(emitter events.Emitter, guards ...Guardrail) *Chain {
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &Chain{guards: guards, emitter: emitter}
}

// NewChainFor additionally validates each guardrail's declared keys
// against the context shape it will run with.
func NewChainFor(shape []string, emitter events.Emitter, guards ...Guardrail) (*Chain, error) {
	if err := ValidateKeys(shape, guards...); err != nil {
		return nil, err
	}
	return NewChain(emitter, guards...), nil
}

// Evaluate runs the chain. WARN escalates the final status without
// stopping; the first BLOCK stops evaluation immediately.
func (c *Chain) Evaluate(ctx context.Context, gctx Context) Verdict {
	started := time.Now()
	verdict := Verdict{FinalStatus: StatusPass}
	for _, g := range c.guards {
		res := g.Evaluate(gctx)
		verdict.Results = append(verdict.Results, res)
		switch res.Status {
		case StatusBlock:
			verdict.FinalStatus = StatusBlock
			verdict.BlockedBy = res.Code
		case StatusWarn:
			if verdict.FinalStatus != StatusBlock {
				verdict.FinalStatus = StatusWarn
			}
		}
		if res.Status == StatusBlock {
			break
		}
	}
	verdict.Duration = time.Since(started)
	c.emitter.Emit(ctx, events.GuardrailChainResult, map[string]any{
		"final_status": verdict.FinalStatus,
		"blocked_by":   verdict.BlockedBy,
		"evaluated":    len(verdict.Results),
		"duration":     verdict.Duration,
	})
	return verdict
}

// TransferChain wires the DSR and ROI guardrails in their standard order.
func TransferChain(emitter events.Emitter) *Chain {
	chain, _ := NewChainFor(TransferKeys(), emitter,
		DonorFloor{},
		ReceiverOvershoot{},
		RoiViability{},
	)
	return chain
}

// PricingChain wires the pricing guardrails in their standard order.
func PricingChain(emitter events.Emitter) *Chain {
	chain, _ := NewChainFor(PricingKeys(), emitter,
		CostFloor{},
		DeltaCap{},
		RoiViability{},
	)
	return chain
}
