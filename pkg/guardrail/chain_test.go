package guardrail

import (
	"context"
	"sync"
	"testing"
	"time"
)

type stubGuard struct {
	code   string
	status string
}

func (s stubGuard) Code() string { return s.code }

func (s stubGuard) Evaluate(Context) Result {
	res, _ := NewResult(s.code, s.status, "", "", "stub", nil, time.Microsecond)
	return res
}

func TestChainShortCircuitsOnBlock(t *testing.T) {
	t.Parallel()
	chain := NewChain(nil,
		stubGuard{code: "GR_A", status: StatusPass},
		stubGuard{code: "GR_B", status: StatusBlock},
		stubGuard{code: "GR_C", status: StatusPass},
	)
	verdict := chain.Evaluate(context.Background(), Context{})
	if len(verdict.Results) != 2 {
		t.Fatalf("expected 2 evaluated results, got %d", len(verdict.Results))
	}
	if verdict.FinalStatus != StatusBlock {
		t.Fatalf("expected BLOCK, got %s", verdict.FinalStatus)
	}
	if verdict.BlockedBy != "GR_B" {
		t.Fatalf("expected blocked_by GR_B, got %s", verdict.BlockedBy)
	}
}

func TestChainWarnEscalatesWithoutStopping(t *testing.T) {
	t.Parallel()
	chain := NewChain(nil,
		stubGuard{code: "GR_A", status: StatusWarn},
		stubGuard{code: "GR_B", status: StatusPass},
	)
	verdict := chain.Evaluate(context.Background(), Context{})
	if len(verdict.Results) != 2 {
		t.Fatalf("expected both guards evaluated, got %d", len(verdict.Results))
	}
	if verdict.FinalStatus != StatusWarn {
		t.Fatalf("PASS must not downgrade WARN, got %s", verdict.FinalStatus)
	}
	if verdict.BlockedBy != "" {
		t.Fatalf("expected no blocker, got %s", verdict.BlockedBy)
	}
}

func TestChainAllPass(t *testing.T) {
	t.Parallel()
	chain := NewChain(nil,
		stubGuard{code: "GR_A", status: StatusPass},
		stubGuard{code: "GR_B", status: StatusPass},
	)
	verdict := chain.Evaluate(context.Background(), Context{})
	if verdict.FinalStatus != StatusPass || verdict.Blocked() {
		t.Fatalf("expected PASS verdict, got %#v", verdict)
	}
}

func TestChainEmptyPasses(t *testing.T) {
	t.Parallel()
	verdict := NewChain(nil).Evaluate(context.Background(), Context{})
	if verdict.FinalStatus != StatusPass || len(verdict.Results) != 0 {
		t.Fatalf("empty chain should PASS, got %#v", verdict)
	}
}

func TestNewChainForValidatesKeys(t *testing.T) {
	t.Parallel()
	if _, err := NewChainFor(TransferKeys(), nil, CostFloor{}); err == nil {
		t.Fatal("expected key validation error for cost floor on transfer shape")
	}
	if _, err := NewChainFor(TransferKeys(), nil, DonorFloor{}, ReceiverOvershoot{}, RoiViability{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewChainFor(PricingKeys(), nil, CostFloor{}, DeltaCap{}, RoiViability{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTransferChainBlocksDonorBreach(t *testing.T) {
	t.Parallel()
	chain := TransferChain(nil)
	verdict := chain.Evaluate(context.Background(), TransferContext{
		DonorDSRPost:    3.0,
		ReceiverDSRPost: 10.0,
		ProjectedROI:    0.2,
	}.Context())
	if !verdict.Blocked() || verdict.BlockedBy != CodeDonorFloor {
		t.Fatalf("expected donor floor block, got %#v", verdict)
	}
	if len(verdict.Results) != 1 {
		t.Fatalf("short circuit expected after first block, got %d results", len(verdict.Results))
	}
}

func TestPricingChainPassesHealthyMove(t *testing.T) {
	t.Parallel()
	chain := PricingChain(nil)
	verdict := chain.Evaluate(context.Background(), PricingContext{
		Cost:           10,
		CurrentPrice:   14,
		CandidatePrice: 14.5,
		ProjectedROI:   0.3,
	}.Context())
	if verdict.FinalStatus != StatusPass {
		t.Fatalf("expected PASS, got %#v", verdict)
	}
	if len(verdict.Results) != 3 {
		t.Fatalf("expected all 3 guardrails evaluated, got %d", len(verdict.Results))
	}
}

func TestChainConcurrentEvaluation(t *testing.T) {
	t.Parallel()
	chain := TransferChain(nil)
	gctx := TransferContext{DonorDSRPost: 9, ReceiverDSRPost: 9}.Context()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			verdict := chain.Evaluate(context.Background(), gctx)
			if verdict.FinalStatus != StatusPass {
				t.Errorf("expected PASS, got %s", verdict.FinalStatus)
			}
		}()
	}
	wg.Wait()
}
