// Package events carries structured decision events out of the policy
// engine. The engine only talks to the Emitter interface; sinks are
// interchangeable.
package events

import (
	"context"
	"sort"
)

// Event names emitted by the policy core.
const (
	PolicySkipNoNeed     = "policy.skip.no_need"
	PolicySkipConfidence = "policy.skip.confidence"
	PolicySanitized      = "policy.sanitize"
	TransferCreate       = "transfer.create"
	TransferSkip         = "transfer.skip"
	DuplicateLookupFail  = "policy.duplicate_lookup_degraded"
	GuardrailChainResult = "guardrail.chain.result"
)

type Emitter interface {
	Emit(ctx context.Context, event string, fields map[string]any)
	Debug(ctx context.Context, event string, fields map[string]any)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Emit(context.Context, string, map[string]any)  {}
func (Nop) Debug(context.Context, string, map[string]any) {}

// Multi fans an event out to several emitters in order.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, event string, fields map[string]any) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, event, fields)
		}
	}
}

func (m Multi) Debug(ctx context.Context, event string, fields map[string]any) {
	for _, e := range m {
		if e != nil {
			e.Debug(ctx, event, fields)
		}
	}
}

func sortedKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
