// Package metrics is the in-process monitoring registry the policy
// engine reports into: order counters, skip reasons, guardrail blocks and
// the pending-orders gauge.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type Registry struct {
	mu              sync.RWMutex
	ordersCreated   int64
	ordersCommitted int64
	skipReason      map[string]int64
	priority        map[string]int64
	guardrailBlock  map[string]int64
	gauges          map[string]float64
	proposeLatency  LatencyStat
}

type LatencyStat struct {
	Count   int64   `json:"count"`
	TotalMS int64   `json:"total_ms"`
	MaxMS   int64   `json:"max_ms"`
	LastMS  int64   `json:"last_ms"`
	AvgMS   float64 `json:"avg_ms"`
}

type Snapshot struct {
	GeneratedAt      string             `json:"generated_at"`
	OrdersCreated    int64              `json:"orders_created_total"`
	OrdersCommitted  int64              `json:"orders_committed_total"`
	SkipReasons      map[string]int64   `json:"skip_reasons"`
	Priorities       map[string]int64   `json:"priorities"`
	GuardrailBlocks  map[string]int64   `json:"guardrail_blocks"`
	Gauges           map[string]float64 `json:"gauges"`
	ProposeLatencyMS LatencyStat        `json:"propose_latency_ms"`
}

func NewRegistry() *Registry {
	return &Registry{
		skipReason:     map[string]int64{},
		priority:       map[string]int64{},
		guardrailBlock: map[string]int64{},
		gauges:         map[string]float64{},
	}
}

func (r *Registry) IncOrdersCreated(priority string) {
	r.mu.Lock()
	r.ordersCreated++
	if priority != "" {
		r.priority[priority]++
	}
	r.mu.Unlock()
}

func (r *Registry) IncOrdersCommitted() {
	r.mu.Lock()
	r.ordersCommitted++
	r.mu.Unlock()
}

func (r *Registry) IncSkip(reason string) {
	if reason == "" {
		return
	}
	r.mu.Lock()
	r.skipReason[reason]++
	r.mu.Unlock()
}

func (r *Registry) IncGuardrailBlock(code string) {
	code = strings.TrimSpace(code)
	if code == "" {
		return
	}
	r.mu.Lock()
	r.guardrailBlock[code]++
	r.mu.Unlock()
}

func (r *Registry) SetGauge(name string, value float64) {
	if name == "" {
		return
	}
	r.mu.Lock()
	r.gauges[name] = value
	r.mu.Unlock()
}

func (r *Registry) ObserveProposeLatency(d time.Duration) {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proposeLatency.Count++
	r.proposeLatency.TotalMS += ms
	r.proposeLatency.LastMS = ms
	if ms > r.proposeLatency.MaxMS {
		r.proposeLatency.MaxMS = ms
	}
	r.proposeLatency.AvgMS = float64(r.proposeLatency.TotalMS) / float64(r.proposeLatency.Count)
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := Snapshot{
		GeneratedAt:      time.Now().UTC().Format(time.RFC3339),
		OrdersCreated:    r.ordersCreated,
		OrdersCommitted:  r.ordersCommitted,
		SkipReasons:      make(map[string]int64, len(r.skipReason)),
		Priorities:       make(map[string]int64, len(r.priority)),
		GuardrailBlocks:  make(map[string]int64, len(r.guardrailBlock)),
		Gauges:           make(map[string]float64, len(r.gauges)),
		ProposeLatencyMS: r.proposeLatency,
	}
	for k, v := range r.skipReason {
		out.SkipReasons[k] = v
	}
	for k, v := range r.priority {
		out.Priorities[k] = v
	}
	for k, v := range r.guardrailBlock {
		out.GuardrailBlocks[k] = v
	}
	for k, v := range r.gauges {
		out.Gauges[k] = v
	}
	return out
}

func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(snap)
	}
}

func (r *Registry) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		b := &strings.Builder{}
		b.WriteString("# HELP transfers_orders_created_total orders created by the policy engine\n")
		b.WriteString("# TYPE transfers_orders_created_total counter\n")
		fmt.Fprintf(b, "transfers_orders_created_total %d\n", snap.OrdersCreated)
		b.WriteString("# HELP transfers_orders_committed_total orders committed\n")
		b.WriteString("# TYPE transfers_orders_committed_total counter\n")
		fmt.Fprintf(b, "transfers_orders_committed_total %d\n", snap.OrdersCommitted)
		b.WriteString("# HELP transfers_skip_total proposals skipped by reason\n")
		b.WriteString("# TYPE transfers_skip_total counter\n")
		for _, reason := range sortedKeys(snap.SkipReasons) {
			fmt.Fprintf(b, "transfers_skip_total{reason=%q} %d\n", reason, snap.SkipReasons[reason])
		}
		b.WriteString("# HELP transfers_priority_total orders created by priority\n")
		b.WriteString("# TYPE transfers_priority_total counter\n")
		for _, p := range sortedKeys(snap.Priorities) {
			fmt.Fprintf(b, "transfers_priority_total{priority=%q} %d\n", p, snap.Priorities[p])
		}
		b.WriteString("# HELP transfers_guardrail_block_total guardrail blocks by code\n")
		b.WriteString("# TYPE transfers_guardrail_block_total counter\n")
		for _, code := range sortedKeys(snap.GuardrailBlocks) {
			fmt.Fprintf(b, "transfers_guardrail_block_total{code=%q} %d\n", code, snap.GuardrailBlocks[code])
		}
		b.WriteString("# HELP transfers_gauge operational gauges\n")
		b.WriteString("# TYPE transfers_gauge gauge\n")
		for _, name := range sortedKeys(snap.Gauges) {
			fmt.Fprintf(b, "transfers_gauge{name=%q} %.3f\n", name, snap.Gauges[name])
		}
		b.WriteString("# HELP transfers_propose_latency_ms propose latency in ms\n")
		b.WriteString("# TYPE transfers_propose_latency_ms gauge\n")
		fmt.Fprintf(b, "transfers_propose_latency_ms{stat=%q} %d\n", "last", snap.ProposeLatencyMS.LastMS)
		fmt.Fprintf(b, "transfers_propose_latency_ms{stat=%q} %.3f\n", "avg", snap.ProposeLatencyMS.AvgMS)
		fmt.Fprintf(b, "transfers_propose_latency_ms{stat=%q} %d\n", "max", snap.ProposeLatencyMS.MaxMS)
		_, _ = w.Write([]byte(b.String()))
	}
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
