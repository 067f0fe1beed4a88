// Package policy turns raw demand signals into vetted, quantity-bounded,
// priority-ranked, idempotent transfer orders. The service is stateless;
// correctness under concurrent proposals is delegated to the storage
// layer's uniqueness constraint on the idempotency key.
package policy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/config"
	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/dsr"
	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/events"
	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/guardrail"
	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/idempotency"
	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/metrics"
	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/models"
	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/telemetry"
)

const (
	// ConfidenceThreshold gates automatic order creation. Signals below
	// it are skipped unless auto_create is configured on.
	ConfidenceThreshold = 0.70

	// SystemRequester is the identity attached to orders nobody asked
	// for by name.
	SystemRequester = "system:policy"

	duplicateTolerance = 0.10
	defaultUnit        = "ea"
	epsilon            = 1e-6
)

// ValidationError names the mandatory signal field that was missing.
// Callers get it back immediately; it is never retried.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("demand signal missing required field %q", e.Field)
}

// orderStore is the slice of the persistence collaborator the policy
// service needs.
type orderStore interface {
	Create(ctx context.Context, order *models.TransferOrder) (*models.TransferOrder, error)
	FindRecentByStoreSKU(ctx context.Context, storeID, sku string, windowHours int) (*models.RecentOrder, error)
	UpdateStatus(ctx context.Context, transferID, newStatus, actor, note string) (bool, error)
	CountByStatus(ctx context.Context, status string) (int, error)
}

// Service is the transfer policy orchestrator.
type Service struct {
	repo    orderStore
	cfg     *config.Resolver
	emitter events.Emitter
	metrics *metrics.Registry
	chain   *guardrail.Chain
	pricing *guardrail.Chain
	tracer  oteltrace.Tracer
	newID   func() string
}

func NewService(repo orderStore, cfg *config.Resolver, emitter events.Emitter, reg *metrics.Registry) *Service {
	if emitter == nil {
		emitter = events.Nop{}
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Service{
		repo:    repo,
		cfg:     cfg,
		emitter: emitter,
		metrics: reg,
		chain:   guardrail.TransferChain(emitter),
		pricing: guardrail.PricingChain(emitter),
		tracer:  telemetry.Tracer("policy"),
		newID:   func() string { return "TR-" + uuid.NewString() },
	}
}

// Propose converts one demand signal into at most one transfer order.
// A nil order with a nil error is a valid "no action needed" outcome
// (insufficient need, low confidence, or duplicate-window suppression)
// and is distinct from a validation or infrastructure error.
func (s *Service) Propose(ctx context.Context, signal models.DemandSignal, persist bool) (*models.TransferOrder, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "policy.propose", oteltrace.WithAttributes(
		attribute.String("store_id", signal.StoreID),
		attribute.String("sku", signal.SKU),
		attribute.Bool("persist", persist),
	))
	defer span.End()
	defer func() { s.metrics.ObserveProposeLatency(time.Since(started)) }()

	if signal.StoreID == "" {
		return nil, &ValidationError{Field: "store_id"}
	}
	if signal.SKU == "" {
		return nil, &ValidationError{Field: "sku"}
	}

	weekly, confIn, onHand := s.sanitize(ctx, signal)

	pol, err := s.cfg.Resolve(ctx, signal.SKU, signal.StoreID)
	if err != nil {
		return nil, fmt.Errorf("resolve transfer policy: %w", err)
	}

	daily := weekly / 7
	safetyUnits := int(math.Ceil(daily * float64(pol.SafetyStockDays)))
	weekUnits := int(math.Ceil(weekly))
	required := safetyUnits + weekUnits - onHand
	if required <= 0 {
		s.metrics.IncSkip("no_need")
		s.emitter.Emit(ctx, events.PolicySkipNoNeed, map[string]any{
			"store_id":           signal.StoreID,
			"sku":                signal.SKU,
			"on_hand":            onHand,
			"safety_stock_units": safetyUnits,
			"one_week_units":     weekUnits,
		})
		return nil, nil
	}

	qty := clampInt(required, 1, pol.MaxMoveQty)

	horizon := maxInt(signal.LeadTimeDays, signal.ForecastHorizonDays, 1)
	horizonFactor := clamp01(14 / float64(horizon))
	leadPenalty := clamp01(float64(pol.SafetyStockDays+7) / float64(maxInt(1, signal.LeadTimeDays+pol.SafetyStockDays)))
	confidence := round3(clamp01(confIn * horizonFactor * leadPenalty))
	if confidence < ConfidenceThreshold && !pol.AutoCreate {
		s.metrics.IncSkip("low_confidence")
		s.emitter.Emit(ctx, events.PolicySkipConfidence, map[string]any{
			"store_id":   signal.StoreID,
			"sku":        signal.SKU,
			"confidence": confidence,
			"threshold":  ConfidenceThreshold,
		})
		return nil, nil
	}

	priority := rankPriority(qty, pol.MaxMoveQty, confidence, onHand)

	// Fuzzy, time-windowed suppression against naturally repeated
	// signals. A suppressed proposal computes no idempotency key and
	// writes nothing; a lookup failure degrades to "no duplicate".
	if suppressed := s.duplicateSuppressed(ctx, signal.StoreID, signal.SKU, qty, pol.DuplicateWindowHours); suppressed {
		return nil, nil
	}

	sourceHub := signal.SourceHub
	if sourceHub == "" {
		sourceHub = pol.DefaultSourceHub
	}
	key := idempotency.FromSignal(signal.StoreID, signal.SKU, qty, horizon, pol.SafetyStockDays, sourceHub)

	requestedBy := signal.RequestedBy
	if requestedBy == "" {
		requestedBy = SystemRequester
	}
	unit := signal.Unit
	if unit == "" {
		unit = defaultUnit
	}

	order := &models.TransferOrder{
		TransferID:  s.newID(),
		SourceHub:   sourceHub,
		DestStore:   signal.StoreID,
		Status:      models.StatusProposed,
		Priority:    priority,
		Confidence:  confidence,
		RequestedBy: requestedBy,
		Reason: models.TransferReason{
			Type:             "low_stock",
			PredictedWeekly:  weekly,
			OnHand:           onHand,
			RawOnHand:        signal.CurrentOnHand,
			SafetyStockDays:  pol.SafetyStockDays,
			SafetyStockUnits: safetyUnits,
			RequiredUnits:    required,
			MaxMoveQty:       pol.MaxMoveQty,
			LeadTimeDays:     signal.LeadTimeDays,
			HorizonDays:      horizon,
			Preview:          !persist,
		},
		IdempotencyKey: key,
		Lines: []models.TransferLine{{
			SKU:  signal.SKU,
			Qty:  qty,
			Unit: unit,
			Rationale: models.LineRationale{
				SafetyStockBreach: onHand < safetyUnits,
				PredictedWeekly:   weekly,
				DailyDemand:       daily,
				Confidence:        confidence,
			},
		}},
	}

	if !persist {
		s.emitter.Emit(ctx, events.TransferCreate, map[string]any{
			"transfer_id": order.TransferID,
			"store_id":    signal.StoreID,
			"sku":         signal.SKU,
			"qty":         qty,
			"priority":    priority,
			"confidence":  confidence,
			"persisted":   false,
		})
		return order, nil
	}

	created, err := s.repo.Create(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("persist transfer order: %w", err)
	}
	s.metrics.IncOrdersCreated(created.Priority)
	s.refreshPendingGauge(ctx)
	s.emitter.Emit(ctx, events.TransferCreate, map[string]any{
		"transfer_id": created.TransferID,
		"store_id":    signal.StoreID,
		"sku":         signal.SKU,
		"qty":         qty,
		"priority":    created.Priority,
		"confidence":  created.Confidence,
		"persisted":   true,
	})
	return created, nil
}

// UpdateStatus runs an operational transition through the repository and
// keeps the counters and pending gauge current.
func (s *Service) UpdateStatus(ctx context.Context, transferID, newStatus, actor, note string) (bool, error) {
	ok, err := s.repo.UpdateStatus(ctx, transferID, newStatus, actor, note)
	if err != nil || !ok {
		return ok, err
	}
	if newStatus == models.StatusCommitted {
		s.metrics.IncOrdersCommitted()
	}
	s.refreshPendingGauge(ctx)
	return true, nil
}

// CheckAllocation projects both sides' days of supply after moving qty
// units and runs the transfer guardrail chain over the result. The DSR
// thresholds come from global configuration, falling back to the
// compiled defaults.
func (s *Service) CheckAllocation(ctx context.Context, donor, receiver dsr.Item, qty, projectedROI float64) guardrail.Verdict {
	proj := dsr.Project(donor, receiver, qty)
	gctx := guardrail.TransferContext{
		DonorDSRPost:    proj.DonorDSRPost,
		ReceiverDSRPost: proj.ReceiverDSRPost,
		DonorMinDSR:     s.threshold(ctx, "donor_min_dsr", guardrail.DefaultDonorMinDSR),
		ReceiverMaxDSR:  s.threshold(ctx, "receiver_max_dsr", guardrail.DefaultReceiverMaxDSR),
		ProjectedROI:    projectedROI,
	}.Context()
	verdict := s.chain.Evaluate(ctx, gctx)
	if verdict.Blocked() {
		s.metrics.IncGuardrailBlock(verdict.BlockedBy)
	}
	return verdict
}

// CheckPricing runs the pricing guardrail chain over a candidate price,
// with the margin floor and delta cap resolved from global configuration.
func (s *Service) CheckPricing(ctx context.Context, cost, currentPrice, candidatePrice, projectedROI float64) guardrail.Verdict {
	gctx := guardrail.PricingContext{
		Cost:           cost,
		CurrentPrice:   currentPrice,
		CandidatePrice: candidatePrice,
		MinMarginPct:   s.threshold(ctx, "min_margin_pct", guardrail.DefaultMinMarginPct),
		DeltaCapPct:    s.threshold(ctx, "delta_cap_pct", guardrail.DefaultDeltaCapPct),
		ProjectedROI:   projectedROI,
	}.Context()
	verdict := s.pricing.Evaluate(ctx, gctx)
	if verdict.Blocked() {
		s.metrics.IncGuardrailBlock(verdict.BlockedBy)
	}
	return verdict
}

// threshold reads transfers.<field>, degrading to def when the config
// store is unreachable so guardrails keep evaluating.
func (s *Service) threshold(ctx context.Context, field string, def float64) float64 {
	v, err := s.cfg.GlobalFloat(ctx, field, def)
	if err != nil {
		s.emitter.Debug(ctx, "policy.threshold_lookup_degraded", map[string]any{
			"field": field,
			"error": err.Error(),
		})
		return def
	}
	return v
}

// sanitize treats non-finite numbers as 0, clamps confidence to [0,1] and
// floors on-hand at 0. Anything it changes is reported at debug level so
// upstream data-quality problems stay visible.
func (s *Service) sanitize(ctx context.Context, signal models.DemandSignal) (weekly, confidence float64, onHand int) {
	weekly = signal.PredictedWeeklyQty
	confidence = signal.Confidence
	onHand = signal.CurrentOnHand
	changed := map[string]any{}
	if math.IsNaN(weekly) || math.IsInf(weekly, 0) {
		changed["raw_predicted_weekly"] = fmt.Sprintf("%v", weekly)
		weekly = 0
	}
	if weekly < 0 {
		changed["raw_predicted_weekly"] = weekly
		weekly = 0
	}
	if math.IsNaN(confidence) || math.IsInf(confidence, 0) {
		changed["raw_confidence"] = fmt.Sprintf("%v", confidence)
		confidence = 0
	}
	if confidence < 0 || confidence > 1 {
		changed["raw_confidence"] = confidence
		confidence = clamp01(confidence)
	}
	if onHand < 0 {
		changed["raw_on_hand"] = onHand
		onHand = 0
	}
	if len(changed) > 0 {
		changed["store_id"] = signal.StoreID
		changed["sku"] = signal.SKU
		s.emitter.Debug(ctx, events.PolicySanitized, changed)
	}
	return weekly, confidence, onHand
}

func (s *Service) duplicateSuppressed(ctx context.Context, storeID, sku string, qty, windowHours int) bool {
	if windowHours <= 0 {
		return false
	}
	recent, err := s.repo.FindRecentByStoreSKU(ctx, storeID, sku, windowHours)
	if err != nil {
		s.emitter.Emit(ctx, events.DuplicateLookupFail, map[string]any{
			"store_id": storeID,
			"sku":      sku,
			"error":    err.Error(),
		})
		return false
	}
	if recent == nil || !nearDuplicate(recent.Qty, qty) {
		return false
	}
	s.metrics.IncSkip("duplicate_window")
	s.emitter.Emit(ctx, events.TransferSkip, map[string]any{
		"store_id":     storeID,
		"sku":          sku,
		"qty":          qty,
		"existing_id":  recent.TransferID,
		"existing_qty": recent.Qty,
		"window_hours": windowHours,
		"reason":       "duplicate_window",
	})
	return true
}

// nearDuplicate applies the 10% tolerance, with tiny quantities treated
// as equal outright.
func nearDuplicate(existing, candidate int) bool {
	if existing <= 1 && candidate <= 1 {
		return true
	}
	diff := math.Abs(float64(existing - candidate))
	return diff <= duplicateTolerance*float64(candidate)+epsilon
}

func rankPriority(qty, maxMove int, confidence float64, onHand int) string {
	switch {
	case float64(qty) >= 0.9*float64(maxMove):
		return models.PriorityCritical
	case confidence >= 0.9 || onHand <= 2:
		return models.PriorityHigh
	case float64(qty) >= 0.5*float64(maxMove):
		return models.PriorityHigh
	case confidence >= 0.75:
		return models.PriorityNormal
	default:
		return models.PriorityLow
	}
}

func (s *Service) refreshPendingGauge(ctx context.Context) {
	n, err := s.repo.CountByStatus(ctx, models.StatusProposed)
	if err != nil {
		s.emitter.Debug(ctx, "policy.gauge_refresh_failed", map[string]any{"error": err.Error()})
		return
	}
	s.metrics.SetGauge("orders_pending", float64(n))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(vals ...int) int {
	out := vals[0]
	for _, v := range vals[1:] {
		if v > out {
			out = v
		}
	}
	return out
}
