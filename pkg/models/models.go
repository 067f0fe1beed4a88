package models

import (
	"time"
)

// Transfer order statuses.
const (
	StatusProposed  = "proposed"
	StatusApproved  = "approved"
	StatusCommitted = "committed"
	StatusInTransit = "in_transit"
	StatusReceived  = "received"
	StatusCancelled = "cancelled"
)

// Transfer order priorities.
const (
	PriorityLow      = "low"
	PriorityNormal   = "normal"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusProposed, StatusApproved, StatusCommitted, StatusInTransit, StatusReceived, StatusCancelled:
		return true
	default:
		return false
	}
}

func ValidPriority(priority string) bool {
	switch priority {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// PriorityWeight orders priorities for sorting and monotonicity checks.
func PriorityWeight(priority string) int {
	switch priority {
	case PriorityCritical:
		return 40
	case PriorityHigh:
		return 30
	case PriorityNormal:
		return 20
	case PriorityLow:
		return 10
	default:
		return 0
	}
}

// DemandSignal is the raw at-risk input produced by the discovery layer.
// It is transient and never persisted.
type DemandSignal struct {
	StoreID             string  `json:"store_id"`
	SKU                 string  `json:"sku"`
	PredictedWeeklyQty  float64 `json:"predicted_weekly_qty"`
	CurrentOnHand       int     `json:"current_on_hand"`
	ReservedQty         int     `json:"reserved_qty"`
	LeadTimeDays        int     `json:"lead_time_days"`
	Confidence          float64 `json:"confidence"`
	ForecastHorizonDays int     `json:"forecast_horizon_days"`
	SourceHub           string  `json:"source_hub,omitempty"`
	RequestedBy         string  `json:"requested_by,omitempty"`
	Unit                string  `json:"unit,omitempty"`
}

// TransferReason is the structured explanation attached to an order.
type TransferReason struct {
	Type             string  `json:"type"`
	PredictedWeekly  float64 `json:"predicted_weekly"`
	OnHand           int     `json:"on_hand"`
	RawOnHand        int     `json:"raw_on_hand"`
	SafetyStockDays  int     `json:"safety_stock_days"`
	SafetyStockUnits int     `json:"safety_stock_units"`
	RequiredUnits    int     `json:"required_units"`
	MaxMoveQty       int     `json:"max_move_qty"`
	LeadTimeDays     int     `json:"lead_time_days"`
	HorizonDays      int     `json:"horizon_days"`
	Preview          bool    `json:"preview"`
}

// LineRationale explains a single line's quantity.
type LineRationale struct {
	SafetyStockBreach bool    `json:"safety_stock_breach"`
	PredictedWeekly   float64 `json:"predicted_weekly"`
	DailyDemand       float64 `json:"daily_demand"`
	Confidence        float64 `json:"confidence"`
}

// TransferLine is owned by its parent order.
type TransferLine struct {
	ID        int64         `json:"id,omitempty"`
	SKU       string        `json:"sku"`
	Qty       int           `json:"qty"`
	Unit      string        `json:"unit"`
	Rationale LineRationale `json:"rationale"`
}

// TransferOrder is the aggregate the policy engine produces. Orders leave
// the engine in StatusProposed; later transitions happen through the
// repository only.
type TransferOrder struct {
	TransferID     string         `json:"transfer_id"`
	SourceHub      string         `json:"source_hub"`
	DestStore      string         `json:"dest_store"`
	Status         string         `json:"status"`
	Priority       string         `json:"priority"`
	Reason         TransferReason `json:"reason"`
	Confidence     float64        `json:"confidence"`
	RequestedBy    string         `json:"requested_by"`
	IdempotencyKey string         `json:"idempotency_key"`
	Lines          []TransferLine `json:"lines"`
	Persisted      bool           `json:"persisted"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// AuditEvent is one row of an order's decision trail.
type AuditEvent struct {
	TransferID string         `json:"transfer_id"`
	EventType  string         `json:"event_type"`
	StatusFrom string         `json:"status_from,omitempty"`
	StatusTo   string         `json:"status_to,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Note       string         `json:"note,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// RecentOrder is the duplicate-window lookup projection.
type RecentOrder struct {
	TransferID string    `json:"transfer_id"`
	DestStore  string    `json:"dest_store"`
	SKU        string    `json:"sku"`
	Qty        int       `json:"qty"`
	CreatedAt  time.Time `json:"created_at"`
}
