package config

import (
	"context"
	"fmt"
)

// Compiled defaults, used when no tier has the field configured.
const (
	DefaultSafetyStockDays      = 7
	DefaultMaxMoveQty           = 50
	DefaultDuplicateWindowHours = 24
	DefaultSourceHub            = "HUB_MAIN"
	DefaultAutoCreate           = false
)

// Policy is the effective parameter set for one (store, sku) pair.
type Policy struct {
	SafetyStockDays      int
	MaxMoveQty           int
	AutoCreate           bool
	DuplicateWindowHours int
	DefaultSourceHub     string
}

// Resolver walks the override cascade explicitly: SKU override, then
// store override, then global, then compiled default. Keeping it a type
// keeps the precedence testable in isolation.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

func skuKey(sku, field string) string {
	return fmt.Sprintf("transfers.overrides.sku.%s.%s", sku, field)
}

func storeKey(storeID, field string) string {
	return fmt.Sprintf("transfers.overrides.store.%s.%s", storeID, field)
}

func globalKey(field string) string {
	return "transfers." + field
}

// Field returns the most specific configured raw value for field.
func (r *Resolver) Field(ctx context.Context, field, sku, storeID string) (string, bool, error) {
	if sku != "" {
		if raw, ok, err := r.store.Get(ctx, skuKey(sku, field)); err != nil || ok {
			return raw, ok, err
		}
	}
	if storeID != "" {
		if raw, ok, err := r.store.Get(ctx, storeKey(storeID, field)); err != nil || ok {
			return raw, ok, err
		}
	}
	return r.store.Get(ctx, globalKey(field))
}

func (r *Resolver) Int(ctx context.Context, field, sku, storeID string, def int) (int, error) {
	raw, ok, err := r.Field(ctx, field, sku, storeID)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	return parseInt(raw, def), nil
}

// Global reads transfers.<field> without the override tiers.
func (r *Resolver) Global(ctx context.Context, field string) (string, bool, error) {
	return r.store.Get(ctx, globalKey(field))
}

func (r *Resolver) GlobalInt(ctx context.Context, field string, def int) (int, error) {
	raw, ok, err := r.Global(ctx, field)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	return parseInt(raw, def), nil
}

func (r *Resolver) GlobalFloat(ctx context.Context, field string, def float64) (float64, error) {
	raw, ok, err := r.Global(ctx, field)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	return parseFloat(raw, def), nil
}

func (r *Resolver) GlobalBool(ctx context.Context, field string, def bool) (bool, error) {
	raw, ok, err := r.Global(ctx, field)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	return parseBool(raw, def), nil
}

func (r *Resolver) GlobalString(ctx context.Context, field, def string) (string, error) {
	raw, ok, err := r.Global(ctx, field)
	if err != nil {
		return def, err
	}
	if !ok || raw == "" {
		return def, nil
	}
	return raw, nil
}

// Resolve produces the effective policy for a (store, sku) pair.
// safety_stock_days and max_move_qty honour the full cascade; the
// remaining fields are global-only.
func (r *Resolver) Resolve(ctx context.Context, sku, storeID string) (Policy, error) {
	safetyDays, err := r.Int(ctx, "safety_stock_days", sku, storeID, DefaultSafetyStockDays)
	if err != nil {
		return Policy{}, fmt.Errorf("resolve safety_stock_days: %w", err)
	}
	maxMove, err := r.Int(ctx, "max_move_qty", sku, storeID, DefaultMaxMoveQty)
	if err != nil {
		return Policy{}, fmt.Errorf("resolve max_move_qty: %w", err)
	}
	autoCreate, err := r.GlobalBool(ctx, "auto_create", DefaultAutoCreate)
	if err != nil {
		return Policy{}, fmt.Errorf("resolve auto_create: %w", err)
	}
	windowHours, err := r.GlobalInt(ctx, "duplicate_window_hours", DefaultDuplicateWindowHours)
	if err != nil {
		return Policy{}, fmt.Errorf("resolve duplicate_window_hours: %w", err)
	}
	sourceHub, err := r.GlobalString(ctx, "default_source_hub", DefaultSourceHub)
	if err != nil {
		return Policy{}, fmt.Errorf("resolve default_source_hub: %w", err)
	}
	if safetyDays < 0 {
		safetyDays = 0
	}
	if maxMove < 1 {
		maxMove = 1
	}
	if windowHours < 0 {
		windowHours = 0
	}
	return Policy{
		SafetyStockDays:      safetyDays,
		MaxMoveQty:           maxMove,
		AutoCreate:           autoCreate,
		DuplicateWindowHours: windowHours,
		DefaultSourceHub:     sourceHub,
	}, nil
}
