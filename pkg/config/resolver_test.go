package config

import (
	"context"
	"errors"
	"testing"
)

func TestResolveCascadePrecedence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMapStore(map[string]string{
		"transfers.safety_stock_days":                   "7",
		"transfers.overrides.store.S1.safety_stock_days": "9",
		"transfers.overrides.sku.SKU1.safety_stock_days": "12",
		"transfers.max_move_qty":                        "40",
	})
	r := NewResolver(store)

	// SKU override wins over store override and global.
	got, err := r.Int(ctx, "safety_stock_days", "SKU1", "S1", 3)
	if err != nil || got != 12 {
		t.Fatalf("sku tier: got %d err %v", got, err)
	}
	// Store override wins over global for an un-overridden SKU.
	got, err = r.Int(ctx, "safety_stock_days", "SKU2", "S1", 3)
	if err != nil || got != 9 {
		t.Fatalf("store tier: got %d err %v", got, err)
	}
	// Global when neither override exists.
	got, err = r.Int(ctx, "safety_stock_days", "SKU2", "S2", 3)
	if err != nil || got != 7 {
		t.Fatalf("global tier: got %d err %v", got, err)
	}
	// Compiled default when nothing is configured.
	got, err = r.Int(ctx, "missing_field", "SKU2", "S2", 3)
	if err != nil || got != 3 {
		t.Fatalf("default tier: got %d err %v", got, err)
	}
}

func TestResolveEffectivePolicy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMapStore(map[string]string{
		"transfers.safety_stock_days":          "6",
		"transfers.max_move_qty":               "30",
		"transfers.auto_create":                "true",
		"transfers.duplicate_window_hours":     "48",
		"transfers.default_source_hub":         "HUB_SOUTH",
		"transfers.overrides.sku.SKU9.max_move_qty": "5",
	})
	r := NewResolver(store)
	pol, err := r.Resolve(ctx, "SKU9", "S1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if pol.SafetyStockDays != 6 || pol.MaxMoveQty != 5 || !pol.AutoCreate ||
		pol.DuplicateWindowHours != 48 || pol.DefaultSourceHub != "HUB_SOUTH" {
		t.Fatalf("unexpected policy %#v", pol)
	}
}

func TestResolveDefaults(t *testing.T) {
	t.Parallel()
	r := NewResolver(NewMapStore(nil))
	pol, err := r.Resolve(context.Background(), "SKU1", "S1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if pol.SafetyStockDays != DefaultSafetyStockDays ||
		pol.MaxMoveQty != DefaultMaxMoveQty ||
		pol.AutoCreate != DefaultAutoCreate ||
		pol.DuplicateWindowHours != DefaultDuplicateWindowHours ||
		pol.DefaultSourceHub != DefaultSourceHub {
		t.Fatalf("unexpected defaults %#v", pol)
	}
}

func TestResolveClampsDegenerateValues(t *testing.T) {
	t.Parallel()
	store := NewMapStore(map[string]string{
		"transfers.safety_stock_days":      "-4",
		"transfers.max_move_qty":           "0",
		"transfers.duplicate_window_hours": "-1",
	})
	pol, err := NewResolver(store).Resolve(context.Background(), "", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if pol.SafetyStockDays != 0 || pol.MaxMoveQty != 1 || pol.DuplicateWindowHours != 0 {
		t.Fatalf("unexpected clamped policy %#v", pol)
	}
}

type failingStore struct{ err error }

func (f failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, f.err
}

func TestResolvePropagatesStoreError(t *testing.T) {
	t.Parallel()
	sentinel := errors.New("config backend down")
	_, err := NewResolver(failingStore{err: sentinel}).Resolve(context.Background(), "SKU1", "S1")
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestParseHelpers(t *testing.T) {
	t.Parallel()
	if parseInt(" 42 ", 0) != 42 || parseInt("x", 9) != 9 {
		t.Fatal("parseInt")
	}
	if parseFloat("0.5", 0) != 0.5 || parseFloat("x", 1.5) != 1.5 {
		t.Fatal("parseFloat")
	}
	if !parseBool("YES", false) || parseBool("off", true) || !parseBool("junk", true) {
		t.Fatal("parseBool")
	}
}
