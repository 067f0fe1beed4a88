// Package config exposes the layered runtime configuration the policy
// engine reads: per-SKU overrides beat per-store overrides beat globals
// beat compiled defaults.
package config

import (
	"context"
	"strconv"
	"strings"
	"sync"
)

// Store reads raw configuration values. The bool reports whether the key
// was present; infrastructure failures surface through the error.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// MapStore is an in-memory Store for tests and static wiring.
type MapStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMapStore(values map[string]string) *MapStore {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &MapStore{values: copied}
}

func (m *MapStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MapStore) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

func parseInt(raw string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
		return v
	}
	return def
}

func parseFloat(raw string, def float64) float64 {
	if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
		return v
	}
	return def
}

func parseBool(raw string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
