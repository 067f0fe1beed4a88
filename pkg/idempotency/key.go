// Package idempotency derives the deterministic fingerprint attached to
// every transfer payload. The storage layer enforces uniqueness on it, so
// re-submitting an identical signal is a no-op.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Purposes distinguish otherwise-identical computations.
const (
	PurposeCreate  = "transfer.create"
	PurposePreview = "transfer.preview"
)

// Inputs is the tuple the key covers. Changing any field changes the key.
type Inputs struct {
	StoreID         string
	SKU             string
	Qty             int
	HorizonDays     int
	SafetyStockDays int
	SourceHub       string
	Purpose         string
}

// Key returns a 64-character lowercase hex digest over the inputs.
func Key(in Inputs) string {
	purpose := in.Purpose
	if purpose == "" {
		purpose = PurposeCreate
	}
	material := strings.Join([]string{
		in.StoreID,
		in.SKU,
		fmt.Sprintf("%d", in.Qty),
		fmt.Sprintf("%d", in.HorizonDays),
		fmt.Sprintf("%d", in.SafetyStockDays),
		in.SourceHub,
		purpose,
	}, "|")
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

// FromSignal is the common create-purpose derivation.
func FromSignal(storeID, sku string, qty, horizonDays, safetyStockDays int, sourceHub string) string {
	return Key(Inputs{
		StoreID:         storeID,
		SKU:             sku,
		Qty:             qty,
		HorizonDays:     horizonDays,
		SafetyStockDays: safetyStockDays,
		SourceHub:       sourceHub,
		Purpose:         PurposeCreate,
	})
}
