// Package dsr computes days-of-supply-remaining figures and pre/post
// transfer projections feeding the donor/receiver guardrails.
package dsr

import "math"

const minDailyDemand = 1e-9

// Item is a location's stock position for one SKU.
type Item struct {
	StockOnHand    float64
	AvgDailyDemand float64
}

// DSR returns stock on hand divided by average daily demand. Non-positive
// or non-finite demand yields 0 rather than infinity.
func DSR(item Item) float64 {
	if item.AvgDailyDemand <= 0 || math.IsNaN(item.AvgDailyDemand) || math.IsInf(item.AvgDailyDemand, 0) {
		return 0
	}
	stock := item.StockOnHand
	if stock < 0 || math.IsNaN(stock) || math.IsInf(stock, 0) {
		stock = 0
	}
	return stock / math.Max(item.AvgDailyDemand, minDailyDemand)
}

// Projection holds both sides' post-transfer days of supply.
type Projection struct {
	DonorDSRPost    float64
	ReceiverDSRPost float64
}

// Project computes donor and receiver DSR after moving qty units. The
// donor's stock floors at zero.
func Project(donor, receiver Item, qty float64) Projection {
	if qty < 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		qty = 0
	}
	donorStock := donor.StockOnHand - qty
	if donorStock < 0 {
		donorStock = 0
	}
	return Projection{
		DonorDSRPost:    DSR(Item{StockOnHand: donorStock, AvgDailyDemand: donor.AvgDailyDemand}),
		ReceiverDSRPost: DSR(Item{StockOnHand: receiver.StockOnHand + qty, AvgDailyDemand: receiver.AvgDailyDemand}),
	}
}
