// Package pricing holds the pure calculation core of the checkout flow:
// unit conversion, weight validation, line pricing and cart aggregation.
// Nothing in here touches storage or carries state.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"scalepos/backend/internal/domain"
)

// ErrInvalidWeight tags every weight validation failure so callers can map it
// without string matching.
var ErrInvalidWeight = errors.New("invalid weight")

// Bounds is the weight sanity policy. MaxGramWeight is a tighter ceiling for
// gram-priced products, meant to catch unit-confusion mistakes at the scale.
type Bounds struct {
	MaxWeight     float64
	MaxGramWeight float64
}

func DefaultBounds() Bounds {
	return Bounds{
		MaxWeight:     domain.DefaultMaxWeight,
		MaxGramWeight: domain.DefaultMaxGramWeight,
	}
}

// RoundCurrency rounds a monetary amount to 2 decimal places, half away from
// zero. Every money figure that leaves this package has passed through it.
func RoundCurrency(v float64) float64 {
	return math.Round(v*100) / 100
}

// RoundWeight rounds a weight to 3 decimal places for display and storage.
func RoundWeight(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Convert translates a quantity between units. Only gram<->kilogram and
// milliliter<->liter are meaningful; any other pair returns the value
// unchanged. The identity fallback is deliberate, not an error.
func Convert(value float64, from, to domain.Unit) float64 {
	switch {
	case from == domain.UnitGram && to == domain.UnitKilogram:
		return value / 1000
	case from == domain.UnitKilogram && to == domain.UnitGram:
		return value * 1000
	case from == domain.UnitMilliliter && to == domain.UnitLiter:
		return value / 1000
	case from == domain.UnitLiter && to == domain.UnitMilliliter:
		return value * 1000
	}
	return value
}

// ValidateWeight enforces the weight sanity policy for one product. It runs
// before any persistence; a failure rejects the whole line.
func ValidateWeight(product domain.Product, weight float64, bounds Bounds) error {
	if weight <= 0 {
		return fmt.Errorf("%w: weight must be greater than 0", ErrInvalidWeight)
	}
	if weight > bounds.MaxWeight {
		return fmt.Errorf("%w: weight %.3f exceeds maximum of %g", ErrInvalidWeight, weight, bounds.MaxWeight)
	}
	if product.Unit == domain.UnitGram && weight > bounds.MaxGramWeight {
		return fmt.Errorf("%w: weight %.3f exceeds maximum of %g for gram-priced products", ErrInvalidWeight, weight, bounds.MaxGramWeight)
	}
	return nil
}

// Quote is the result of pricing a single line.
type Quote struct {
	Total            float64
	UnitPriceUsed    float64
	DisplayUnitPrice float64
}

// Price computes the monetary total for one line. quantityOrWeight is a piece
// count for piece-sold products and a weight captured in kilograms otherwise.
//
// Gram-unit products store their price per gram, so the captured kilogram
// weight is converted up and the display price is normalised to a per-kg
// figure for the UI. Kilogram-unit products store price per kg directly.
// This asymmetry is catalog policy and must not be flattened here.
func Price(product domain.Product, quantityOrWeight float64) Quote {
	if !product.SellByWeight {
		return Quote{
			Total:            RoundCurrency(quantityOrWeight * product.UnitPrice),
			UnitPriceUsed:    product.UnitPrice,
			DisplayUnitPrice: product.UnitPrice,
		}
	}

	switch product.Unit {
	case domain.UnitGram:
		grams := Convert(quantityOrWeight, domain.UnitKilogram, domain.UnitGram)
		return Quote{
			Total:            RoundCurrency(grams * product.UnitPrice),
			UnitPriceUsed:    product.UnitPrice,
			DisplayUnitPrice: product.UnitPrice * 1000,
		}
	case domain.UnitKilogram:
		return Quote{
			Total:            RoundCurrency(quantityOrWeight * product.UnitPrice),
			UnitPriceUsed:    product.UnitPrice,
			DisplayUnitPrice: product.UnitPrice,
		}
	default:
		// Liter, milliliter and anything else: weight is a direct multiplier.
		return Quote{
			Total:            RoundCurrency(quantityOrWeight * product.UnitPrice),
			UnitPriceUsed:    product.UnitPrice,
			DisplayUnitPrice: product.UnitPrice,
		}
	}
}

// Summary carries the weight/item statistics of an aggregated cart.
type Summary struct {
	TotalItems  int
	TotalWeight float64
}

// Totals is the monetary aggregation of a full cart.
type Totals struct {
	Subtotal    float64
	TaxAmount   float64
	TotalAmount float64
	Summary     Summary
}

// Aggregate sums already-priced line items into sale totals. Subtotal and tax
// are each rounded to the cent before the final addition; the total is rounded
// once more so the two rounded parts can never misalign by a cent.
func Aggregate(items []domain.SaleLineItem, taxRate float64) Totals {
	subtotal := 0.0
	totalWeight := 0.0
	for _, item := range items {
		subtotal += item.LineTotal
		if item.Weight != nil {
			totalWeight += *item.Weight
		}
	}

	subtotal = RoundCurrency(subtotal)
	taxAmount := RoundCurrency(subtotal * taxRate)

	return Totals{
		Subtotal:    subtotal,
		TaxAmount:   taxAmount,
		TotalAmount: RoundCurrency(subtotal + taxAmount),
		Summary: Summary{
			TotalItems:  len(items),
			TotalWeight: RoundWeight(totalWeight),
		},
	}
}
