package quotes

import (
	"github.com/shopspring/decimal"

	"github.com/stonebridge-contracting/stonebridge-backend/pkg/db/models"
)

// moneyPlaces is the persisted precision for every monetary amount.
const moneyPlaces = 2

var (
	oneHundred = decimal.NewFromInt(100)
	one        = decimal.NewFromInt(1)
)

// TotalsOverrides carries the quote-level fields that shape the derived
// totals alongside the line items.
type TotalsOverrides struct {
	DiscountPercentage decimal.Decimal
	DiscountAmount     decimal.Decimal
	TaxRate            decimal.Decimal
	TaxAmount          decimal.Decimal
	IsManualTax        bool
}

// Totals is the full derived monetary breakdown of a quote.
type Totals struct {
	Subtotal           decimal.Decimal
	DiscountAmount     decimal.Decimal
	DiscountedSubtotal decimal.Decimal
	TaxAmount          decimal.Decimal
	Total              decimal.Decimal
}

// LineItemTotal derives a single item's total price: quantity times unit
// price, less the item's own discount. A percentage discount wins over a
// flat amount when both are present.
func LineItemTotal(quantity, unitPrice, discountPercentage, discountAmount decimal.Decimal) decimal.Decimal {
	gross := quantity.Mul(unitPrice)

	discount := discountAmount
	if discountPercentage.GreaterThan(decimal.Zero) {
		discount = gross.Mul(discountPercentage).Div(oneHundred)
	}

	total := gross.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return total.Round(moneyPlaces)
}

// ComputeTotals derives the monetary breakdown for a quote from its line
// items and override fields. It is pure and idempotent: the same inputs
// always produce the same rounded outputs.
func ComputeTotals(items []models.QuoteLineItem, overrides TotalsOverrides) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(LineItemTotal(item.Quantity, item.UnitPrice, item.DiscountPercentage, item.DiscountAmount))
	}
	subtotal = subtotal.Round(moneyPlaces)

	discount := overrides.DiscountAmount
	if overrides.DiscountPercentage.GreaterThan(decimal.Zero) {
		discount = subtotal.Mul(overrides.DiscountPercentage).Div(oneHundred)
	}
	discount = discount.Round(moneyPlaces)

	discountedSubtotal := subtotal.Sub(discount)
	if discountedSubtotal.IsNegative() {
		discountedSubtotal = decimal.Zero
	}

	var tax decimal.Decimal
	if overrides.IsManualTax {
		tax = overrides.TaxAmount
	} else {
		tax = discountedSubtotal.Mul(EffectiveTaxRate(overrides.TaxRate))
	}
	tax = tax.Round(moneyPlaces)

	return Totals{
		Subtotal:           subtotal,
		DiscountAmount:     discount,
		DiscountedSubtotal: discountedSubtotal,
		TaxAmount:          tax,
		Total:              discountedSubtotal.Add(tax).Round(moneyPlaces),
	}
}

// EffectiveTaxRate normalizes the stored tax rate, which has historically
// carried two formats: a value <= 1 is already a decimal rate, a value > 1
// is a percentage and is divided by 100.
func EffectiveTaxRate(rate decimal.Decimal) decimal.Decimal {
	if rate.GreaterThan(one) {
		return rate.Div(oneHundred)
	}
	return rate
}

// Apply writes the computed breakdown onto the quote model.
func (t Totals) Apply(quote *models.Quote) {
	quote.Subtotal = t.Subtotal
	quote.DiscountAmount = t.DiscountAmount
	quote.DiscountedSubtotal = t.DiscountedSubtotal
	quote.TaxAmount = t.TaxAmount
	quote.Total = t.Total
}
