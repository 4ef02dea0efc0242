// Package balances keeps denormalised money totals equal to the sum of their
// constituent rows. Totals are always recomputed from the full current child set.
package balances

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Round2 rounds half away from zero to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// LineTotal is round2(quantity * unitPrice).
func LineTotal(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return Round2(quantity.Mul(unitPrice))
}

// Sum adds every value.
func Sum(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// QuoteTotal is round2(sum(line totals) * (1 - discountPct/100)).
func QuoteTotal(lineTotals []decimal.Decimal, discountPct decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(discountPct.Div(hundred))
	return Round2(Sum(lineTotals).Mul(factor))
}

// PurchaseOrderTotal is sum(item total prices).
func PurchaseOrderTotal(itemTotals []decimal.Decimal) decimal.Decimal {
	return Sum(itemTotals)
}

// SupplierTotals returns (sum of purchase order totals, sum of supplier payments).
func SupplierTotals(poTotals, payments []decimal.Decimal) (purchases, paid decimal.Decimal) {
	return Sum(poTotals), Sum(payments)
}

// ReceivedAmount is sum(order payments).
func ReceivedAmount(payments []decimal.Decimal) decimal.Decimal {
	return Sum(payments)
}

// ValidDiscount reports whether pct lies in [0, 100].
func ValidDiscount(pct decimal.Decimal) bool {
	return !pct.IsNegative() && pct.LessThanOrEqual(hundred)
}
