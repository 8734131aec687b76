// Package money holds the marketplace fee and tax arithmetic. Every amount is a
// decimal rounded half-up to two places; nothing here touches floats.
package money

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/relivv-escrow/pkg/enums"
)

const Scale = 2

var (
	// CommissionRate is the platform fee charged on top of the listing price.
	CommissionRate = decimal.RequireFromString("0.05")
	// VATRate is applied to the buyer-facing total on invoices.
	VATRate = decimal.RequireFromString("0.21")

	DefaultCurrency = enums.CurrencyEUR

	hundred = decimal.NewFromInt(100)
)

// Breakdown is the snapshot stored on a transaction at reservation time.
type Breakdown struct {
	Amount         decimal.Decimal
	CommissionRate decimal.Decimal
	Commission     decimal.Decimal
	Total          decimal.Decimal
}

// Round rounds half away from zero to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Commission returns round(amount × 0.05, 2).
func Commission(amount decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(CommissionRate))
}

// Split computes commission and total for a listing price.
func Split(price decimal.Decimal) Breakdown {
	amount := Round(price)
	commission := Commission(amount)
	return Breakdown{
		Amount:         amount,
		CommissionRate: CommissionRate,
		Commission:     commission,
		Total:          amount.Add(commission),
	}
}

// VAT returns round(total × 0.21, 2).
func VAT(total decimal.Decimal) decimal.Decimal {
	return Round(total.Mul(VATRate))
}

// Sum adds amounts and rounds the result.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, amount := range amounts {
		total = total.Add(amount)
	}
	return Round(total)
}

// ToCents converts a decimal amount to integer minor units for gateway APIs.
func ToCents(d decimal.Decimal) int64 {
	return Round(d).Mul(hundred).IntPart()
}

// FromCents converts integer minor units back into a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -Scale)
}
