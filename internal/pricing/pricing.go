// Package pricing computes cart totals. It is pure: no I/O, no clock.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInvalidQuantity = errors.New("quantity must be > 0")

// Line is one priced cart entry. UnitPrice comes from the live catalog at
// quote time, never from a stored snapshot, so stale prices cannot leak in.
type Line struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int32
}

// Totals always satisfies Total = Subtotal + Tax and
// Tax = round(Subtotal * rate, 2).
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Engine applies the configured tax rate (0.12 = 12% VAT).
type Engine struct {
	TaxRate decimal.Decimal
}

func NewEngine(taxRate decimal.Decimal) Engine {
	return Engine{TaxRate: taxRate}
}

// Quote prices the given lines. The only error is a non-positive quantity;
// an empty cart quotes to zero.
func (e Engine) Quote(lines []Line) (Totals, error) {
	subtotal := decimal.Zero
	for i, l := range lines {
		if l.Quantity <= 0 {
			return Totals{}, fmt.Errorf("line[%d] %s: %w", i, l.Name, ErrInvalidQuantity)
		}
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt32(l.Quantity)))
	}

	tax := subtotal.Mul(e.TaxRate).Round(2)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}, nil
}
