package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported discount strategies. The string values match
// the persisted discount_type column.
type Kind string

const (
	// KindFixed subtracts a fixed amount from the order.
	KindFixed Kind = "Fixed"
	// KindPercentage subtracts a percentage of the subtotal.
	KindPercentage Kind = "Percentage"
)

var hundred = decimal.NewFromInt(100)

// Discount computes the amount a coupon takes off a subtotal.
type Discount interface {
	Kind() Kind
	Value() decimal.Decimal
	Apply(subtotal decimal.Decimal) decimal.Decimal
}

// Fixed is a flat discount. It is not capped at the subtotal; the order
// total is floored at zero instead.
type Fixed struct {
	Amount decimal.Decimal
}

func (Fixed) Kind() Kind               { return KindFixed }
func (f Fixed) Value() decimal.Decimal { return f.Amount }

func (f Fixed) Apply(decimal.Decimal) decimal.Decimal {
	return f.Amount.Round(2)
}

// Percentage takes Rate percent of the subtotal.
type Percentage struct {
	Rate decimal.Decimal
}

func (Percentage) Kind() Kind               { return KindPercentage }
func (p Percentage) Value() decimal.Decimal { return p.Rate }

func (p Percentage) Apply(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(p.Rate).Div(hundred).Round(2)
}

// NewDiscount builds the Discount variant for a persisted kind and value.
func NewDiscount(kind Kind, value decimal.Decimal) (Discount, error) {
	if value.IsNegative() {
		return nil, errors.Errorf("negative discount value %s", value)
	}
	switch kind {
	case KindFixed:
		return Fixed{Amount: value}, nil
	case KindPercentage:
		return Percentage{Rate: value}, nil
	default:
		return nil, errors.Errorf("unsupported discount type: %q", kind)
	}
}
