package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyCode is returned when a blank coupon code is submitted.
	ErrEmptyCode = errors.New("coupon code required")
	// ErrNotFound is returned when no coupon matches the code.
	ErrNotFound = errors.New("coupon not found")
	// ErrIneligible is returned when a coupon is inactive, outside its
	// validity window, or has exhausted its allowed uses.
	ErrIneligible = errors.New("coupon expired or exhausted")
)

// MinimumOrderError indicates the cart subtotal is below the coupon's
// minimum order amount.
type MinimumOrderError struct {
	Code    string
	Minimum decimal.Decimal
}

func (e *MinimumOrderError) Error() string {
	return fmt.Sprintf("coupon %s requires a minimum order of %s", e.Code, e.Minimum.StringFixed(2))
}

// Coupon is an administrator-defined discount rule. TotalUses and
// TotalRevenue only ever grow, and only on confirmed order placement.
type Coupon struct {
	ID            int64
	Code          string
	Discount      Discount
	MinOrder      decimal.Decimal
	Active        bool
	ValidFrom     time.Time
	ValidTo       time.Time
	MaxUses       *int
	TotalUses     int
	Affiliate     bool
	AffiliateName string
	TotalRevenue  decimal.Decimal
}

// IsValid reports whether the coupon may be redeemed at now. It is the single
// eligibility gate for manual entry, affiliate links and order placement.
func (c *Coupon) IsValid(now time.Time) bool {
	if !c.Active {
		return false
	}
	if now.Before(c.ValidFrom) || now.After(c.ValidTo) {
		return false
	}
	return c.MaxUses == nil || c.TotalUses < *c.MaxUses
}

// Qualifies reports whether subtotal meets the coupon's minimum order amount.
func (c *Coupon) Qualifies(subtotal decimal.Decimal) bool {
	return subtotal.GreaterThanOrEqual(c.MinOrder)
}

// AttributedRevenue returns the amount to add to TotalRevenue for an order
// with the given total. Only affiliate coupons accumulate revenue.
func (c *Coupon) AttributedRevenue(orderTotal decimal.Decimal) decimal.Decimal {
	if !c.Affiliate {
		return decimal.Zero
	}
	return orderTotal
}

// PromoURL returns the shareable referral link for an affiliate coupon, or an
// empty string for regular coupons.
func (c *Coupon) PromoURL(siteURL string) string {
	if !c.Affiliate || c.Code == "" {
		return ""
	}
	return strings.TrimRight(siteURL, "/") + "/ref/" + c.Code + "/"
}

// Summary holds the public coupon fields shown to shoppers.
type Summary struct {
	Code     string
	Kind     Kind
	Value    decimal.Decimal
	MinOrder decimal.Decimal
}

// Summary returns the client-facing view of the coupon.
func (c *Coupon) Summary() Summary {
	return Summary{
		Code:     c.Code,
		Kind:     c.Discount.Kind(),
		Value:    c.Discount.Value(),
		MinOrder: c.MinOrder,
	}
}

// Repository provides lookup and usage tracking of coupons. Code lookups are
// case-insensitive exact matches.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// LockByCode is FindByCode that also holds a row lock for the rest of the
	// surrounding transaction.
	LockByCode(ctx context.Context, code string) (*Coupon, error)
	RecordRedemption(ctx context.Context, id int64, revenue decimal.Decimal) error
}
