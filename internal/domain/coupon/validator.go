package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator looks up coupons and checks them against the validity rule. It
// never changes usage counters; those move only when an order is committed.
type Validator struct {
	repo Repository
	now  func() time.Time
}

// NewValidator creates a Validator backed by the given Repository.
func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo, now: time.Now}
}

// Check validates a manually entered code against a client-declared subtotal.
// The subtotal is untrusted and only used for early rejection; the order
// placement path re-checks the minimum against server-side prices.
func (v *Validator) Check(ctx context.Context, code string, declared decimal.Decimal) (*Coupon, error) {
	c, err := v.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	if !c.Qualifies(declared) {
		return nil, &MinimumOrderError{Code: c.Code, Minimum: c.MinOrder}
	}
	return c, nil
}

// Resolve returns the coupon for code if it exists and is currently valid.
func (v *Validator) Resolve(ctx context.Context, code string) (*Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrEmptyCode
	}

	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if !c.IsValid(v.now()) {
		return nil, ErrIneligible
	}
	return c, nil
}
