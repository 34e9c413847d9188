package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/freshcart/internal/domain/coupon"
	"github.com/xenking/freshcart/internal/domain/product"
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// Policy holds the delivery fee rules.
type Policy struct {
	// FreeDeliveryThreshold is the subtotal at or above which delivery is free.
	FreeDeliveryThreshold decimal.Decimal
	DeliveryFee           decimal.Decimal
}

// DefaultPolicy charges 40 below a subtotal of 500.
func DefaultPolicy() Policy {
	return Policy{
		FreeDeliveryThreshold: decimal.NewFromInt(500),
		DeliveryFee:           decimal.NewFromInt(40),
	}
}

// Fee returns the delivery fee for subtotal.
func (p Policy) Fee(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(p.FreeDeliveryThreshold) {
		return decimal.Zero
	}
	return p.DeliveryFee
}

// Line is a cart entry priced from the catalog.
type Line struct {
	Product  product.Product
	Quantity int
}

// Cost returns the line's catalog price multiplied by its quantity.
func (l Line) Cost() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Quote is the authoritative price of a cart.
type Quote struct {
	Lines       []Line
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
	// Coupon is nil when no code was given or the code did not qualify.
	Coupon *coupon.Coupon
}

// Pricer computes quotes from catalog prices. Client supplied money values
// never reach it; only product ids, quantities and a coupon code do.
type Pricer struct {
	products product.Repository
	coupons  coupon.Repository
	policy   Policy
	now      func() time.Time
}

// NewPricer creates a Pricer.
func NewPricer(products product.Repository, coupons coupon.Repository, policy Policy) *Pricer {
	return &Pricer{
		products: products,
		coupons:  coupons,
		policy:   policy,
		now:      time.Now,
	}
}

// Quote prices lines and applies couponCode when it qualifies. An unknown,
// invalid or below-minimum coupon yields a zero discount rather than an
// error. Coupon rows are read with LockByCode so that, inside a
// transaction, the eligibility check and the later redemption see the same
// usage count.
func (p *Pricer) Quote(ctx context.Context, lines []LineRequest, couponCode string) (*Quote, error) {
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}

	fetched, err := p.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[int64]product.Product, len(fetched))
	for _, pr := range fetched {
		byID[pr.ID] = pr
	}

	q := &Quote{Lines: make([]Line, 0, len(lines))}
	subtotal := decimal.Zero
	for _, l := range lines {
		pr, ok := byID[l.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: l.ProductID}
		}
		line := Line{Product: pr, Quantity: l.Quantity}
		q.Lines = append(q.Lines, line)
		subtotal = subtotal.Add(line.Cost())
	}

	q.Subtotal = subtotal.Round(2)
	q.DeliveryFee = p.policy.Fee(q.Subtotal)
	q.Discount = decimal.Zero

	c, err := p.resolveCoupon(ctx, couponCode, q.Subtotal)
	if err != nil {
		return nil, err
	}
	if c != nil {
		q.Coupon = c
		q.Discount = c.Discount.Apply(q.Subtotal)
	}

	total := q.Subtotal.Add(q.DeliveryFee).Sub(q.Discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	q.Total = total.Round(2)
	return q, nil
}

func (p *Pricer) resolveCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (*coupon.Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}

	c, err := p.coupons.LockByCode(ctx, code)
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if !c.IsValid(p.now()) || !c.Qualifies(subtotal) {
		return nil, nil
	}
	return c, nil
}
