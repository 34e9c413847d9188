package order

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/freshcart/internal/domain/coupon"
	"github.com/xenking/freshcart/internal/domain/product"
)

func TestPolicy_Fee(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		subtotal string
		want     string
	}{
		{"0", "40"},
		{"499.99", "40"},
		{"500", "0"},
		{"500.00", "0"},
		{"1250.50", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.subtotal, func(t *testing.T) {
			assertDecimal(t, tt.want, p.Fee(dec(tt.subtotal)), "fee")
		})
	}
}

func newTestPricer(s *store) *Pricer {
	p := NewPricer(fakeProducts{s}, fakeCoupons{s}, DefaultPolicy())
	p.now = func() time.Time { return testNow }
	return p
}

func TestPricer_Quote(t *testing.T) {
	tests := []struct {
		name     string
		coupon   *coupon.Coupon
		lines    []LineRequest
		code     string
		subtotal string
		delivery string
		discount string
		total    string
	}{
		{
			name:     "no coupon below threshold",
			lines:    []LineRequest{{ProductID: 2, Quantity: 1}},
			subtotal: "50", delivery: "40", discount: "0", total: "90",
		},
		{
			name:     "exactly at free delivery threshold",
			lines:    []LineRequest{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 1}},
			subtotal: "500", delivery: "0", discount: "0", total: "500",
		},
		{
			name:     "fixed discount larger than order floors total at zero",
			coupon:   &coupon.Coupon{Code: "BIG", Discount: coupon.Fixed{Amount: decimal.NewFromInt(1000)}},
			lines:    []LineRequest{{ProductID: 2, Quantity: 1}},
			code:     "BIG",
			subtotal: "50", delivery: "40", discount: "1000", total: "0",
		},
		{
			name:     "percentage discount rounds to cents",
			coupon:   &coupon.Coupon{Code: "ODD", Discount: coupon.Percentage{Rate: dec("12.5")}},
			lines:    []LineRequest{{ProductID: 4, Quantity: 1}},
			code:     "ODD",
			subtotal: "33.33", delivery: "40", discount: "4.17", total: "69.16",
		},
		{
			name:     "discount is computed before delivery fee",
			coupon:   &coupon.Coupon{Code: "HALF", Discount: coupon.Percentage{Rate: decimal.NewFromInt(50)}},
			lines:    []LineRequest{{ProductID: 3, Quantity: 2}},
			code:     "HALF",
			subtotal: "150", delivery: "40", discount: "75", total: "115",
		},
		{
			name:     "repeated product lines are summed",
			lines:    []LineRequest{{ProductID: 2, Quantity: 2}, {ProductID: 2, Quantity: 3}},
			subtotal: "250", delivery: "40", discount: "0", total: "290",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := seededStore()
			s.products[4] = product.Product{ID: 4, Name: "Saffron 1g", Price: dec("33.33")}
			if tt.coupon != nil {
				addCoupon(s, *tt.coupon)
			}

			q, err := newTestPricer(s).Quote(context.Background(), tt.lines, tt.code)
			require.NoError(t, err)

			assertDecimal(t, tt.subtotal, q.Subtotal, "subtotal")
			assertDecimal(t, tt.delivery, q.DeliveryFee, "delivery")
			assertDecimal(t, tt.discount, q.Discount, "discount")
			assertDecimal(t, tt.total, q.Total, "total")
			assert.Equal(t, tt.coupon != nil, q.Coupon != nil)
		})
	}
}

func TestPricer_CouponOutsideWindow(t *testing.T) {
	s := seededStore()
	addCoupon(s, coupon.Coupon{
		Code:      "LATER",
		Discount:  coupon.Fixed{Amount: decimal.NewFromInt(10)},
		ValidFrom: testNow.Add(time.Hour),
		ValidTo:   testNow.Add(48 * time.Hour),
	})

	q, err := newTestPricer(s).Quote(context.Background(), []LineRequest{{ProductID: 3, Quantity: 1}}, "LATER")
	require.NoError(t, err)
	assert.Nil(t, q.Coupon)
	assertDecimal(t, "0", q.Discount, "discount")
}

func TestPricer_ProductNotFound(t *testing.T) {
	_, err := newTestPricer(seededStore()).Quote(context.Background(),
		[]LineRequest{{ProductID: 77, Quantity: 1}}, "")

	var pnfErr *ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, "product 77 not found", pnfErr.Error())
}
