package order

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/freshcart/internal/domain/address"
	"github.com/xenking/freshcart/internal/domain/coupon"
	"github.com/xenking/freshcart/internal/domain/product"
)

// --- Fakes ---

// store is a tiny in-memory database shared by the fake repositories. The
// fake transactor snapshots it and restores the snapshot when fn fails.
type store struct {
	products  map[int64]product.Product
	coupons   map[string]*coupon.Coupon
	addresses map[int64]address.Address
	orders    []Order

	createErr error
}

func newStore() *store {
	return &store{
		products:  map[int64]product.Product{},
		coupons:   map[string]*coupon.Coupon{},
		addresses: map[int64]address.Address{},
	}
}

func (s *store) snapshot() func() {
	coupons := make(map[string]coupon.Coupon, len(s.coupons))
	for k, c := range s.coupons {
		coupons[k] = *c
	}
	orders := append([]Order(nil), s.orders...)
	return func() {
		for k, c := range coupons {
			*s.coupons[k] = c
		}
		s.orders = orders
	}
}

type fakeTx struct{ s *store }

func (f fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	restore := f.s.snapshot()
	if err := fn(ctx); err != nil {
		restore()
		return err
	}
	return nil
}

type fakeProducts struct{ s *store }

func (f fakeProducts) List(context.Context) ([]product.Product, error) { return nil, nil }

func (f fakeProducts) GetByID(_ context.Context, id int64) (*product.Product, error) {
	p, ok := f.s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (f fakeProducts) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := f.s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeCoupons struct{ s *store }

func (f fakeCoupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := f.s.coupons[strings.ToUpper(code)]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f fakeCoupons) LockByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return f.FindByCode(ctx, code)
}

func (f fakeCoupons) RecordRedemption(_ context.Context, id int64, revenue decimal.Decimal) error {
	for _, c := range f.s.coupons {
		if c.ID == id {
			c.TotalUses++
			c.TotalRevenue = c.TotalRevenue.Add(revenue)
			return nil
		}
	}
	return coupon.ErrNotFound
}

type fakeAddresses struct{ s *store }

func (f fakeAddresses) ListByOwner(context.Context, int64) ([]address.Address, error) {
	return nil, nil
}

func (f fakeAddresses) GetForOwner(_ context.Context, id, ownerID int64) (*address.Address, error) {
	a, ok := f.s.addresses[id]
	if !ok {
		return nil, address.ErrNotFound
	}
	if a.OwnerID != ownerID {
		return nil, address.ErrForbidden
	}
	return &a, nil
}

func (f fakeAddresses) Create(context.Context, *address.Address) error { return nil }

type fakeOrders struct{ s *store }

func (f fakeOrders) Create(_ context.Context, o *Order) error {
	if f.s.createErr != nil {
		return f.s.createErr
	}
	o.ID = int64(len(f.s.orders) + 1)
	f.s.orders = append(f.s.orders, *o)
	return nil
}

func (f fakeOrders) ListByOwner(_ context.Context, ownerID int64) ([]Order, error) {
	var out []Order
	for i := len(f.s.orders) - 1; i >= 0; i-- {
		if o := f.s.orders[i]; o.OwnerID != nil && *o.OwnerID == ownerID {
			out = append(out, o)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	published []int64
	err       error
}

func (p *recordingPublisher) OrderPlaced(_ context.Context, o *Order) error {
	p.published = append(p.published, o.ID)
	return p.err
}

// --- Helpers ---

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

const (
	ownerID   = int64(42)
	addressID = int64(7)
)

func seededStore() *store {
	s := newStore()
	s.products[1] = product.Product{ID: 1, Name: "Basmati Rice 5kg", Price: decimal.RequireFromString("450.00")}
	s.products[2] = product.Product{ID: 2, Name: "Toned Milk 1L", Price: decimal.RequireFromString("50.00")}
	s.products[3] = product.Product{ID: 3, Name: "Brown Bread", Price: decimal.RequireFromString("75.00")}
	s.addresses[addressID] = address.Address{ID: addressID, OwnerID: ownerID, City: "Pune"}
	s.addresses[99] = address.Address{ID: 99, OwnerID: 1000, City: "Delhi"}
	return s
}

func addCoupon(s *store, c coupon.Coupon) *coupon.Coupon {
	if c.ValidFrom.IsZero() {
		c.ValidFrom = testNow.Add(-24 * time.Hour)
	}
	if c.ValidTo.IsZero() {
		c.ValidTo = testNow.Add(24 * time.Hour)
	}
	c.Active = true
	c.ID = int64(len(s.coupons) + 1)
	s.coupons[strings.ToUpper(c.Code)] = &c
	return &c
}

func newTestService(t *testing.T, s *store) (*Service, *recordingPublisher) {
	t.Helper()

	pricer := NewPricer(fakeProducts{s}, fakeCoupons{s}, DefaultPolicy())
	pricer.now = func() time.Time { return testNow }

	pub := &recordingPublisher{}
	svc, err := NewService(Deps{
		Tx:             fakeTx{s},
		Addresses:      fakeAddresses{s},
		Pricer:         pricer,
		Orders:         fakeOrders{s},
		Coupons:        fakeCoupons{s},
		Publisher:      pub,
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
	})
	require.NoError(t, err)
	return svc, pub
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "%s: want %s, got %s", field, want, got)
}

// --- Tests ---

func TestPlaceOrder_EmptyItems(t *testing.T) {
	svc, _ := newTestService(t, seededStore())

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{OwnerID: ownerID, AddressID: addressID})
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestPlaceOrder_InvalidQuantity(t *testing.T) {
	svc, _ := newTestService(t, seededStore())

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		OwnerID:   ownerID,
		AddressID: addressID,
		Lines:     []LineRequest{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 0}},
	})

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, int64(2), iqErr.ProductID)
}

func TestPlaceOrder_QuantityBeyondColumnRange(t *testing.T) {
	st := seededStore()
	svc, _ := newTestService(t, st)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		OwnerID:   ownerID,
		AddressID: addressID,
		Lines:     []LineRequest{{ProductID: 1, Quantity: MaxQuantity + 1}},
	})

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, int64(1), iqErr.ProductID)
	assert.Empty(t, st.orders)

	_, err = svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		OwnerID:   ownerID,
		AddressID: addressID,
		Lines:     []LineRequest{{ProductID: 1, Quantity: MaxQuantity}},
	})
	require.NoError(t, err)
}

func TestPlaceOrder_Address(t *testing.T) {
	tests := []struct {
		name      string
		addressID int64
		wantErr   error
	}{
		{name: "unknown address", addressID: 12345, wantErr: address.ErrNotFound},
		{name: "someone else's address", addressID: 99, wantErr: address.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := seededStore()
			svc, _ := newTestService(t, s)

			_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
				OwnerID:   ownerID,
				AddressID: tt.addressID,
				Lines:     []LineRequest{{ProductID: 1, Quantity: 1}},
			})
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, s.orders)
		})
	}
}

func TestPlaceOrder_ProductNotFound(t *testing.T) {
	s := seededStore()
	addCoupon(s, coupon.Coupon{Code: "SAVE10", Discount: coupon.Percentage{Rate: decimal.NewFromInt(10)}})
	svc, pub := newTestService(t, s)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		OwnerID:    ownerID,
		AddressID:  addressID,
		Lines:      []LineRequest{{ProductID: 1, Quantity: 1}, {ProductID: 404, Quantity: 1}},
		CouponCode: "SAVE10",
	})

	var pnfErr *ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, int64(404), pnfErr.ProductID)
	assert.Empty(t, s.orders)
	assert.Equal(t, 0, s.coupons["SAVE10"].TotalUses)
	assert.Empty(t, pub.published)
}

func TestPlaceOrder_PercentageCoupon(t *testing.T) {
	s := seededStore()
	addCoupon(s, coupon.Coupon{Code: "SAVE10", Discount: coupon.Percentage{Rate: decimal.NewFromInt(10)}})
	svc, pub := newTestService(t, s)

	// 2 x 450 + 2 x 50 = 1000
	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		OwnerID:    ownerID,
		AddressID:  addressID,
		Lines:      []LineRequest{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 2}},
		CouponCode: "save10",
	})
	require.NoError(t, err)

	o := result.Order
	assertDecimal(t, "1000", o.Subtotal, "subtotal")
	assertDecimal(t, "0", o.DeliveryFee, "delivery")
	assertDecimal(t, "100", o.Discount, "discount")
	assertDecimal(t, "900", o.Total, "total")
	assert.Equal(t, "SAVE10", o.CouponCode)
	assert.Equal(t, StatusPending, o.Status)
	require.NotNil(t, o.OwnerID)
	assert.Equal(t, ownerID, *o.OwnerID)

	c := s.coupons["SAVE10"]
	assert.Equal(t, 1, c.TotalUses)
	assertDecimal(t, "0", c.TotalRevenue, "revenue")
	assert.Equal(t, []int64{o.ID}, pub.published)
}

func TestPlaceOrder_BelowMinimumIgnoresCoupon(t *testing.T) {
	s := seededStore()
	addCoupon(s, coupon.Coupon{
		Code:     "FLAT50",
		Discount: coupon.Fixed{Amount: decimal.NewFromInt(50)},
		MinOrder: decimal.NewFromInt(200),
	})
	svc, _ := newTestService(t, s)

	// 3 x 50 = 150
	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		OwnerID:    ownerID,
		AddressID:  addressID,
		Lines:      []LineRequest{{ProductID: 2, Quantity: 3}},
		CouponCode: "FLAT50",
	})
	require.NoError(t, err)

	o := result.Order
	assertDecimal(t, "150", o.Subtotal, "subtotal")
	assertDecimal(t, "40", o.DeliveryFee, "delivery")
	assertDecimal(t, "0", o.Discount, "discount")
	assertDecimal(t, "190", o.Total, "total")
	assert.Nil(t, o.CouponID)
	assert.Equal(t, 0, s.coupons["FLAT50"].TotalUses)
}

func TestPlaceOrder_ExhaustedCouponIgnored(t *testing.T) {
	s := seededStore()
	maxUses := 1
	addCoupon(s, coupon.Coupon{
		Code:      "ONCE",
		Discount:  coupon.Fixed{Amount: decimal.NewFromInt(25)},
		MaxUses:   &maxUses,
		TotalUses: 1,
	})
	svc, _ := newTestService(t, s)

	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		OwnerID:    ownerID,
		AddressID:  addressID,
		Lines:      []LineRequest{{ProductID: 3, Quantity: 1}},
		CouponCode: "ONCE",
	})
	require.NoError(t, err)

	assertDecimal(t, "0", result.Order.Discount, "discount")
	assertDecimal(t, "115", result.Order.Total, "total")
	assert.Equal(t, 1, s.coupons["ONCE"].TotalUses)
}

func TestPlaceOrder_UnknownCouponIgnored(t *testing.T) {
	s := seededStore()
	svc, _ := newTestService(t, s)

	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		OwnerID:    ownerID,
		AddressID:  addressID,
		Lines:      []LineRequest{{ProductID: 1, Quantity: 1}},
		CouponCode: "NOPE",
	})
	require.NoError(t, err)
	assert.Nil(t, result.Quote.Coupon)
	assertDecimal(t, "490", result.Order.Total, "total")
}

func TestPlaceOrder_AffiliateRevenue(t *testing.T) {
	s := seededStore()
	addCoupon(s, coupon.Coupon{
		Code:          "RAHUL20",
		Discount:      coupon.Percentage{Rate: decimal.NewFromInt(20)},
		Affiliate:     true,
		AffiliateName: "Rahul",
		TotalRevenue:  dec("100.00"),
	})
	svc, _ := newTestService(t, s)

	// 450 + 75 = 525, 20% = 105, free delivery, total 420
	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		OwnerID:    ownerID,
		AddressID:  addressID,
		Lines:      []LineRequest{{ProductID: 1, Quantity: 1}, {ProductID: 3, Quantity: 1}},
		CouponCode: "RAHUL20",
	})
	require.NoError(t, err)
	assertDecimal(t, "420", result.Order.Total, "total")

	c := s.coupons["RAHUL20"]
	assert.Equal(t, 1, c.TotalUses)
	assertDecimal(t, "520", c.TotalRevenue, "revenue")
}

func TestPlaceOrder_CapturesCatalogPrice(t *testing.T) {
	s := seededStore()
	svc, _ := newTestService(t, s)

	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		OwnerID:   ownerID,
		AddressID: addressID,
		Lines:     []LineRequest{{ProductID: 2, Quantity: 4}},
	})
	require.NoError(t, err)

	s.products[2] = product.Product{ID: 2, Name: "Toned Milk 1L", Price: dec("99.00")}

	require.Len(t, result.Order.Items, 1)
	item := result.Order.Items[0]
	assertDecimal(t, "50", item.Price, "item price")
	assertDecimal(t, "200", item.Cost(), "item cost")
	assert.Equal(t, "Toned Milk 1L", item.ProductName)
}

func TestPlaceOrder_CreateErrorRollsBackCoupon(t *testing.T) {
	s := seededStore()
	addCoupon(s, coupon.Coupon{Code: "SAVE10", Discount: coupon.Percentage{Rate: decimal.NewFromInt(10)}})
	s.createErr = errors.New("db write failed")
	svc, pub := newTestService(t, s)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		OwnerID:    ownerID,
		AddressID:  addressID,
		Lines:      []LineRequest{{ProductID: 1, Quantity: 2}},
		CouponCode: "SAVE10",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	assert.Equal(t, 0, s.coupons["SAVE10"].TotalUses)
	assert.Empty(t, pub.published)
}

func TestPlaceOrder_PublishErrorDoesNotFail(t *testing.T) {
	s := seededStore()
	svc, pub := newTestService(t, s)
	pub.err = errors.New("broker down")

	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		OwnerID:   ownerID,
		AddressID: addressID,
		Lines:     []LineRequest{{ProductID: 1, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.NotZero(t, result.Order.ID)
	assert.Len(t, s.orders, 1)
}

func TestListOrders(t *testing.T) {
	s := seededStore()
	svc, _ := newTestService(t, s)
	ctx := context.Background()

	for range 2 {
		_, err := svc.PlaceOrder(ctx, PlaceOrderRequest{
			OwnerID:   ownerID,
			AddressID: addressID,
			Lines:     []LineRequest{{ProductID: 3, Quantity: 1}},
		})
		require.NoError(t, err)
	}

	list, err := svc.ListOrders(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Greater(t, list[0].ID, list[1].ID)

	other, err := svc.ListOrders(ctx, 1000)
	require.NoError(t, err)
	assert.Empty(t, other)
}
