package order

import (
	"context"
	"fmt"
	"math"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/freshcart/internal/domain/address"
	"github.com/xenking/freshcart/internal/domain/coupon"
)

// ErrEmptyItems is returned for an order without lines.
var ErrEmptyItems = errors.New("items required")

// MaxQuantity is the largest quantity a single order line may carry; it is
// the range of the order_items.quantity column.
const MaxQuantity = math.MaxInt32

// InvalidQuantityError indicates a line item quantity is not in
// [1, MaxQuantity].
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be between 1 and %d for product %d", MaxQuantity, e.ProductID)
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	OwnerID    int64
	AddressID  int64
	Lines      []LineRequest
	CouponCode string
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order *Order
	Quote *Quote
}

// Service encapsulates order placement business logic.
type Service struct {
	tx        Transactor
	addresses address.Repository
	pricer    *Pricer
	orders    Repository
	coupons   coupon.Repository
	publisher Publisher

	tracer   trace.Tracer
	placed   metric.Int64Counter
	redeemed metric.Int64Counter
	revenue  metric.Float64Counter
}

// Deps groups the collaborators of Service.
type Deps struct {
	Tx        Transactor
	Addresses address.Repository
	Pricer    *Pricer
	Orders    Repository
	Coupons   coupon.Repository
	Publisher Publisher

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// NewService creates an order Service.
func NewService(d Deps) (*Service, error) {
	meter := d.MeterProvider.Meter("freshcart/order")
	placed, err := meter.Int64Counter("freshcart.orders.placed",
		metric.WithDescription("Orders committed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders counter")
	}
	redeemed, err := meter.Int64Counter("freshcart.coupons.redeemed",
		metric.WithDescription("Coupon redemptions committed with an order"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "redemptions counter")
	}
	revenue, err := meter.Float64Counter("freshcart.orders.revenue",
		metric.WithDescription("Sum of committed order totals"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "revenue counter")
	}

	return &Service{
		tx:        d.Tx,
		addresses: d.Addresses,
		pricer:    d.Pricer,
		orders:    d.Orders,
		coupons:   d.Coupons,
		publisher: d.Publisher,
		tracer:    d.TracerProvider.Tracer("freshcart/order"),
		placed:    placed,
		redeemed:  redeemed,
		revenue:   revenue,
	}, nil
}

// PlaceOrder checks the shipping address, reprices the cart, and commits the
// order, its items and the coupon usage counters in one transaction.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *PlaceOrderResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(attribute.Int("order.lines", len(req.Lines))),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if len(req.Lines) == 0 {
		return nil, ErrEmptyItems
	}
	for _, l := range req.Lines {
		if l.Quantity <= 0 || l.Quantity > MaxQuantity {
			return nil, &InvalidQuantityError{ProductID: l.ProductID}
		}
	}

	var (
		o     *Order
		quote *Quote
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		addr, err := s.addresses.GetForOwner(ctx, req.AddressID, req.OwnerID)
		if err != nil {
			return err
		}

		quote, err = s.pricer.Quote(ctx, req.Lines, req.CouponCode)
		if err != nil {
			return err
		}

		o = newOrder(req.OwnerID, addr.ID, quote)
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}

		if c := quote.Coupon; c != nil {
			if err := s.coupons.RecordRedemption(ctx, c.ID, c.AttributedRevenue(quote.Total)); err != nil {
				return errors.Wrap(err, "record coupon redemption")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.placed.Add(ctx, 1)
	s.revenue.Add(ctx, o.Total.InexactFloat64())
	if o.CouponID != nil {
		s.redeemed.Add(ctx, 1, metric.WithAttributes(attribute.String("coupon.code", o.CouponCode)))
	}
	span.SetAttributes(attribute.Int64("order.id", o.ID))

	lg := zctx.From(ctx)
	lg.Info("Order placed",
		zap.Int64("order_id", o.ID),
		zap.Int64("owner_id", req.OwnerID),
		zap.Stringer("total", o.Total),
		zap.String("coupon", o.CouponCode),
	)
	if err := s.publisher.OrderPlaced(ctx, o); err != nil {
		lg.Warn("Publish order event", zap.Int64("order_id", o.ID), zap.Error(err))
	}

	return &PlaceOrderResult{Order: o, Quote: quote}, nil
}

// ListOrders returns the owner's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, ownerID int64) ([]Order, error) {
	list, err := s.orders.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return list, nil
}

func newOrder(ownerID, addressID int64, q *Quote) *Order {
	o := &Order{
		OwnerID:     &ownerID,
		AddressID:   &addressID,
		Items:       make([]Item, 0, len(q.Lines)),
		Subtotal:    q.Subtotal,
		DeliveryFee: q.DeliveryFee,
		Discount:    q.Discount,
		Total:       q.Total,
		Status:      StatusPending,
	}
	for _, l := range q.Lines {
		id := l.Product.ID
		o.Items = append(o.Items, Item{
			ProductID:   &id,
			ProductName: l.Product.Name,
			Price:       l.Product.Price,
			Quantity:    l.Quantity,
		})
	}
	if q.Coupon != nil {
		id := q.Coupon.ID
		o.CouponID = &id
		o.CouponCode = q.Coupon.Code
	}
	return o
}
