package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfilment state of an order. Transitions are made by
// administrators; placement always starts at StatusPending.
type Status string

const (
	StatusPending        Status = "Pending"
	StatusProcessing     Status = "Processing"
	StatusOutForDelivery Status = "Out for Delivery"
	StatusDelivered      Status = "Delivered"
	StatusCancelled      Status = "Cancelled"
)

// Order is a committed purchase. Money fields are server-computed.
type Order struct {
	ID        int64
	OwnerID   *int64
	AddressID *int64
	Items     []Item

	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal

	CouponID   *int64
	CouponCode string

	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item is a single order line. Price is the unit price captured when the
// order was placed; ProductID is nil once the product has been deleted.
type Item struct {
	ID          int64
	ProductID   *int64
	ProductName string
	Price       decimal.Decimal
	Quantity    int
}

// Cost returns Price multiplied by Quantity.
func (i Item) Cost() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// LineRequest is one untrusted cart entry submitted by a client.
type LineRequest struct {
	ProductID int64
	Quantity  int
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create inserts the order header and its items, filling in generated
	// ids and timestamps.
	Create(ctx context.Context, o *Order) error
	ListByOwner(ctx context.Context, ownerID int64) ([]Order, error)
}

// Transactor runs fn in a single database transaction. Repositories called
// with the ctx passed to fn take part in that transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Publisher announces committed orders to downstream consumers.
type Publisher interface {
	OrderPlaced(ctx context.Context, o *Order) error
}
