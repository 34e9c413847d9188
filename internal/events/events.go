// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/freshcart/internal/domain/order"
)

var _ order.Publisher = (*Publisher)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes order-placed events to a Kafka topic.
type Publisher struct {
	w messageWriter
}

// NewPublisher creates a Publisher writing to topic on brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}}
}

// OrderPlaced publishes o keyed by its id.
func (p *Publisher) OrderPlaced(ctx context.Context, o *order.Order) error {
	msg := kafka.Message{
		Key:   []byte("order-placed-" + strconv.FormatInt(o.ID, 10)),
		Value: EncodeOrderPlaced(o),
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "write order event")
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}

// EncodeOrderPlaced renders the event payload. Money values are encoded as
// strings with two decimals.
func EncodeOrderPlaced(o *order.Order) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("type")
	e.Str("order.placed")
	e.FieldStart("order_id")
	e.Int64(o.ID)
	if o.OwnerID != nil {
		e.FieldStart("owner_id")
		e.Int64(*o.OwnerID)
	}
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("subtotal")
	e.Str(o.Subtotal.StringFixed(2))
	e.FieldStart("delivery_fee")
	e.Str(o.DeliveryFee.StringFixed(2))
	e.FieldStart("discount")
	e.Str(o.Discount.StringFixed(2))
	e.FieldStart("total")
	e.Str(o.Total.StringFixed(2))
	if o.CouponCode != "" {
		e.FieldStart("coupon_code")
		e.Str(o.CouponCode)
	}
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		if it.ProductID != nil {
			e.FieldStart("product_id")
			e.Int64(*it.ProductID)
		}
		e.FieldStart("price")
		e.Str(it.Price.StringFixed(2))
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("created_at")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()

	return append([]byte(nil), e.Bytes()...)
}

// Nop discards events.
type Nop struct{}

func (Nop) OrderPlaced(context.Context, *order.Order) error { return nil }
