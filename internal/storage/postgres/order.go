package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/freshcart/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders
		(user_id, shipping_address_id, subtotal, delivery_fee, coupon_id, discount_amount, total_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	listOrdersSQL = `SELECT o.id, o.user_id, o.shipping_address_id, o.subtotal, o.delivery_fee,
			o.coupon_id, COALESCE(c.code, ''), o.discount_amount, o.total_amount, o.status,
			o.created_at, o.updated_at
		FROM orders o
		LEFT JOIN coupons c ON c.id = o.coupon_id
		WHERE o.user_id = $1
		ORDER BY o.created_at DESC, o.id DESC`

	listOrderItemsSQL = `SELECT i.order_id, i.id, i.product_id, COALESCE(p.name, ''), i.price, i.quantity
		FROM order_items i
		LEFT JOIN products p ON p.id = i.product_id
		WHERE i.order_id = ANY($1)
		ORDER BY i.id`
)

var orderItemColumns = []string{"order_id", "product_id", "price", "quantity"}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts the order header and copies its items in with COPY. Call it
// inside a transaction so a failed item insert does not leave a bare header.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	q := conn(ctx, r.pool)
	err := q.QueryRow(ctx, insertOrderSQL,
		o.OwnerID, o.AddressID, o.Subtotal, o.DeliveryFee, o.CouponID, o.Discount, o.Total, string(o.Status),
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating order: %w", err)
	}

	rows := make([][]any, len(o.Items))
	for i, it := range o.Items {
		rows[i] = []any{o.ID, it.ProductID, it.Price, int32(it.Quantity)}
	}

	if _, err := q.CopyFrom(ctx, pgx.Identifier{"order_items"}, orderItemColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("creating order %d items: %w", o.ID, err)
	}
	return nil
}

// ListByOwner returns the owner's orders with their items, newest first.
func (r *OrderRepository) ListByOwner(ctx context.Context, ownerID int64) ([]order.Order, error) {
	q := conn(ctx, r.pool)
	rows, err := q.Query(ctx, listOrdersSQL, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %d: %w", ownerID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %d: %w", ownerID, err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err = q.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID int64
			it      order.Item
			qty     int32
		)
		if err := rows.Scan(&orderID, &it.ID, &it.ProductID, &it.ProductName, &it.Price, &qty); err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		it.Quantity = int(qty)
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	return orders, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.OwnerID, &o.AddressID, &o.Subtotal, &o.DeliveryFee,
		&o.CouponID, &o.CouponCode, &o.Discount, &o.Total, &status,
		&o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	return o, err
}
