package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/freshcart/internal/domain/coupon"
)

const (
	couponColumns = `id, code, discount_type, discount_value, min_order_amount, is_active,
		valid_from, valid_to, max_uses, total_uses, is_affiliate, COALESCE(affiliate_name, ''),
		total_revenue_generated`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE UPPER(code) = UPPER($1)`

	lockCouponByCodeSQL = getCouponByCodeSQL + ` FOR UPDATE`

	recordRedemptionSQL = `UPDATE coupons
		SET total_uses = total_uses + 1,
			total_revenue_generated = total_revenue_generated + $2
		WHERE id = $1`

	upsertCouponSQL = `INSERT INTO coupons (code, discount_type, discount_value, min_order_amount, is_active,
			valid_from, valid_to, max_uses, is_affiliate, affiliate_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))
		ON CONFLICT ((UPPER(code))) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			min_order_amount = EXCLUDED.min_order_amount,
			is_active = EXCLUDED.is_active,
			valid_from = EXCLUDED.valid_from,
			valid_to = EXCLUDED.valid_to,
			max_uses = EXCLUDED.max_uses,
			is_affiliate = EXCLUDED.is_affiliate,
			affiliate_name = EXCLUDED.affiliate_name
		RETURNING id, total_uses, total_revenue_generated`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code, case-insensitively. Inactive and
// expired coupons are returned too; eligibility is decided by the caller.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.get(ctx, getCouponByCodeSQL, code)
}

// LockByCode is FindByCode with SELECT ... FOR UPDATE. Outside a transaction
// the lock is released as soon as the statement completes.
func (r *CouponRepository) LockByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.get(ctx, lockCouponByCodeSQL, code)
}

func (r *CouponRepository) get(ctx context.Context, query, code string) (*coupon.Coupon, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// RecordRedemption increments the usage counter and adds revenue to the
// attributed revenue total.
func (r *CouponRepository) RecordRedemption(ctx context.Context, id int64, revenue decimal.Decimal) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, recordRedemptionSQL, id, revenue)
	if err != nil {
		return fmt.Errorf("recording redemption of coupon %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Upsert creates c or updates the definition of the coupon with the same
// code. Usage counters are never overwritten.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	var maxUses *int32
	if c.MaxUses != nil {
		v := int32(*c.MaxUses)
		maxUses = &v
	}

	var uses int32
	err := conn(ctx, r.pool).QueryRow(ctx, upsertCouponSQL,
		c.Code, string(c.Discount.Kind()), c.Discount.Value(), c.MinOrder, c.Active,
		c.ValidFrom, c.ValidTo, maxUses, c.Affiliate, c.AffiliateName,
	).Scan(&c.ID, &uses, &c.TotalRevenue)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	c.TotalUses = int(uses)
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c         coupon.Coupon
		kind      string
		value     decimal.Decimal
		validFrom time.Time
		validTo   time.Time
		maxUses   *int32
		uses      int32
	)
	err := row.Scan(
		&c.ID, &c.Code, &kind, &value, &c.MinOrder, &c.Active,
		&validFrom, &validTo, &maxUses, &uses, &c.Affiliate, &c.AffiliateName,
		&c.TotalRevenue,
	)
	if err != nil {
		return c, err
	}

	c.Discount, err = coupon.NewDiscount(coupon.Kind(kind), value)
	if err != nil {
		return c, fmt.Errorf("coupon %q: %w", c.Code, err)
	}
	c.ValidFrom = validFrom
	c.ValidTo = validTo
	if maxUses != nil {
		v := int(*maxUses)
		c.MaxUses = &v
	}
	c.TotalUses = int(uses)
	return c, nil
}
