package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/freshcart/internal/domain/address"
)

const (
	addressColumns = `id, user_id, full_name, phone_number, street_address, city, state, pincode,
		is_default, created_at`

	listAddressesSQL = `SELECT ` + addressColumns + ` FROM addresses
		WHERE user_id = $1 ORDER BY is_default DESC, created_at DESC, id DESC`

	getAddressSQL = `SELECT ` + addressColumns + ` FROM addresses WHERE id = $1`

	clearDefaultAddressSQL = `UPDATE addresses SET is_default = FALSE WHERE user_id = $1 AND is_default`

	insertAddressSQL = `INSERT INTO addresses
		(user_id, full_name, phone_number, street_address, city, state, pincode, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`
)

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository backed by PostgreSQL.
type AddressRepository struct {
	pool *pgxpool.Pool
	tx   *TxManager
}

// NewAddressRepository returns an AddressRepository that uses the given pool.
func NewAddressRepository(pool *pgxpool.Pool, tx *TxManager) *AddressRepository {
	return &AddressRepository{pool: pool, tx: tx}
}

// ListByOwner returns the owner's addresses, default first.
func (r *AddressRepository) ListByOwner(ctx context.Context, ownerID int64) ([]address.Address, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listAddressesSQL, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing addresses of %d: %w", ownerID, err)
	}
	return pgx.CollectRows(rows, scanAddress)
}

// GetForOwner returns the address only if it belongs to ownerID.
func (r *AddressRepository) GetForOwner(ctx context.Context, id, ownerID int64) (*address.Address, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getAddressSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting address %d: %w", id, err)
	}

	a, err := pgx.CollectExactlyOneRow(rows, scanAddress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, address.ErrNotFound
		}
		return nil, fmt.Errorf("getting address %d: %w", id, err)
	}
	if a.OwnerID != ownerID {
		return nil, address.ErrForbidden
	}
	return &a, nil
}

// Create inserts a. When a is the new default, the owner's previous default
// is cleared in the same transaction.
func (r *AddressRepository) Create(ctx context.Context, a *address.Address) error {
	return r.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := conn(ctx, r.pool)
		if a.IsDefault {
			if _, err := q.Exec(ctx, clearDefaultAddressSQL, a.OwnerID); err != nil {
				return fmt.Errorf("clearing default address of %d: %w", a.OwnerID, err)
			}
		}

		err := q.QueryRow(ctx, insertAddressSQL,
			a.OwnerID, a.FullName, a.Phone, a.Street, a.City, a.State, a.Pincode, a.IsDefault,
		).Scan(&a.ID, &a.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting address: %w", err)
		}
		return nil
	})
}

func scanAddress(row pgx.CollectableRow) (address.Address, error) {
	var a address.Address
	err := row.Scan(
		&a.ID, &a.OwnerID, &a.FullName, &a.Phone, &a.Street, &a.City, &a.State, &a.Pincode,
		&a.IsDefault, &a.CreatedAt,
	)
	return a, err
}
