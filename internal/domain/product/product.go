package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase. Price is the
// single source of truth for line-item cost at checkout.
type Product struct {
	ID           int64
	Name         string
	Description  string
	Price        decimal.Decimal
	Unit         string
	Image        string
	Rating       decimal.Decimal
	ReviewsCount int
	Badge        string
	CreatedAt    time.Time
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
}
