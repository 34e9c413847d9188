// Command seed-db migrates the database and loads the sample catalog and
// coupons.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/freshcart/internal/domain/auth"
	"github.com/xenking/freshcart/internal/domain/coupon"
	"github.com/xenking/freshcart/internal/domain/product"
	"github.com/xenking/freshcart/internal/storage/postgres"
)

type productJSON struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Unit         string          `json:"unit"`
	Image        string          `json:"image"`
	Rating       decimal.Decimal `json:"rating"`
	ReviewsCount int             `json:"reviews_count"`
	Badge        string          `json:"badge"`
}

type options struct {
	databaseURL  string
	productsFile string
	siteURL      string
	jwtSecret    string
	devOwner     int64
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&opts.siteURL, "site-url", "http://localhost:8080", "storefront URL used to print referral links")
	flag.StringVar(&opts.jwtSecret, "jwt-secret", "", "when set with -dev-owner, print a bearer token (or FRESH_AUTH_JWT_SECRET env)")
	flag.Int64Var(&opts.devOwner, "dev-owner", 0, "owner id to issue a development token for")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "create logger:", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if opts.jwtSecret == "" {
		opts.jwtSecret = os.Getenv("FRESH_AUTH_JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, lg, postgres.NewProductRepository(pool), opts.productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, lg, postgres.NewCouponRepository(pool), opts.siteURL, time.Now()); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if opts.devOwner > 0 && opts.jwtSecret != "" {
		token, err := auth.NewTokens([]byte(opts.jwtSecret), "").
			Issue(auth.Identity{OwnerID: opts.devOwner, Username: "dev-" + strconv.FormatInt(opts.devOwner, 10)}, 24*time.Hour)
		if err != nil {
			return errors.Wrap(err, "issue dev token")
		}
		lg.Info("Issued development token", zap.Int64("owner_id", opts.devOwner), zap.String("token", token))
	}
	return nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, repo *postgres.ProductRepository, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var items []productJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	lg.Info("Upserting products", zap.Int("count", len(items)), zap.String("path", path))
	for _, it := range items {
		p := &product.Product{
			Name:         it.Name,
			Description:  it.Description,
			Price:        it.Price,
			Unit:         it.Unit,
			Image:        it.Image,
			Rating:       it.Rating,
			ReviewsCount: it.ReviewsCount,
			Badge:        it.Badge,
		}
		if err := repo.Upsert(ctx, p); err != nil {
			return err
		}
		lg.Debug("Upserted product", zap.Int64("id", p.ID), zap.String("name", p.Name))
	}
	return nil
}

// sampleCoupons returns the demo coupons, valid for a year from now.
func sampleCoupons(now time.Time) []*coupon.Coupon {
	from := now.Add(-time.Hour)
	to := now.AddDate(1, 0, 0)
	limit := 100
	return []*coupon.Coupon{
		{
			Code:      "SAVE10",
			Discount:  coupon.Percentage{Rate: decimal.NewFromInt(10)},
			Active:    true,
			ValidFrom: from,
			ValidTo:   to,
		},
		{
			Code:      "FLAT50",
			Discount:  coupon.Fixed{Amount: decimal.NewFromInt(50)},
			MinOrder:  decimal.NewFromInt(200),
			Active:    true,
			ValidFrom: from,
			ValidTo:   to,
		},
		{
			Code:          "RAHUL20",
			Discount:      coupon.Percentage{Rate: decimal.NewFromInt(20)},
			MinOrder:      decimal.NewFromInt(300),
			Active:        true,
			ValidFrom:     from,
			ValidTo:       to,
			MaxUses:       &limit,
			Affiliate:     true,
			AffiliateName: "Rahul",
		},
	}
}

func seedCoupons(ctx context.Context, lg *zap.Logger, repo *postgres.CouponRepository, siteURL string, now time.Time) error {
	for _, c := range sampleCoupons(now) {
		if err := repo.Upsert(ctx, c); err != nil {
			return err
		}
		fields := []zap.Field{
			zap.String("code", c.Code),
			zap.String("type", string(c.Discount.Kind())),
			zap.Stringer("value", c.Discount.Value()),
			zap.Int("total_uses", c.TotalUses),
		}
		if u := c.PromoURL(siteURL); u != "" {
			fields = append(fields, zap.String("promo_url", u))
		}
		lg.Info("Upserted coupon", fields...)
	}
	return nil
}
