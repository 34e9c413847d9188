// Command coupon-import loads partner coupon definitions from gzipped CSV
// files. A code that appears in more than one file is a conflict between
// partners and is skipped.
//
// Each row is:
//
//	code,type,value,min_order,valid_from,valid_to,max_uses,affiliate_name
//
// type is Fixed or Percentage, times are RFC 3339, max_uses and
// affiliate_name may be empty. A leading header row is ignored.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/freshcart/internal/domain/coupon"
	"github.com/xenking/freshcart/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		siteURL     string
		dryRun      bool
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&siteURL, "site-url", "http://localhost:8080", "storefront URL used to print referral links")
	flag.BoolVar(&dryRun, "dry-run", false, "scan files and report conflicts without writing")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] partner1.csv.gz [partner2.csv.gz ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "create logger:", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	files := flag.Args()
	if len(files) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, files, databaseURL, siteURL, dryRun); err != nil {
		lg.Fatal("Coupon import failed", zap.Error(err))
	}
	lg.Info("Coupon import completed")
}

func run(ctx context.Context, lg *zap.Logger, files []string, databaseURL, siteURL string, dryRun bool) error {
	res, err := scan(ctx, lg, files)
	if err != nil {
		return err
	}

	conflicts := make([]string, 0, len(res.conflicts))
	for code := range res.conflicts {
		conflicts = append(conflicts, code)
	}
	sort.Strings(conflicts)
	for _, code := range conflicts {
		lg.Warn("Skipping coupon listed by several partners", zap.String("code", code))
	}
	lg.Info("Scan complete",
		zap.Int("coupons", len(res.coupons)),
		zap.Int("conflicts", len(conflicts)),
	)
	if dryRun || len(res.coupons) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return write(ctx, lg, postgres.NewCouponRepository(pool), res.coupons, siteURL)
}

type upserter interface {
	Upsert(ctx context.Context, c *coupon.Coupon) error
}

func write(ctx context.Context, lg *zap.Logger, repo upserter, coupons []*coupon.Coupon, siteURL string) error {
	for i, c := range coupons {
		if err := repo.Upsert(ctx, c); err != nil {
			return err
		}
		if u := c.PromoURL(siteURL); u != "" {
			lg.Info("Affiliate coupon", zap.String("code", c.Code), zap.String("affiliate", c.AffiliateName), zap.String("promo_url", u))
		}
		if n := i + 1; n%1000 == 0 || n == len(coupons) {
			lg.Info("Write progress", zap.Int("written", n), zap.Int("total", len(coupons)))
		}
	}
	return nil
}
