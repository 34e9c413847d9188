package main

import (
	"context"
	"encoding/csv"
	"io"
	"math/bits"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/freshcart/internal/domain/coupon"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	maxFiles      = bits.UintSize
	numColumns    = 8
)

type scanResult struct {
	coupons   []*coupon.Coupon
	conflicts map[string]struct{}
}

// fileScan is what one file contributed in the second pass.
type fileScan struct {
	coupons map[string]*coupon.Coupon
	// suspects are codes the other files' filters may contain.
	suspects map[string]struct{}
}

// scan reads every file twice. The first pass builds a bloom filter of each
// file's codes; the second parses the rows and records codes that another
// file's filter may contain. Suspects are then confirmed exactly against the
// parsed codes, so bloom false positives never drop a coupon.
func scan(ctx context.Context, lg *zap.Logger, files []string) (*scanResult, error) {
	if len(files) > maxFiles {
		return nil, errors.Errorf("at most %d files are supported", maxFiles)
	}

	filters := make([]*bloom.BloomFilter, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			f := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			n := 0
			err := streamRows(gctx, path, func(_ int, row []string) error {
				f.AddString(normalizeCode(row[0]))
				n++
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "index %s", path)
			}
			lg.Info("Indexed file", zap.String("path", path), zap.Int("rows", n))
			filters[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	scans := make([]fileScan, len(files))
	g, gctx = errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			s := fileScan{
				coupons:  make(map[string]*coupon.Coupon),
				suspects: make(map[string]struct{}),
			}
			err := streamRows(gctx, path, func(line int, row []string) error {
				c, err := parseRow(row)
				if err != nil {
					return errors.Wrapf(err, "line %d", line)
				}
				key := normalizeCode(c.Code)
				s.coupons[key] = c
				for j, f := range filters {
					if j != i && f.TestString(key) {
						s.suspects[key] = struct{}{}
						break
					}
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "parse %s", path)
			}
			scans[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Confirm suspects: a code is a conflict only if it was parsed in two or
	// more files.
	seen := make(map[string]uint)
	for i, s := range scans {
		for key := range s.suspects {
			seen[key] |= 1 << uint(i)
		}
	}
	res := &scanResult{conflicts: make(map[string]struct{})}
	for key, mask := range seen {
		if bits.OnesCount(mask) >= 2 {
			res.conflicts[key] = struct{}{}
		}
	}

	for _, s := range scans {
		for key, c := range s.coupons {
			if _, skip := res.conflicts[key]; !skip {
				res.coupons = append(res.coupons, c)
			}
		}
	}
	return res, nil
}

// streamRows calls fn for each data row of a gzipped CSV file. line is the
// 1-based line number.
func streamRows(ctx context.Context, path string, fn func(line int, row []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "gzip reader")
	}
	defer func() { _ = gz.Close() }()

	r := csv.NewReader(gz)
	r.FieldsPerRecord = numColumns
	r.TrimLeadingSpace = true
	r.ReuseRecord = true

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "read csv")
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "code") {
			continue
		}
		if strings.TrimSpace(row[0]) == "" {
			return errors.Errorf("line %d: empty code", line)
		}
		if err := fn(line, row); err != nil {
			return err
		}
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func parseRow(row []string) (*coupon.Coupon, error) {
	field := func(i int) string { return strings.TrimSpace(row[i]) }

	value, err := decimal.NewFromString(field(2))
	if err != nil {
		return nil, errors.Wrap(err, "value")
	}
	d, err := coupon.NewDiscount(coupon.Kind(field(1)), value)
	if err != nil {
		return nil, err
	}

	c := &coupon.Coupon{
		Code:     field(0),
		Discount: d,
		MinOrder: decimal.Zero,
		Active:   true,
	}
	if v := field(3); v != "" {
		if c.MinOrder, err = decimal.NewFromString(v); err != nil {
			return nil, errors.Wrap(err, "min_order")
		}
	}
	if c.ValidFrom, err = time.Parse(time.RFC3339, field(4)); err != nil {
		return nil, errors.Wrap(err, "valid_from")
	}
	if c.ValidTo, err = time.Parse(time.RFC3339, field(5)); err != nil {
		return nil, errors.Wrap(err, "valid_to")
	}
	if c.ValidTo.Before(c.ValidFrom) {
		return nil, errors.New("valid_to before valid_from")
	}
	if v := field(6); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, errors.Errorf("max_uses: invalid value %q", v)
		}
		c.MaxUses = &n
	}
	if name := field(7); name != "" {
		c.Affiliate = true
		c.AffiliateName = name
	}
	return c, nil
}
