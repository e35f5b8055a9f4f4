// Command catalog-import loads products from gzip-compressed JSON Lines files.
//
// SKUs that appear in more than one file are ambiguous and are skipped; the
// run reports them so the feeds can be fixed at the source. Detection takes
// two passes: the first builds one bloom filter of SKUs per file, the second
// re-reads each file and keeps only SKUs that another file's filter claims.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"math/bits"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/repository"
)

const (
	bloomFPR      = 0.001
	progressEvery = 100_000
	maxLineBytes  = 1 << 20
)

// record is one line of an import file.
type record struct {
	SKU         string `json:"sku"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Brand       string `json:"brand"`
	CategoryID  string `json:"categoryId"`
	Price       struct {
		Original decimal.Decimal `json:"original"`
		Currency string          `json:"currency"`
	} `json:"price"`
	Discount struct {
		Type  string          `json:"type"`
		Value decimal.Decimal `json:"value"`
	} `json:"discount"`
	Stock struct {
		Quantity          int   `json:"quantity"`
		LowStockThreshold int   `json:"lowStockThreshold"`
		TrackInventory    *bool `json:"trackInventory"`
	} `json:"stock"`
	Status     string `json:"status"`
	Visibility string `json:"visibility"`
	Featured   bool   `json:"featured"`
	Trending   bool   `json:"trending"`
}

func (r *record) product() *product.Product {
	p := &product.Product{
		SKU:         r.SKU,
		Slug:        r.Slug,
		Title:       r.Title,
		Description: r.Description,
		Brand:       r.Brand,
		CategoryID:  r.CategoryID,
		Price:       product.Price{Original: r.Price.Original, Currency: r.Price.Currency},
		Discount: product.Discount{
			Type:   product.DiscountType(r.Discount.Type),
			Value:  r.Discount.Value,
			Active: r.Discount.Value.IsPositive(),
		},
		Stock: product.Stock{
			Quantity:          r.Stock.Quantity,
			LowStockThreshold: r.Stock.LowStockThreshold,
			TrackInventory:    r.Stock.TrackInventory == nil || *r.Stock.TrackInventory,
		},
		Status:     product.Status(r.Status),
		Visibility: product.Visibility(r.Visibility),
		Featured:   r.Featured,
		Trending:   r.Trending,
	}
	// Derived slugs carry a millisecond suffix that concurrent inserts
	// would share.
	if p.Slug == "" {
		p.Slug = product.Slugify(r.Title) + "-" + strings.ToLower(skuKey(r.SKU))
	}
	return p
}

func skuKey(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

// Creator is implemented by *product.Service.
type Creator interface {
	Create(ctx context.Context, p *product.Product) (*product.Product, error)
}

// Stats summarizes an import run.
type Stats struct {
	Created    int64
	Existing   int64
	Invalid    int64
	Duplicates []string
}

func main() {
	var (
		databaseURL string
		workers     int
		expected    uint
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 8, "concurrent inserts")
	flag.UintVar(&expected, "expected", 1_000_000, "expected SKUs per file, sizes the bloom filters")
	flag.Parse()

	lg, _ := zap.NewProduction()
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" || flag.NArg() == 0 {
		lg.Fatal("Usage: catalog-import --database-url URL FILE.jsonl.gz...")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, flag.Args(), workers, expected); err != nil {
		lg.Fatal("Catalog import failed", zap.Error(err))
	}
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string, files []string, workers int, expected uint) error {
	if err := repository.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	svc := product.NewService(repository.NewProductRepository(pool, false))
	stats, err := Import(ctx, lg, svc, files, workers, expected)
	if err != nil {
		return err
	}
	lg.Info("Catalog import complete",
		zap.Int64("created", stats.Created),
		zap.Int64("existing", stats.Existing),
		zap.Int64("invalid", stats.Invalid),
		zap.Int("duplicate_skus", len(stats.Duplicates)),
	)
	return nil
}

// Import loads files into svc, skipping SKUs listed in more than one file.
func Import(ctx context.Context, lg *zap.Logger, svc Creator, files []string, workers int, expected uint) (*Stats, error) {
	if len(files) > bits.UintSize {
		return nil, errors.Errorf("at most %d files per run", bits.UintSize)
	}
	filters, err := buildFilters(ctx, lg, files, expected)
	if err != nil {
		return nil, errors.Wrap(err, "build sku filters")
	}
	dups, err := crossFileDuplicates(ctx, files, filters)
	if err != nil {
		return nil, errors.Wrap(err, "find duplicate skus")
	}
	for _, sku := range dups {
		lg.Warn("SKU listed in several files, skipping", zap.String("sku", sku))
	}

	stats := &Stats{Duplicates: dups}
	skip := make(map[string]struct{}, len(dups))
	for _, sku := range dups {
		skip[sku] = struct{}{}
	}

	var created, existing, invalid atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, path := range files {
		err := streamRecords(gctx, path, func(line int, r *record) {
			if _, ok := skip[skuKey(r.SKU)]; ok {
				return
			}
			g.Go(func() error {
				_, err := svc.Create(gctx, r.product())
				switch {
				case err == nil:
					if n := created.Add(1); n%progressEvery == 0 {
						lg.Info("Import progress", zap.Int64("created", n))
					}
				case apperr.KindOf(err) == apperr.KindStateConflict:
					existing.Add(1)
				case apperr.KindOf(err) == apperr.KindValidation:
					invalid.Add(1)
					lg.Warn("Invalid product", zap.String("file", path), zap.Int("line", line), zap.Error(err))
				default:
					return errors.Wrapf(err, "%s:%d", path, line)
				}
				return nil
			})
		}, func(line int, err error) {
			invalid.Add(1)
			lg.Warn("Malformed line", zap.String("file", path), zap.Int("line", line), zap.Error(err))
		})
		if err != nil {
			// A failed insert cancels gctx; report that failure instead.
			if werr := g.Wait(); werr != nil {
				return nil, werr
			}
			return nil, err
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.Created = created.Load()
	stats.Existing = existing.Load()
	stats.Invalid = invalid.Load()
	return stats, nil
}

// buildFilters creates one bloom filter per file, concurrently.
func buildFilters(ctx context.Context, lg *zap.Logger, files []string, expected uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			f := bloom.NewWithEstimates(max(expected, 1), bloomFPR)
			var n int
			err := streamRecords(ctx, path, func(_ int, r *record) {
				if sku := skuKey(r.SKU); sku != "" {
					f.AddString(sku)
					n++
				}
			}, nil)
			if err != nil {
				return err
			}
			lg.Info("Indexed file", zap.String("file", path), zap.Int("skus", n))
			filters[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// crossFileDuplicates returns, sorted, the SKUs present in two or more files.
// Each file marks its bit only for SKUs another filter reports, so the
// candidate maps stay small and a false positive sets a single bit.
func crossFileDuplicates(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]string, error) {
	candidates := make([]map[string]uint, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			found := make(map[string]uint)
			bit := uint(1) << uint(i)
			err := streamRecords(ctx, path, func(_ int, r *record) {
				sku := skuKey(r.SKU)
				if sku == "" {
					return
				}
				for j, f := range filters {
					if j != i && f.TestString(sku) {
						found[sku] |= bit
						return
					}
				}
			}, nil)
			candidates[i] = found
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, c := range candidates {
		for sku, mask := range c {
			merged[sku] |= mask
		}
	}
	var out []string
	for sku, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			out = append(out, sku)
		}
	}
	slices.Sort(out)
	return out, nil
}

// streamRecords decodes every line of a gzip JSON Lines file. Blank lines
// are ignored; undecodable lines go to bad when it is set.
func streamRecords(ctx context.Context, path string, fn func(line int, r *record), bad func(line int, err error)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	sc := bufio.NewScanner(gz)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		b := sc.Bytes()
		if len(bytes.TrimSpace(b)) == 0 {
			continue
		}
		r := new(record)
		if err := json.Unmarshal(b, r); err != nil {
			if bad != nil {
				bad(line, err)
			}
			continue
		}
		fn(line, r)
	}
	if err := sc.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
