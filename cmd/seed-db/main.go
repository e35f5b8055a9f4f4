// Command seed-db loads a demo catalog, a demo customer and an admin API
// key. Re-running it skips rows that already exist and issues a new key.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/repository"
)

type options struct {
	databaseURL  string
	pepper       string
	adminEmail   string
	demoEmail    string
	demoPassword string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.StringVar(&opts.adminEmail, "admin-email", "admin@example.com", "owner of the issued admin key")
	flag.StringVar(&opts.demoEmail, "demo-email", "demo@example.com", "demo customer email, empty to skip")
	flag.StringVar(&opts.demoPassword, "demo-password", "password123", "demo customer password")
	flag.Parse()

	lg, _ := zap.NewDevelopment()
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.pepper == "" {
		opts.pepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}
	if opts.databaseURL == "" || opts.pepper == "" {
		lg.Fatal("Database URL and API key pepper are required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	if err := repository.RunMigrations(opts.databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := seedProducts(ctx, lg, product.NewService(repository.NewProductRepository(pool, false))); err != nil {
		return errors.Wrap(err, "seed products")
	}

	keys := auth.NewKeys(repository.NewAPIKeyRepository(pool), auth.NewHasher([]byte(opts.pepper)))
	if opts.demoEmail != "" {
		accounts := auth.NewAccounts(repository.NewCustomerRepository(pool), keys)
		if err := seedCustomer(ctx, lg, accounts, opts.demoEmail, opts.demoPassword); err != nil {
			return errors.Wrap(err, "seed customer")
		}
	}

	raw, rec, err := keys.Issue(ctx, auth.IssueRequest{
		Kind:  auth.KindAdmin,
		Email: opts.adminEmail,
		Name:  "Seeded admin key",
	})
	if err != nil {
		return errors.Wrap(err, "issue admin key")
	}
	lg.Info("Issued admin key", zap.String("id", rec.ID), zap.String("email", opts.adminEmail))
	// The raw key is shown once and never stored.
	fmt.Println(raw)
	return nil
}

// sampleCatalog is a small demo catalog covering discounts, low stock and
// untracked inventory.
func sampleCatalog() []*product.Product {
	item := func(sku, title, brand, category, price string, qty, low int) *product.Product {
		return &product.Product{
			SKU:        sku,
			Title:      title,
			Brand:      brand,
			CategoryID: category,
			Price:      product.Price{Original: decimal.RequireFromString(price)},
			Stock:      product.Stock{Quantity: qty, LowStockThreshold: low, TrackInventory: true},
			Status:     product.StatusActive,
		}
	}

	tee := item("TEE-001", "Classic Cotton Tee", "Basics", "apparel", "499", 120, 10)
	tee.Featured = true

	jacket := item("JKT-014", "Denim Jacket", "Indigo", "apparel", "2999", 8, 10)
	jacket.Discount = product.Discount{Type: product.DiscountPercentage, Value: decimal.NewFromInt(20), Active: true}
	jacket.Trending = true

	mug := item("MUG-210", "Stoneware Mug", "Kiln", "home", "349", 40, 5)
	mug.Discount = product.Discount{Type: product.DiscountFixed, Value: decimal.NewFromInt(50), Active: true}

	gift := item("GFT-100", "Digital Gift Card", "", "gifts", "1000", 0, 0)
	gift.Stock.TrackInventory = false

	lamp := item("LMP-007", "Brass Desk Lamp", "Lumen", "home", "4599", 0, 2)

	return []*product.Product{tee, jacket, mug, gift, lamp}
}

func seedProducts(ctx context.Context, lg *zap.Logger, svc *product.Service) error {
	for _, p := range sampleCatalog() {
		p.Slug = product.Slugify(p.Title)
		created, err := svc.Create(ctx, p)
		switch {
		case err == nil:
			lg.Info("Created product", zap.String("sku", created.SKU), zap.String("id", created.ID))
		case apperr.KindOf(err) == apperr.KindStateConflict:
			lg.Info("Product exists", zap.String("sku", p.SKU))
		default:
			return errors.Wrapf(err, "create %s", p.SKU)
		}
	}
	return nil
}

func seedCustomer(ctx context.Context, lg *zap.Logger, accounts *auth.Accounts, email, password string) error {
	exists, err := accounts.Exists(ctx, email)
	if err != nil {
		return err
	}
	if exists {
		lg.Info("Demo customer exists", zap.String("email", email))
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	s, err := accounts.Register(ctx, auth.Customer{Email: email, Name: "Demo Customer", PasswordHash: string(hash)})
	if err != nil {
		return err
	}
	lg.Info("Created demo customer", zap.String("email", email), zap.String("id", s.Customer.ID))
	return nil
}
