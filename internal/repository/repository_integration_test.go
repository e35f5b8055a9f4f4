//go:build integration

package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/wishlist"
)

// --- Mock implementations ---

type nopNotifier struct{}

func (nopNotifier) OrderConfirmed(context.Context, *order.Order) error { return nil }

func (nopNotifier) OrderCancelled(context.Context, *order.Order, string) error { return nil }

func (nopNotifier) OrderStatusUpdated(context.Context, *order.Order, order.StatusDelta) error {
	return nil
}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(context.Context, string) {}

// --- Helpers ---

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, RunMigrations(dsn))
	// A second run finds nothing to apply.
	require.NoError(t, RunMigrations(dsn))

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func seedProduct(t *testing.T, repo *ProductRepository, id, title, price string, qty int) product.Product {
	t.Helper()
	p := seedProductValue(id, title, price)
	p.Stock.Quantity = qty
	require.NoError(t, repo.Create(context.Background(), &p))
	return p
}

func seedProductValue(id, title, price string) product.Product {
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	return product.Product{
		ID:          id,
		SKU:         "SKU-" + id,
		Slug:        "slug-" + id,
		Title:       title,
		Description: title + " description",
		Brand:       "Acme",
		Price: product.Price{
			Original: decimal.RequireFromString(price),
			Selling:  decimal.RequireFromString(price),
			Currency: "INR",
		},
		Discount:   product.Discount{Type: product.DiscountPercentage},
		Stock:      product.Stock{LowStockThreshold: 2, TrackInventory: true},
		Status:     product.StatusActive,
		Visibility: product.VisibilityPublic,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// --- Tests ---

func TestStockStore_ConcurrentDecrement(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	products := NewProductRepository(pool, true)
	seedProduct(t, products, "p1", "Kurta", "100", 5)

	tx := NewTxManager(pool)
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := tx.WithinStockTx(ctx, func(ctx context.Context, store inventory.Store) error {
				return store.Adjust(ctx, "p1", -1, 1)
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, inventory.ErrInsufficientStock):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 5, succeeded.Load())
	assert.EqualValues(t, 7, rejected.Load())

	p, err := products.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock.Quantity)
	assert.Equal(t, 5, p.Analytics.Purchases)
}

func TestStockStore_Errors(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	seedProduct(t, NewProductRepository(pool, true), "p1", "Kurta", "100", 1)
	tx := NewTxManager(pool)

	err := tx.WithinStockTx(ctx, func(ctx context.Context, store inventory.Store) error {
		return store.Adjust(ctx, "missing", -1, 1)
	})
	require.ErrorIs(t, err, inventory.ErrProductNotFound)

	err = tx.WithinStockTx(ctx, func(ctx context.Context, store inventory.Store) error {
		return store.Adjust(ctx, "p1", -2, 1)
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	// Restoring never drives purchases below zero.
	err = tx.WithinStockTx(ctx, func(ctx context.Context, store inventory.Store) error {
		return store.Adjust(ctx, "p1", 3, -1)
	})
	require.NoError(t, err)
}

func TestInventoryService_AdjustAudited(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	products := NewProductRepository(pool, true)
	seedProduct(t, products, "p1", "Kurta", "100", 4)

	svc := inventory.NewService(NewTxManager(pool), inventory.NewReconciler(nil), NewAdjustmentRepository(pool))
	adj, err := svc.Adjust(ctx, inventory.AdjustRequest{
		ProductID: "p1", Op: inventory.OpSubtract, Quantity: 10, Reason: "damaged", Actor: "admin-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, adj.Previous)
	assert.Equal(t, 0, adj.Current)

	_, err = svc.Adjust(ctx, inventory.AdjustRequest{
		ProductID: "p1", Op: inventory.OpAdd, Quantity: 6, Reason: "restock", Actor: "admin-2",
	})
	require.NoError(t, err)

	history, err := svc.History(ctx, "p1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, inventory.OpAdd, history[0].Op)
	assert.Equal(t, 0, history[0].Previous)
	assert.Equal(t, 6, history[0].Current)
	assert.Equal(t, "admin-2", history[0].Actor)
	assert.Equal(t, inventory.OpSubtract, history[1].Op)
	assert.Equal(t, "damaged", history[1].Reason)

	history, err = svc.History(ctx, "p1", 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	history, err = svc.History(ctx, "missing", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestProductRepository_UpdateAndSoftDelete(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewProductRepository(pool, true)
	seedProduct(t, repo, "p1", "Red cotton shirt", "500", 3)
	seedProduct(t, repo, "p2", "Blue denim jeans", "1500", 5)

	p := seedProductValue("p1", "Red linen shirt", "800")
	p.Price.Selling = decimal.RequireFromString("600")
	p.Stock = product.Stock{Quantity: 999, LowStockThreshold: 4, TrackInventory: true}
	p.UpdatedAt = p.UpdatedAt.Add(time.Hour)
	require.NoError(t, repo.Update(ctx, &p))

	got, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Red linen shirt", got.Title)
	assert.True(t, decimal.RequireFromString("600").Equal(got.Price.Selling))
	assert.Equal(t, 3, got.Stock.Quantity)
	assert.Equal(t, 4, got.Stock.LowStockThreshold)

	page, err := repo.Search(ctx, product.Filter{Search: "linen"}.Normalize())
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	dup := seedProductValue("p1", "Red linen shirt", "800")
	dup.SKU = "SKU-p2"
	assert.Equal(t, apperr.KindStateConflict, apperr.KindOf(repo.Update(ctx, &dup)))

	missing := seedProductValue("p9", "Nothing", "1")
	require.ErrorIs(t, repo.Update(ctx, &missing), product.ErrNotFound)

	at := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SoftDelete(ctx, "p1", at))
	require.ErrorIs(t, repo.SoftDelete(ctx, "p1", at), product.ErrNotFound)
	require.ErrorIs(t, repo.SoftDelete(ctx, "p9", at), product.ErrNotFound)
	require.ErrorIs(t, repo.Update(ctx, &p), product.ErrNotFound)

	got, err = repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, product.StatusDeleted, got.Status)
}

func TestProductRepository_LowStock(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewProductRepository(pool, true)
	seedProduct(t, repo, "plenty", "Plenty", "10", 50)
	seedProduct(t, repo, "edge", "Edge", "10", 2)
	seedProduct(t, repo, "empty", "Empty", "10", 0)
	seedProduct(t, repo, "gone", "Gone", "10", 1)

	untracked := seedProductValue("untracked", "Untracked", "10")
	untracked.Stock.TrackInventory = false
	require.NoError(t, repo.Create(ctx, &untracked))
	require.NoError(t, repo.SoftDelete(ctx, "gone", time.Now()))

	low, err := repo.LowStock(ctx, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(low))
	for _, p := range low {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"empty", "edge"}, ids)

	low, err = repo.LowStock(ctx, 1)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "empty", low[0].ID)
}

func TestProductRepository_Search(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewProductRepository(pool, true)
	seedProduct(t, repo, "p1", "Red cotton shirt", "500", 3)
	seedProduct(t, repo, "p2", "Blue denim jeans", "1500", 0)
	seedProduct(t, repo, "p3", "Red silk saree", "2500", 1)

	dup := seedProductValue("p4", "Another", "10")
	dup.SKU = "SKU-p1"
	assert.Equal(t, apperr.KindStateConflict, apperr.KindOf(repo.Create(ctx, &dup)))

	page, err := repo.Search(ctx, product.Filter{Search: "red", Sort: product.SortPriceHigh}.Normalize())
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Products, 2)
	assert.Equal(t, "p3", page.Products[0].ID)

	page, err = repo.Search(ctx, product.Filter{InStock: ptr(false)}.Normalize())
	require.NoError(t, err)
	require.Len(t, page.Products, 1)
	assert.Equal(t, "p2", page.Products[0].ID)

	ilike := NewProductRepository(pool, false)
	page, err = ilike.Search(ctx, product.Filter{Search: "denim", Limit: 1}.Normalize())
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	_, err = repo.GetByID(ctx, "missing")
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestCartRepository_RoundTrip(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewCartRepository(pool)

	empty, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	c := &cart.Cart{UserID: "u1", UpdatedAt: now, Items: []cart.Item{
		{ID: "i1", ProductID: "p1", Quantity: 2, Price: decimal.RequireFromString("100"), AddedAt: now},
		{ID: "i2", ProductID: "p2", Quantity: 1, Price: decimal.RequireFromString("49.50"),
			Variants: map[string]string{"size": "M"}, AddedAt: now},
	}}
	require.NoError(t, repo.Save(ctx, c))

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "i1", got.Items[0].ID)
	assert.Equal(t, map[string]string{"size": "M"}, got.Items[1].Variants)
	assert.True(t, decimal.RequireFromString("249.50").Equal(got.Subtotal()))

	require.NoError(t, repo.Clear(ctx, "u1"))
	got, err = repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}

func TestWishlistRepository_Counter(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	products := NewProductRepository(pool, true)
	seedProduct(t, products, "p1", "Kurta", "100", 1)
	repo := NewWishlistRepository(pool)

	it := wishlist.Item{ProductID: "p1", AddedAt: time.Now()}
	require.NoError(t, repo.Add(ctx, "u1", it))
	require.ErrorIs(t, repo.Add(ctx, "u1", it), wishlist.ErrDuplicate)
	require.NoError(t, repo.Add(ctx, "u2", it))

	p, err := products.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Analytics.WishlistCount)

	require.NoError(t, repo.Remove(ctx, "u1", "p1"))
	require.ErrorIs(t, repo.Remove(ctx, "u1", "p1"), wishlist.ErrItemNotFound)

	w, err := repo.Get(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, w.TotalItems())

	p, err = products.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Analytics.WishlistCount)
}

func TestCustomerAndKeyRepositories(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	customers := NewCustomerRepository(pool)

	c := &auth.Customer{ID: "c1", Email: "jane@example.com", Name: "Jane", PasswordHash: "hash", CreatedAt: time.Now()}
	require.NoError(t, customers.Create(ctx, c))
	require.ErrorIs(t, customers.Create(ctx, c), auth.ErrEmailTaken)

	got, err := customers.FindByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)
	_, err = customers.FindByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, auth.ErrCustomerNotFound)

	keys := auth.NewKeys(NewAPIKeyRepository(pool), auth.NewHasher([]byte("pepper")))
	raw, _, err := keys.Issue(ctx, auth.IssueRequest{Kind: auth.KindCustomer, SubjectID: "c1", Email: c.Email, Name: c.Name})
	require.NoError(t, err)

	principal, err := keys.Authenticate(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "c1", principal.SubjectID)
	assert.False(t, principal.IsAdmin())

	_, err = keys.Authenticate(ctx, raw+"x")
	require.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestOrderFlow(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	products := NewProductRepository(pool, true)
	seedProduct(t, products, "p1", "Kurta", "100", 3)
	seedProduct(t, products, "p2", "Dupatta", "50", 1)

	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	carts := NewCartRepository(pool)
	require.NoError(t, carts.Save(ctx, &cart.Cart{UserID: "u1", UpdatedAt: now, Items: []cart.Item{
		{ID: "i1", ProductID: "p1", Quantity: 2, Price: decimal.RequireFromString("100"), AddedAt: now},
		{ID: "i2", ProductID: "p2", Quantity: 1, Price: decimal.RequireFromString("50"), AddedAt: now},
	}}))

	tx := NewTxManager(pool)
	orders := NewOrderRepository(pool)
	reconciler := inventory.NewReconciler(nil)
	opts := []order.Option{
		order.WithMeterProvider(noop.NewMeterProvider()),
		order.WithTracerProvider(tracenoop.NewTracerProvider()),
		order.WithClock(func() time.Time { return now }),
	}
	svc, err := order.NewService(tx, orders, reconciler, nopInvalidator{}, nopNotifier{}, opts...)
	require.NoError(t, err)
	admin, err := order.NewAdminService(tx, orders, reconciler, nopNotifier{}, opts...)
	require.NoError(t, err)

	res, err := svc.Create(ctx, order.CreateRequest{
		Customer:      order.Customer{ID: "u1", Email: "jane@example.com", Name: "Jane"},
		Address:       order.AddressInput{Address: order.Address{Street: "1 MG Road", City: "Pune", Phone: "9800000000"}},
		PaymentMethod: order.MethodCOD,
	})
	require.NoError(t, err)
	o := res.Order
	assert.True(t, decimal.RequireFromString("335").Equal(o.Total))

	p1, err := products.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, p1.Stock.Quantity)

	c, err := carts.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	stored, err := svc.Get(ctx, "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, stored.Number)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, "Kurta", stored.Items[0].Title)
	assert.Equal(t, "Pune", stored.ShippingAddress.City)

	updated, err := admin.Update(ctx, o.ID, order.UpdateRequest{ShippingStatus: "shipped", TrackingID: "TRK1"})
	require.NoError(t, err)
	assert.Equal(t, order.ShippingShipped, updated.Shipping.Status)

	list, err := admin.List(ctx, order.AdminFilter{Search: o.Number})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Stats, 1)
	assert.Equal(t, order.StatusProcessing, list.Stats[0].Status)

	_, err = svc.Cancel(ctx, "u1", o.ID, "changed my mind")
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, "u1", o.ID, "again")
	require.ErrorIs(t, err, order.ErrNotCancellable)

	p1, err = products.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, p1.Stock.Quantity)
	assert.Equal(t, 0, p1.Analytics.Purchases)

	dash, err := admin.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dash.TotalOrders)
	assert.True(t, decimal.RequireFromString("335").Equal(dash.TotalRevenue))
	require.Len(t, dash.Recent, 1)
}

func TestOrderFlow_StockRaceRollsBack(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	seedProduct(t, NewProductRepository(pool, true), "p1", "Kurta", "100", 1)

	carts := NewCartRepository(pool)
	now := time.Now()
	for i := range 4 {
		require.NoError(t, carts.Save(ctx, &cart.Cart{UserID: fmt.Sprintf("u%d", i), UpdatedAt: now, Items: []cart.Item{
			{ID: fmt.Sprintf("i%d", i), ProductID: "p1", Quantity: 1, Price: decimal.RequireFromString("100"), AddedAt: now},
		}}))
	}

	svc, err := order.NewService(NewTxManager(pool), NewOrderRepository(pool), inventory.NewReconciler(nil),
		nopInvalidator{}, nopNotifier{},
		order.WithMeterProvider(noop.NewMeterProvider()),
		order.WithTracerProvider(tracenoop.NewTracerProvider()),
	)
	require.NoError(t, err)

	var (
		wg     sync.WaitGroup
		placed atomic.Int32
	)
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, order.CreateRequest{
				Customer:      order.Customer{ID: fmt.Sprintf("u%d", i)},
				Address:       order.AddressInput{Raw: "1 MG Road, Pune"},
				PaymentMethod: order.MethodCOD,
			})
			if err == nil {
				placed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, placed.Load())

	var orders int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM orders`).Scan(&orders))
	assert.Equal(t, 1, orders)

	var emptied int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(DISTINCT user_id) FROM carts
		WHERE NOT EXISTS (SELECT 1 FROM cart_items ci WHERE ci.user_id = carts.user_id)`).Scan(&emptied))
	assert.Equal(t, 1, emptied)
}

func TestOrderFlow_DoubleSubmitPlacesOneOrder(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	products := NewProductRepository(pool, true)
	seedProduct(t, products, "p1", "Kurta", "100", 10)

	now := time.Now()
	require.NoError(t, NewCartRepository(pool).Save(ctx, &cart.Cart{UserID: "u1", UpdatedAt: now, Items: []cart.Item{
		{ID: "i1", ProductID: "p1", Quantity: 2, Price: decimal.RequireFromString("100"), AddedAt: now},
	}}))

	svc, err := order.NewService(NewTxManager(pool), NewOrderRepository(pool), inventory.NewReconciler(nil),
		nopInvalidator{}, nopNotifier{},
		order.WithMeterProvider(noop.NewMeterProvider()),
		order.WithTracerProvider(tracenoop.NewTracerProvider()),
	)
	require.NoError(t, err)

	const submits = 5
	var (
		wg       sync.WaitGroup
		placed   atomic.Int32
		rejected atomic.Int32
	)
	for range submits {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, order.CreateRequest{
				Customer:      order.Customer{ID: "u1"},
				Address:       order.AddressInput{Raw: "1 MG Road, Pune"},
				PaymentMethod: order.MethodCOD,
			})
			switch {
			case err == nil:
				placed.Add(1)
			case apperr.KindOf(err) == apperr.KindValidation:
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, placed.Load())
	assert.EqualValues(t, submits-1, rejected.Load())

	var orders int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM orders`).Scan(&orders))
	assert.Equal(t, 1, orders)

	p1, err := products.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 8, p1.Stock.Quantity)
}
