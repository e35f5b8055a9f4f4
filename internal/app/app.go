package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/cache"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/wishlist"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/notify"
	"github.com/xenking/storefront/internal/registration"
	"github.com/xenking/storefront/internal/repository"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const (
	serviceName = "storefront-api"
	apiVersion  = "1.0.0"
)

// Telemetry carries the providers set up by the process runner.
type Telemetry struct {
	Meter  metric.MeterProvider
	Tracer trace.TracerProvider
}

// Run creates all dependencies, starts the HTTP server and the background
// workers, and shuts everything down when ctx is cancelled.
func Run(ctx context.Context, lg *zap.Logger, tel Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	if err := repository.RunMigrations(cfg.DatabaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	rdb := redis.NewClient(cfg.RedisOptions())
	defer func() { _ = rdb.Close() }()

	var pub notify.Publisher = notify.NewLogPublisher(lg.Named("notify"))
	if len(cfg.Kafka.Brokers) > 0 {
		kp := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() { _ = kp.Close() }()
		pub = kp
	}
	dispatcher, err := notify.NewDispatcher(pub, notify.DispatcherOptions{
		QueueSize:     cfg.Kafka.QueueSize,
		SendTimeout:   cfg.Kafka.SendTimeout,
		Logger:        lg.Named("notify"),
		MeterProvider: tel.Meter,
	})
	if err != nil {
		return errors.Wrap(err, "create dispatcher")
	}

	// Repositories.
	tx := repository.NewTxManager(pool)
	productRepo := repository.NewProductRepository(pool, cfg.Search.FullText)
	orderRepo := repository.NewOrderRepository(pool)

	// Domain services.
	keys := auth.NewKeys(repository.NewAPIKeyRepository(pool), auth.NewHasher([]byte(cfg.APIKeyPepper)))
	accounts := auth.NewAccounts(repository.NewCustomerRepository(pool), keys)
	reconciler := inventory.NewReconciler(lg.Named("inventory"))
	carts := cart.NewService(
		repository.NewCartRepository(pool),
		productRepo,
		cache.NewCartCache(rdb, cfg.Redis.CartTTL),
		lg.Named("cart"),
	)

	rate, err := cfg.ShippingRate()
	if err != nil {
		return err
	}
	orderOpts := []order.Option{
		order.WithLogger(lg.Named("order")),
		order.WithMeterProvider(tel.Meter),
		order.WithTracerProvider(tel.Tracer),
		order.WithShipping(order.FlatRate{Rate: rate}),
	}
	orders, err := order.NewService(tx, orderRepo, reconciler, carts, dispatcher, orderOpts...)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	adminOrders, err := order.NewAdminService(tx, orderRepo, reconciler, dispatcher, orderOpts...)
	if err != nil {
		return errors.Wrap(err, "create admin order service")
	}

	h := handler.New(handler.Services{
		Products:     product.NewService(productRepo),
		Stock:        inventory.NewService(tx, reconciler, repository.NewAdjustmentRepository(pool)),
		Carts:        carts,
		Wishlists:    wishlist.NewService(repository.NewWishlistRepository(pool), productRepo, carts),
		Orders:       orders,
		AdminOrders:  adminOrders,
		Keys:         keys,
		Accounts:     accounts,
		Registration: registration.NewService(registration.NewRedisStore(rdb), accounts, dispatcher, lg.Named("registration")),
	})

	// Health checks.
	hc := health.New()
	hc.Add(health.Check{Name: "goroutines", Kind: health.Liveness, Timeout: time.Second, Func: health.GoroutineCountCheck(10000)})
	hc.Add(health.Check{Name: "postgres", Kind: health.Readiness, Timeout: 5 * time.Second, Func: health.PingCheck(pool)})
	hc.Add(health.Check{Name: "redis", Kind: health.Readiness, Timeout: 2 * time.Second, Func: health.RedisCheck(rdb)})
	if len(cfg.Kafka.Brokers) > 0 {
		// Notifications are best effort; a broker outage must not fail probes.
		hc.Add(health.Check{Name: "kafka", Kind: health.Informational, Timeout: 5 * time.Second, Func: health.KafkaCheck(cfg.Kafka.Brokers)})
	}

	// Router: probes and the API on one server.
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/livez", hc.LiveHandler())
	r.Method(http.MethodGet, "/readyz", hc.ReadyHandler())
	r.Method(http.MethodGet, "/healthz", hc.StatusHandler())
	h.Register(handler.NewAPI(r, apiVersion))

	g, ctx := errgroup.WithContext(ctx)

	var limiter httpmiddleware.Limiter
	switch cfg.RateLimit.Backend {
	case "redis":
		limiter = httpmiddleware.NewRedisLimiter(rdb, cfg.RateLimit.Max, cfg.RateLimit.Window)
	default:
		ml := httpmiddleware.NewMemoryLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
		g.Go(func() error { return ml.Run(ctx) })
		limiter = ml
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(r,
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "api_key", httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           24 * time.Hour,
			}),
			httpmiddleware.Route(),
			httpmiddleware.RequestID(),
			httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{Limiter: limiter}),
			httpmiddleware.Instrument(serviceName, tel.Meter, tel.Tracer),
			httpmiddleware.Labeler(),
			httpmiddleware.LogRequests(),
			httpmiddleware.Timeout(cfg.Storage.OpTimeout),
		),
	}

	// Requests still draining enqueue notifications, so the dispatcher
	// outlives the server and stops only once Shutdown has returned.
	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatch()

	g.Go(func() error { return dispatcher.Run(dispatchCtx) })
	g.Go(func() error { return hc.Run(ctx, 10*time.Second) })
	g.Go(func() error {
		<-ctx.Done()
		return shutdown(lg, hc, server, cfg.Graceful, stopDispatch)
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		hc.SetReady(true)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}

// shutdown drains server and then calls stop. Readiness is dropped first so
// load balancers stop routing before connections are closed.
func shutdown(lg *zap.Logger, hc *health.Health, server *http.Server, cfg GracefulConfig, stop func()) error {
	defer stop()

	hc.SetReady(false)
	lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.ReadinessDelay))
	time.Sleep(cfg.ReadinessDelay)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	lg.Info("Shutting down server", zap.Duration("timeout", cfg.ShutdownTimeout))
	if err := server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}
