// Package app wires the storefront's dependencies and runs the HTTP server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/freshcart/internal/domain/address"
	"github.com/xenking/freshcart/internal/domain/auth"
	"github.com/xenking/freshcart/internal/domain/coupon"
	"github.com/xenking/freshcart/internal/domain/order"
	"github.com/xenking/freshcart/internal/domain/session"
	"github.com/xenking/freshcart/internal/events"
	"github.com/xenking/freshcart/internal/handler"
	"github.com/xenking/freshcart/internal/storage/memory"
	"github.com/xenking/freshcart/internal/storage/postgres"
	"github.com/xenking/freshcart/internal/storage/redis"
	"github.com/xenking/freshcart/pkg/health"
	"github.com/xenking/freshcart/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	probes := health.New()
	probes.Register(health.Readiness, "postgres", health.PingCheck(pool), health.Timeout(5*time.Second))
	probes.Register(health.Liveness, "goroutines", health.GoroutineCountCheck(10000))
	probes.Register(health.Liveness, "gc_pause", health.GCPauseCheck(time.Second))

	// Sessions and idempotency keys live in Redis when configured.
	var (
		sessions    session.Store
		idempotency handler.IdempotencyGuard
		sweepers    []memory.Sweeper
	)
	if cfg.Session.RedisURL != "" {
		rdb, err := redis.NewClient(ctx, cfg.Session.RedisURL)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()

		sessions = redis.NewSessionStore(rdb, cfg.Session.TTL)
		idempotency = redis.NewIdempotencyGuard(rdb, cfg.Session.IdempotencyTTL)
		probes.Register(health.Readiness, "redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}, health.Timeout(2*time.Second))
	} else {
		lg.Warn("REDIS_URL not set, keeping sessions in memory")
		ms := memory.NewSessionStore(cfg.Session.TTL)
		mg := memory.NewIdempotencyGuard(cfg.Session.IdempotencyTTL)
		sessions, idempotency = ms, mg
		sweepers = append(sweepers, ms, mg)
	}

	var publisher order.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		p := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := p.Close(); err != nil {
				lg.Warn("Close event publisher", zap.Error(err))
			}
		}()
		publisher = p
	}

	probes.SetReady(true)
	router, err := newRouter(ctx, m, cfg, infra{
		pool:        pool,
		sessions:    sessions,
		idempotency: idempotency,
		publisher:   publisher,
	}, probes)
	if err != nil {
		return err
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return probes.Run(gctx, 10*time.Second)
	})
	if len(sweepers) > 0 {
		g.Go(func() error {
			return memory.Run(gctx, time.Minute, sweepers...)
		})
	}
	g.Go(func() error {
		// Graceful shutdown: stop advertising readiness, drain, then stop.
		<-gctx.Done()
		probes.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}

// infra holds the stateful dependencies Run connects to.
type infra struct {
	pool        *pgxpool.Pool
	sessions    session.Store
	idempotency handler.IdempotencyGuard
	publisher   order.Publisher
}

// newRouter builds repositories, services and the instrumented HTTP handler
// including the health endpoints.
func newRouter(ctx context.Context, t httpmiddleware.Telemetry, cfg *Config, in infra, probes *health.Health) (http.Handler, error) {
	policy, err := cfg.Pricing.Policy()
	if err != nil {
		return nil, err
	}

	// Repositories.
	tx := postgres.NewTxManager(in.pool)
	productRepo := postgres.NewProductRepository(in.pool)
	couponRepo := postgres.NewCouponRepository(in.pool)
	addressRepo := postgres.NewAddressRepository(in.pool, tx)
	orderRepo := postgres.NewOrderRepository(in.pool)

	// Domain services.
	orderService, err := order.NewService(order.Deps{
		Tx:             tx,
		Addresses:      addressRepo,
		Pricer:         order.NewPricer(productRepo, couponRepo, policy),
		Orders:         orderRepo,
		Coupons:        couponRepo,
		Publisher:      in.publisher,
		TracerProvider: t.TracerProvider(),
		MeterProvider:  t.MeterProvider(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}

	h := handler.New(handler.Config{
		SiteURL:       cfg.SiteURL,
		HomePath:      cfg.HomePath,
		ImageBaseURL:  cfg.ImageBaseURL,
		SessionCookie: cfg.Session.CookieName,
		SessionTTL:    cfg.Session.TTL,
		SecureCookie:  cfg.Session.SecureCookie,
	}, handler.Deps{
		Products:    productRepo,
		Coupons:     coupon.NewValidator(couponRepo),
		Addresses:   address.NewService(addressRepo),
		Orders:      orderService,
		Sessions:    in.sessions,
		Tokens:      auth.NewTokens([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer),
		Idempotency: in.idempotency,
	})
	limit := httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
	})

	mux := http.NewServeMux()
	mux.Handle("/livez", probes.Handler(health.Liveness))
	mux.Handle("/readyz", probes.Handler(health.Readiness))
	mux.Handle("/", h.Routes(limit))

	return httpmiddleware.Wrap(mux,
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Recovery(),
		httpmiddleware.RequestID(),
		httpmiddleware.Instrument("freshcart-api", t),
		httpmiddleware.LogRequests(),
	), nil
}
