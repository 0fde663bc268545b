package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jcmexdev/storefront-sagas/internal/coordinator"
	"github.com/jcmexdev/storefront-sagas/internal/coordinator/sagalog"
	"github.com/jcmexdev/storefront-sagas/internal/coordinator/sagalog/sqlite"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/cache"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/config"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/events"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/messaging"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/telemetry"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/cart"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/ports"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/infra/adapters/identity"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/infra/adapters/payment"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/infra/adapters/store"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/infra/adapters/store/memstore"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/infra/httpx"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := telemetry.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("tracing setup failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	remote, err := newRemoteStore(cfg)
	if err != nil {
		slog.Error("store client setup failed", "error", err)
		os.Exit(1)
	}

	bus := events.NewBus(logger)
	defer bus.Close()

	manager := cart.NewManager(remote, bus)
	if err := manager.Reload(ctx); err != nil {
		slog.Warn("initial cart load failed, continuing with an empty view", "error", err)
	}

	var repo sagalog.Repository
	if cfg.CheckoutLogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.CheckoutLogPath), 0o755); err != nil {
			slog.Error("checkout log directory", "error", err)
			os.Exit(1)
		}
		sqliteRepo, err := sqlite.Open(cfg.CheckoutLogPath)
		if err != nil {
			slog.Error("checkout log unavailable", "error", err)
			os.Exit(1)
		}
		defer sqliteRepo.Close()
		repo = sqliteRepo
	}

	// A nil interface disables idempotent replay.
	var idempotency cache.Cache
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.ServiceName)
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			slog.Warn("redis unreachable, idempotency keys will be ignored until it recovers", "addr", cfg.RedisAddr, "error", err)
		}
		idempotency = redisCache
	}

	var orderEvents ports.EventPublisher = messaging.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := messaging.NewKafkaPublisher(cfg.KafkaBrokers)
		defer kafkaPublisher.Close()
		orderEvents = kafkaPublisher
	}

	checkout := coordinator.NewCheckout(remote, repo, idempotency, orderEvents, cfg.OrdersTopic).
		WithPayments(payment.NewSimulator(decimal.NewFromFloat(cfg.PaymentDeclineAbove)))

	if repo != nil {
		reconciler := coordinator.NewReconciler(remote, repo, cfg.ReconcileInterval, func(ctx context.Context) {
			if err := manager.Refresh(ctx); err != nil {
				slog.WarnContext(ctx, "cart reload after reconcile failed", "error", err)
			}
		})
		go reconciler.Run(ctx)
	}

	sessions := identity.NewSessions()
	handler := httpx.NewHandler(httpx.Deps{
		Cart:        manager,
		Checkout:    checkout,
		Store:       remote,
		Identity:    sessions,
		Sessions:    sessions,
		Events:      bus,
		DisplayRate: cfg.DisplayRate,
	})
	router := httpx.NewRouter(handler, sessions.Middleware)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, "storefront-gateway"),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		slog.Info("storefront gateway listening", "addr", cfg.HTTPAddr, "store", cfg.StoreURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}

func newRemoteStore(cfg *config.Config) (ports.RemoteStore, error) {
	if cfg.UsesMemoryStore() {
		slog.Warn("using the in-memory data service; data is lost on exit")
		return memstore.New(), nil
	}
	return store.NewClient(cfg.StoreURL, store.Options{
		Timeout:         cfg.StoreTimeout,
		BreakerFailures: cfg.StoreBreakerFailures,
		BreakerCooldown: cfg.StoreBreakerCooldown,
	})
}
