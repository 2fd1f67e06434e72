package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mintgate/mintgate/internal/config"
	"github.com/mintgate/mintgate/internal/ledger"
	"github.com/mintgate/mintgate/internal/postgres"
	"github.com/mintgate/mintgate/internal/redis"
	postgresrepo "github.com/mintgate/mintgate/internal/repository/postgres"
	redisrepo "github.com/mintgate/mintgate/internal/repository/redis"
	"github.com/mintgate/mintgate/internal/service"
	"github.com/mintgate/mintgate/internal/service/orders"
	"github.com/mintgate/mintgate/internal/service/query"
	"github.com/mintgate/mintgate/internal/service/verification"
	httpgin "github.com/mintgate/mintgate/internal/transport/http/gin"
	"github.com/mintgate/mintgate/internal/worker"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	poller     *worker.Poller
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Initialize dependencies
	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: cfg.Postgres.DSN()})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redis.New(context.Background(), redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	ledgerClient := ledger.NewClient(ledger.Config{
		Endpoint: cfg.Ledger.Endpoint,
		Timeout:  cfg.Ledger.Timeout,
	})

	// Initialize repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	pubsub := redisrepo.NewSettlementsPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "verify", 20, 1*time.Minute)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)

	// Initialize services
	services := service.NewServices(store, cache, pubsub, ledgerClient, service.Config{
		Verification: verification.Config{LookupTimeout: cfg.Ledger.Timeout},
		Orders:       orders.Config{PaymentLabel: "MintGate"},
		Query:        query.Config{AvailabilityTTL: 15 * time.Second},
	})

	webhook := httpgin.NewWebhookHandler(
		services.Registry,
		services.Settlement,
		httpgin.WebhookConfig{Secret: cfg.Webhook.Secret},
		logger,
	)

	// Initialize Gin router
	router := httpgin.NewRouter(services, idempotencyStore, limiter, webhook, ledgerClient, logger)

	// Polling trigger: the fallback path behind the direct call and the
	// webhook.
	poller := worker.NewPoller(
		store.Orders(),
		ledgerClient,
		services.Settlement,
		worker.PollerConfig{
			Interval:  cfg.Poller.Interval,
			Grace:     cfg.Poller.Grace,
			BatchSize: cfg.Poller.BatchSize,
		},
		logger,
	)

	return &App{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
		poller: poller,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Start payment poller
	g.Go(func() error {
		a.logger.Info("payment poller started",
			"interval", a.cfg.Poller.Interval,
			"grace", a.cfg.Poller.Grace,
		)
		if err := a.poller.Run(gCtx); err != nil && err != context.Canceled {
			return fmt.Errorf("poller stopped: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}
