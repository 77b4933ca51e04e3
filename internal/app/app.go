// Package app wires configuration, storage, and transport into a
// runnable process. Two entry points exist: the central coordinator
// and a single-region reservation service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/velykodnyi/corridor/internal/config"
	"github.com/velykodnyi/corridor/internal/postgres"
	redisx "github.com/velykodnyi/corridor/internal/redis"
	"github.com/velykodnyi/corridor/internal/regionclient"
	"github.com/velykodnyi/corridor/internal/regionmap"
	postgresrepo "github.com/velykodnyi/corridor/internal/repository/postgres"
	redisrepo "github.com/velykodnyi/corridor/internal/repository/redis"
	"github.com/velykodnyi/corridor/internal/routing"
	"github.com/velykodnyi/corridor/internal/service/booking"
	"github.com/velykodnyi/corridor/internal/service/region"
	httpgin "github.com/velykodnyi/corridor/internal/transport/http/gin"
)

type App struct {
	cfg           *config.Config
	logger        *slog.Logger
	httpServer    *http.Server
	bookingEvents *redisx.BookingsPubSub
}

// NewCoordinator assembles the central booking orchestrator.
func NewCoordinator(cfg *config.Config, logger *slog.Logger) (*App, error) {
	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: postgresDSN(cfg)})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redisx.New(context.Background(), redisx.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	pubsub := redisx.NewBookingsPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, redisx.KeyRateLimit("bookings"), 30, 1*time.Minute)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)

	// Route source: OSRM behind a Redis cache.
	routes := routing.NewCachedSource(
		routing.NewOSRM(cfg.Routing.BaseURL, 10*time.Second),
		cache,
		cfg.Routing.CacheTTL,
	)

	// One HTTP client per configured downstream region.
	clients := make(map[string]booking.RegionClient, len(cfg.Regions))
	for _, ep := range cfg.Regions {
		clients[ep.Name] = regionclient.New(regionclient.Config{
			Region:  ep.Name,
			BaseURL: ep.BaseURL,
		})
	}

	svc := booking.New(
		routes,
		regionmap.Default(),
		clients,
		postgresrepo.NewBookingRepo(store),
		pubsub,
		logger,
	)

	router := httpgin.NewCoordinatorRouter(svc, idempotencyStore, limiter, logger)

	return &App{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
		bookingEvents: pubsub,
	}, nil
}

// NewRegion assembles one regional reservation service.
func NewRegion(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg.Region.Name == "" {
		return nil, fmt.Errorf("missing REGION_NAME")
	}

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: postgresDSN(cfg)})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	store := postgresrepo.NewStore(pgxPool)
	matcher := postgresrepo.NewSpatialMatcher(store)

	svc := region.New(cfg.Region.Name, store, matcher, logger)

	router := httpgin.NewRegionRouter(svc, logger)

	return &App{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
	}, nil
}

func postgresDSN(cfg *config.Config) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Name,
		cfg.Postgres.SSLMode,
	)
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

	// The coordinator tails its own booking-status channel so every
	// transition lands in the log even when it was driven by another
	// replica behind the same Redis.
	if a.bookingEvents != nil {
		g.Go(func() error {
			err := a.bookingEvents.Subscribe(gCtx, func(ctx context.Context, bookingID, status string) {
				a.logger.Info("booking status changed", "booking_id", bookingID, "status", status)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("booking events subscription: %w", err)
			}
			return nil
		})
	}

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
