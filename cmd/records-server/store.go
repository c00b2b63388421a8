package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/elalerce/records/internal/config"
	"github.com/elalerce/records/internal/domain/patient"
	"github.com/elalerce/records/internal/platform/db"
	"github.com/elalerce/records/internal/platform/envelope"
	"github.com/elalerce/records/internal/platform/middleware"
	"github.com/elalerce/records/internal/platform/mongodb"
	"github.com/elalerce/records/internal/platform/retry"
)

const appName = "records-server"

// backend is an opened store: its repository, health check and close func.
type backend struct {
	repo   patient.Repository
	health echo.HandlerFunc
	close  func(context.Context) error
}

// storeHandle is a patient.Repository that delegates to the backend once it
// has been opened. Until then every call fails with middleware.ErrNotReady.
type storeHandle struct {
	driver string
	ready  atomic.Bool

	mu      sync.RWMutex
	backend *backend
}

var _ patient.Repository = (*storeHandle)(nil)

func newStoreHandle(driver string) *storeHandle {
	return &storeHandle{driver: driver}
}

func (h *storeHandle) Ready() bool { return h.ready.Load() }

func (h *storeHandle) set(b *backend) {
	h.mu.Lock()
	h.backend = b
	h.mu.Unlock()
	h.ready.Store(true)
}

func (h *storeHandle) current() (*backend, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.backend == nil {
		return nil, middleware.ErrNotReady
	}
	return h.backend, nil
}

func (h *storeHandle) Create(ctx context.Context, r *patient.Record) error {
	b, err := h.current()
	if err != nil {
		return err
	}
	return b.repo.Create(ctx, r)
}

func (h *storeHandle) GetByID(ctx context.Context, id string) (*patient.Record, error) {
	b, err := h.current()
	if err != nil {
		return nil, err
	}
	return b.repo.GetByID(ctx, id)
}

func (h *storeHandle) Update(ctx context.Context, r *patient.Record) error {
	b, err := h.current()
	if err != nil {
		return err
	}
	return b.repo.Update(ctx, r)
}

func (h *storeHandle) Find(ctx context.Context, f patient.Filter) ([]*patient.Record, error) {
	b, err := h.current()
	if err != nil {
		return nil, err
	}
	return b.repo.Find(ctx, f)
}

// HealthHandler serves /health/store: 503 until the store is open, then the
// driver's own check.
func (h *storeHandle) HealthHandler(c echo.Context) error {
	b, err := h.current()
	if err != nil {
		c.Response().Header().Set("Retry-After", "1")
		return err
	}
	if b.health == nil {
		return envelope.JSON(c, http.StatusOK, db.StoreHealth{Driver: h.driver, Status: "healthy"})
	}
	return b.health(c)
}

// Close releases the backend, if one was opened.
func (h *storeHandle) Close(ctx context.Context) error {
	h.mu.Lock()
	b := h.backend
	h.backend = nil
	h.mu.Unlock()
	h.ready.Store(false)
	if b == nil || b.close == nil {
		return nil
	}
	return b.close(ctx)
}

// opener opens one backend attempt. Each attempt gets its own deadline.
type opener func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backend, error)

func openerFor(driver string) (opener, error) {
	switch driver {
	case config.DriverMongo:
		return openMongo, nil
	case config.DriverPostgres:
		return openPostgres, nil
	case config.DriverMemory:
		return openMemory, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}

// connect retries open until it succeeds or ctx ends, then installs the
// backend on h. It is run in the background by serve.
func (h *storeHandle) connect(ctx context.Context, cfg *config.Config, open opener, p retry.Policy, logger zerolog.Logger) error {
	log := logger.With().Str("driver", h.driver).Logger()
	err := retry.Do(ctx, p, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.StoreConnectTimeout)
		defer cancel()
		b, err := open(attemptCtx, cfg, log)
		if err != nil {
			return err
		}
		h.set(b)
		return nil
	}, func(attempt int, err error, next time.Duration) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", next).Msg("store not reachable")
	})
	if err != nil {
		return err
	}
	log.Info().Msg("store ready")
	return nil
}

func openMongo(ctx context.Context, cfg *config.Config, _ zerolog.Logger) (*backend, error) {
	client, database, err := mongodb.Connect(ctx, mongodb.Options{
		URI:            cfg.MongoURI,
		Database:       cfg.MongoDatabase,
		ConnectTimeout: cfg.StoreConnectTimeout,
		AppName:        appName,
	})
	if err != nil {
		return nil, err
	}
	if err := patient.EnsureMongoIndexes(ctx, database); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return &backend{
		repo:   patient.NewMongoRepo(database),
		health: mongodb.HealthHandler(database),
		close:  client.Disconnect,
	}, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backend, error) {
	pool, err := db.NewPool(ctx, db.PoolOptions{
		URL:            cfg.DatabaseURL,
		MaxConns:       cfg.DBMaxConns,
		MinConns:       cfg.DBMinConns,
		ConnectTimeout: cfg.StoreConnectTimeout,
		AppName:        appName,
	})
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		n, err := db.NewMigrator(pool, cfg.MigrationsDir).Up(ctx)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
		logger.Info().Int("applied", n).Msg("migrations applied")
	}
	return &backend{
		repo:   patient.NewPGRepo(pool),
		health: db.HealthHandler(pool),
		close: func(context.Context) error {
			pool.Close()
			return nil
		},
	}, nil
}

func openMemory(context.Context, *config.Config, zerolog.Logger) (*backend, error) {
	return &backend{repo: patient.NewMemoryRepo()}, nil
}
