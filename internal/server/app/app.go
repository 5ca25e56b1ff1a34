// Package app wires the terminal authority, its world backend and the HTTP
// transport into one runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/gophstorage/internal/catalog"
	"github.com/iudanet/gophstorage/internal/config"
	"github.com/iudanet/gophstorage/internal/server/audit"
	"github.com/iudanet/gophstorage/internal/server/handlers"
	"github.com/iudanet/gophstorage/internal/server/hub"
	"github.com/iudanet/gophstorage/internal/server/identity"
	"github.com/iudanet/gophstorage/internal/server/middleware"
	"github.com/iudanet/gophstorage/internal/server/storage"
	"github.com/iudanet/gophstorage/internal/server/storage/memory"
	"github.com/iudanet/gophstorage/internal/server/storage/sqlite"
	"github.com/iudanet/gophstorage/internal/server/terminal"
)

const (
	shutdownTimeout = 10 * time.Second
	// tokenRate ограничивает выдачу токенов с одного адреса
	tokenRate   = 20
	tokenWindow = time.Minute
)

var ErrNoSecret = errors.New("identity secret is not configured")

// World is a world backend the server can seed and serve
type World interface {
	storage.World
	storage.Seedable
}

// App is an assembled server
type App struct {
	cfg     *config.Server
	logger  *slog.Logger
	catalog *catalog.Catalog
	world   World
	service *terminal.Service
	limiter *middleware.RateLimiter
	handler http.Handler
	closers []io.Closer
}

// New opens the world, applies the seed and builds the handler tree
func New(ctx context.Context, cfg *config.Server, logger *slog.Logger, version string) (*App, error) {
	if cfg.Identity.Secret == "" {
		return nil, fmt.Errorf("%w: set %s", ErrNoSecret, config.KeyIdentitySecret)
	}

	cat, err := catalog.Load(cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	a := &App{cfg: cfg, logger: logger, catalog: cat}

	a.world, err = OpenWorld(ctx, cfg.World, cat)
	if err != nil {
		return nil, err
	}
	if c, ok := a.world.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	if cfg.World.Seed != "" {
		seed, err := storage.LoadSeed(cfg.World.Seed)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to load seed: %w", err)
		}
		if err := seed.Apply(ctx, a.world); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to apply seed: %w", err)
		}
		logger.Info("World seeded",
			"containers", len(seed.Containers),
			"players", len(seed.Players))
	}

	var world storage.World = a.world
	if cfg.AuditDir != "" {
		drops := audit.NewDropLog(a.world, cfg.AuditDir, logger)
		a.closers = append(a.closers, drops)
		world = drops
	}

	h := hub.New(logger, 0)
	a.service = terminal.NewService(world, cat, terminal.Config{
		ReservationTTL:     cfg.Terminal.ReservationTTL,
		OperationCacheSize: cfg.Terminal.OpCache,
		DefaultRadius:      cfg.Terminal.DefaultRadius,
		MaxRadius:          cfg.Terminal.MaxRadius,
	}, logger,
		terminal.WithIdentityResolver(h),
		terminal.WithPeerRegistry(h),
		terminal.WithPublisher(h),
	)

	dispatcher, err := handlers.NewDispatcher(a.service, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	idCfg := identity.Config{Secret: []byte(cfg.Identity.Secret), TokenTTL: cfg.Identity.TokenTTL}
	a.limiter = middleware.NewRateLimiter(tokenRate, tokenWindow)
	a.handler = handlers.NewRouter(handlers.RouterConfig{
		Logger:   logger,
		Health:   handlers.NewHealthHandler(logger, a.service, version),
		Token:    handlers.NewTokenHandler(logger, a.world, idCfg),
		Session:  handlers.NewSessionHandler(h, dispatcher, logger),
		Limiter:  a.limiter,
		Identity: idCfg,
	})
	return a, nil
}

// OpenWorld opens the configured world backend
func OpenWorld(ctx context.Context, cfg config.World, cat *catalog.Catalog) (World, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(cat), nil
	case config.DriverSQLite:
		st, err := sqlite.New(ctx, cfg.DSN, cat)
		if err != nil {
			return nil, fmt.Errorf("failed to open world database: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w: unknown world driver %q", config.ErrInvalidConfig, cfg.Driver)
	}
}

// Handler returns the HTTP handler tree
func (a *App) Handler() http.Handler {
	return a.handler
}

// Service returns the terminal authority
func (a *App) Service() *terminal.Service {
	return a.service
}

// Maintain runs the periodic tick until ctx is done
func (a *App) Maintain(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Terminal.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.service.Tick(ctx)
			if n := a.limiter.Prune(); n > 0 {
				a.logger.Debug("Rate limiter pruned", "buckets", n)
			}
		}
	}
}

// Run serves HTTP on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.Maintain(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Server listening", "addr", a.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server")
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Close releases the world backend and the audit trail
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
