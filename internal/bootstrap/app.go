package bootstrap

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"budgetsync/internal/backend"
	"budgetsync/internal/cache"
	"budgetsync/internal/config"
	"budgetsync/internal/log"
	"budgetsync/internal/session"
	"budgetsync/internal/store"
)

// App is the process-wide set of stores and the backends behind them.
type App struct {
	Config      *config.Config
	Logger      *log.Logger
	Backend     *backend.Result
	Session     *session.Store
	Budgets     *store.Budgets
	Categories  *store.Categories
	Coordinator *Coordinator

	caches    *cache.Manager
	cancel    context.CancelFunc
	stopWatch func()
}

// New creates the backends described by cfg and wires the stores to them.
func New(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}
	return NewWithBackend(cfg, logger, res), nil
}

// NewWithBackend wires the stores to an existing backend.
func NewWithBackend(cfg *config.Config, logger *log.Logger, res *backend.Result) *App {
	if logger == nil {
		logger = log.Discard()
	}
	scfg := store.CollectionConfig{
		CacheSize: cfg.SelectorCacheSize,
		CacheTTL:  cfg.SelectorCacheTTL,
		Logger:    logger,
	}

	a := &App{
		Config:     cfg,
		Logger:     logger.WithComponent(log.ComponentApp),
		Backend:    res,
		Session:    session.New(res.Client, res.Storage, logger),
		Budgets:    store.NewBudgets(res.Client, scfg),
		Categories: store.NewCategories(res.Client, scfg),
		caches:     cache.NewManager(logger),
	}
	a.Coordinator = NewCoordinator(a.Session, a.Categories, logger)

	a.caches.Register(a.Budgets.Memo())
	a.caches.Register(a.Categories.Memo())
	a.caches.StartCleanup(cfg.SelectorCacheTTL)

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	if pub := res.Publisher; pub != nil {
		observe := pub.Observer()
		a.Session.Observe(observe)
		a.Budgets.Observe(observe)
		a.Categories.Observe(observe)
		pub.Start(ctx)
	}
	return a
}

// Start runs the bootstrap sequence, then keeps categories loaded across
// later sign-ins.
func (a *App) Start(ctx context.Context) error {
	err := a.Coordinator.Start(ctx)
	if a.stopWatch == nil {
		a.stopWatch = a.Coordinator.Watch(context.WithoutCancel(ctx))
	}
	return err
}

// Refresh re-fetches budgets and categories concurrently.
func (a *App) Refresh(ctx context.Context) error {
	if a.Session.Phase() != session.Authenticated {
		return session.ErrNotAuthenticated
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := a.Budgets.FetchAll(ctx)
		return err
	})
	g.Go(func() error {
		_, err := a.Categories.FetchAll(ctx)
		return err
	})
	return g.Wait()
}

// Close stops background work and releases the backends.
func (a *App) Close() error {
	if a.stopWatch != nil {
		a.stopWatch()
	}
	a.Coordinator.Wait()
	a.caches.Stop()
	defer a.cancel()
	if a.Backend.Cleanup == nil {
		return nil
	}
	if err := a.Backend.Cleanup(); err != nil {
		a.Logger.Warn("Backend cleanup failed", log.FieldOperation, log.OpShutdown, log.FieldError, err)
		return err
	}
	return nil
}
