// ABOUTME: Application wiring for the scheduler
// ABOUTME: Builds backend, realtime hub, store, mutation executor and reconciler from config
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/harperreed/spruce/backend"
	"github.com/harperreed/spruce/charm"
	"github.com/harperreed/spruce/config"
	"github.com/harperreed/spruce/db"
	"github.com/harperreed/spruce/mutation"
	"github.com/harperreed/spruce/realtime"
	"github.com/harperreed/spruce/reconcile"
	"github.com/harperreed/spruce/store"
)

// App holds one running instance of the scheduler core.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Backend    backend.Backend
	Hub        *realtime.Hub
	Store      *store.Store
	Executor   *mutation.Executor
	Reconciler *reconcile.Reconciler

	// Charm is set when the charm backend is in use.
	Charm *charm.Client

	redis  *redis.Client
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

type options struct {
	logger   *zap.Logger
	notifier mutation.Notifier
	open     func(realtime.Publisher) (backend.Backend, error)
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithNotifier replaces the default log notifier.
func WithNotifier(n mutation.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithBackend supplies the backend instead of opening the configured one. open receives
// the publisher the backend must report changes to.
func WithBackend(open func(realtime.Publisher) (backend.Backend, error)) Option {
	return func(o *options) { o.open = open }
}

// New opens the configured backend and starts the realtime bridge when Redis is configured.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.notifier == nil {
		o.notifier = mutation.NewLogNotifier(o.logger)
	}

	a := &App{
		Config: cfg,
		Logger: o.logger,
		Hub:    realtime.NewHub(o.logger.Named("realtime")),
		Store:  store.New(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	publishers := realtime.Publishers{a.Hub}
	var bridge *realtime.RedisBridge
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		bridge = realtime.NewRedisBridge(a.redis, cfg.Redis.Stream, o.logger.Named("bridge"))
		publishers = append(publishers, bridge)
	}

	var err error
	if o.open != nil {
		a.Backend, err = o.open(publishers)
	} else {
		a.Backend, a.Charm, err = OpenBackend(cfg, o.logger, publishers)
	}
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Executor = mutation.New(a.Backend, a.Store,
		mutation.WithLogger(o.logger.Named("mutation")),
		mutation.WithNotifier(o.notifier),
		mutation.WithMaxReminders(cfg.Reminders.MaxPerProspect),
		mutation.WithIncrement(cfg.Ordering.Increment),
	)
	a.Reconciler = reconcile.New(a.Hub, a.Backend, a.Store, reconcile.WithLogger(o.logger.Named("reconcile")))

	if bridge != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := bridge.Run(ctx, a.Hub); err != nil {
				o.logger.Error("realtime bridge exited", zap.Error(err))
			}
		}()
	}

	o.logger.Info("app started",
		zap.String("backend", cfg.Backend),
		zap.Bool("bridge", bridge != nil),
	)
	return a, nil
}

// OpenBackend opens the remote data service named by cfg.Backend. The charm client is
// returned as well for sync commands; it is nil for SQL backends.
func OpenBackend(cfg *config.Config, logger *zap.Logger, events realtime.Publisher) (backend.Backend, *charm.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case config.BackendSQLite, config.BackendPostgres:
		var (
			database *sql.DB
			err      error
		)
		dialect := db.SQLite
		if cfg.Backend == config.BackendPostgres {
			dialect = db.Postgres
			database, err = db.OpenPostgres(cfg.PostgresDSN)
		} else {
			database, err = db.OpenDatabase(cfg.DatabasePath)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s database: %w", cfg.Backend, err)
		}
		return db.NewStore(database, dialect,
			db.WithPublisher(events),
			db.WithLogger(logger.Named("db")),
			db.WithIncrement(cfg.Ordering.Increment),
		), nil, nil

	case config.BackendCharm:
		charmCfg, err := charm.LoadConfig()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load charm config: %w", err)
		}
		client, err := charm.NewClient(charmCfg)
		if err != nil {
			return nil, nil, err
		}
		return charm.NewBackend(client,
			charm.WithPublisher(events),
			charm.WithLogger(logger.Named("charm")),
			charm.WithIncrement(cfg.Ordering.Increment),
		), client, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// Close stops the bridge, unsubscribes every handler and closes the backend.
func (a *App) Close() error {
	var errs []error
	a.once.Do(func() {
		a.cancel()
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
			}
		}
		a.wg.Wait()
		a.Hub.Close()
		if a.Backend != nil {
			if err := a.Backend.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close backend: %w", err))
			}
		}
		_ = a.Logger.Sync()
	})
	return errors.Join(errs...)
}
