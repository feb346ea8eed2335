package sentinel

import (
	"database/sql"

	"github.com/petrijr/sentinel/pkg/supervisor"
)

// Bundle wires a Store to a Supervisor that owns the built-in workers.
type Bundle struct {
	Store      Store
	Supervisor *supervisor.Supervisor
}

// BundleOptions selects which built-in workers start enabled.
type BundleOptions struct {
	Worker          WorkerConfig
	SentinelEnabled bool
	SweeperEnabled  bool
}

// DefaultBundleOptions enables both workers with default worker settings.
func DefaultBundleOptions() BundleOptions {
	return BundleOptions{SentinelEnabled: true, SweeperEnabled: true}
}

// NewBundle registers the Sentinel and Sweeper blueprints on a new Supervisor
// running against store. Nothing is started.
//
// Typical usage:
//
//	b, err := sentinel.NewBundle(store, sentinel.DefaultBundleOptions())
//	_ = b.Supervisor.StartEnabled()
//	go b.Supervisor.Watch(ctx, 10*time.Second)
//	...
//	_ = b.Supervisor.Shutdown(ctx)
func NewBundle(store Store, opts BundleOptions) (*Bundle, error) {
	cfg := opts.Worker
	cfg.Store = store

	sup := supervisor.New(
		supervisor.WithObserver(cfg.Observer),
		supervisor.WithLogger(cfg.Logger),
	)
	for _, bp := range Blueprints(cfg, opts.SentinelEnabled, opts.SweeperEnabled) {
		if err := sup.Register(bp); err != nil {
			return nil, err
		}
	}
	return &Bundle{Store: store, Supervisor: sup}, nil
}

// NewSQLiteBundle constructs a durable Store and Supervisor sharing the same
// SQLite database.
//
//	db, _ := sql.Open("sqlite", "file:sentinel.db?_pragma=busy_timeout(5000)")
//	bundle, err := sentinel.NewSQLiteBundle(db, sentinel.DefaultBundleOptions())
func NewSQLiteBundle(db *sql.DB, opts BundleOptions) (*Bundle, error) {
	store, err := NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return NewBundle(store, opts)
}
