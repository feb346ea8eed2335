package sentinel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/petrijr/sentinel/pkg/supervisor"
)

// LocalRunner bundles an in-memory Store and a Supervisor running the
// Sentinel and the Sweeper to provide a simple single-process setup for
// development and tests.
//
// Typical usage:
//
//	runner := sentinel.NewLocalRunner(sentinel.DefaultBundleOptions())
//	_, _ = runner.AddContract(ctx, &sentinel.Contract{...})
//	_ = runner.Start(ctx)
//	_, _ = runner.Log(ctx, sentinel.NewEvent("exercise", time.Now(), ""))
//	...
//	runner.Stop()
type LocalRunner struct {
	// Store is the in-memory store shared by the workers.
	Store Store

	// Supervisor owns the workers.
	Supervisor *supervisor.Supervisor

	// WatchInterval is how often dead workers are resurrected while running.
	WatchInterval time.Duration

	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory store.
func NewLocalRunner(opts BundleOptions) *LocalRunner {
	b, err := NewBundle(NewInMemoryStore(), opts)
	if err != nil {
		// Blueprint names are constants; registration cannot collide.
		panic(err)
	}
	logger := opts.Worker.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalRunner{
		Store:         b.Store,
		Supervisor:    b.Supervisor,
		WatchInterval: time.Second,
		logger:        logger,
	}
}

// Start runs the enabled workers and a watcher that resurrects crashed ones
// until Stop.
//
// If Start is called more than once without Stop, it returns an error.
func (r *LocalRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("sentinel: LocalRunner already started")
	}
	if err := r.Supervisor.StartEnabled(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.Supervisor.Watch(ctx, r.WatchInterval)
	}()
	return nil
}

// Stop shuts the workers down and waits for them to exit. The runner cannot
// be restarted afterwards.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()

	ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := r.Supervisor.Shutdown(ctx); err != nil {
		r.logger.Error("local_runner_shutdown", slog.Any("error", err))
	}
}

// Log appends ev to the runner's event log.
func (r *LocalRunner) Log(ctx context.Context, ev Event) (int64, error) {
	return LogEvent(ctx, r.Store, ev)
}

// AddContract stores c in the runner's contract table.
func (r *LocalRunner) AddContract(ctx context.Context, c *Contract) (int64, error) {
	return AddContract(ctx, r.Store, c)
}
