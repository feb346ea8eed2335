package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petrijr/sentinel/internal/persistence"
	"github.com/petrijr/sentinel/internal/qprocessor"
	"github.com/petrijr/sentinel/pkg/api"
	"github.com/petrijr/sentinel/pkg/evaluator"
)

var (
	// ErrWorkerTerminated is returned by Start on a worker whose loop has
	// already exited (or was stopped before it started).
	ErrWorkerTerminated = errors.New("worker: terminated")

	// ErrAlreadyStarted is returned by Start on a running worker.
	ErrAlreadyStarted = errors.New("worker: already started")
)

// Worker is a long-running, single-use execution unit.
type Worker interface {
	Name() string
	Start(ctx context.Context) error
	RequestStop()
	IsRunning() bool
	Done() <-chan struct{}
	// Err returns why the loop exited. It is nil after a clean stop.
	Err() error
}

// Config holds the dependencies and tuning shared by the workers.
type Config struct {
	// Name identifies the worker; the Sentinel also uses it as its cursor name.
	Name string

	Store     persistence.Persistence
	Evaluator *evaluator.Evaluator
	// Location is the time zone of CLOCK checks when Evaluator is nil.
	Location *time.Location

	// Queue tunes the Sentinel's event consumer.
	Queue qprocessor.Config
	// ExcludedEventTypes are never treated as triggers. Nil means
	// api.EventTypeContractInvalidation only; an empty, non-nil slice
	// excludes nothing.
	ExcludedEventTypes []string

	// SweepInterval is how often the Sweeper looks for due open contracts.
	SweepInterval time.Duration

	Observer api.Observer
	Logger   *slog.Logger
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

const (
	DefaultSentinelName  = "sentinel"
	DefaultSweeperName   = "sweeper"
	DefaultSweepInterval = time.Minute
)

func (c Config) withDefaults(name string) Config {
	if c.Name == "" {
		c.Name = name
	}
	if c.Observer == nil {
		c.Observer = api.NoopObserver{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Evaluator == nil {
		c.Evaluator = evaluator.New(c.Store.Events,
			evaluator.WithLocation(c.Location),
			evaluator.WithLogger(c.Logger),
		)
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.ExcludedEventTypes == nil {
		c.ExcludedEventTypes = []string{api.EventTypeContractInvalidation}
	}
	c.Queue.Logger = c.Logger
	c.Queue.Observer = c.Observer
	return c
}

// loop is the single-use goroutine shared by all workers.
type loop struct {
	name   string
	run    func(ctx context.Context) error
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	err     error

	alive atomic.Bool
	done  chan struct{}
}

func newLoop(name string, logger *slog.Logger, run func(ctx context.Context) error) *loop {
	return &loop{
		name:   name,
		run:    run,
		logger: logger.With(slog.String("worker", name)),
		done:   make(chan struct{}),
	}
}

func (l *loop) Name() string {
	return l.name
}

func (l *loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped || (l.started && !l.alive.Load()) {
		return ErrWorkerTerminated
	}
	if l.started {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.started = true
	l.alive.Store(true)

	go l.main(ctx)
	return nil
}

func (l *loop) main(ctx context.Context) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker %s: panic: %v", l.name, r)
			l.logger.Error("worker_panic",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}

		l.mu.Lock()
		l.err = err
		l.cancel()
		l.mu.Unlock()

		l.alive.Store(false)
		close(l.done)
	}()

	l.logger.InfoContext(ctx, "worker_loop_started")
	err = l.run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	l.logger.InfoContext(ctx, "worker_loop_exited", slog.Any("error", err))
}

func (l *loop) RequestStop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopped = true
	if l.cancel != nil {
		l.cancel()
	}
}

func (l *loop) IsRunning() bool {
	return l.alive.Load()
}

func (l *loop) Done() <-chan struct{} {
	return l.done
}

func (l *loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Stop requests a stop and waits for the loop to exit or ctx to end.
func Stop(ctx context.Context, w Worker) error {
	w.RequestStop()
	if !w.IsRunning() {
		return nil
	}
	select {
	case <-w.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewFunc wraps run as a single-use Worker. run must return once ctx is done.
// It is the building block for workers other than Sentinel and Sweeper.
func NewFunc(name string, logger *slog.Logger, run func(ctx context.Context) error) Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return newLoop(name, logger, run)
}
