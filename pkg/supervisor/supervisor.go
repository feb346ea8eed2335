// Package supervisor manages the lifecycle of long-running workers.
//
// Each worker is registered as a Blueprint: a name, an enabled default and a
// factory. Workers are single-use, so when a worker's execution unit has
// terminated, Run discards it and builds a fresh one from the blueprint. Every
// unit gets its own InstanceID, which makes recreation observable.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/petrijr/sentinel/pkg/api"
	"github.com/petrijr/sentinel/pkg/worker"
)

var (
	// ErrUnknownWorker is returned for names that were never registered.
	ErrUnknownWorker = errors.New("supervisor: unknown worker")

	// ErrDuplicateWorker is returned when a name is registered twice.
	ErrDuplicateWorker = errors.New("supervisor: duplicate worker")

	// ErrWorkerDisabled is returned by Run on a disabled worker.
	ErrWorkerDisabled = errors.New("supervisor: worker disabled")

	// ErrRestartFailed is returned when a unit cannot be built or started
	// from its blueprint.
	ErrRestartFailed = errors.New("supervisor: restart failed")

	// ErrClosed is returned after Shutdown.
	ErrClosed = errors.New("supervisor: closed")
)

// Factory builds a fresh, unstarted worker.
type Factory func() (worker.Worker, error)

// Blueprint is everything needed to (re)create a worker.
type Blueprint struct {
	Name    string
	Enabled bool
	New     Factory
}

// State is the externally visible lifecycle state of a worker.
type State string

const (
	StateDisabled State = "disabled"
	StateStopped  State = "enabled-stopped"
	StateRunning  State = "enabled-running"
)

// Status is a point-in-time view of one worker.
type Status struct {
	Name    string
	Enabled bool
	// Running reports whether the current unit's goroutine is alive. A
	// disabled worker may still be running while it shuts down.
	Running    bool
	State      State
	InstanceID string
}

type entry struct {
	blueprint     Blueprint
	enabled       bool
	unit          worker.Worker
	instanceID    string
	stopRequested bool
	// restartPending is set when Run is called while a stopped unit is
	// still draining; the unit's exit watcher then starts a fresh one.
	restartPending bool
}

func (e *entry) running() bool {
	return e.unit != nil && e.unit.IsRunning()
}

// Supervisor owns a set of workers. It only issues control operations; worker
// logic always runs on the workers' own goroutines.
type Supervisor struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	closed  bool

	base     context.Context
	cancel   context.CancelFunc
	watchers sync.WaitGroup

	observer api.Observer
	logger   *slog.Logger
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithObserver sets the observer notified of worker starts and stops.
func WithObserver(obs api.Observer) Option {
	return func(s *Supervisor) {
		if obs != nil {
			s.observer = obs
		}
	}
}

// WithLogger sets the logger. If nil, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an empty Supervisor.
func New(opts ...Option) *Supervisor {
	base, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		entries:  make(map[string]*entry),
		base:     base,
		cancel:   cancel,
		observer: api.NoopObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a blueprint. It does not start the worker.
func (s *Supervisor) Register(bp Blueprint) error {
	if bp.Name == "" {
		return errors.New("supervisor: blueprint name is required")
	}
	if bp.New == nil {
		return fmt.Errorf("supervisor: blueprint %q has no factory", bp.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, ok := s.entries[bp.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateWorker, bp.Name)
	}
	s.entries[bp.Name] = &entry{blueprint: bp, enabled: bp.Enabled}
	s.order = append(s.order, bp.Name)
	return nil
}

// Enable marks a worker as enabled. It does not start it. Enabling an enabled
// worker is a no-op.
func (s *Supervisor) Enable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	e.enabled = true
	return nil
}

// Disable marks a worker as disabled, requesting a stop of its unit first.
func (s *Supervisor) Disable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	s.requestStop(e)
	e.enabled = false
	return nil
}

// Run starts an enabled worker. A running worker is left alone; a terminated
// one is replaced by a fresh unit from its blueprint. If the current unit was
// asked to stop but has not exited yet, a fresh unit is started as soon as it
// does.
func (s *Supervisor) Run(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	if !e.enabled {
		return fmt.Errorf("%w: %s", ErrWorkerDisabled, name)
	}
	return s.run(e)
}

func (s *Supervisor) run(e *entry) error {
	if e.running() {
		if e.stopRequested {
			e.stopRequested = false
			e.restartPending = true
			s.logger.Info("worker_restart_pending",
				slog.String("worker", e.blueprint.Name),
				slog.String("instance_id", e.instanceID),
			)
		}
		return nil
	}
	e.stopRequested = false
	e.restartPending = false

	if e.unit != nil {
		err := e.unit.Start(s.base)
		switch {
		case err == nil:
			s.started(e)
			return nil
		case errors.Is(err, worker.ErrAlreadyStarted):
			return nil
		case !errors.Is(err, worker.ErrWorkerTerminated):
			return fmt.Errorf("%w: %s: %w", ErrRestartFailed, e.blueprint.Name, err)
		}
		s.logger.Info("worker_recreating",
			slog.String("worker", e.blueprint.Name),
			slog.String("previous_instance_id", e.instanceID),
		)
	}

	unit, err := e.blueprint.New()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRestartFailed, e.blueprint.Name, err)
	}
	if unit == nil {
		return fmt.Errorf("%w: %s: factory returned nil", ErrRestartFailed, e.blueprint.Name)
	}
	if err := unit.Start(s.base); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRestartFailed, e.blueprint.Name, err)
	}
	e.unit = unit
	e.instanceID = uuid.NewString()
	s.started(e)
	return nil
}

// started records a freshly started unit and watches for its exit.
func (s *Supervisor) started(e *entry) {
	name, id, unit := e.blueprint.Name, e.instanceID, e.unit
	s.observer.OnWorkerStarted(s.base, name, id)

	s.watchers.Add(1)
	go func() {
		defer s.watchers.Done()
		<-unit.Done()
		s.observer.OnWorkerStopped(context.Background(), name, id, unit.Err())
		s.restartDrained(e, unit)
	}()
}

// restartDrained starts a fresh unit for e once unit has exited, if Run asked
// for one while unit was draining.
func (s *Supervisor) restartDrained(e *entry, unit worker.Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || e.unit != unit || !e.restartPending {
		return
	}
	e.restartPending = false
	if !e.enabled || e.stopRequested {
		return
	}
	if err := s.run(e); err != nil {
		s.logger.Error("worker_restart_failed", slog.String("worker", e.blueprint.Name), slog.Any("error", err))
	}
}

// Stop asks a running worker to exit. It returns without waiting.
func (s *Supervisor) Stop(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	s.requestStop(e)
	return nil
}

func (s *Supervisor) requestStop(e *entry) {
	e.stopRequested = true
	e.restartPending = false
	if e.unit != nil {
		e.unit.RequestStop()
	}
}

// Status reports the state of one worker.
func (s *Supervisor) Status(name string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(name)
	if err != nil {
		return Status{}, err
	}
	return statusOf(e), nil
}

// List reports every worker in registration order.
func (s *Supervisor) List() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, statusOf(s.entries[name]))
	}
	return out
}

func statusOf(e *entry) Status {
	st := Status{
		Name:       e.blueprint.Name,
		Enabled:    e.enabled,
		Running:    e.running(),
		InstanceID: e.instanceID,
	}
	switch {
	case !st.Enabled:
		st.State = StateDisabled
	case st.Running:
		st.State = StateRunning
	default:
		st.State = StateStopped
	}
	return st
}

// StartEnabled runs every enabled worker. Failures are joined; the other
// workers are still started.
func (s *Supervisor) StartEnabled() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	var errs []error
	for _, name := range s.order {
		e := s.entries[name]
		if !e.enabled {
			continue
		}
		if err := s.run(e); err != nil {
			s.logger.Error("worker_start_failed", slog.String("worker", name), slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Watch resurrects enabled workers whose unit died without being asked to
// stop. It blocks until ctx is done.
func (s *Supervisor) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.base.Done():
			return nil
		case <-ticker.C:
			s.resurrect()
		}
	}
}

func (s *Supervisor) resurrect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	for _, name := range s.order {
		e := s.entries[name]
		if !e.enabled || e.unit == nil || e.stopRequested || e.running() {
			continue
		}
		s.logger.Warn("worker_died",
			slog.String("worker", name),
			slog.String("instance_id", e.instanceID),
			slog.Any("error", e.unit.Err()),
		)
		if err := s.run(e); err != nil {
			s.logger.Error("worker_resurrect_failed", slog.String("worker", name), slog.Any("error", err))
		}
	}
}

// Shutdown stops every worker and waits for them to exit or for ctx to end.
// The supervisor cannot be reused afterwards.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	var units []worker.Worker
	for _, name := range s.order {
		e := s.entries[name]
		e.stopRequested = true
		if e.unit != nil {
			units = append(units, e.unit)
		}
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, u := range units {
		g.Go(func() error {
			return worker.Stop(gctx, u)
		})
	}
	err := g.Wait()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.watchers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (s *Supervisor) lookup(name string) (*entry, error) {
	e, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, name)
	}
	return e, nil
}
