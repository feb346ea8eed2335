package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from workers and the evaluator pipeline for
// logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay the consumer loops.
type Observer interface {
	// OnEvaluation is called after a contract has been judged. err is non-nil
	// when the contract could not be evaluated (parse or storage failure);
	// valid is false in that case.
	OnEvaluation(ctx context.Context, c *Contract, valid bool, err error, d time.Duration)

	// OnViolation is called after a violation event has been appended.
	OnViolation(ctx context.Context, c *Contract, ev Event)

	// OnBatchFetched is called when a queue consumer refills its buffer.
	OnBatchFetched(ctx context.Context, consumer string, size int, cursor int64)

	// OnWorkerStarted is called when a worker's goroutine begins.
	OnWorkerStarted(ctx context.Context, name, instanceID string)

	// OnWorkerStopped is called when a worker's goroutine exits. err is
	// non-nil when the loop died unexpectedly.
	OnWorkerStopped(ctx context.Context, name, instanceID string, err error)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnEvaluation(ctx context.Context, c *Contract, valid bool, err error, d time.Duration) {
}
func (NoopObserver) OnViolation(ctx context.Context, c *Contract, ev Event)                        {}
func (NoopObserver) OnBatchFetched(ctx context.Context, consumer string, size int, cursor int64)  {}
func (NoopObserver) OnWorkerStarted(ctx context.Context, name, instanceID string)                 {}
func (NoopObserver) OnWorkerStopped(ctx context.Context, name, instanceID string, err error)      {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnEvaluation(ctx context.Context, ct *Contract, valid bool, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnEvaluation(ctx, ct, valid, err, d)
	}
}

func (c *CompositeObserver) OnViolation(ctx context.Context, ct *Contract, ev Event) {
	for _, o := range c.observers {
		o.OnViolation(ctx, ct, ev)
	}
}

func (c *CompositeObserver) OnBatchFetched(ctx context.Context, consumer string, size int, cursor int64) {
	for _, o := range c.observers {
		o.OnBatchFetched(ctx, consumer, size, cursor)
	}
}

func (c *CompositeObserver) OnWorkerStarted(ctx context.Context, name, instanceID string) {
	for _, o := range c.observers {
		o.OnWorkerStarted(ctx, name, instanceID)
	}
}

func (c *CompositeObserver) OnWorkerStopped(ctx context.Context, name, instanceID string, err error) {
	for _, o := range c.observers {
		o.OnWorkerStopped(ctx, name, instanceID, err)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs evaluation and worker
// lifecycle events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnEvaluation(ctx context.Context, c *Contract, valid bool, err error, d time.Duration) {
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "contract_evaluated",
		slog.Int64("contract_id", c.ID),
		slog.String("contract", c.Name),
		slog.Bool("valid", valid),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnViolation(ctx context.Context, c *Contract, ev Event) {
	o.Logger.WarnContext(ctx, "contract_violated",
		slog.Int64("contract_id", c.ID),
		slog.String("contract", c.Name),
		slog.String("frequency", string(c.Frequency)),
		slog.Int64("event_id", ev.ID),
	)
}

func (o *LoggingObserver) OnBatchFetched(ctx context.Context, consumer string, size int, cursor int64) {
	o.Logger.DebugContext(ctx, "batch_fetched",
		slog.String("consumer", consumer),
		slog.Int("size", size),
		slog.Int64("cursor", cursor),
	)
}

func (o *LoggingObserver) OnWorkerStarted(ctx context.Context, name, instanceID string) {
	o.Logger.InfoContext(ctx, "worker_started",
		slog.String("worker", name),
		slog.String("instance_id", instanceID),
	)
}

func (o *LoggingObserver) OnWorkerStopped(ctx context.Context, name, instanceID string, err error) {
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "worker_stopped",
		slog.String("worker", name),
		slog.String("instance_id", instanceID),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate evaluation durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	evaluations     atomic.Int64
	evaluationFails atomic.Int64
	violations      atomic.Int64
	batches         atomic.Int64
	itemsFetched    atomic.Int64
	workerCrashes   atomic.Int64
	totalEvalNanos  atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	Evaluations     int64
	EvaluationFails int64
	Violations      int64
	Batches         int64
	ItemsFetched    int64
	WorkerCrashes   int64
	AvgEvaluation   time.Duration
}

func (m *BasicMetrics) OnEvaluation(ctx context.Context, c *Contract, valid bool, err error, d time.Duration) {
	m.evaluations.Add(1)
	m.totalEvalNanos.Add(d.Nanoseconds())
	if err != nil {
		m.evaluationFails.Add(1)
	}
}

func (m *BasicMetrics) OnViolation(ctx context.Context, c *Contract, ev Event) {
	m.violations.Add(1)
}

func (m *BasicMetrics) OnBatchFetched(ctx context.Context, consumer string, size int, cursor int64) {
	m.batches.Add(1)
	m.itemsFetched.Add(int64(size))
}

func (m *BasicMetrics) OnWorkerStopped(ctx context.Context, name, instanceID string, err error) {
	if err != nil {
		m.workerCrashes.Add(1)
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	evals := m.evaluations.Load()
	totalNs := m.totalEvalNanos.Load()

	var avg time.Duration
	if evals > 0 {
		avg = time.Duration(totalNs / evals)
	}

	return BasicMetricsSnapshot{
		Evaluations:     evals,
		EvaluationFails: m.evaluationFails.Load(),
		Violations:      m.violations.Load(),
		Batches:         m.batches.Load(),
		ItemsFetched:    m.itemsFetched.Load(),
		WorkerCrashes:   m.workerCrashes.Load(),
		AvgEvaluation:   avg,
	}
}
