// Package metrics exposes engine activity as Prometheus metrics through an
// api.Observer.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/petrijr/sentinel/internal/persistence"
	"github.com/petrijr/sentinel/pkg/api"
	"github.com/petrijr/sentinel/pkg/rule"
)

const namespace = "sentinel"

// Observer records evaluations, violations, consumer progress and worker
// lifecycle on a Prometheus registry.
type Observer struct {
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	violationsTotal    *prometheus.CounterVec
	batchesTotal       *prometheus.CounterVec
	itemsFetchedTotal  *prometheus.CounterVec
	consumerCursor     *prometheus.GaugeVec
	workerStartsTotal  *prometheus.CounterVec
	workerCrashesTotal *prometheus.CounterVec
	workersRunning     prometheus.Gauge
}

var _ api.Observer = (*Observer)(nil)

// New creates and registers the metrics. A nil registry returns nil; a nil
// *Observer records nothing, so it can be passed on as an api.Observer.
func New(registry *prometheus.Registry) *Observer {
	if registry == nil {
		return nil
	}

	m := &Observer{
		evaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "contract",
			Name:      "evaluations_total",
			Help:      "Contract evaluations by outcome",
		}, []string{"frequency", "result"}),

		evaluationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "contract",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent parsing and evaluating a contract",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"frequency"}),

		violationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "contract",
			Name:      "violations_total",
			Help:      "Violation events appended to the log",
		}, []string{"frequency"}),

		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "batches_total",
			Help:      "Batches fetched by queue consumers",
		}, []string{"consumer"}),

		itemsFetchedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "items_fetched_total",
			Help:      "Items fetched by queue consumers",
		}, []string{"consumer"}),

		consumerCursor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "cursor",
			Help:      "Last consumed item id per consumer",
		}, []string{"consumer"}),

		workerStartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "starts_total",
			Help:      "Worker instances started",
		}, []string{"worker"}),

		workerCrashesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "crashes_total",
			Help:      "Worker instances that exited with an error",
		}, []string{"worker"}),

		workersRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "running",
			Help:      "Worker instances currently running",
		}),
	}

	registry.MustRegister(
		m.evaluationsTotal,
		m.evaluationDuration,
		m.violationsTotal,
		m.batchesTotal,
		m.itemsFetchedTotal,
		m.consumerCursor,
		m.workerStartsTotal,
		m.workerCrashesTotal,
		m.workersRunning,
	)

	return m
}

// Result labels of evaluations_total.
const (
	ResultValid       = "valid"
	ResultViolated    = "violated"
	ResultSyntaxError = "syntax_error"
	ResultStoreError  = "store_error"
	ResultError       = "error"
)

func result(valid bool, err error) string {
	switch {
	case err == nil && valid:
		return ResultValid
	case err == nil:
		return ResultViolated
	case errors.Is(err, rule.ErrSyntax), errors.Is(err, rule.ErrInvalidCondition):
		return ResultSyntaxError
	case errors.Is(err, persistence.ErrStorageUnavailable):
		return ResultStoreError
	default:
		return ResultError
	}
}

func (m *Observer) OnEvaluation(ctx context.Context, c *api.Contract, valid bool, err error, d time.Duration) {
	if m == nil {
		return
	}
	freq := string(c.Frequency)
	m.evaluationsTotal.WithLabelValues(freq, result(valid, err)).Inc()
	m.evaluationDuration.WithLabelValues(freq).Observe(d.Seconds())
}

func (m *Observer) OnViolation(ctx context.Context, c *api.Contract, ev api.Event) {
	if m == nil {
		return
	}
	m.violationsTotal.WithLabelValues(string(c.Frequency)).Inc()
}

func (m *Observer) OnBatchFetched(ctx context.Context, consumer string, size int, cursor int64) {
	if m == nil {
		return
	}
	m.batchesTotal.WithLabelValues(consumer).Inc()
	m.itemsFetchedTotal.WithLabelValues(consumer).Add(float64(size))
	m.consumerCursor.WithLabelValues(consumer).Set(float64(cursor))
}

func (m *Observer) OnWorkerStarted(ctx context.Context, name, instanceID string) {
	if m == nil {
		return
	}
	m.workerStartsTotal.WithLabelValues(name).Inc()
	m.workersRunning.Inc()
}

func (m *Observer) OnWorkerStopped(ctx context.Context, name, instanceID string, err error) {
	if m == nil {
		return
	}
	m.workersRunning.Dec()
	if err != nil {
		m.workerCrashesTotal.WithLabelValues(name).Inc()
	}
}
