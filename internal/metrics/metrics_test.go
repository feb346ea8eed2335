package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/sentinel/internal/persistence"
	"github.com/petrijr/sentinel/pkg/api"
	"github.com/petrijr/sentinel/pkg/rule"
)

func TestNew_NilRegistryIsNilFeature(t *testing.T) {
	assert.Nil(t, New(nil))
}

func TestNilObserver_IsSafeInsideComposite(t *testing.T) {
	ctx := context.Background()
	basic := &api.BasicMetrics{}
	obs := api.NewCompositeObserver(New(nil), basic)
	c := &api.Contract{ID: 1, Frequency: api.FrequencyHourly}

	require.NotPanics(t, func() {
		obs.OnEvaluation(ctx, c, false, nil, time.Millisecond)
		obs.OnViolation(ctx, c, api.Event{ID: 1})
		obs.OnBatchFetched(ctx, "sentinel", 1, 1)
		obs.OnWorkerStarted(ctx, "sentinel", "id")
		obs.OnWorkerStopped(ctx, "sentinel", "id", errors.New("boom"))
	})
	snap := basic.Snapshot()
	assert.EqualValues(t, 1, snap.Evaluations)
	assert.EqualValues(t, 1, snap.Violations)
	assert.EqualValues(t, 1, snap.WorkerCrashes)
}

func TestNew_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotNil(t, New(reg))
	require.Panics(t, func() { New(reg) }, "second registration on the same registry must collide")
}

func TestObserver_EvaluationResults(t *testing.T) {
	m := New(prometheus.NewRegistry())
	ctx := context.Background()
	daily := &api.Contract{ID: 1, Name: "d", Frequency: api.FrequencyDaily}

	m.OnEvaluation(ctx, daily, true, nil, time.Millisecond)
	m.OnEvaluation(ctx, daily, false, nil, time.Millisecond)
	m.OnEvaluation(ctx, daily, false, fmt.Errorf("contract 1: %w", rule.ErrSyntax), 0)
	m.OnEvaluation(ctx, daily, false, fmt.Errorf("range: %w", persistence.ErrStorageUnavailable), 0)
	m.OnEvaluation(ctx, daily, false, errors.New("boom"), 0)

	for _, res := range []string{ResultValid, ResultViolated, ResultSyntaxError, ResultStoreError, ResultError} {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.evaluationsTotal.WithLabelValues("daily", res)), res)
	}
	assert.Equal(t, 1, testutil.CollectAndCount(m.evaluationDuration))
}

func TestObserver_ViolationsAndBatches(t *testing.T) {
	m := New(prometheus.NewRegistry())
	ctx := context.Background()
	c := &api.Contract{ID: 2, Frequency: api.FrequencyAdHoc}

	m.OnViolation(ctx, c, api.Event{ID: 10})
	m.OnViolation(ctx, c, api.Event{ID: 11})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.violationsTotal.WithLabelValues("ad-hoc")))

	m.OnBatchFetched(ctx, "sentinel", 4, 0)
	m.OnBatchFetched(ctx, "sentinel", 2, 4)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.batchesTotal.WithLabelValues("sentinel")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.itemsFetchedTotal.WithLabelValues("sentinel")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.consumerCursor.WithLabelValues("sentinel")))
}

func TestObserver_WorkerLifecycle(t *testing.T) {
	m := New(prometheus.NewRegistry())
	ctx := context.Background()

	m.OnWorkerStarted(ctx, "sentinel", "a")
	m.OnWorkerStarted(ctx, "sweeper", "b")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.workersRunning))

	m.OnWorkerStopped(ctx, "sentinel", "a", errors.New("panic"))
	m.OnWorkerStopped(ctx, "sweeper", "b", nil)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.workersRunning))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workerCrashesTotal.WithLabelValues("sentinel")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.workerCrashesTotal.WithLabelValues("sweeper")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workerStartsTotal.WithLabelValues("sweeper")))
}
