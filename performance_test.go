package sentinel

import (
	"context"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/sentinel/pkg/evaluator"
	"github.com/petrijr/sentinel/pkg/rule"
)

// TestEvaluationOverheadUnder5ms checks that judging a compound contract
// against a day of dense history stays well below the consumer poll interval.
func TestEvaluationOverheadUnder5ms(t *testing.T) {
	if testing.Short() {
		t.Skip("performance test")
	}
	ctx := context.Background()
	store := NewInMemoryStore()

	// One event per 10s over 24h, alternating types.
	end := time.Date(2024, 6, 1, 22, 0, 0, 0, time.UTC)
	start := end.Add(-24 * time.Hour)
	types := []string{"step", "coffee", "sleep", "exercise"}
	i := 0
	for at := start; at.Before(end); at = at.Add(10 * time.Second) {
		_, err := LogEvent(ctx, store, NewEvent(types[i%len(types)], at, ""))
		require.NoError(t, err)
		i++
	}

	r, err := rule.ParseRule("gaming AFTER 1000x step WITHIN 24h AND NOT (coffee SINCE sleep) OR 2x exercise WITHIN 1h AND CLOCK(2200) BETWEEN CLOCK(0600)")
	require.NoError(t, err)

	eval := evaluator.New(store.Events, evaluator.WithLocation(time.UTC), evaluator.WithLogger(quietLogger()))
	trigger := NewEvent("gaming", end, "")

	// Warm-up run to avoid measuring one-time costs.
	_, err = eval.EvaluateOnTrigger(ctx, r.Condition, trigger)
	require.NoError(t, err)

	const N = 50
	begin := time.Now()
	for n := 0; n < N; n++ {
		_, err := eval.EvaluateOnTrigger(ctx, r.Condition, trigger)
		require.NoError(t, err)
	}
	avg := time.Since(begin) / N

	if avg >= 5*time.Millisecond {
		t.Fatalf("average evaluation too slow: %v over %d events", avg, i)
	}
}

// TestMinimalMemoryFootprintUnder5MB checks that an idle local runner stays
// under ~5MB of retained heap.
func TestMinimalMemoryFootprintUnder5MB(t *testing.T) {
	runtime.GC()
	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	runner := NewLocalRunner(fastOptions(nil))
	// Keep runner alive until after measurement.
	runtime.KeepAlive(runner)

	runtime.GC()
	var after runtime.MemStats
	runtime.ReadMemStats(&after)

	const fiveMB = 5 * 1024 * 1024
	used := int64(after.HeapAlloc) - int64(before.HeapAlloc)
	if used < 0 {
		used = 0 // be robust to minor fluctuations
	}
	if used >= fiveMB {
		t.Fatalf("minimal memory footprint too high: %s", fmt.Sprintf("%d bytes (>= %d)", used, fiveMB))
	}
}
