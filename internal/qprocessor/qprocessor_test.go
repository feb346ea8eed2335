package qprocessor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/sentinel/internal/persistence"
	"github.com/petrijr/sentinel/pkg/api"
)

var fastConfig = Config{
	BatchSize:     2,
	PollInterval:  5 * time.Millisecond,
	RetryInterval: 5 * time.Millisecond,
}

func seed(t *testing.T, store *persistence.InMemoryStore, types ...string) {
	t.Helper()
	for i, typ := range types {
		_, err := store.Append(context.Background(), &api.Event{EventType: typ, Timestamp: int64(i + 1)})
		require.NoError(t, err)
	}
}

func TestNext_DeliversInOrderAcrossBatches(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewInMemoryStore()
	seed(t, store, "a", "b", "c", "d", "e")

	p := New[api.Event]("sentinel", store, store, nil, fastConfig)
	for want := int64(1); want <= 5; want++ {
		ev, err := p.Next(ctx)
		require.NoError(t, err)
		require.Equal(t, want, ev.ID)
	}
	require.EqualValues(t, 5, p.Cursor())

	// The refill before the third batch persisted the cursor of the second.
	stats, err := store.LoadOrCreate(ctx, "sentinel")
	require.NoError(t, err)
	require.EqualValues(t, 4, stats.LastConsumedID)
}

func TestRestart_NeitherRedeliversNorSkips(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewInMemoryStore()
	seed(t, store, "a", "b", "c", "d", "e")

	first := New[api.Event]("sentinel", store, store, nil, fastConfig)
	for i := 0; i < 3; i++ {
		_, err := first.Next(ctx)
		require.NoError(t, err)
	}
	require.NoError(t, first.Checkpoint(ctx))

	second := New[api.Event]("sentinel", store, store, nil, fastConfig)
	var got []int64
	for i := 0; i < 2; i++ {
		ev, err := second.Next(ctx)
		require.NoError(t, err)
		got = append(got, ev.ID)
	}
	require.Equal(t, []int64{4, 5}, got)
}

func TestCursorsAreIndependentPerName(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewInMemoryStore()
	seed(t, store, "a", "b")

	a := New[api.Event]("a", store, store, nil, fastConfig)
	b := New[api.Event]("b", store, store, nil, fastConfig)

	ev, err := a.Next(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, ev.ID)
	ev, err = a.Next(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, ev.ID)
	require.NoError(t, a.Checkpoint(ctx))

	ev, err = b.Next(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, ev.ID)
}

func TestFilter_SkipsButAdvancesCursor(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewInMemoryStore()
	seed(t, store, "keep", api.EventTypeContractInvalidation, api.EventTypeContractInvalidation, "keep")

	p := New[api.Event]("sentinel", store, store, func(ev api.Event) bool {
		return ev.EventType != api.EventTypeContractInvalidation
	}, fastConfig)

	ev, err := p.Next(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, ev.ID)

	ev, err = p.Next(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 4, ev.ID)
	require.EqualValues(t, 4, p.Cursor())
}

func TestNext_IdleWaitHonoursCancellation(t *testing.T) {
	store := persistence.NewInMemoryStore()
	p := New[api.Event]("idle", store, store, nil, Config{PollInterval: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNext_PicksUpItemsAppendedWhileIdle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	store := persistence.NewInMemoryStore()
	p := New[api.Event]("late", store, store, nil, fastConfig)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = store.Append(context.Background(), &api.Event{EventType: "late", Timestamp: 1})
	}()

	ev, err := p.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "late", ev.EventType)
}

// flakySource fails the first failures calls to ItemsAfter.
type flakySource struct {
	mu       sync.Mutex
	failures int
	calls    int
	inner    Source[api.Event]
}

func (f *flakySource) ItemsAfter(ctx context.Context, lastID int64, limit int) ([]api.Event, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("items after: %w", persistence.ErrStorageUnavailable)
	}
	return f.inner.ItemsAfter(ctx, lastID, limit)
}

func TestNext_RetriesAfterStorageError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	store := persistence.NewInMemoryStore()
	seed(t, store, "a")

	src := &flakySource{failures: 2, inner: store}
	p := New[api.Event]("flaky", src, store, nil, fastConfig)

	ev, err := p.Next(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, ev.ID)
	require.Equal(t, 3, src.calls)
}

func TestRun_HandlerErrorsDoNotStallAndShutdownSavesCursor(t *testing.T) {
	store := persistence.NewInMemoryStore()
	seed(t, store, "a", "b", "c")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen []int64
	)
	p := New[api.Event]("runner", store, store, nil, fastConfig)
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, func(_ context.Context, ev api.Event) error {
			mu.Lock()
			seen = append(seen, ev.ID)
			n := len(seen)
			mu.Unlock()
			if n == 3 {
				cancel()
			}
			if ev.ID == 2 {
				return errors.New("poison")
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	require.Equal(t, []int64{1, 2, 3}, seen)
	stats, err := store.LoadOrCreate(context.Background(), "runner")
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.LastConsumedID)
}

func TestStartAtLatest_SkipsBacklogOnlyForNewCursor(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	store := persistence.NewInMemoryStore()
	seed(t, store, "old", "old")

	cfg := fastConfig
	cfg.StartAtLatest = true
	p := New[api.Event]("head", store, store, nil, cfg)

	_, err := store.Append(ctx, &api.Event{EventType: "trigger-load", Timestamp: 3})
	require.NoError(t, err)

	// Cursor is resolved lazily on first Next, so the third event is part of
	// the skipped backlog too.
	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = store.Append(context.Background(), &api.Event{EventType: "new", Timestamp: 4})
	}()

	ev, err := p.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "new", ev.EventType)

	// A persisted non-zero cursor wins over StartAtLatest.
	require.NoError(t, store.Save(ctx, api.QueueStats{Name: "resume", LastConsumedID: 1}))
	resumed := New[api.Event]("resume", store, store, nil, cfg)
	ev, err = resumed.Next(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, ev.ID)
}

type recordingObserver struct {
	api.NoopObserver
	mu      sync.Mutex
	batches []int
}

func (o *recordingObserver) OnBatchFetched(_ context.Context, _ string, size int, _ int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.batches = append(o.batches, size)
}

func TestObserverSeesBatches(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewInMemoryStore()
	seed(t, store, "a", "b", "c")

	obs := &recordingObserver{}
	cfg := fastConfig
	cfg.Observer = obs
	p := New[api.Event]("observed", store, store, nil, cfg)
	for i := 0; i < 3; i++ {
		_, err := p.Next(ctx)
		require.NoError(t, err)
	}
	require.Equal(t, []int{2, 1}, obs.batches)
}
