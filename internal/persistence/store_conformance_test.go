package persistence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/petrijr/sentinel/pkg/api"
)

// testEventStore runs the behavior every EventStore must share against an
// empty store.
func testEventStore(t *testing.T, store EventStore) {
	t.Helper()
	ctx := context.Background()

	id, err := store.MostRecentID(ctx)
	require.NoError(t, err)
	require.Zero(t, id)

	appendEv := func(typ string, ts int64, tags ...string) int64 {
		ev := &api.Event{EventType: typ, Timestamp: ts, Description: typ + " happened", Tags: tags}
		id, err := store.Append(ctx, ev)
		require.NoError(t, err)
		require.Equal(t, id, ev.ID)
		return id
	}

	first := appendEv("exercise", 100, "health", "morning")
	second := appendEv("gaming", 150)
	third := appendEv("exercise", 200)
	fourth := appendEv("deploy", 50)
	require.Less(t, first, second)
	require.Less(t, second, third)
	require.Less(t, third, fourth)

	latest, err := store.MostRecentID(ctx)
	require.NoError(t, err)
	require.Equal(t, fourth, latest)

	t.Run("range query is half open and ordered by time", func(t *testing.T) {
		got, err := store.RangeQuery(ctx, []string{"exercise", "deploy"}, 50, 200)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, "deploy", got[0].EventType)
		require.Equal(t, first, got[1].ID)
		require.Equal(t, []string{"health", "morning"}, got[1].Tags)
		require.Equal(t, "exercise happened", got[1].Description)

		none, err := store.RangeQuery(ctx, []string{"sleep"}, 0, 1000)
		require.NoError(t, err)
		require.Empty(t, none)
	})

	t.Run("latest before is strict", func(t *testing.T) {
		ev, err := store.LatestBefore(ctx, "exercise", 200)
		require.NoError(t, err)
		require.NotNil(t, ev)
		require.Equal(t, first, ev.ID)

		ev, err = store.LatestBefore(ctx, "exercise", 201)
		require.NoError(t, err)
		require.Equal(t, third, ev.ID)

		ev, err = store.LatestBefore(ctx, "exercise", 100)
		require.NoError(t, err)
		require.Nil(t, ev)
	})

	t.Run("items after pages by id", func(t *testing.T) {
		page, err := store.ItemsAfter(ctx, 0, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		require.Equal(t, first, page[0].ID)
		require.Equal(t, second, page[1].ID)

		page, err = store.ItemsAfter(ctx, page[1].ID, 10)
		require.NoError(t, err)
		require.Len(t, page, 2)
		require.Equal(t, third, page[0].ID)
		require.Equal(t, fourth, page[1].ID)

		page, err = store.ItemsAfter(ctx, fourth, 10)
		require.NoError(t, err)
		require.Empty(t, page)
	})

	t.Run("tags survive commas and blanks", func(t *testing.T) {
		tags := []string{"a,b", "", " padded "}
		id := appendEv("note", 400, tags...)

		page, err := store.ItemsAfter(ctx, fourth, 10)
		require.NoError(t, err)
		require.Len(t, page, 1)
		require.Equal(t, id, page[0].ID)
		require.Equal(t, tags, page[0].Tags)
	})
}

// testConcurrentAppend checks that a consumer paging with ItemsAfter while
// several writers append never moves its cursor past an unseen id.
func testConcurrentAppend(t *testing.T, store EventStore) {
	t.Helper()
	ctx := context.Background()
	const writers, perWriter = 8, 25

	var g errgroup.Group
	for w := range writers {
		g.Go(func() error {
			for i := range perWriter {
				ev := &api.Event{EventType: fmt.Sprintf("writer:%d", w), Timestamp: int64(i)}
				if _, err := store.Append(ctx, ev); err != nil {
					return err
				}
			}
			return nil
		})
	}
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	seen := make(map[int64]bool)
	var cursor int64
	consume := func() {
		page, err := store.ItemsAfter(ctx, cursor, 16)
		require.NoError(t, err)
		for _, ev := range page {
			require.Greater(t, ev.ID, cursor)
			seen[ev.ID] = true
			cursor = ev.ID
		}
	}

	for writing := true; writing; {
		select {
		case err := <-done:
			require.NoError(t, err)
			writing = false
		default:
			consume()
		}
	}
	for {
		before := cursor
		consume()
		if cursor == before {
			break
		}
	}
	require.Len(t, seen, writers*perWriter, "consumer skipped ids")
}

func testCursorStore(t *testing.T, store CursorStore) {
	t.Helper()
	ctx := context.Background()

	stats, err := store.LoadOrCreate(ctx, "sentinel")
	require.NoError(t, err)
	require.Equal(t, api.QueueStats{Name: "sentinel"}, stats)

	require.NoError(t, store.Save(ctx, api.QueueStats{Name: "sentinel", LastConsumedID: 42}))

	stats, err = store.LoadOrCreate(ctx, "sentinel")
	require.NoError(t, err)
	require.EqualValues(t, 42, stats.LastConsumedID)

	other, err := store.LoadOrCreate(ctx, "other")
	require.NoError(t, err)
	require.Zero(t, other.LastConsumedID)
}

func testContractStore(t *testing.T, store ContractStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	triggered := &api.Contract{
		Name:         "no gaming before exercise",
		Frequency:    api.FrequencyDaily,
		TriggerEvent: "gaming",
		Conditions:   "2x exercise WITHIN 1h",
	}
	id, err := store.Create(ctx, triggered)
	require.NoError(t, err)
	require.NotZero(t, id)
	require.True(t, triggered.IsValid)

	open := &api.Contract{
		Name:        "daily standup",
		Conditions:  "standup",
		NextRunDate: now.Add(-time.Minute),
	}
	_, err = store.Create(ctx, open)
	require.NoError(t, err)
	require.Equal(t, api.FrequencyAdHoc, open.Frequency)
	require.Equal(t, open.NextRunDate, open.LastRunDate)

	expired := &api.Contract{
		Name:         "expired",
		Frequency:    api.FrequencyHourly,
		TriggerEvent: "gaming",
		Conditions:   "a",
		EndTime:      now.Add(-time.Hour),
	}
	_, err = store.Create(ctx, expired)
	require.NoError(t, err)

	notDue := &api.Contract{
		Name:        "weekly review",
		Frequency:   api.FrequencyWeekly,
		Conditions:  "review",
		NextRunDate: now.Add(time.Hour),
	}
	_, err = store.Create(ctx, notDue)
	require.NoError(t, err)

	_, err = store.Create(ctx, &api.Contract{Name: "bad", Frequency: "yearly", Conditions: "a"})
	require.Error(t, err)

	got, err := store.Get(ctx, triggered.ID)
	require.NoError(t, err)
	require.Equal(t, triggered.Name, got.Name)
	require.Equal(t, api.FrequencyDaily, got.Frequency)
	require.Equal(t, "2x exercise WITHIN 1h", got.Conditions)
	require.True(t, got.IsValid)

	_, err = store.Get(ctx, 9999)
	require.ErrorIs(t, err, ErrContractNotFound)

	byTrigger, err := store.TriggeredBy(ctx, "gaming", now)
	require.NoError(t, err)
	require.Len(t, byTrigger, 1)
	require.Equal(t, triggered.ID, byTrigger[0].ID)

	openDue, err := store.OpenContracts(ctx, now)
	require.NoError(t, err)
	require.Len(t, openDue, 1)
	require.Equal(t, open.ID, openDue[0].ID)
	require.True(t, openDue[0].NextRunDate.Equal(open.NextRunDate))

	got.IsValid = false
	got.MarkRun(now)
	ok, err := store.Update(ctx, got)
	require.NoError(t, err)
	require.True(t, ok)

	reloaded, err := store.Get(ctx, got.ID)
	require.NoError(t, err)
	require.False(t, reloaded.IsValid)
	require.True(t, reloaded.LastRunDate.Equal(now))
	require.True(t, reloaded.NextRunDate.Equal(now.Add(24*time.Hour)))

	byTrigger, err = store.TriggeredBy(ctx, "gaming", now)
	require.NoError(t, err)
	require.Empty(t, byTrigger, "invalid contracts are not triggered")

	ok, err = store.Update(ctx, &api.Contract{ID: 9999, Name: "ghost", Frequency: api.FrequencyDaily})
	require.NoError(t, err)
	require.False(t, ok)
}

func cursor(name string, id int64) api.QueueStats {
	return api.QueueStats{Name: name, LastConsumedID: id}
}
