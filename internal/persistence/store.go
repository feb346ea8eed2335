package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/petrijr/sentinel/pkg/api"
)

var (
	// ErrContractNotFound is returned when a contract id is not found.
	ErrContractNotFound = errors.New("contract not found")

	// ErrStorageUnavailable wraps driver and network failures. Workers treat
	// it as transient: log, wait and retry on the next cycle.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// EventStore is the append-only event log. Ids are assigned on Append and
// strictly increase. All timestamps are milliseconds; ranges are [min, max).
type EventStore interface {
	// Append stores ev, sets ev.ID and returns it.
	Append(ctx context.Context, ev *api.Event) (int64, error)
	// RangeQuery returns events of any of the given types with
	// minTs <= Timestamp < maxTs, ordered by timestamp then id.
	RangeQuery(ctx context.Context, eventTypes []string, minTs, maxTs int64) ([]api.Event, error)
	// LatestBefore returns the most recent event of eventType strictly before
	// maxTs, or nil when there is none.
	LatestBefore(ctx context.Context, eventType string, maxTs int64) (*api.Event, error)
	// ItemsAfter returns up to limit events with ID > lastID in id order.
	ItemsAfter(ctx context.Context, lastID int64, limit int) ([]api.Event, error)
	// MostRecentID returns the highest assigned id, or 0 for an empty log.
	MostRecentID(ctx context.Context) (int64, error)
}

// ContractStore persists contracts.
type ContractStore interface {
	// Create stores c, assigns c.ID and returns it. New contracts are valid
	// and have LastRunDate seeded from NextRunDate.
	Create(ctx context.Context, c *api.Contract) (int64, error)
	Get(ctx context.Context, id int64) (*api.Contract, error)
	// TriggeredBy returns valid contracts bound to eventType that are
	// active at now.
	TriggeredBy(ctx context.Context, eventType string, now time.Time) ([]*api.Contract, error)
	// OpenContracts returns valid open contracts that are active and due at now.
	OpenContracts(ctx context.Context, now time.Time) ([]*api.Contract, error)
	// Update overwrites c. It reports false when c.ID does not exist.
	Update(ctx context.Context, c *api.Contract) (bool, error)
}

// CursorStore persists named queue cursors.
type CursorStore interface {
	// LoadOrCreate returns the cursor called name, creating it at 0.
	LoadOrCreate(ctx context.Context, name string) (api.QueueStats, error)
	Save(ctx context.Context, stats api.QueueStats) error
}

// unavailable wraps a backend error so callers can match
// ErrStorageUnavailable while keeping the driver error in the chain.
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// prepareNew applies the defaults every backend uses on Create.
func prepareNew(c *api.Contract) error {
	freq, err := api.ParseFrequency(string(c.Frequency))
	if err != nil {
		return err
	}
	c.Frequency = freq
	if c.NextRunDate.IsZero() {
		c.NextRunDate = c.StartTime
	}
	c.LastRunDate = c.NextRunDate
	c.IsValid = true
	return nil
}

func triggeredBy(c *api.Contract, eventType string, now time.Time) bool {
	return c.IsValid && !c.IsOpen() && c.TriggerEvent == eventType && c.ActiveAt(now)
}

func openAndDue(c *api.Contract, now time.Time) bool {
	return c.IsValid && c.IsOpen() && c.ActiveAt(now) && c.DueAt(now)
}

func msOf(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func timeOf(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
