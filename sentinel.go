package sentinel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/sentinel/internal/persistence"
	"github.com/petrijr/sentinel/internal/qprocessor"
	"github.com/petrijr/sentinel/pkg/api"
	"github.com/petrijr/sentinel/pkg/rule"
	"github.com/petrijr/sentinel/pkg/supervisor"
	"github.com/petrijr/sentinel/pkg/worker"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Event                = api.Event
	Contract             = api.Contract
	Frequency            = api.Frequency
	QueueStats           = api.QueueStats
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
	Condition            = rule.Condition
	WorkerConfig         = worker.Config
	QueueConfig          = qprocessor.Config

	// Store groups the event log, the contract table and the consumer
	// cursors a process runs against.
	Store = persistence.Persistence
)

// Re-export common helpers.

var (
	NewEvent             = api.NewEvent
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export frequencies and well-known event types for convenience.

const (
	FrequencyAdHoc   = api.FrequencyAdHoc
	FrequencyHourly  = api.FrequencyHourly
	FrequencyDaily   = api.FrequencyDaily
	FrequencyWeekly  = api.FrequencyWeekly
	FrequencyMonthly = api.FrequencyMonthly

	EventTypeContractInvalidation = api.EventTypeContractInvalidation
)

var (
	// ErrInvalidRule is returned by AddContract and CheckRule for rules that
	// do not parse. It wraps the parser's error, which carries the position.
	ErrInvalidRule = errors.New("sentinel: invalid rule")

	// ErrInvalidEvent is returned by LogEvent for events without a type.
	ErrInvalidEvent = errors.New("sentinel: invalid event")
)

// Store constructors.
// These wrap the internal/persistence package so external callers
// never need to import internal packages.

// NewInMemoryStore returns a Store kept entirely in memory.
func NewInMemoryStore() Store {
	return persistence.NewInMemoryStore().Persistence()
}

// NewSQLiteStore returns a Store backed by a SQLite database opened with the
// modernc.org/sqlite driver ("sqlite"). The schema is created if missing.
func NewSQLiteStore(db *sql.DB) (Store, error) {
	s, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return Store{}, err
	}
	return s.Persistence(), nil
}

// NewPostgresStore returns a Store backed by PostgreSQL, typically opened
// with the pgx stdlib driver ("pgx").
func NewPostgresStore(db *sql.DB) (Store, error) {
	s, err := persistence.NewPostgresStore(db)
	if err != nil {
		return Store{}, err
	}
	return s.Persistence(), nil
}

// WithRedisEvents moves the event log and the cursors of store to Redis.
// Contracts stay where they are.
func WithRedisEvents(store Store, client *redis.Client, prefix string) Store {
	rs := persistence.NewRedisStore(client, prefix)
	store.Events = rs
	store.Cursors = rs
	return store
}

// CheckRule parses src and returns its canonical form.
func CheckRule(src string) (string, error) {
	r, err := rule.ParseRule(src)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	return rule.FormatRule(r), nil
}

// AddContract stores c after checking that its conditions parse and agree
// with its trigger. It returns the new contract ID.
func AddContract(ctx context.Context, store Store, c *Contract) (int64, error) {
	if _, err := worker.Compile(c); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	return store.Contracts.Create(ctx, c)
}

// LogEvent appends ev to the store's event log and returns its ID.
func LogEvent(ctx context.Context, store Store, ev Event) (int64, error) {
	if ev.EventType == "" {
		return 0, fmt.Errorf("%w: event type is required", ErrInvalidEvent)
	}
	return store.Events.Append(ctx, &ev)
}

// Blueprints returns the supervisor blueprints of the two built-in workers:
// the event-triggered Sentinel and the open-contract Sweeper. Each call of a
// blueprint's factory builds a fresh worker from cfg.
func Blueprints(cfg WorkerConfig, sentinelEnabled, sweeperEnabled bool) []supervisor.Blueprint {
	sentinelCfg := cfg
	sentinelCfg.Name = worker.DefaultSentinelName
	sweeperCfg := cfg
	sweeperCfg.Name = worker.DefaultSweeperName

	return []supervisor.Blueprint{
		{
			Name:    sentinelCfg.Name,
			Enabled: sentinelEnabled,
			New: func() (worker.Worker, error) {
				return worker.NewSentinel(sentinelCfg), nil
			},
		},
		{
			Name:    sweeperCfg.Name,
			Enabled: sweeperEnabled,
			New: func() (worker.Worker, error) {
				return worker.NewSweeper(sweeperCfg), nil
			},
		},
	}
}
