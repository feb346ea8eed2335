// Package qprocessor implements a checkpointed consumer over an append-only,
// id-ordered log. A Processor pulls items in batches, hands them out one at a
// time and persists its cursor in a CursorStore so a restarted consumer
// continues where the previous one stopped.
package qprocessor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/petrijr/sentinel/internal/persistence"
	"github.com/petrijr/sentinel/pkg/api"
)

const (
	DefaultBatchSize     = 10
	DefaultPollInterval  = 5 * time.Second
	DefaultRetryInterval = 5 * time.Second
)

// Item is anything with a strictly increasing log position.
type Item interface {
	ItemID() int64
}

// Source reads the log. ItemsAfter must return items with id > lastID in
// ascending id order.
type Source[T Item] interface {
	ItemsAfter(ctx context.Context, lastID int64, limit int) ([]T, error)
}

// HeadSource is implemented by sources that can report their newest id.
type HeadSource interface {
	MostRecentID(ctx context.Context) (int64, error)
}

// Handler processes one item. Its error is logged; the cursor moves on
// regardless so a poison item cannot stall the stream.
type Handler[T Item] func(ctx context.Context, item T) error

// Config tunes a Processor. Zero values select the defaults.
type Config struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryInterval time.Duration

	// StartAtLatest makes a consumer whose cursor is still 0 skip the
	// existing backlog, provided the source implements HeadSource.
	StartAtLatest bool

	Logger   *slog.Logger
	Observer api.Observer
}

// Processor is a single-goroutine consumer. It is not safe for concurrent
// use; run one Processor per cursor name.
type Processor[T Item] struct {
	name    string
	source  Source[T]
	cursors persistence.CursorStore
	filter  func(T) bool

	batchSize     int
	pollInterval  time.Duration
	retryInterval time.Duration
	startAtLatest bool
	logger        *slog.Logger
	observer      api.Observer

	buffer []T
	cursor int64
	loaded bool
}

// New creates a Processor named name. filter may be nil; items it rejects are
// skipped but still advance the cursor.
func New[T Item](name string, source Source[T], cursors persistence.CursorStore, filter func(T) bool, cfg Config) *Processor[T] {
	p := &Processor[T]{
		name:          name,
		source:        source,
		cursors:       cursors,
		filter:        filter,
		batchSize:     cfg.BatchSize,
		pollInterval:  cfg.PollInterval,
		retryInterval: cfg.RetryInterval,
		startAtLatest: cfg.StartAtLatest,
		logger:        cfg.Logger,
		observer:      cfg.Observer,
	}
	if p.batchSize <= 0 {
		p.batchSize = DefaultBatchSize
	}
	if p.pollInterval <= 0 {
		p.pollInterval = DefaultPollInterval
	}
	if p.retryInterval <= 0 {
		p.retryInterval = DefaultRetryInterval
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.observer == nil {
		p.observer = api.NoopObserver{}
	}
	p.logger = p.logger.With(slog.String("consumer", name))
	return p
}

// Name returns the cursor name.
func (p *Processor[T]) Name() string {
	return p.name
}

// Cursor returns the id of the last item handed out.
func (p *Processor[T]) Cursor() int64 {
	return p.cursor
}

// Next blocks until an item that passes the filter is available or ctx is
// done. Storage failures are logged and retried after RetryInterval.
func (p *Processor[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		if !p.loaded {
			if err := p.load(ctx); err != nil {
				p.logger.ErrorContext(ctx, "cursor_load_failed", slog.Any("error", err))
				if err := p.wait(ctx, p.retryInterval); err != nil {
					return zero, err
				}
				continue
			}
		}

		if len(p.buffer) > 0 {
			item := p.buffer[0]
			p.buffer = p.buffer[1:]
			p.cursor = item.ItemID()
			if p.filter != nil && !p.filter(item) {
				continue
			}
			return item, nil
		}

		// Persist progress before fetching the next batch.
		if err := p.Checkpoint(ctx); err != nil {
			p.logger.ErrorContext(ctx, "cursor_save_failed", slog.Any("error", err))
			if err := p.wait(ctx, p.retryInterval); err != nil {
				return zero, err
			}
			continue
		}

		items, err := p.source.ItemsAfter(ctx, p.cursor, p.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			p.logger.ErrorContext(ctx, "fetch_failed",
				slog.Int64("cursor", p.cursor),
				slog.Any("error", err),
			)
			if err := p.wait(ctx, p.retryInterval); err != nil {
				return zero, err
			}
			continue
		}

		if len(items) == 0 {
			p.logger.DebugContext(ctx, "queue_idle", slog.Duration("wait", p.pollInterval))
			if err := p.wait(ctx, p.pollInterval); err != nil {
				return zero, err
			}
			continue
		}

		p.observer.OnBatchFetched(ctx, p.name, len(items), p.cursor)
		p.buffer = append(p.buffer, items...)
	}
}

// Run hands every item to handler until ctx is cancelled. On shutdown it
// persists the cursor and returns nil.
func (p *Processor[T]) Run(ctx context.Context, handler Handler[T]) error {
	defer p.shutdown()

	for {
		item, err := p.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		if err := handler(ctx, item); err != nil {
			p.logger.WarnContext(ctx, "item_failed",
				slog.Int64("item_id", item.ItemID()),
				slog.Any("error", err),
			)
			continue
		}
		p.logger.DebugContext(ctx, "item_processed", slog.Int64("item_id", item.ItemID()))
	}
}

// Checkpoint persists the current cursor.
func (p *Processor[T]) Checkpoint(ctx context.Context) error {
	if !p.loaded {
		return nil
	}
	return p.cursors.Save(ctx, api.QueueStats{Name: p.name, LastConsumedID: p.cursor})
}

func (p *Processor[T]) load(ctx context.Context) error {
	stats, err := p.cursors.LoadOrCreate(ctx, p.name)
	if err != nil {
		return err
	}
	p.cursor = stats.LastConsumedID

	if p.cursor == 0 && p.startAtLatest {
		if head, ok := p.source.(HeadSource); ok {
			latest, err := head.MostRecentID(ctx)
			if err != nil {
				return err
			}
			p.cursor = latest
		}
	}

	p.loaded = true
	p.logger.InfoContext(ctx, "cursor_loaded", slog.Int64("cursor", p.cursor))
	return nil
}

func (p *Processor[T]) shutdown() {
	// The run context is already done; give the final save its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.Checkpoint(ctx); err != nil {
		p.logger.Error("cursor_save_failed", slog.Any("error", err))
		return
	}
	p.logger.Info("cursor_saved", slog.Int64("cursor", p.cursor))
}

func (p *Processor[T]) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
