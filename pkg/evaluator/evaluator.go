package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/petrijr/sentinel/pkg/api"
	"github.com/petrijr/sentinel/pkg/rule"
)

// ErrUnknownCondition is returned when the evaluator meets a Condition
// implementation it does not know. It signals a programming error.
var ErrUnknownCondition = errors.New("evaluator: unknown condition")

// EventQuery is the read capability the evaluator needs from the event
// store. Timestamps are milliseconds; ranges are [minTs, maxTs).
type EventQuery interface {
	RangeQuery(ctx context.Context, eventTypes []string, minTs, maxTs int64) ([]api.Event, error)
	// LatestBefore returns the latest event of eventType with a timestamp
	// strictly before maxTs, or nil if there is none.
	LatestBefore(ctx context.Context, eventType string, maxTs int64) (*api.Event, error)
}

// Evaluator judges compiled conditions against the event history. It never
// mutates state; callers apply the consequences of a verdict.
type Evaluator struct {
	events EventQuery
	loc    *time.Location
	logger *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLocation sets the time zone used by CLOCK checks. Default: time.Local.
func WithLocation(loc *time.Location) Option {
	return func(e *Evaluator) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithLogger sets the logger. If nil, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Evaluator reading from events.
func New(events EventQuery, opts ...Option) *Evaluator {
	e := &Evaluator{
		events: events,
		loc:    time.Local,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// scope is the evaluation window of a subtree. ref is the reference instant
// (trigger or now); events holds prefetched rows when fetched is set.
type scope struct {
	ref        int64
	hasTrigger bool
	min, max   int64
	events     []api.Event
	fetched    bool
}

// EvaluateOnTrigger judges c at the moment of trigger. Unwindowed event
// counts look at the whole history before the trigger.
func (e *Evaluator) EvaluateOnTrigger(ctx context.Context, c rule.Condition, trigger api.Event) (bool, error) {
	s := scope{
		ref:        trigger.Timestamp,
		hasTrigger: true,
		min:        0,
		max:        trigger.Timestamp,
	}
	ok, err := e.eval(ctx, c, s)
	if err == nil {
		e.logger.DebugContext(ctx, "condition_evaluated",
			slog.String("condition", rule.Format(c)),
			slog.Int64("trigger_id", trigger.ID),
			slog.Int64("at", trigger.Timestamp),
			slog.Bool("result", ok),
		)
	}
	return ok, err
}

// EvaluateOpen judges c for an open contract at now. Unwindowed event counts
// use the frequency window (hourly, daily, ...); ad-hoc looks at the whole
// history. CLOCK checks need a trigger event and are false here.
func (e *Evaluator) EvaluateOpen(ctx context.Context, c rule.Condition, now time.Time, freq api.Frequency) (bool, error) {
	ts := api.TimestampOf(now)
	s := scope{ref: ts, min: 0, max: ts}
	if w := freq.Window(); w > 0 {
		s.min = ts - w.Milliseconds()
	}
	ok, err := e.eval(ctx, c, s)
	if err == nil {
		e.logger.DebugContext(ctx, "condition_evaluated",
			slog.String("condition", rule.Format(c)),
			slog.String("frequency", string(freq)),
			slog.Int64("at", ts),
			slog.Bool("result", ok),
		)
	}
	return ok, err
}

func (e *Evaluator) eval(ctx context.Context, c rule.Condition, s scope) (bool, error) {
	switch v := c.(type) {
	case rule.EventCount:
		return e.evalEventCount(ctx, v, s)

	case rule.Within:
		inner := scope{
			ref:        s.ref,
			hasTrigger: s.hasTrigger,
			min:        s.ref - v.WindowMS,
			max:        s.ref,
		}
		events, err := e.events.RangeQuery(ctx, rule.EventTypes(v.Inner), inner.min, inner.max)
		if err != nil {
			return false, fmt.Errorf("evaluator: range query: %w", err)
		}
		inner.events = events
		inner.fetched = true
		return e.eval(ctx, v.Inner, inner)

	case rule.And:
		if len(v.Terms) == 0 {
			return false, fmt.Errorf("%w: AND without terms", rule.ErrInvalidCondition)
		}
		for _, t := range v.Terms {
			ok, err := e.eval(ctx, t, s)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case rule.Or:
		if len(v.Terms) == 0 {
			return false, fmt.Errorf("%w: OR without terms", rule.ErrInvalidCondition)
		}
		for _, t := range v.Terms {
			ok, err := e.eval(ctx, t, s)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case rule.Not:
		ok, err := e.eval(ctx, v.Term, s)
		if err != nil {
			return false, err
		}
		return !ok, nil

	case rule.ClockCheck:
		if !s.hasTrigger {
			return false, nil
		}
		return e.evalClock(v, s.ref)

	case rule.HistoryCheck:
		return e.evalHistory(ctx, v, s)
	}
	return false, fmt.Errorf("%w: %T", ErrUnknownCondition, c)
}

func (e *Evaluator) evalEventCount(ctx context.Context, c rule.EventCount, s scope) (bool, error) {
	events := s.events
	if !s.fetched {
		var err error
		events, err = e.events.RangeQuery(ctx, []string{c.Event}, s.min, s.max)
		if err != nil {
			return false, fmt.Errorf("evaluator: range query: %w", err)
		}
	}
	n := 0
	for _, ev := range events {
		if ev.EventType == c.Event && ev.Timestamp >= s.min && ev.Timestamp < s.max {
			n++
		}
	}
	return n >= c.MinCount, nil
}

func (e *Evaluator) evalClock(c rule.ClockCheck, ts int64) (bool, error) {
	t := time.UnixMilli(ts).In(e.loc)
	hhmm := rule.HHMM(t.Hour()*100 + t.Minute())

	switch c.Op {
	case rule.ClockAfter:
		return hhmm >= c.Time1, nil
	case rule.ClockBefore:
		return hhmm < c.Time1, nil
	case rule.ClockBetween:
		if c.Time1 <= c.Time2 {
			return hhmm >= c.Time1 && hhmm < c.Time2, nil
		}
		return hhmm >= c.Time1 || hhmm < c.Time2, nil
	}
	return false, fmt.Errorf("%w: clock operator %q", ErrUnknownCondition, c.Op)
}

func (e *Evaluator) evalHistory(ctx context.Context, c rule.HistoryCheck, s scope) (bool, error) {
	var since int64
	last, err := e.events.LatestBefore(ctx, c.SinceEvent, s.ref)
	if err != nil {
		return false, fmt.Errorf("evaluator: latest %q: %w", c.SinceEvent, err)
	}
	if last != nil {
		since = last.Timestamp
	}
	events, err := e.events.RangeQuery(ctx, []string{c.Event}, since, s.ref)
	if err != nil {
		return false, fmt.Errorf("evaluator: range query: %w", err)
	}
	for _, ev := range events {
		if ev.EventType == c.Event {
			return true, nil
		}
	}
	return false, nil
}
