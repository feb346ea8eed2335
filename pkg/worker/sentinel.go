package worker

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/petrijr/sentinel/internal/persistence"
	"github.com/petrijr/sentinel/internal/qprocessor"
	"github.com/petrijr/sentinel/pkg/api"
)

// Sentinel consumes the event log and validates the contracts bound to each
// new event's type.
type Sentinel struct {
	*loop

	queue     *qprocessor.Processor[api.Event]
	contracts persistence.ContractStore
	validator *Validator
	clock     func() time.Time
	logger    *slog.Logger
}

var _ Worker = (*Sentinel)(nil)

// NewSentinel creates a Sentinel. cfg.Name doubles as the cursor name, so
// two Sentinels must not share a name.
func NewSentinel(cfg Config) *Sentinel {
	cfg = cfg.withDefaults(DefaultSentinelName)

	excluded := slices.Clone(cfg.ExcludedEventTypes)
	filter := func(ev api.Event) bool {
		return !slices.Contains(excluded, ev.EventType)
	}

	s := &Sentinel{
		queue:     qprocessor.New[api.Event](cfg.Name, cfg.Store.Events, cfg.Store.Cursors, filter, cfg.Queue),
		contracts: cfg.Store.Contracts,
		validator: NewValidator(cfg),
		clock:     cfg.Clock,
		logger:    cfg.Logger.With(slog.String("worker", cfg.Name)),
	}
	s.loop = newLoop(cfg.Name, cfg.Logger, s.run)
	return s
}

func (s *Sentinel) run(ctx context.Context) error {
	return s.queue.Run(ctx, s.HandleEvent)
}

// HandleEvent validates every contract triggered by ev. A failing contract
// does not stop the others; their errors are joined.
func (s *Sentinel) HandleEvent(ctx context.Context, ev api.Event) error {
	contracts, err := s.contracts.TriggeredBy(ctx, ev.EventType, s.clock())
	if err != nil {
		return err
	}
	if len(contracts) == 0 {
		return nil
	}

	s.logger.DebugContext(ctx, "event_triggers_contracts",
		slog.Int64("event_id", ev.ID),
		slog.String("event_type", ev.EventType),
		slog.Int("contracts", len(contracts)),
	)

	var errs []error
	for _, c := range contracts {
		if _, err := s.validator.ValidateTriggered(ctx, c, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
