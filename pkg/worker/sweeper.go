package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/petrijr/sentinel/internal/persistence"
)

// Sweeper periodically evaluates the open contracts that are due.
type Sweeper struct {
	*loop

	contracts persistence.ContractStore
	validator *Validator
	interval  time.Duration
	clock     func() time.Time
	logger    *slog.Logger
}

var _ Worker = (*Sweeper)(nil)

// NewSweeper creates a Sweeper that runs every cfg.SweepInterval.
func NewSweeper(cfg Config) *Sweeper {
	cfg = cfg.withDefaults(DefaultSweeperName)

	s := &Sweeper{
		contracts: cfg.Store.Contracts,
		validator: NewValidator(cfg),
		interval:  cfg.SweepInterval,
		clock:     cfg.Clock,
		logger:    cfg.Logger.With(slog.String("worker", cfg.Name)),
	}
	s.loop = newLoop(cfg.Name, cfg.Logger, s.run)
	return s
}

func (s *Sweeper) run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "sweep_failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep evaluates every open contract that is due now. Contracts are
// independent: a failing one is reported in the joined error and the rest
// are still evaluated.
func (s *Sweeper) Sweep(ctx context.Context) error {
	now := s.clock()
	contracts, err := s.contracts.OpenContracts(ctx, now)
	if err != nil {
		return err
	}

	var errs []error
	for _, c := range contracts {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.validator.ValidateOpen(ctx, c, now); err != nil {
			errs = append(errs, err)
		}
	}
	if len(contracts) > 0 {
		s.logger.DebugContext(ctx, "sweep_done",
			slog.Int("contracts", len(contracts)),
			slog.Int("failed", len(errs)),
		)
	}
	return errors.Join(errs...)
}
