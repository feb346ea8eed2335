package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/petrijr/sentinel/internal/persistence"
	"github.com/petrijr/sentinel/pkg/api"
	"github.com/petrijr/sentinel/pkg/evaluator"
	"github.com/petrijr/sentinel/pkg/rule"
)

// Validator judges a single contract and applies the consequences of the
// verdict: on violation it appends a contract:invalidation event and, for
// ad-hoc contracts, marks the contract invalid. Every judged contract is
// rescheduled.
type Validator struct {
	events    persistence.EventStore
	contracts persistence.ContractStore
	eval      *evaluator.Evaluator
	observer  api.Observer
	logger    *slog.Logger
	clock     func() time.Time
}

// NewValidator creates a Validator from cfg.
func NewValidator(cfg Config) *Validator {
	cfg = cfg.withDefaults("")
	return &Validator{
		events:    cfg.Store.Events,
		contracts: cfg.Store.Contracts,
		eval:      cfg.Evaluator,
		observer:  cfg.Observer,
		logger:    cfg.Logger,
		clock:     cfg.Clock,
	}
}

// Compile parses a contract's rule source. Both the bare condition form and
// the "trigger AFTER condition" form are accepted.
func Compile(c *api.Contract) (rule.Condition, error) {
	r, err := rule.ParseRule(c.Conditions)
	if err != nil {
		return nil, err
	}
	if r.Trigger != "" && c.TriggerEvent != "" && r.Trigger != c.TriggerEvent {
		return nil, fmt.Errorf("%w: rule trigger %q does not match contract trigger %q",
			rule.ErrInvalidCondition, r.Trigger, c.TriggerEvent)
	}
	return r.Condition, nil
}

// ValidateTriggered evaluates c at the moment of trigger. It reports whether
// the contract held.
func (v *Validator) ValidateTriggered(ctx context.Context, c *api.Contract, trigger api.Event) (bool, error) {
	return v.validate(ctx, c, func(cond rule.Condition) (bool, error) {
		return v.eval.EvaluateOnTrigger(ctx, cond, trigger)
	})
}

// ValidateOpen evaluates an open contract at now using its frequency window.
func (v *Validator) ValidateOpen(ctx context.Context, c *api.Contract, now time.Time) (bool, error) {
	return v.validate(ctx, c, func(cond rule.Condition) (bool, error) {
		return v.eval.EvaluateOpen(ctx, cond, now, c.Frequency)
	})
}

func (v *Validator) validate(ctx context.Context, c *api.Contract, judge func(rule.Condition) (bool, error)) (bool, error) {
	start := time.Now()
	logger := v.logger.With(
		slog.Int64("contract_id", c.ID),
		slog.String("contract", c.Name),
	)

	cond, err := Compile(c)
	if err != nil {
		// Unparsable contracts fail closed: they are switched off until
		// their author fixes the rule.
		v.observer.OnEvaluation(ctx, c, false, err, time.Since(start))
		logger.ErrorContext(ctx, "contract_unparsable",
			slog.String("conditions", c.Conditions),
			slog.Any("error", err),
		)
		c.IsValid = false
		c.MarkRun(v.clock())
		if uerr := v.update(ctx, c); uerr != nil {
			return false, uerr
		}
		return false, fmt.Errorf("contract %d: %w", c.ID, err)
	}

	ok, err := judge(cond)
	v.observer.OnEvaluation(ctx, c, ok, err, time.Since(start))
	if err != nil {
		return false, fmt.Errorf("contract %d: %w", c.ID, err)
	}

	now := v.clock()
	if !ok {
		ev := c.ViolationEvent(now)
		if _, err := v.events.Append(ctx, &ev); err != nil {
			return false, fmt.Errorf("contract %d: append violation: %w", c.ID, err)
		}
		v.observer.OnViolation(ctx, c, ev)
		if c.Frequency == api.FrequencyAdHoc {
			c.IsValid = false
		} else {
			logger.InfoContext(ctx, "recurring_contract_stays_valid",
				slog.String("frequency", string(c.Frequency)))
		}
	}

	c.MarkRun(now)
	if err := v.update(ctx, c); err != nil {
		return ok, err
	}
	return ok, nil
}

func (v *Validator) update(ctx context.Context, c *api.Contract) error {
	updated, err := v.contracts.Update(ctx, c)
	if err != nil {
		return fmt.Errorf("contract %d: update: %w", c.ID, err)
	}
	if !updated {
		v.logger.WarnContext(ctx, "contract_vanished", slog.Int64("contract_id", c.ID))
	}
	return nil
}
