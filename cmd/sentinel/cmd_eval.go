package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/petrijr/sentinel"
	"github.com/petrijr/sentinel/pkg/api"
	"github.com/petrijr/sentinel/pkg/evaluator"
	"github.com/petrijr/sentinel/pkg/rule"
)

func newEvalCmd(flags *globalFlags) *cobra.Command {
	var (
		at        string
		frequency string
	)

	cmd := &cobra.Command{
		Use:   "eval <rule>",
		Short: "Evaluate a rule against the stored event log",
		Long: `eval judges a rule at a point in time without touching any contract.

A rule with a trigger ("gaming AFTER exercise WITHIN 1h") is judged as if the
trigger event happened at --at. A bare condition is judged like an open
contract of the given --frequency, whose window bounds unwindowed counts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			r, err := rule.ParseRule(args[0])
			if err != nil {
				return fmt.Errorf("%w: %w", sentinel.ErrInvalidRule, err)
			}
			when, err := parseTime(at, time.Now())
			if err != nil {
				return err
			}
			freq, err := api.ParseFrequency(frequency)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			eval := evaluator.New(store.Events,
				evaluator.WithLocation(loc),
				evaluator.WithLogger(newLogger(cfg.Logging)),
			)

			var ok bool
			if r.Trigger != "" {
				ok, err = eval.EvaluateOnTrigger(ctx, r.Condition, api.NewEvent(r.Trigger, when, ""))
			} else {
				ok, err = eval.EvaluateOpen(ctx, r.Condition, when, freq)
			}
			if err != nil {
				return err
			}

			verdict := "holds"
			if !ok {
				verdict = "violated"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s at %s: %s\n",
				verdict, when.In(loc).Format(time.RFC3339), rule.FormatRule(r))
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Evaluation time, RFC 3339 or epoch milliseconds (default now)")
	cmd.Flags().StringVar(&frequency, "frequency", string(api.FrequencyAdHoc), "Frequency window for rules without a trigger")
	return cmd
}
