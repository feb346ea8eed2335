package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/petrijr/sentinel"
	"github.com/petrijr/sentinel/pkg/api"
	"github.com/petrijr/sentinel/pkg/rule"
)

func newContractCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contract",
		Short: "Manage contracts",
	}
	cmd.AddCommand(newContractAddCmd(flags), newContractShowCmd(flags))
	return cmd
}

func newContractAddCmd(flags *globalFlags) *cobra.Command {
	var (
		c         api.Contract
		frequency string
		start     string
		end       string
	)

	cmd := &cobra.Command{
		Use:   "add <conditions>",
		Short: "Store a new contract",
		Long: `add stores a contract after checking that its rule parses.

Without --trigger the contract is open and is swept on its --frequency.
A rule of the form "trigger AFTER condition" sets the trigger itself.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			c.Conditions = args[0]
			freq, err := api.ParseFrequency(frequency)
			if err != nil {
				return err
			}
			c.Frequency = freq
			if c.TriggerEvent == "" {
				if r, err := rule.ParseRule(c.Conditions); err == nil {
					c.TriggerEvent = r.Trigger
				}
			}
			now := time.Now()
			if start != "" {
				if c.StartTime, err = parseTime(start, now); err != nil {
					return err
				}
			}
			if end != "" {
				if c.EndTime, err = parseTime(end, now); err != nil {
					return err
				}
			}

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			id, err := sentinel.AddContract(ctx, store, &c)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added contract %d\n", id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&c.Name, "name", "n", "", "Contract name")
	cmd.Flags().StringVar(&c.Description, "description", "", "Contract description")
	cmd.Flags().StringVar(&c.TriggerEvent, "trigger", "", "Trigger event type (empty for an open contract)")
	cmd.Flags().StringVarP(&c.ViolationMessage, "message", "m", "", "Description of the violation event")
	cmd.Flags().StringVarP(&frequency, "frequency", "f", string(api.FrequencyAdHoc), "ad-hoc, hourly, daily, weekly or monthly")
	cmd.Flags().StringVar(&start, "start", "", "Start of the active period (RFC 3339 or epoch ms)")
	cmd.Flags().StringVar(&end, "end", "", "End of the active period, exclusive (RFC 3339 or epoch ms)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newContractShowCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a stored contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid contract id %q", args[0])
			}
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			c, err := store.Contracts.Get(ctx, id)
			if err != nil {
				return err
			}
			printContract(cmd.OutOrStdout(), c)
			return nil
		},
	}
}

func printContract(out io.Writer, c *api.Contract) {
	trigger := c.TriggerEvent
	if c.IsOpen() {
		trigger = "(open)"
	}
	fmt.Fprintf(out, "id:         %d\n", c.ID)
	fmt.Fprintf(out, "name:       %s\n", c.Name)
	fmt.Fprintf(out, "trigger:    %s\n", trigger)
	fmt.Fprintf(out, "conditions: %s\n", c.Conditions)
	fmt.Fprintf(out, "frequency:  %s\n", c.Frequency)
	fmt.Fprintf(out, "valid:      %t\n", c.IsValid)
	fmt.Fprintf(out, "last run:   %s\n", formatTime(c.LastRunDate))
	fmt.Fprintf(out, "next run:   %s\n", formatTime(c.NextRunDate))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}
