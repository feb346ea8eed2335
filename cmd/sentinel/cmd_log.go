package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/petrijr/sentinel"
	"github.com/petrijr/sentinel/pkg/api"
)

func newLogCmd(flags *globalFlags) *cobra.Command {
	var (
		at          string
		description string
		tags        string
	)

	cmd := &cobra.Command{
		Use:   "log <event-type>",
		Short: "Append an event to the log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			when, err := parseTime(at, time.Now())
			if err != nil {
				return err
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

			ev := api.NewEvent(args[0], when, description, api.ParseTags(tags)...)
			id, err := sentinel.LogEvent(ctx, store, ev)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged event %d: %s at %d\n", id, ev.EventType, ev.Timestamp)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Event time, RFC 3339 or epoch milliseconds (default now)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Free-form description")
	cmd.Flags().StringVarP(&tags, "tags", "t", "", "Comma-separated tags")
	return cmd
}
