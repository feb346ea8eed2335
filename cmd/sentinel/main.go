// Command sentinel runs the contract validation engine and offers helpers to
// log events, manage contracts and try rules from the shell.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	store      string
	dsn        string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "sentinel",
		Short: "Validate behavioral contracts against a stream of life-events",
		Long: `sentinel watches an append-only log of timestamped events and checks
user-declared contracts written in a small rule language, for example:

  gaming:league_of_legends AFTER 2x exercise WITHIN 1h AND laundry:loaded WITHIN 30m

Violations are appended to the same log as contract:invalidation events.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "sentinel.yaml", "Path to the YAML config file")
	root.PersistentFlags().StringVar(&flags.store, "store", "", "Store backend: memory, sqlite or postgres (overrides config)")
	root.PersistentFlags().StringVar(&flags.dsn, "dsn", "", "Store DSN (overrides config)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	root.AddCommand(
		newRunCmd(flags),
		newCheckCmd(),
		newEvalCmd(flags),
		newLogCmd(flags),
		newContractCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sentinel %s\n", version)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
