package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petrijr/sentinel"
	"github.com/petrijr/sentinel/pkg/rule"
)

func newCheckCmd() *cobra.Command {
	var showAST bool

	cmd := &cobra.Command{
		Use:   "check <rule>...",
		Short: "Parse rules and print their canonical form",
		Long: `check parses each argument as a rule ("condition" or "trigger AFTER condition")
and prints its canonical form. Syntax errors are reported with the position
of the offending token. The exit status is non-zero if any rule is invalid.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, src := range args {
				if err := checkOne(out, src, showAST); err != nil {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d rules invalid", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showAST, "ast", false, "Also print the syntax tree")
	return cmd
}

func checkOne(out io.Writer, src string, showAST bool) error {
	canonical, err := sentinel.CheckRule(src)
	if err != nil {
		fmt.Fprintf(out, "ERROR: %v\n", err)
		if pos, ok := errorPos(err); ok {
			fmt.Fprintf(out, "  %s\n  %s^\n", src, strings.Repeat(" ", pos))
		}
		return err
	}
	fmt.Fprintf(out, "OK: %s\n", canonical)
	if showAST {
		if n, err := rule.ParseAST(src); err == nil {
			fmt.Fprintf(out, "  %s\n", n)
		}
	}
	return nil
}

func errorPos(err error) (int, bool) {
	var perr *rule.ParseError
	if errors.As(err, &perr) {
		return perr.Pos, true
	}
	var lerr *rule.LexError
	if errors.As(err, &lerr) {
		return lerr.Pos, true
	}
	return 0, false
}
