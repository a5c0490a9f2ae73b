package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

type queryOptions struct {
	params []string
}

func newQueryCommand(root *rootOptions) *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query <sql|->",
		Short: "Run a query and print one result per statement",
		Long: `Run every statement of a query in order and print each statement's
result or error. Pass - to read the query from stdin.

Parameters are bound by name: -p id=1 binds $id. Values are parsed as JSON
when possible and as strings otherwise.`,
		Example: `  livebridge query "CREATE TABLE person (id INTEGER PRIMARY KEY, name TEXT)"
  livebridge query "INSERT INTO person (name) VALUES ($name) RETURNING *" -p name=Tobie
  livebridge query - < schema.sql`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readQuery(args[0], cmd.InOrStdin())
			if err != nil {
				return withExitCode(exitCommandError, err)
			}
			ps, err := parseParams(opts.params)
			if err != nil {
				return withExitCode(exitCommandError, err)
			}

			b, err := openBridge(root.cfg)
			if err != nil {
				return err
			}
			defer b.Shutdown(context.WithoutCancel(cmd.Context()))

			out, err := b.Query(cmd.Context(), text, ps)
			if err != nil {
				return err
			}
			if err := newRenderer(cmd.OutOrStdout(), root.format).Outcomes(out); err != nil {
				return err
			}
			if uerr := out.FindUserError(); uerr != nil {
				return withExitCode(exitFailure, fmt.Errorf("query failed: %w", uerr))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&opts.params, "param", "p", nil, "bind a parameter (name=value, repeatable)")

	return cmd
}

func readQuery(arg string, stdin io.Reader) (string, error) {
	text := arg
	if arg == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read query: %w", err)
		}
		text = string(b)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty query")
	}
	return text, nil
}
