package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/streamsql/workbench/pkg/engine"
)

var execCmd = &cobra.Command{
	Use:   "exec [sql ...]",
	Short: "Execute SQL statements",
	Long: `Execute one or more semicolon-separated SQL statements.

Statements are read from the arguments, from a file with --file, or from
stdin. Each statement runs to completion before the next starts; a failure
stops the batch. Unbounded query results render live and Ctrl-C cancels the
running statement, stopping the remote job.

Example:
  workbench exec "SELECT * FROM orders LIMIT 10"
  workbench exec --file setup.sql
  echo "SHOW TABLES" | workbench exec`,
	RunE: runExec,
}

func init() {
	execCmd.Flags().StringP("file", "f", "", "read statements from a file")
}

func runExec(cmd *cobra.Command, args []string) error {
	text, err := statementText(cmd, args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("no statements to execute")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := newRenderer(a.cfg.MaxDisplayRows)
	outcomes := a.engine.ExecuteAll(ctx, text, r.publish)
	r.close()

	var failed error
	for _, outcome := range outcomes {
		switch outcome.State {
		case engine.StateFinished:
			if outcome.JobID != "" {
				pterm.Success.Printfln("%s (%d rows, job %s)", summarize(outcome.Statement), outcome.Rows, outcome.JobID)
			} else {
				pterm.Success.Printfln("%s", summarize(outcome.Statement))
			}
		case engine.StateCanceled:
			pterm.Warning.Printfln("%s: canceled", summarize(outcome.Statement))
		case engine.StateFailed:
			pterm.Error.Printfln("%s: %v", summarize(outcome.Statement), outcome.Err)
			failed = outcome.Err
		}
	}
	return failed
}

func statementText(cmd *cobra.Command, args []string) (string, error) {
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read statements: %w", err)
		}
		return string(data), nil
	}
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

// summarize renders a statement on one line for the outcome report.
func summarize(statement string) string {
	s := strings.Join(strings.Fields(statement), " ")
	if len(s) > 60 {
		s = s[:60] + "..."
	}
	return s
}
