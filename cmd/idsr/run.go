package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matthewbaird/outbreak/internal/engine"
)

const triggerCLI = "cli"

func newRunCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one detection pass over every catalogued disease",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := wire(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			rt.bus.Start(ctx)
			defer rt.Close()

			sum, err := rt.engine.Run(ctx, triggerCLI)
			if err != nil {
				return err
			}
			a.logger.Info(sum.Message, zap.String("run_id", sum.RunID))
			return printSummary(cmd.OutOrStdout(), sum, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "summary format: text or json")
	return cmd
}

func printSummary(w io.Writer, sum engine.Summary, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}
	fmt.Fprintf(w, "run %s (%s)\n", sum.RunID, sum.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  processed: %s\n", strings.Join(sum.Processed, ", "))
	if len(sum.Skipped) > 0 {
		fmt.Fprintf(w, "  skipped:   %s\n", strings.Join(sum.SkippedNames(), ", "))
	}
	fmt.Fprintf(w, "  outbreaks: %d new, %d updated, %d unchanged\n", sum.New, sum.Updated, sum.Existing)
	fmt.Fprintf(w, "  alerts:    %d\n", sum.Alerts)
	fmt.Fprintf(w, "  messages:  %d (%d reminders)\n", sum.Messages, sum.Reminders)
	for _, f := range sum.Failures {
		fmt.Fprintf(w, "  failure:   %s\n", f)
	}
	fmt.Fprintln(w, sum.Message)
	return nil
}
