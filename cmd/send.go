package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/buongiorno-bot/internal/scheduler"
)

func newSendCmd() *cobra.Command {
	names := make([]string, 0, len(scheduler.DefaultJobs()))
	for _, j := range scheduler.DefaultJobs() {
		names = append(names, j.Name)
	}
	return &cobra.Command{
		Use:       "send <job>",
		Short:     "Fires one greeting job immediately and exits",
		Long:      "Runs a single cycle of the named job (" + strings.Join(names, ", ") + ") and prints its report as JSON.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			report, err := a.RunJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			switch report.Outcome {
			case scheduler.OutcomeUnavailable, scheduler.OutcomeError:
				return fmt.Errorf("job %s finished with outcome %s", report.Job, report.Outcome)
			}
			return nil
		},
	}
}
