package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rahul/cookframe/internal/store"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:          "history [run-id]",
	Short:        "Show recent runs, or the steps of one run",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadQuiet()
		if err != nil {
			return err
		}
		if cfg.Memory.Path == "" {
			return fmt.Errorf("memory.path is not configured")
		}
		runs, err := store.NewRunStore(cfg.Memory.Path)
		if err != nil {
			return err
		}
		defer runs.Close()

		out := cmd.OutOrStdout()
		if len(args) == 1 {
			run, steps, err := runs.GetRun(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("run %s: %w", args[0], err)
			}
			printRun(out, run, steps)
			return nil
		}

		list, err := runs.RecentRuns(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		printRuns(out, list)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of runs to show")
}

func printRuns(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return
	}
	fmt.Fprintf(w, "%-36s  %-7s  %-6s  %-19s  %s\n", "Run ID", "Status", "Kind", "Started", "Request")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-7s  %-6s  %-19s  %s\n",
			r.ID, r.Status, r.Kind, r.StartedAt.Local().Format(time.DateTime), truncate(r.Request, 40))
	}
}

func printRun(w io.Writer, r *store.Run, steps []store.StepEntry) {
	fmt.Fprintf(w, "Run:     %s\n", r.ID)
	fmt.Fprintf(w, "Request: %s (%s)\n", r.Request, r.Kind)
	fmt.Fprintf(w, "Status:  %s\n", r.Status)
	if r.FinishedAt != nil {
		fmt.Fprintf(w, "Took:    %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error:   %s\n", r.Error)
	}
	for _, s := range steps {
		fmt.Fprintf(w, "\n[%d] %s\n", s.StepNumber, s.Action)
		if s.SceneDescription != "" {
			fmt.Fprintf(w, "    scene: %s\n", truncate(s.SceneDescription, 90))
		}
		if s.ImagePath != "" {
			fmt.Fprintf(w, "    image: %s\n", s.ImagePath)
		}
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
