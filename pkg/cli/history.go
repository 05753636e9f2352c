package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/computerscienceiscool/llm-autorun/pkg/history"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to show")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the replies and command results of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory()
			if err != nil {
				return err
			}
			defer store.Close()
			return printRun(cmd.OutOrStdout(), store, args[0])
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func openHistory() (*history.Store, error) {
	path := viper.GetString("history.path")
	if path == "" {
		return nil, fmt.Errorf("history.path is not set")
	}
	return history.Open(path)
}

func printRuns(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  %-9s  attempts=%d  %s  %s\n",
			r.RunID, r.StartedAt.Local().Format(time.DateTime), r.Status, r.Attempts, r.Mode, oneLine(r.Request, 60))
	}
}

func printRun(w io.Writer, store *history.Store, runID string) error {
	run, err := store.GetRun(runID)
	if err != nil {
		return err
	}
	replies, err := store.Replies(runID)
	if err != nil {
		return err
	}
	results, err := store.Results(runID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "=== RUN: %s ===\n", run.RunID)
	fmt.Fprintf(w, "Mode: %s\n", run.Mode)
	fmt.Fprintf(w, "Target: %s\n", run.Target)
	fmt.Fprintf(w, "Request: %s\n", run.Request)
	fmt.Fprintf(w, "Model: %s\n", run.Model)
	fmt.Fprintf(w, "Status: %s\n", run.Status)
	fmt.Fprintf(w, "Attempts: %d\n", run.Attempts)
	fmt.Fprintf(w, "Started: %s\n", run.StartedAt.Local().Format(time.DateTime))
	if !run.EndedAt.IsZero() {
		fmt.Fprintf(w, "Duration: %.2fs\n", run.EndedAt.Sub(run.StartedAt).Seconds())
	}
	if run.LastError != "" {
		fmt.Fprintf(w, "Error: %s\n", run.LastError)
	}

	for _, rep := range replies {
		fmt.Fprintf(w, "=== REPLY %d ===\n", rep.Attempt)
		fmt.Fprint(w, rep.Content)
		if !strings.HasSuffix(rep.Content, "\n") {
			fmt.Fprintln(w)
		}
		for _, res := range results {
			if res.Attempt != rep.Attempt {
				continue
			}
			fmt.Fprintf(w, "  [%s] %s", res.Status, res.Command)
			if res.ExitCode != 0 || res.TimedOut {
				fmt.Fprintf(w, " (exit %d)", res.ExitCode)
			}
			fmt.Fprintln(w)
		}
	}
	fmt.Fprint(w, "=== END RUN ===\n")
	return nil
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-3]) + "..."
	}
	return s
}
