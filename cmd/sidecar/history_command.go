package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"sidecar/internal/journal"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recent runs, or the decisions of one run",
		Long: `Without arguments, history lists recent runs from the run journal.
With a run ID (or a unique prefix of one) it lists every decision that run made.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()

			if _, err := os.Stat(cfg.Journal.Path); errors.Is(err, fs.ErrNotExist) {
				if !cfg.Journal.Enabled {
					fmt.Fprintln(out, "Run journal is disabled; set [journal] enabled = true to record runs")
					return nil
				}
				if len(args) == 1 {
					return fmt.Errorf("%w: %s", journal.ErrRunNotFound, args[0])
				}
				fmt.Fprintln(out, "No runs recorded yet")
				return nil
			}

			store, err := journal.OpenPath(cfg.Journal.Path)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			if len(args) == 1 {
				run, err := store.FindRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				events, err := store.Events(cmd.Context(), run.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Run %s started %s in %s\n", run.ID, run.StartedAt.Local().Format(time.DateTime), run.Root)
				if run.Command != "" {
					fmt.Fprintf(out, "Command: %s\n", run.Command)
				}
				if len(events) == 0 {
					fmt.Fprintln(out, "No decisions recorded")
					return nil
				}
				fmt.Fprintln(out, renderEvents(events))
				return nil
			}

			runs, err := store.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded yet")
				return nil
			}
			fmt.Fprintln(out, renderRuns(runs))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Number of runs to show (0 for all)")
	return cmd
}

func renderRuns(runs []journal.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		status := "finished"
		if !run.Finished() {
			status = "incomplete"
		}
		id := run.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, []string{
			run.StartedAt.Local().Format(time.DateTime),
			id,
			run.Root,
			strconv.Itoa(run.Counts.Images),
			strconv.Itoa(run.Counts.Created),
			strconv.Itoa(run.Counts.Merged),
			strconv.Itoa(run.Counts.Skipped),
			strconv.Itoa(run.Counts.Renamed),
			strconv.Itoa(run.Counts.OrphansRemoved),
			strconv.Itoa(run.Counts.Errors),
			status,
		})
	}
	return renderTable(runColumns, rows)
}

func renderEvents(events []journal.Event) string {
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{ev.Action, ev.Path, ev.Target, ev.Reason, ev.Error})
	}
	return renderTable(eventColumns, rows)
}
