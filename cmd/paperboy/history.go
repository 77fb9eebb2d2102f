package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ldiehl/paperboy/internal/history"
	"github.com/ldiehl/paperboy/internal/paper"
)

var (
	historyPeriod string
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived digest runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store, err := history.Open(cfg.HistoryPath)
		if err != nil {
			exitWithError(ExitError, "opening digest history: %v", err)
		}
		defer store.Close()

		runs, err := store.ListRuns(paper.Period(historyPeriod), historyLimit)
		if err != nil {
			exitWithError(ExitError, "listing runs: %v", err)
		}

		if !humanOutput {
			return outputJSON(runs)
		}
		if len(runs) == 0 {
			outputHuman("no archived runs\n")
			return nil
		}
		for _, r := range runs {
			partial := ""
			if r.Partial {
				partial = " (partial)"
			}
			outputHuman("%d  %s  %-6s  %d entries, %d rejected%s\n",
				r.ID, r.GeneratedAt.Format("2006-01-02 15:04"), r.Period,
				r.EntryCount, r.TotalRejected, partial)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the entries of one archived run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			exitWithError(ExitError, "invalid run id %q", args[0])
		}

		cfg := loadConfig()
		store, err := history.Open(cfg.HistoryPath)
		if err != nil {
			exitWithError(ExitError, "opening digest history: %v", err)
		}
		defer store.Close()

		entries, err := store.RunEntries(runID)
		if err != nil {
			exitWithError(ExitError, "loading run %d: %v", runID, err)
		}

		if !humanOutput {
			return outputJSON(entries)
		}
		for i, e := range entries {
			outputHuman("%d. [%.2f] %s\n", i+1, e.Score, truncateString(e.Candidate.Title, ListTitleMaxLen))
			outputHuman("   doi:%s\n", e.Identifier)
			if e.Summary != "" {
				outputHuman("   %s\n", e.Summary)
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyPeriod, "period", "", "Filter by period: daily or weekly")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to list (0 for all)")
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}
