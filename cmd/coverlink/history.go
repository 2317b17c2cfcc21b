package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"coverlink"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently played tracks",
	Long: `Reads the play history recorded by "coverlink display" when history is
enabled (HISTORY_ENABLED=true or history.enabled in the config file).`,
	RunE: runHistory,
}

var (
	historyLimit   int
	historyJSON    bool
	historyCleanup bool
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of plays to show")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print JSON")
	historyCmd.Flags().BoolVar(&historyCleanup, "cleanup", false, "remove plays older than the retention period first")
}

func runHistory(cmd *cobra.Command, args []string) error {
	config := cfg.History
	if !config.Enabled {
		return fmt.Errorf("%w: enable it with HISTORY_ENABLED=true", coverlink.ErrStorageDisabled)
	}
	// the command only reads; the display process owns the cleanup schedule
	config.CleanupInterval = 0

	history, err := coverlink.NewHistory(config, logger)
	if err != nil {
		return err
	}
	defer history.Close()

	if historyCleanup {
		deleted, err := history.Cleanup()
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Removed %d plays older than %d days\n", deleted, config.RetentionDays)
	}

	plays, err := history.Recent(historyLimit)
	if err != nil {
		return err
	}

	if historyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(plays)
	}
	return printPlays(os.Stdout, plays)
}

func printPlays(w io.Writer, plays []coverlink.Play) error {
	if len(plays) == 0 {
		_, err := fmt.Fprintln(w, "No plays recorded yet.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tDURATION\tARTIST\tTITLE")
	for _, p := range plays {
		duration := "playing"
		if p.EndedAt != nil {
			duration = p.Duration().Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			p.StartedAt.Local().Format("2006-01-02 15:04"), duration, p.Artist, p.Title)
	}
	return tw.Flush()
}
