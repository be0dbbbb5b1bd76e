package main

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"wayfarer-hq/keeper/pkg/cli"
	"wayfarer-hq/keeper/pkg/journal"
)

var eventsFlags struct {
	db     string
	limit  int
	format string
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List lifecycle events from the SQLite journal",
	Long: `List recent lifecycle events (provisioning attempts, launches, exits,
config drift) recorded by run. Only the sqlite journal backend outlives the
process; with the memory backend use the /events endpoint instead.

Examples:
  keeper events
  keeper events --db data/journal.db --limit 20 --format json`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringVar(&eventsFlags.db, "db", "", "journal database (defaults to journal.sqlite.path)")
	eventsCmd.Flags().IntVarP(&eventsFlags.limit, "limit", "n", 50, "maximum number of events")
	eventsCmd.Flags().StringVar(&eventsFlags.format, "format", "text", "output format: text, json")
}

func runEvents(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(eventsFlags.format)
	if err != nil {
		return err
	}
	if eventsFlags.limit < 1 {
		return cli.NewConfigError("limit", "must be positive")
	}

	path := eventsFlags.db
	busy := time.Duration(0)
	if path == "" {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Journal.Backend != "sqlite" {
			return cli.NewConfigError("journal.backend",
				fmt.Sprintf("%q journal is not persisted; use --db or the /events endpoint", cfg.Journal.Backend))
		}
		path, busy = cfg.Journal.SQLite.Path, cfg.Journal.SQLite.BusyTimeout
	}

	store, err := journal.NewSQLiteStorage(journal.SQLiteConfig{Path: path, BusyTimeout: busy})
	if err != nil {
		return cli.NewCommandError("events", err)
	}
	defer store.Close()

	events, err := store.Recent(context.Background(), eventsFlags.limit)
	if err != nil {
		return cli.NewCommandError("events", err)
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		if events == nil {
			events = []journal.Event{}
		}
		return cli.NewFormatter(format).FormatTo(out, events)
	}
	return writeEventTable(cmd, events)
}

func writeEventTable(cmd *cobra.Command, events []journal.Event) error {
	if len(events) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No events recorded")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tCOMPONENT\tMESSAGE")
	for _, ev := range events {
		msg := ev.Message
		if ev.Error != "" {
			msg += ": " + ev.Error
		}
		if len(ev.Attrs) > 0 {
			msg += " " + formatAttrs(ev.Attrs)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ev.Time.Local().Format(time.DateTime), ev.Kind, ev.Component, msg)
	}
	return tw.Flush()
}

func formatAttrs(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+attrs[k])
	}
	return strings.Join(parts, " ")
}
