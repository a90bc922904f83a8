package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vmunix/nfosync/internal/config"
	"github.com/vmunix/nfosync/internal/events"
	"github.com/vmunix/nfosync/internal/state"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sync events",
	Long: `Shows recorded sync events, newest first.

--entity accepts a sidecar path or a Plex rating key. --since accepts a
duration such as 24h and limits the output to events that recent.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Number of events to show")
	historyCmd.Flags().String("db", "", "State database (default: state.path from config)")
	historyCmd.Flags().String("entity", "", "Only events for this sidecar path or rating key")
	historyCmd.Flags().Duration("since", 0, "Only events newer than this (e.g. 24h)")
}

type historyQuery struct {
	limit  int
	entity string
	since  time.Duration
}

func runHistory(cmd *cobra.Command, args []string) error {
	var q historyQuery
	q.limit, _ = cmd.Flags().GetInt("limit")
	q.entity, _ = cmd.Flags().GetString("entity")
	q.since, _ = cmd.Flags().GetDuration("since")
	dbPath, _ := cmd.Flags().GetString("db")

	if dbPath == "" {
		path, err := resolveConfigPath(nil)
		if err != nil {
			return err
		}
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if cfg.State.Path == "" {
			return fmt.Errorf("state.path is empty, no history is recorded")
		}
		dbPath = cfg.State.Path
	}

	st, err := state.Open(cmd.Context(), dbPath)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer func() { _ = st.Close() }()

	list, err := queryHistory(cmd.Context(), events.NewEventLog(st.DB()), q, time.Now())
	if err != nil {
		return fmt.Errorf("failed to fetch events: %w", err)
	}
	tracked, err := st.Count(cmd.Context())
	if err != nil {
		return fmt.Errorf("count applied sidecars: %w", err)
	}

	out := cmd.OutOrStdout()
	printHistory(out, events.DefaultRegistry(), list)
	fmt.Fprintf(out, "\nApplied sidecars tracked: %d\n", tracked)
	return nil
}

// historySource is the read side of the event log.
type historySource interface {
	Recent(ctx context.Context, limit int) ([]events.RawEvent, error)
	Since(ctx context.Context, t time.Time) ([]events.RawEvent, error)
	ForEntity(ctx context.Context, entityType, entityID string) ([]events.RawEvent, error)
}

// queryHistory returns at most q.limit events, newest first.
func queryHistory(ctx context.Context, src historySource, q historyQuery, now time.Time) ([]events.RawEvent, error) {
	var (
		list []events.RawEvent
		err  error
	)
	switch {
	case q.entity != "":
		entityType, entityID := entityFor(q.entity)
		list, err = src.ForEntity(ctx, entityType, entityID)
	case q.since > 0:
		list, err = src.Since(ctx, now.Add(-q.since))
	default:
		return src.Recent(ctx, q.limit)
	}
	if err != nil {
		return nil, err
	}

	if q.entity != "" && q.since > 0 {
		cutoff := now.Add(-q.since)
		list = slices.DeleteFunc(list, func(e events.RawEvent) bool {
			return e.OccurredAt.Before(cutoff)
		})
	}
	slices.Reverse(list)
	if q.limit > 0 && len(list) > q.limit {
		list = list[:q.limit]
	}
	return list, nil
}

// entityFor maps a --entity argument onto the event log's entity columns.
// Anything that looks like a path is a sidecar; the rest are rating keys.
func entityFor(arg string) (string, string) {
	if strings.ContainsAny(arg, `/\`) || strings.EqualFold(filepath.Ext(arg), ".nfo") {
		return events.EntitySidecar, filepath.Clean(arg)
	}
	return events.EntityItem, arg
}

func printHistory(w io.Writer, reg *events.Registry, list []events.RawEvent) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No events")
		return
	}

	fmt.Fprintf(w, "Recent Events (%d):\n\n", len(list))
	fmt.Fprintf(w, "  %-16s %-18s %-32s %s\n", "TIME", "TYPE", "ENTITY", "DETAILS")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 96))

	for _, e := range list {
		fmt.Fprintf(w, "  %-16s %-18s %-32s %s\n",
			humanize.Time(e.OccurredAt), e.EventType, truncate(e.EntityType+"/"+e.EntityID, 32), describe(reg, e))
	}
}

// describe renders the interesting payload fields of an event.
func describe(reg *events.Registry, raw events.RawEvent) string {
	ev, err := reg.Unmarshal(raw)
	if err != nil {
		return ""
	}
	switch e := ev.(type) {
	case *events.RunStarted:
		return fmt.Sprintf("%s, %d sidecars", e.Trigger, e.Sidecars)
	case *events.RunCompleted:
		return fmt.Sprintf("%d ok, %d unchanged, %d failed in %s",
			e.Succeeded, e.Unchanged, e.Failed, time.Duration(e.DurationMS)*time.Millisecond)
	case *events.ItemUpdated:
		return fmt.Sprintf("%s (%s), %d attempt(s)", e.Title, strings.Join(e.Fields, ","), e.Attempts)
	case *events.ItemUnchanged:
		return e.Sidecar
	case *events.ItemFailed:
		return fmt.Sprintf("%d attempt(s): %s", e.Attempts, e.Error)
	case *events.SidecarSkipped:
		return e.Reason
	case *events.SubtitleUploaded:
		return fmt.Sprintf("stream %d, %s (%s)", e.Stream, e.Language, e.Codec)
	case *events.SubtitleFailed:
		return fmt.Sprintf("stream %d: %s", e.Stream, e.Error)
	case *events.WatchDropped:
		return fmt.Sprintf("%d change(s) dropped", e.Pending)
	}
	return ""
}

// truncate keeps the tail of long entity IDs, which are usually paths.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "..." + string(r[len(r)-n+3:])
}
