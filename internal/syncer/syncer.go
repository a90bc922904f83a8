// Package syncer runs one discovery, match and update cycle.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vmunix/nfosync/internal/events"
	"github.com/vmunix/nfosync/internal/executor"
	"github.com/vmunix/nfosync/internal/library"
	"github.com/vmunix/nfosync/internal/match"
	"github.com/vmunix/nfosync/internal/nfo"
)

// ErrNoRoots is returned when no scan directory exists locally.
var ErrNoRoots = errors.New("no scan directories available")

// Remote is the media server as the cycle uses it.
type Remote interface {
	library.Source
	executor.RemoteAPI
	TranslateToLocal(path string) string
	TranslateToRemote(path string) string
}

// Options configures every cycle.
type Options struct {
	Libraries   []string
	Directories []string // scan roots; empty uses the libraries' own locations
	Files       []string // when set, only these targets are synced
	Executor    executor.Config
}

// Deps are optional collaborators handed to each cycle's executor.
type Deps struct {
	Store     executor.AppliedStore
	Subtitles executor.SubtitleSource
	Events    *events.Bus
}

// Report is the outcome of one cycle.
type Report struct {
	RunID    string
	Trigger  string
	Sidecars int
	*executor.Summary
}

// Syncer runs sync cycles against one media server.
type Syncer struct {
	remote Remote
	opts   Options
	deps   Deps
	log    *slog.Logger
}

// New creates a syncer.
func New(remote Remote, opts Options, deps Deps, log *slog.Logger) *Syncer {
	if log == nil {
		log = slog.Default()
	}
	return &Syncer{
		remote: remote,
		opts:   opts,
		deps:   deps,
		log:    log.With("component", "syncer"),
	}
}

// Roots returns the local directories a cycle scans.
func (s *Syncer) Roots(ctx context.Context) ([]string, error) {
	if len(s.opts.Directories) > 0 {
		return s.existing(s.opts.Directories)
	}
	sections, err := s.remote.ResolveSections(ctx, s.opts.Libraries)
	if err != nil {
		return nil, err
	}
	var locations []string
	for _, sec := range sections {
		for _, loc := range sec.Locations {
			locations = append(locations, loc.Path)
		}
	}
	return s.existing(s.localize(locations))
}

func (s *Syncer) localize(paths []string) []string {
	local := make([]string, 0, len(paths))
	for _, p := range paths {
		local = append(local, s.remote.TranslateToLocal(p))
	}
	return local
}

// existing drops directories that are not present locally.
func (s *Syncer) existing(dirs []string) ([]string, error) {
	var out []string
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			s.log.Warn("scan directory not available, skipping", "path", dir)
			continue
		}
		out = append(out, dir)
	}
	if len(out) == 0 {
		return nil, ErrNoRoots
	}
	return out, nil
}

// Cycle runs one cycle and discards the report. It matches watch.Cycle.
func (s *Syncer) Cycle(ctx context.Context, trigger string) error {
	_, err := s.RunOnce(ctx, trigger)
	return err
}

// RunOnce discovers sidecars, matches them against a fresh library snapshot
// and applies them. Per-item failures end up in the report; only discovery
// and index failures are returned.
func (s *Syncer) RunOnce(ctx context.Context, trigger string) (*Report, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := s.log.With("run_id", runID, "trigger", trigger)

	// the index is built up front only when it supplies the scan roots
	var ix *library.Index
	var err error
	if len(s.opts.Files) == 0 && len(s.opts.Directories) == 0 {
		if ix, err = s.buildIndex(ctx, log); err != nil {
			return nil, err
		}
	}

	paths, err := s.discover(ix)
	if err != nil {
		return nil, err
	}

	report := &Report{RunID: runID, Trigger: trigger, Sidecars: len(paths), Summary: &executor.Summary{}}
	if len(paths) == 0 {
		log.Info("no sidecars found")
		return report, nil
	}

	if ix == nil {
		if ix, err = s.buildIndex(ctx, log); err != nil {
			return nil, err
		}
	}

	s.deps.Events.Publish(ctx, &events.RunStarted{
		BaseEvent: events.NewBaseEvent(events.EventRunStarted, events.EntityRun, runID),
		Trigger:   trigger,
		Sidecars:  len(paths),
	})
	log.Info("sync started", "sidecars", len(paths))

	records, err := s.parse(ctx, paths)
	if err != nil {
		return nil, err
	}

	matcher := match.New(log, match.WithPathMapping(s.remote.TranslateToRemote), match.WithHints(true))
	results := matcher.Match(records, ix)
	counts := match.Counts(results)
	log.Debug("sidecars matched",
		"matched", counts[match.StatusMatched],
		"unmatched", counts[match.StatusUnmatched],
		"duplicates", counts[match.StatusDuplicate],
		"malformed", counts[match.StatusMalformed])

	cfg := s.opts.Executor
	cfg.RunID = runID
	exec := executor.New(s.remote, cfg, executor.Deps{
		Subtitles: s.deps.Subtitles,
		Store:     s.deps.Store,
		Index:     ix,
		Events:    s.deps.Events,
	}, log)
	report.Summary = exec.Run(ctx, results)
	report.Duration = time.Since(start)

	s.logReport(log, report)
	s.deps.Events.Publish(ctx, &events.RunCompleted{
		BaseEvent:  events.NewBaseEvent(events.EventRunCompleted, events.EntityRun, runID),
		Succeeded:  report.Succeeded,
		Failed:     report.Failed,
		Unchanged:  report.Unchanged,
		Unmatched:  report.Unmatched,
		Duplicates: report.Duplicates,
		Malformed:  report.Malformed,
		Deleted:    report.Deleted,
		Subtitles:  report.SubtitlesUploaded,
		DurationMS: report.Duration.Milliseconds(),
	})
	return report, nil
}

func (s *Syncer) buildIndex(ctx context.Context, log *slog.Logger) (*library.Index, error) {
	ix, err := library.Build(ctx, s.remote, s.opts.Libraries, log)
	if err != nil {
		return nil, fmt.Errorf("build library index: %w", err)
	}
	return ix, nil
}

// discover returns the sidecar paths for this cycle. ix is nil unless the
// scan roots come from the server.
func (s *Syncer) discover(ix *library.Index) ([]string, error) {
	if len(s.opts.Files) > 0 {
		return nfo.Resolve(s.opts.Files)
	}

	dirs := s.opts.Directories
	if ix != nil {
		dirs = s.localize(ix.Locations())
	}
	roots, err := s.existing(dirs)
	if err != nil {
		return nil, err
	}

	paths, err := nfo.Scan(roots)
	if err != nil {
		return nil, fmt.Errorf("discover sidecars: %w", err)
	}
	return paths, nil
}

// parse reads the sidecars in parallel, keeping scan order.
func (s *Syncer) parse(ctx context.Context, paths []string) ([]*nfo.Record, error) {
	records := make([]*nfo.Record, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.opts.Executor.Threads, 1))
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			records[i] = nfo.Parse(p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Syncer) logReport(log *slog.Logger, r *Report) {
	attrs := []any{
		"sidecars", r.Sidecars,
		"succeeded", r.Succeeded,
		"unchanged", r.Unchanged,
		"failed", r.Failed,
		"unmatched", r.Unmatched,
		"duplicates", r.Duplicates,
		"malformed", r.Malformed,
		"deleted", r.Deleted,
		"duration", r.Duration.Round(time.Millisecond),
	}
	if r.Pending > 0 {
		attrs = append(attrs, "pending", r.Pending)
	}
	if r.SubtitlesUploaded+r.SubtitlesFailed+r.SubtitlesSkipped > 0 {
		attrs = append(attrs,
			"subtitles_uploaded", r.SubtitlesUploaded,
			"subtitles_failed", r.SubtitlesFailed,
			"subtitles_skipped", r.SubtitlesSkipped)
	}
	if r.Failed > 0 {
		log.Warn("sync finished with failures", attrs...)
		for _, f := range r.Failures {
			log.Warn("failed item", "path", f.Sidecar, "rating_key", f.RatingKey, "attempts", f.Attempts, "error", f.Err)
		}
		return
	}
	log.Info("sync finished", attrs...)
}
