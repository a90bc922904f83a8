// Package executor applies matched sidecars to the media server under
// bounded concurrency, a shared request gate and a typed retry policy.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/vmunix/nfosync/internal/events"
	"github.com/vmunix/nfosync/internal/library"
	"github.com/vmunix/nfosync/internal/match"
	"github.com/vmunix/nfosync/internal/plex"
	"github.com/vmunix/nfosync/internal/state"
	"github.com/vmunix/nfosync/internal/subtitles"
)

//go:generate mockgen -destination=mocks/mock_remote.go -package=mocks github.com/vmunix/nfosync/internal/executor RemoteAPI

// RemoteAPI is the media server surface the executor writes to.
type RemoteAPI interface {
	UpdateMetadata(ctx context.Context, t plex.Target, e plex.Edit) error
	UploadSubtitle(ctx context.Context, ratingKey, path, language string) error
}

// SubtitleSource lists and extracts embedded subtitle tracks.
type SubtitleSource interface {
	Probe(ctx context.Context, video string) ([]subtitles.Track, error)
	WithTrack(ctx context.Context, video string, track subtitles.Track, fn func(path string) error) error
}

// AppliedStore remembers sidecars already pushed to the server.
type AppliedStore interface {
	Unchanged(ctx context.Context, nfoPath, ratingKey, hash string) (bool, error)
	Record(ctx context.Context, a state.Applied) error
	Forget(ctx context.Context, nfoPath string) error
}

// Mirror is the in-memory view of the server's items. It receives fields
// the server accepted and is read back before comparing an edit.
type Mirror interface {
	Get(ratingKey string) (library.Item, bool)
	Apply(ratingKey string, f library.Fields) bool
}

// Config controls concurrency, pacing and side effects.
type Config struct {
	Threads               int
	MaxConcurrentRequests int
	RequestDelay          time.Duration
	RetryCount            int
	RetryDelay            time.Duration
	Subtitles             bool
	AlwaysApply           bool
	DeleteAfterApply      bool
	RunID                 string
}

// Deps are optional collaborators. Nil fields disable the feature.
type Deps struct {
	Subtitles SubtitleSource
	Store     AppliedStore
	Index     Mirror
	Events    *events.Bus
	Remove    func(path string) error // defaults to os.Remove
}

// Executor runs update jobs.
type Executor struct {
	api     RemoteAPI
	cfg     Config
	deps    Deps
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates an executor. The semaphore and request gate are shared by
// every job of every Run call on this executor.
func New(api RemoteAPI, cfg Config, deps Deps, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	if cfg.MaxConcurrentRequests < 1 {
		cfg.MaxConcurrentRequests = 1
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if deps.Remove == nil {
		deps.Remove = os.Remove
	}

	limit := rate.Inf
	if cfg.RequestDelay > 0 {
		limit = rate.Every(cfg.RequestDelay)
	}

	return &Executor{
		api:     api,
		cfg:     cfg,
		deps:    deps,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests)),
		limiter: rate.NewLimiter(limit, 1),
		log:     log.With("component", "executor"),
	}
}

// Run turns matched results into jobs and processes them. Per-item failures
// are recorded in the summary; Run itself never fails.
func (e *Executor) Run(ctx context.Context, results []match.Result) *Summary {
	start := time.Now()
	sum := &Summary{Total: len(results)}

	var jobs []*Job
	for _, r := range results {
		switch r.Status {
		case match.StatusMatched:
			jobs = append(jobs, newJob(r, e.opsFor(r)))
		default:
			sum.skip(r)
			e.deps.Events.Publish(ctx, &events.SidecarSkipped{
				BaseEvent: events.NewBaseEvent(events.EventSidecarSkipped, events.EntitySidecar, r.Record.Path),
				RunID:     e.cfg.RunID,
				Reason:    string(r.Status),
			})
		}
	}

	var g errgroup.Group
	g.SetLimit(e.cfg.Threads)
	for _, job := range jobs {
		g.Go(func() error {
			e.process(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	for _, job := range jobs {
		sum.add(job)
	}
	sum.Jobs = jobs
	sum.Duration = time.Since(start)
	return sum
}

func (e *Executor) opsFor(r match.Result) Ops {
	ops := Ops(OpMetadata)
	if e.cfg.Subtitles && e.deps.Subtitles != nil && r.Record.VideoPath != "" {
		ops |= Ops(OpSubtitles)
	}
	return ops
}

// process drives one job: metadata, then subtitles, then deletion. Each
// step runs only after the metadata step succeeded.
func (e *Executor) process(ctx context.Context, job *Job) {
	rec := job.Match.Record
	item := job.Match.Item
	log := e.log.With("path", rec.Path, "rating_key", item.RatingKey)

	cached := e.cachedUnchanged(ctx, job, log)
	if cached || (!e.cfg.AlwaysApply && sameFields(e.current(item), job.Edit)) {
		e.markUnchanged(ctx, job, log)
	} else {
		e.applyMetadata(ctx, job, log)
	}
	if job.State() != StateSucceeded {
		return
	}

	if e.deps.Index != nil {
		e.deps.Index.Apply(item.RatingKey, fieldsOf(job.Edit))
	}
	if e.deps.Store != nil && !cached && rec.Hash != "" {
		err := e.deps.Store.Record(ctx, state.Applied{
			NFOPath:   rec.Path,
			RatingKey: item.RatingKey,
			Library:   item.Library,
			Hash:      rec.Hash,
		})
		if err != nil {
			log.Warn("failed to record applied sidecar", "error", err)
		}
	}

	if job.Ops.Has(OpSubtitles) && !cached {
		e.uploadSubtitles(ctx, job, log)
	}

	if e.cfg.DeleteAfterApply {
		e.deleteSidecar(ctx, job, log)
	}
}

// current returns the item's fields as last seen by the mirror, falling back
// to the snapshot taken at match time.
func (e *Executor) current(item library.Item) library.Fields {
	if e.deps.Index != nil {
		if latest, ok := e.deps.Index.Get(item.RatingKey); ok {
			return latest.Fields
		}
	}
	return item.Fields
}

func (e *Executor) cachedUnchanged(ctx context.Context, job *Job, log *slog.Logger) bool {
	if e.cfg.AlwaysApply || e.deps.Store == nil || job.Match.Record.Hash == "" {
		return false
	}
	unchanged, err := e.deps.Store.Unchanged(ctx, job.Match.Record.Path, job.Match.Item.RatingKey, job.Match.Record.Hash)
	if err != nil {
		log.Warn("applied-hash lookup failed", "error", err)
		return false
	}
	return unchanged
}

func (e *Executor) markUnchanged(ctx context.Context, job *Job, log *slog.Logger) {
	_ = job.transition(StateInFlight)
	_ = job.transition(StateSucceeded)
	job.mu.Lock()
	job.unchanged = true
	job.mu.Unlock()

	log.Info("metadata unchanged, skipping update", "title", job.Edit.Title)
	e.deps.Events.Publish(ctx, &events.ItemUnchanged{
		BaseEvent: events.NewBaseEvent(events.EventItemUnchanged, events.EntityItem, job.Match.Item.RatingKey),
		RunID:     e.cfg.RunID,
		Sidecar:   job.Match.Record.Path,
	})
}

func (e *Executor) applyMetadata(ctx context.Context, job *Job, log *slog.Logger) {
	item := job.Match.Item
	target := plex.Target{SectionKey: item.SectionKey, RatingKey: item.RatingKey, Type: item.Type}

	attempts, err := e.retry(ctx, func(ctx context.Context) error {
		if job.State() == StateFailedRetryable {
			_ = job.transition(StatePending)
		}
		_ = job.transition(StateInFlight)

		err := e.api.UpdateMetadata(ctx, target, job.Edit)
		switch {
		case err == nil:
			_ = job.transition(StateSucceeded)
		case plex.IsTransient(err):
			_ = job.transition(StateFailedRetryable)
		default:
			_ = job.transition(StateFailedTerminal)
		}
		return err
	}, func(err error, next time.Duration) {
		log.Warn("metadata update failed, retrying", "error", err, "retry_in", next)
	})

	if err != nil && !job.State().IsTerminal() {
		_ = job.transition(StateFailedTerminal)
	}

	job.mu.Lock()
	job.attempts = attempts
	job.err = err
	job.mu.Unlock()

	if err != nil {
		log.Error("metadata update failed", "attempts", attempts, "transient", plex.IsTransient(err), "error", err)
		e.deps.Events.Publish(ctx, &events.ItemFailed{
			BaseEvent: events.NewBaseEvent(events.EventItemFailed, events.EntityItem, item.RatingKey),
			RunID:     e.cfg.RunID,
			Sidecar:   job.Match.Record.Path,
			Error:     err.Error(),
			Attempts:  attempts,
		})
		return
	}

	changed := diffFields(e.current(item), job.Edit)
	for _, d := range changed {
		log.Debug("field updated", "field", d.Field, "old", d.Old, "new", d.New)
	}
	log.Info("metadata updated", "title", job.Edit.Title, "library", item.Library, "attempts", attempts)
	e.deps.Events.Publish(ctx, &events.ItemUpdated{
		BaseEvent: events.NewBaseEvent(events.EventItemUpdated, events.EntityItem, item.RatingKey),
		RunID:     e.cfg.RunID,
		Sidecar:   job.Match.Record.Path,
		Title:     job.Edit.Title,
		Fields:    fieldNames(changed),
		Attempts:  attempts,
	})
}

// uploadSubtitles extracts and uploads every text track independently.
func (e *Executor) uploadSubtitles(ctx context.Context, job *Job, log *slog.Logger) {
	video := job.Match.Record.VideoPath
	ratingKey := job.Match.Item.RatingKey

	tracks, err := e.deps.Subtitles.Probe(ctx, video)
	if err != nil {
		log.Warn("subtitle probe failed", "video", video, "error", err)
		job.addSubtitle(SubtitleOutcome{Err: err})
		return
	}

	for _, track := range tracks {
		tlog := log.With("stream", track.Index, "codec", track.Codec)
		if !track.TextBased() {
			tlog.Warn("skipping non-text subtitle track")
			job.addSubtitle(SubtitleOutcome{Track: track, Skipped: true})
			continue
		}

		lang, mapped := subtitles.MapLanguage(track.Language)
		if !mapped {
			tlog.Warn("unrecognized subtitle language, sending tag unchanged", "language", track.Language)
		}

		err := e.deps.Subtitles.WithTrack(ctx, video, track, func(path string) error {
			_, err := e.retry(ctx, func(ctx context.Context) error {
				return e.api.UploadSubtitle(ctx, ratingKey, path, lang)
			}, func(err error, next time.Duration) {
				tlog.Warn("subtitle upload failed, retrying", "error", err, "retry_in", next)
			})
			return err
		})

		out := SubtitleOutcome{Track: track, Language: lang, Uploaded: err == nil, Err: err}
		job.addSubtitle(out)
		if err != nil {
			tlog.Warn("subtitle failed", "language", lang, "error", err)
			e.deps.Events.Publish(ctx, &events.SubtitleFailed{
				BaseEvent: events.NewBaseEvent(events.EventSubtitleFailed, events.EntityItem, ratingKey),
				RunID:     e.cfg.RunID,
				Stream:    track.Index,
				Error:     err.Error(),
			})
			continue
		}
		tlog.Info("subtitle uploaded", "language", lang)
		e.deps.Events.Publish(ctx, &events.SubtitleUploaded{
			BaseEvent: events.NewBaseEvent(events.EventSubtitleUploaded, events.EntityItem, ratingKey),
			RunID:     e.cfg.RunID,
			Stream:    track.Index,
			Language:  lang,
			Codec:     track.Codec,
		})
	}
}

func (e *Executor) deleteSidecar(ctx context.Context, job *Job, log *slog.Logger) {
	rec := job.Match.Record
	if !rec.Deletable() {
		log.Warn("keeping sidecar recovered from a damaged file", "error", rec.Err)
		return
	}
	if err := e.deps.Remove(rec.Path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to delete sidecar", "error", err)
		}
		return
	}

	job.mu.Lock()
	job.deleted = true
	job.mu.Unlock()

	if e.deps.Store != nil {
		if err := e.deps.Store.Forget(ctx, rec.Path); err != nil {
			log.Warn("failed to forget deleted sidecar", "error", err)
		}
	}
	log.Debug("sidecar deleted")
	e.deps.Events.Publish(ctx, &events.SidecarDeleted{
		BaseEvent: events.NewBaseEvent(events.EventSidecarDeleted, events.EntitySidecar, rec.Path),
		RunID:     e.cfg.RunID,
	})
}

// retry runs call under the shared semaphore and request gate. Transient
// errors are retried RetryCount times, RetryDelay apart; any other error
// ends the loop at once. It returns the number of attempts made.
func (e *Executor) retry(ctx context.Context, call func(context.Context) error, notify backoff.Notify) (int, error) {
	attempts := 0
	op := func() error {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return backoff.Permanent(err)
		}
		defer e.sem.Release(1)
		if err := e.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		attempts++
		err := call(ctx)
		if err != nil && !plex.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.cfg.RetryDelay), uint64(e.cfg.RetryCount)),
		ctx,
	)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return attempts, fmt.Errorf("after %d attempt(s): %w", attempts, err)
	}
	return attempts, nil
}

func (j *Job) addSubtitle(o SubtitleOutcome) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.subtitles = append(j.subtitles, o)
}
