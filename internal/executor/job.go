package executor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vmunix/nfosync/internal/match"
	"github.com/vmunix/nfosync/internal/plex"
	"github.com/vmunix/nfosync/internal/subtitles"
)

// ErrInvalidTransition is returned when a job is moved along an edge the
// state machine does not have.
var ErrInvalidTransition = errors.New("invalid state transition")

// Op is a unit of remote work within a job.
type Op uint8

const (
	OpMetadata Op = 1 << iota
	OpSubtitles
)

// Ops is a set of operations.
type Ops uint8

// Has reports whether op is in the set.
func (o Ops) Has(op Op) bool {
	return uint8(o)&uint8(op) != 0
}

// SubtitleOutcome records what happened to one embedded track.
type SubtitleOutcome struct {
	Track    subtitles.Track
	Language string // code sent to the server
	Uploaded bool
	Skipped  bool // not text based
	Err      error
}

// Job is the update of one matched item. A job is consumed once.
type Job struct {
	Match match.Result
	Ops   Ops
	Edit  plex.Edit

	mu        sync.Mutex
	state     State
	attempts  int
	err       error
	unchanged bool
	deleted   bool
	subtitles []SubtitleOutcome
}

func newJob(m match.Result, ops Ops) *Job {
	return &Job{Match: m, Ops: ops, Edit: editFor(m)}
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Attempts returns the number of metadata attempts made.
func (j *Job) Attempts() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.attempts
}

// Err returns the terminal metadata error, if any.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Unchanged reports whether the metadata step was skipped because the
// server already had these values.
func (j *Job) Unchanged() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.unchanged
}

// Deleted reports whether the sidecar was removed.
func (j *Job) Deleted() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.deleted
}

// Subtitles returns the per-track outcomes.
func (j *Job) Subtitles() []SubtitleOutcome {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]SubtitleOutcome(nil), j.subtitles...)
}

func (j *Job) transition(to State) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.state.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.state, to)
	}
	j.state = to
	return nil
}

// editFor builds the edit pushed for a matched sidecar. The sort title
// falls back to the title.
func editFor(m match.Result) plex.Edit {
	rec := m.Record
	e := plex.Edit{
		Title:     rec.Title,
		TitleSort: rec.SortTitle,
		Summary:   rec.Plot,
		Aired:     rec.Aired,
	}
	if e.TitleSort == "" {
		e.TitleSort = e.Title
	}
	return e
}
