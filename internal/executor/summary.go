package executor

import (
	"time"

	"github.com/vmunix/nfosync/internal/library"
	"github.com/vmunix/nfosync/internal/match"
	"github.com/vmunix/nfosync/internal/plex"
)

// Failure is one item the run could not update.
type Failure struct {
	Sidecar   string
	RatingKey string
	Attempts  int
	Err       error
}

// Summary tallies one run. Unchanged items count toward Succeeded too.
type Summary struct {
	Total      int
	Succeeded  int
	Unchanged  int
	Failed     int
	Unmatched  int
	Duplicates int
	Malformed  int
	Deleted    int
	Pending    int // jobs that never reached a terminal state

	SubtitlesUploaded int
	SubtitlesFailed   int
	SubtitlesSkipped  int

	Failures []Failure
	Jobs     []*Job
	Duration time.Duration
}

func (s *Summary) skip(r match.Result) {
	switch r.Status {
	case match.StatusUnmatched:
		s.Unmatched++
	case match.StatusDuplicate:
		s.Duplicates++
	case match.StatusMalformed:
		s.Malformed++
	}
}

func (s *Summary) add(j *Job) {
	st := j.State()
	switch {
	case !st.IsTerminal():
		s.Pending++
	case st == StateSucceeded:
		s.Succeeded++
		if j.Unchanged() {
			s.Unchanged++
		}
	default:
		s.Failed++
		s.Failures = append(s.Failures, Failure{
			Sidecar:   j.Match.Record.Path,
			RatingKey: j.Match.Item.RatingKey,
			Attempts:  j.Attempts(),
			Err:       j.Err(),
		})
	}
	if j.Deleted() {
		s.Deleted++
	}
	for _, o := range j.Subtitles() {
		switch {
		case o.Skipped:
			s.SubtitlesSkipped++
		case o.Uploaded:
			s.SubtitlesUploaded++
		default:
			s.SubtitlesFailed++
		}
	}
}

// fieldDiff is one field whose value the edit changes.
type fieldDiff struct {
	Field string
	Old   string
	New   string
}

func diffFields(cur library.Fields, e plex.Edit) []fieldDiff {
	curSort := cur.SortTitle
	if curSort == "" {
		curSort = cur.Title
	}
	pairs := []fieldDiff{
		{"title", cur.Title, e.Title},
		{"titleSort", curSort, e.TitleSort},
		{"summary", cur.Summary, e.Summary},
		{"originallyAvailableAt", cur.Aired, e.Aired},
	}
	var diffs []fieldDiff
	for _, p := range pairs {
		if p.New != "" && p.New != p.Old {
			diffs = append(diffs, p)
		}
	}
	return diffs
}

// sameFields reports whether the edit would change nothing. Fields the edit
// leaves empty are not compared. A server without a sort title sorts by
// title, so an empty sort title equals the title.
func sameFields(cur library.Fields, e plex.Edit) bool {
	return len(diffFields(cur, e)) == 0
}

func fieldsOf(e plex.Edit) library.Fields {
	return library.Fields{
		Title:     e.Title,
		SortTitle: e.TitleSort,
		Aired:     e.Aired,
		Summary:   e.Summary,
	}
}

func fieldNames(diffs []fieldDiff) []string {
	names := make([]string, 0, len(diffs))
	for _, d := range diffs {
		names = append(names, d.Field)
	}
	return names
}
