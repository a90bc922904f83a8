// Package match pairs parsed sidecars with library items.
//
// Matching is exact: a sidecar matches an item only when its
// companion video path, or failing that its file name, equals one of the
// item's media paths after Unicode and case normalization. Fuzzy scores are
// computed for unmatched sidecars in detail mode, but only as a log hint.
package match

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/vmunix/nfosync/internal/library"
	"github.com/vmunix/nfosync/internal/nfo"
)

// Status is the outcome of matching one sidecar.
type Status string

const (
	StatusMatched   Status = "matched"
	StatusUnmatched Status = "unmatched"
	StatusDuplicate Status = "duplicate"
	StatusMalformed Status = "malformed"
)

// Via records which rule produced a match.
type Via string

const (
	ViaPath     Via = "path"
	ViaBasename Via = "basename"
)

// hintThreshold is the minimum similarity for an unmatched hint.
const hintThreshold = 0.85

// Result pairs one sidecar with at most one item.
type Result struct {
	Record *nfo.Record
	Item   library.Item // zero unless Status is StatusMatched
	Status Status
	Via    Via
	// ClaimedBy is the sidecar that already owns the item, for duplicates.
	ClaimedBy string
}

// Lookup is the part of the library index the matcher needs.
type Lookup interface {
	ByPath(path string) []library.Item
	ByBase(name string) []library.Item
	BaseNames() []string
}

// Matcher pairs sidecars with items.
type Matcher struct {
	toRemote func(string) string
	hints    bool
	log      *slog.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithPathMapping translates local video paths into server paths before
// full-path lookups.
func WithPathMapping(toRemote func(string) string) Option {
	return func(m *Matcher) { m.toRemote = toRemote }
}

// WithHints logs the closest library file name for unmatched sidecars.
func WithHints(enabled bool) Option {
	return func(m *Matcher) { m.hints = enabled }
}

// New creates a matcher.
func New(log *slog.Logger, opts ...Option) *Matcher {
	if log == nil {
		log = slog.Default()
	}
	m := &Matcher{
		toRemote: func(p string) string { return p },
		log:      log.With("component", "match"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match returns one result per record, in input order. An item is assigned
// to at most one record; later records resolving to it are duplicates.
func (m *Matcher) Match(records []*nfo.Record, ix Lookup) []Result {
	results := make([]Result, 0, len(records))
	claimed := make(map[string]string) // ratingKey -> sidecar path

	var names []string // lazily loaded for hints

	for _, rec := range records {
		if rec.Malformed() {
			m.log.Warn("malformed sidecar", "path", rec.Path, "error", rec.Err)
			results = append(results, Result{Record: rec, Status: StatusMalformed})
			continue
		}
		if rec.Err != nil {
			m.log.Warn("sidecar partially parsed", "path", rec.Path, "error", rec.Err)
		}

		item, via, ok := m.lookup(rec, ix)
		if !ok {
			if m.hints {
				if names == nil {
					names = ix.BaseNames()
				}
				m.logHint(rec, names)
			}
			m.log.Warn("no library item for sidecar", "path", rec.Path)
			results = append(results, Result{Record: rec, Status: StatusUnmatched})
			continue
		}

		if owner, taken := claimed[item.RatingKey]; taken {
			m.log.Warn("library item already claimed", "path", rec.Path, "rating_key", item.RatingKey, "claimed_by", owner)
			results = append(results, Result{Record: rec, Status: StatusDuplicate, ClaimedBy: owner})
			continue
		}
		claimed[item.RatingKey] = rec.Path

		m.log.Debug("matched", "path", rec.Path, "rating_key", item.RatingKey, "library", item.Library, "via", string(via))
		results = append(results, Result{Record: rec, Item: item, Status: StatusMatched, Via: via})
	}
	return results
}

// lookup tries every candidate by full path first, then by file name.
func (m *Matcher) lookup(rec *nfo.Record, ix Lookup) (library.Item, Via, bool) {
	candidates := Candidates(rec)

	for _, c := range candidates {
		if items := ix.ByPath(m.toRemote(c)); len(items) > 0 {
			m.logTie(rec, items)
			return items[0], ViaPath, true
		}
	}
	for _, c := range candidates {
		if items := ix.ByBase(filepath.Base(c)); len(items) > 0 {
			m.logTie(rec, items)
			return items[0], ViaBasename, true
		}
	}
	return library.Item{}, "", false
}

func (m *Matcher) logTie(rec *nfo.Record, items []library.Item) {
	if len(items) < 2 {
		return
	}
	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = it.RatingKey
	}
	m.log.Warn("several library items share this file, using the first",
		"path", rec.Path, "rating_keys", strings.Join(keys, ","), "library", items[0].Library)
}

func (m *Matcher) logHint(rec *nfo.Record, names []string) {
	want := strings.ToLower(rec.BaseName())
	best, bestScore := "", float32(0)
	for _, name := range names {
		stem := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
		if score := edlib.JaroWinklerSimilarity(want, stem); score > bestScore {
			best, bestScore = name, score
		}
	}
	if bestScore >= hintThreshold {
		m.log.Debug("closest library file", "path", rec.Path, "candidate", best, "similarity", bestScore)
	}
}

// Candidates returns the video paths a sidecar may describe: its companion
// video when one exists locally, otherwise its base name with every
// recognized video extension.
func Candidates(rec *nfo.Record) []string {
	if rec.VideoPath != "" {
		return []string{rec.VideoPath}
	}
	base := strings.TrimSuffix(rec.Path, filepath.Ext(rec.Path))
	out := make([]string, len(nfo.VideoExtensions))
	for i, ext := range nfo.VideoExtensions {
		out[i] = base + ext
	}
	return out
}

// Counts tallies results by status.
func Counts(results []Result) map[Status]int {
	counts := make(map[Status]int, 4)
	for _, r := range results {
		counts[r.Status]++
	}
	return counts
}
