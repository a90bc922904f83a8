// Package library holds the per-run snapshot of the media server's items
// and answers path lookups against it.
package library

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/vmunix/nfosync/internal/plex"
)

// Fields are the editable metadata fields of an item.
type Fields struct {
	Title     string
	SortTitle string
	Aired     string
	Summary   string
}

// Item is one library entry as seen at the start of the run.
type Item struct {
	RatingKey  string
	Library    string
	SectionKey string
	Type       int
	FilePaths  []string // every media part, as the server sees it
	Fields
}

// FilePath returns the item's primary media file.
func (i Item) FilePath() string {
	if len(i.FilePaths) == 0 {
		return ""
	}
	return i.FilePaths[0]
}

// Source lists sections and their items. *plex.Client implements it.
type Source interface {
	ResolveSections(ctx context.Context, names []string) ([]plex.Section, error)
	Items(ctx context.Context, section plex.Section) ([]plex.Item, error)
}

// Index is an in-memory snapshot of the configured libraries. Lookups return
// copies; Apply is the only mutation and mirrors a confirmed remote update.
type Index struct {
	mu        sync.RWMutex
	items     []*Item
	byKey     map[string]*Item
	byPath    map[string][]*Item
	byBase    map[string][]*Item
	locations []string
}

// Build fetches every item of the named libraries, in configuration order.
func Build(ctx context.Context, src Source, libraries []string, log *slog.Logger) (*Index, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "library")

	sections, err := src.ResolveSections(ctx, libraries)
	if err != nil {
		return nil, err
	}

	var (
		items     []Item
		locations []string
	)
	for _, sec := range sections {
		remote, err := src.Items(ctx, sec)
		if err != nil {
			return nil, fmt.Errorf("list items of %q: %w", sec.Title, err)
		}
		for _, loc := range sec.Locations {
			locations = append(locations, loc.Path)
		}
		for _, r := range remote {
			items = append(items, Item{
				RatingKey:  r.RatingKey,
				Library:    sec.Title,
				SectionKey: sec.Key,
				Type:       sec.ItemType(),
				FilePaths:  r.Files,
				Fields: Fields{
					Title:     r.Title,
					SortTitle: r.TitleSort,
					Aired:     r.OriginallyAvailableAt,
					Summary:   r.Summary,
				},
			})
		}
		log.Debug("library loaded", "library", sec.Title, "section", sec.Key, "items", len(remote))
	}

	ix := NewIndex(items)
	ix.locations = locations
	log.Info("library index built", "libraries", len(sections), "items", ix.Len())
	return ix, nil
}

// NewIndex builds an index over the given items. Order is preserved and
// decides which item wins a basename tie.
func NewIndex(items []Item) *Index {
	ix := &Index{
		byKey:  make(map[string]*Item, len(items)),
		byPath: make(map[string][]*Item),
		byBase: make(map[string][]*Item),
	}
	for i := range items {
		item := items[i].clone()
		p := &item
		if _, dup := ix.byKey[p.RatingKey]; dup {
			continue
		}
		ix.items = append(ix.items, p)
		ix.byKey[p.RatingKey] = p
		for _, f := range p.FilePaths {
			ix.byPath[PathKey(f)] = appendUnique(ix.byPath[PathKey(f)], p)
			ix.byBase[BaseKey(f)] = appendUnique(ix.byBase[BaseKey(f)], p)
		}
	}
	return ix
}

func appendUnique(list []*Item, p *Item) []*Item {
	for _, existing := range list {
		if existing == p {
			return list
		}
	}
	return append(list, p)
}

// Len returns the number of items.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.items)
}

// Locations returns the library root paths, as the server sees them.
func (ix *Index) Locations() []string {
	return append([]string(nil), ix.locations...)
}

// Get returns the item with the given rating key.
func (ix *Index) Get(ratingKey string) (Item, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	p, ok := ix.byKey[ratingKey]
	if !ok {
		return Item{}, false
	}
	return p.clone(), true
}

// ByPath returns the items with a media part at exactly this path.
func (ix *Index) ByPath(path string) []Item {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return copyItems(ix.byPath[PathKey(path)])
}

// ByBase returns the items with a media part of this file name, in library order.
func (ix *Index) ByBase(name string) []Item {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return copyItems(ix.byBase[BaseKey(name)])
}

// BaseNames returns the file name of every media part.
func (ix *Index) BaseNames() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	names := make([]string, 0, len(ix.byBase))
	for _, item := range ix.items {
		for _, f := range item.FilePaths {
			names = append(names, baseName(f))
		}
	}
	return names
}

// Apply mirrors fields the server accepted. Empty fields are left unchanged.
func (ix *Index) Apply(ratingKey string, f Fields) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	p, ok := ix.byKey[ratingKey]
	if !ok {
		return false
	}
	if f.Title != "" {
		p.Title = f.Title
	}
	if f.SortTitle != "" {
		p.SortTitle = f.SortTitle
	}
	if f.Aired != "" {
		p.Aired = f.Aired
	}
	if f.Summary != "" {
		p.Summary = f.Summary
	}
	return true
}

func (i *Item) clone() Item {
	c := *i
	c.FilePaths = append([]string(nil), i.FilePaths...)
	return c
}

func copyItems(list []*Item) []Item {
	if len(list) == 0 {
		return nil
	}
	out := make([]Item, len(list))
	for i, p := range list {
		out[i] = p.clone()
	}
	return out
}

// PathKey normalizes a full path for comparison: NFC, case-folded, forward slashes.
func PathKey(path string) string {
	return fold(strings.ReplaceAll(path, `\`, "/"))
}

// BaseKey normalizes the file name of a path for comparison.
func BaseKey(path string) string {
	return fold(baseName(path))
}

// fold applies NFC and Unicode case folding. A Caser is not safe for
// concurrent use.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// baseName handles both slash styles; the server may run on Windows.
func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
