package syncer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/nfosync/internal/events"
	"github.com/vmunix/nfosync/internal/executor"
	"github.com/vmunix/nfosync/internal/plex"
	"github.com/vmunix/nfosync/internal/state"
)

// fakePlex serves one show library rooted at /tv and records edits.
type fakePlex struct {
	mu    sync.Mutex
	edits []url.Values
	items string
}

func (f *fakePlex) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/library/sections":
			fmt.Fprint(w, `<MediaContainer>
  <Directory key="2" title="TV Shows" type="show"><Location path="/tv"/></Directory>
</MediaContainer>`)
		case r.Method == http.MethodGet && r.URL.Path == "/library/sections/2/all":
			assert.Equal(t, "4", r.URL.Query().Get("type"))
			fmt.Fprint(w, f.items)
		case r.Method == http.MethodPut && r.URL.Path == "/library/sections/2/all":
			f.mu.Lock()
			f.edits = append(f.edits, r.URL.Query())
			f.mu.Unlock()
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (f *fakePlex) Edits() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.edits...)
}

const showItems = `<MediaContainer>
  <Video ratingKey="101" type="episode" title="Episode 1">
    <Media><Part file="/tv/Show/S01E01.mkv"/></Media>
  </Video>
  <Video ratingKey="102" type="episode" title="Pilot" summary="First." originallyAvailableAt="2024-01-02">
    <Media><Part file="/tv/Show/S01E02.mkv"/></Media>
  </Video>
</MediaContainer>`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func setup(t *testing.T, opts Options, deps Deps) (*Syncer, *fakePlex, string) {
	t.Helper()
	root := t.TempDir()
	fp := &fakePlex{items: showItems}
	server := httptest.NewServer(fp.handler(t))
	t.Cleanup(server.Close)

	client := plex.NewClient(server.URL, "token", plex.Options{LocalPath: root, RemotePath: "/tv"}, nil)
	if opts.Libraries == nil {
		opts.Libraries = []string{"TV Shows"}
	}
	if opts.Executor.Threads == 0 {
		opts.Executor = executor.Config{Threads: 2, MaxConcurrentRequests: 2, RetryCount: 1, DeleteAfterApply: true}
	}
	return New(client, opts, deps, nil), fp, root
}

func TestRunOnce_AppliesMatchedSidecars(t *testing.T) {
	bus := events.NewBus(nil, nil)
	defer bus.Close()
	all := bus.SubscribeAll(32)

	s, fp, root := setup(t, Options{}, Deps{Events: bus})
	ep1 := filepath.Join(root, "Show", "S01E01.nfo")
	writeFile(t, ep1, `<episodedetails><title>The Beginning</title><aired>2024-01-01</aired><plot>It starts.</plot></episodedetails>`)
	writeFile(t, filepath.Join(root, "Show", "S01E01.mkv"), "video")
	orphan := filepath.Join(root, "Show", "Extras.nfo")
	writeFile(t, orphan, `<episodedetails><title>Extras</title></episodedetails>`)
	broken := filepath.Join(root, "Show", "S01E03.nfo")
	writeFile(t, broken, `this is not xml`)

	report, err := s.RunOnce(context.Background(), "batch")
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 3, report.Sidecars)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Unmatched)
	assert.Equal(t, 1, report.Malformed)
	assert.Equal(t, 1, report.Deleted)

	edits := fp.Edits()
	require.Len(t, edits, 1)
	assert.Equal(t, "101", edits[0].Get("id"))
	assert.Equal(t, "The Beginning", edits[0].Get("title.value"))
	assert.Equal(t, "The Beginning", edits[0].Get("titleSort.value"))
	assert.Equal(t, "2024-01-01", edits[0].Get("originallyAvailableAt.value"))
	assert.Equal(t, "It starts.", edits[0].Get("summary.value"))
	assert.Equal(t, "1", edits[0].Get("title.locked"))

	assert.NoFileExists(t, ep1)
	assert.FileExists(t, orphan)
	assert.FileExists(t, broken)

	var types []string
	for len(all) > 0 {
		types = append(types, (<-all).EventType())
	}
	assert.Contains(t, types, events.EventRunStarted)
	assert.Contains(t, types, events.EventItemUpdated)
	assert.Contains(t, types, events.EventRunCompleted)
}

func TestRunOnce_UnchangedItemIsNotEdited(t *testing.T) {
	s, fp, root := setup(t, Options{}, Deps{})
	ep2 := filepath.Join(root, "Show", "S01E02.nfo")
	writeFile(t, ep2, `<episodedetails><title>Pilot</title><aired>2024-01-02</aired><plot>First.</plot></episodedetails>`)

	report, err := s.RunOnce(context.Background(), "batch")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Unchanged)
	assert.Empty(t, fp.Edits())
	assert.NoFileExists(t, ep2)
}

func TestRunOnce_BasenameFallback(t *testing.T) {
	s, fp, root := setup(t, Options{}, Deps{})
	// sidecar lives outside the library tree, no companion video
	side := filepath.Join(root, "incoming", "S01E01.nfo")
	writeFile(t, side, `<episodedetails><title>Moved</title></episodedetails>`)

	report, err := s.RunOnce(context.Background(), "batch")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, fp.Edits(), 1)
	assert.Equal(t, "101", fp.Edits()[0].Get("id"))
}

func TestRunOnce_FilesRestrictCycle(t *testing.T) {
	s, fp, root := setup(t, Options{}, Deps{})
	ep1 := filepath.Join(root, "Show", "S01E01.nfo")
	writeFile(t, ep1, `<episodedetails><title>One</title></episodedetails>`)
	writeFile(t, filepath.Join(root, "Show", "S01E01.mkv"), "video")
	other := filepath.Join(root, "Show", "S01E02.nfo")
	writeFile(t, other, `<episodedetails><title>Two</title></episodedetails>`)

	s.opts.Files = []string{filepath.Join(root, "Show", "S01E01.mkv")}
	report, err := s.RunOnce(context.Background(), "batch")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Sidecars)
	assert.Len(t, fp.Edits(), 1)
	assert.FileExists(t, other)
}

func TestRunOnce_NoSidecars(t *testing.T) {
	s, fp, _ := setup(t, Options{}, Deps{})

	report, err := s.RunOnce(context.Background(), "batch")
	require.NoError(t, err)
	assert.Zero(t, report.Sidecars)
	assert.Zero(t, report.Total)
	assert.Empty(t, fp.Edits())
}

func TestRunOnce_AppliedHashSkipsSecondRun(t *testing.T) {
	store, err := state.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	s, fp, root := setup(t, Options{}, Deps{Store: store})
	s.opts.Executor.DeleteAfterApply = false
	ep1 := filepath.Join(root, "Show", "S01E01.nfo")
	writeFile(t, ep1, `<episodedetails><title>The Beginning</title></episodedetails>`)

	_, err = s.RunOnce(context.Background(), "batch")
	require.NoError(t, err)
	require.Len(t, fp.Edits(), 1)

	report, err := s.RunOnce(context.Background(), "batch")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unchanged)
	assert.Len(t, fp.Edits(), 1)
}

func TestRunOnce_UnknownLibrary(t *testing.T) {
	s, _, _ := setup(t, Options{Libraries: []string{"Anime"}}, Deps{})

	_, err := s.RunOnce(context.Background(), "batch")
	assert.ErrorIs(t, err, plex.ErrLibraryNotFound)
}

func TestRoots(t *testing.T) {
	s, _, root := setup(t, Options{}, Deps{})

	roots, err := s.Roots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{root}, roots)

	s.opts.Directories = []string{filepath.Join(root, "missing")}
	_, err = s.Roots(context.Background())
	assert.ErrorIs(t, err, ErrNoRoots)
}
