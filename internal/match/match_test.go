package match

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/nfosync/internal/library"
	"github.com/vmunix/nfosync/internal/nfo"
)

func record(path, video string) *nfo.Record {
	return &nfo.Record{Path: path, VideoPath: video, Title: "T"}
}

func TestMatch_FullPath(t *testing.T) {
	ix := library.NewIndex([]library.Item{
		{RatingKey: "1", Library: "TV", FilePaths: []string{"/data/tv/Show/S01E01.mkv"}},
		{RatingKey: "2", Library: "TV", FilePaths: []string{"/data/tv/Other/S01E01.mkv"}},
	})
	m := New(nil, WithPathMapping(func(p string) string {
		return strings.Replace(p, "/mnt/media", "/data", 1)
	}))

	results := m.Match([]*nfo.Record{
		record("/mnt/media/tv/Other/S01E01.nfo", "/mnt/media/tv/Other/S01E01.mkv"),
	}, ix)

	require.Len(t, results, 1)
	assert.Equal(t, StatusMatched, results[0].Status)
	assert.Equal(t, ViaPath, results[0].Via)
	assert.Equal(t, "2", results[0].Item.RatingKey, "full path beats basename order")
}

func TestMatch_BasenameCaseInsensitive(t *testing.T) {
	ix := library.NewIndex([]library.Item{
		{RatingKey: "1", FilePaths: []string{"/plex/tv/Show/show.s01e01.MKV"}},
	})

	results := New(nil).Match([]*nfo.Record{
		record("/local/Show.S01E01.nfo", "/local/Show.S01E01.mkv"),
	}, ix)

	require.Len(t, results, 1)
	assert.Equal(t, StatusMatched, results[0].Status)
	assert.Equal(t, ViaBasename, results[0].Via)
}

func TestMatch_NoCompanionVideoTriesEveryExtension(t *testing.T) {
	ix := library.NewIndex([]library.Item{
		{RatingKey: "1", FilePaths: []string{"/plex/ep.m4v"}},
	})

	results := New(nil).Match([]*nfo.Record{record("/local/ep.nfo", "")}, ix)
	require.Len(t, results, 1)
	assert.Equal(t, StatusMatched, results[0].Status)
	assert.Equal(t, "1", results[0].Item.RatingKey)
}

func TestMatch_NoFuzzyMatching(t *testing.T) {
	ix := library.NewIndex([]library.Item{
		{RatingKey: "1", FilePaths: []string{"/plex/Show.S01E01.1080p.mkv"}},
	})

	results := New(nil, WithHints(true)).Match([]*nfo.Record{
		record("/local/Show.S01E01.nfo", "/local/Show.S01E01.mkv"),
	}, ix)

	require.Len(t, results, 1)
	assert.Equal(t, StatusUnmatched, results[0].Status)
	assert.Empty(t, results[0].Item.RatingKey)
}

func TestMatch_Exclusivity(t *testing.T) {
	ix := library.NewIndex([]library.Item{
		{RatingKey: "1", FilePaths: []string{"/plex/a/ep.mkv"}},
	})

	results := New(nil).Match([]*nfo.Record{
		record("/local/a/ep.nfo", "/local/a/ep.mkv"),
		record("/local/b/ep.nfo", "/local/b/ep.mkv"),
		record("/local/c/ep.nfo", ""),
	}, ix)

	require.Len(t, results, 3)
	assert.Equal(t, StatusMatched, results[0].Status)
	assert.Equal(t, StatusDuplicate, results[1].Status)
	assert.Equal(t, "/local/a/ep.nfo", results[1].ClaimedBy)
	assert.Equal(t, StatusDuplicate, results[2].Status)

	matched := 0
	for _, r := range results {
		if r.Item.RatingKey == "1" {
			matched++
		}
	}
	assert.Equal(t, 1, matched, "an item is assigned to at most one sidecar")
}

func TestMatch_BasenameTieFirstLibraryWins(t *testing.T) {
	ix := library.NewIndex([]library.Item{
		{RatingKey: "anime", Library: "Anime", FilePaths: []string{"/plex/anime/ep.mkv"}},
		{RatingKey: "tv", Library: "TV", FilePaths: []string{"/plex/tv/ep.mkv"}},
	})

	results := New(nil).Match([]*nfo.Record{record("/local/ep.nfo", "/local/ep.mkv")}, ix)
	require.Len(t, results, 1)
	assert.Equal(t, "anime", results[0].Item.RatingKey)
}

func TestMatch_Malformed(t *testing.T) {
	ix := library.NewIndex([]library.Item{
		{RatingKey: "1", FilePaths: []string{"/plex/ep.mkv"}},
	})

	results := New(nil).Match([]*nfo.Record{
		{Path: "/local/ep.nfo", VideoPath: "/local/ep.mkv"},
		record("/local/x/ep.nfo", "/local/x/ep.mkv"),
	}, ix)

	require.Len(t, results, 2)
	assert.Equal(t, StatusMalformed, results[0].Status)
	assert.Equal(t, StatusMatched, results[1].Status, "malformed sidecars do not claim items")
}

func TestMatch_CoversEveryRecordInOrder(t *testing.T) {
	ix := library.NewIndex(nil)
	recs := []*nfo.Record{record("/a.nfo", ""), {Path: "/b.nfo"}, record("/c.nfo", "")}

	results := New(nil).Match(recs, ix)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Same(t, recs[i], r.Record)
	}

	counts := Counts(results)
	assert.Equal(t, 2, counts[StatusUnmatched])
	assert.Equal(t, 1, counts[StatusMalformed])
}

func TestMatch_ParsedFixtures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Pilot.mkv"), nil, 0644))
	nfoPath := filepath.Join(dir, "Pilot.nfo")
	require.NoError(t, os.WriteFile(nfoPath, []byte("<episodedetails><title>Pilot</title></episodedetails>"), 0644))

	ix := library.NewIndex([]library.Item{
		{RatingKey: "7", FilePaths: []string{filepath.Join(dir, "Pilot.mkv")}},
	})

	results := New(nil).Match([]*nfo.Record{nfo.Parse(nfoPath)}, ix)
	require.Len(t, results, 1)
	assert.Equal(t, StatusMatched, results[0].Status)
	assert.Equal(t, ViaPath, results[0].Via)
}

func TestCandidates(t *testing.T) {
	assert.Equal(t, []string{"/tv/a.mkv"}, Candidates(record("/tv/a.nfo", "/tv/a.mkv")))

	c := Candidates(record("/tv/a.nfo", ""))
	assert.Len(t, c, len(nfo.VideoExtensions))
	assert.Equal(t, "/tv/a.mkv", c[0])
}
