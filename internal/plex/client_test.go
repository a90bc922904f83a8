package plex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sectionsXML = `<?xml version="1.0" encoding="UTF-8"?>
<MediaContainer>
  <Directory key="1" title="Movies" type="movie">
    <Location path="/movies"/>
  </Directory>
  <Directory key="2" title="TV Shows" type="show">
    <Location path="/tv"/>
    <Location path="/tv2"/>
  </Directory>
  <Directory key="3" title="Music" type="artist"/>
</MediaContainer>`

func TestClient_Sections(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/library/sections", r.URL.Path)
		assert.Equal(t, "test-token", r.Header.Get("X-Plex-Token"))
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(sectionsXML))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token", Options{}, nil)
	sections, err := client.Sections(context.Background())
	require.NoError(t, err)

	require.Len(t, sections, 3)
	assert.Equal(t, "1", sections[0].Key)
	assert.Equal(t, TypeMovie, sections[0].ItemType())
	assert.Equal(t, TypeEpisode, sections[1].ItemType())
	assert.Equal(t, 0, sections[2].ItemType())
	assert.Len(t, sections[1].Locations, 2)
}

func TestClient_ResolveSections(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sectionsXML))
	}))
	defer server.Close()

	client := NewClient(server.URL, "token", Options{}, nil)

	sections, err := client.ResolveSections(context.Background(), []string{"tv shows", "1", "Movies"})
	require.NoError(t, err)
	require.Len(t, sections, 2, "duplicates collapse")
	assert.Equal(t, "TV Shows", sections[0].Title, "configured order is kept")
	assert.Equal(t, "Movies", sections[1].Title)

	_, err = client.ResolveSections(context.Background(), []string{"Anime"})
	assert.ErrorIs(t, err, ErrLibraryNotFound)
}

func TestClient_Items(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/library/sections/2/all", r.URL.Path)
		assert.Equal(t, "4", r.URL.Query().Get("type"))
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<MediaContainer size="2">
  <Video ratingKey="101" type="episode" title="Episode 1" summary="Old" originallyAvailableAt="2020-01-01">
    <Media><Part file="/tv/Show/S01E01.mkv"/></Media>
  </Video>
  <Video ratingKey="102" type="episode" title="Episode 2">
    <Media><Part file="/tv/Show/S01E02.part1.mkv"/><Part file="/tv/Show/S01E02.part2.mkv"/></Media>
    <Media><Part file="/tv/Show/S01E02.mp4"/></Media>
  </Video>
</MediaContainer>`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "token", Options{}, nil)
	items, err := client.Items(context.Background(), Section{Key: "2", Type: "show"})
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "101", items[0].RatingKey)
	assert.Equal(t, "Old", items[0].Summary)
	assert.Equal(t, "2020-01-01", items[0].OriginallyAvailableAt)
	assert.Equal(t, []string{"/tv/Show/S01E01.mkv"}, items[0].Files)
	assert.Len(t, items[1].Files, 3)
}

func TestClient_UpdateMetadata(t *testing.T) {
	var got *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "token", Options{}, nil)
	err := client.UpdateMetadata(context.Background(),
		Target{SectionKey: "2", RatingKey: "101", Type: TypeEpisode},
		Edit{Title: "새로운 제목", Summary: "Plot & more", Aired: "2024-03-01"})
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPut, got.Method)
	assert.Equal(t, "/library/sections/2/all", got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, "101", q.Get("id"))
	assert.Equal(t, "4", q.Get("type"))
	assert.Equal(t, "새로운 제목", q.Get("title.value"))
	assert.Equal(t, "1", q.Get("title.locked"))
	assert.Equal(t, "Plot & more", q.Get("summary.value"))
	assert.Equal(t, "2024-03-01", q.Get("originallyAvailableAt.value"))
	assert.False(t, q.Has("titleSort.value"), "empty fields are not sent")
}

func TestClient_UpdateMetadata_EmptyEditIsNoop(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "token", Options{}, nil)
	assert.NoError(t, client.UpdateMetadata(context.Background(), Target{RatingKey: "1"}, Edit{}))
}

func TestClient_UploadSubtitle(t *testing.T) {
	srt := filepath.Join(t.TempDir(), "S01E01.en.srt")
	require.NoError(t, os.WriteFile(srt, []byte("1\n00:00:01,000 --> 00:00:02,000\nHi\n"), 0644))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/library/metadata/101/subtitles", r.URL.Path)
		assert.Equal(t, "en", r.URL.Query().Get("language"))
		assert.Equal(t, "srt", r.URL.Query().Get("format"))
		assert.Equal(t, "S01E01.en.srt", r.URL.Query().Get("title"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "Hi")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "token", Options{}, nil)
	require.NoError(t, client.UploadSubtitle(context.Background(), "101", srt, "en"))
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		code      int
		transient bool
		sentinel  error
	}{
		{http.StatusUnauthorized, false, ErrUnauthorized},
		{http.StatusForbidden, false, ErrUnauthorized},
		{http.StatusNotFound, false, ErrNotFound},
		{http.StatusBadRequest, false, nil},
		{http.StatusRequestTimeout, true, nil},
		{http.StatusTooManyRequests, true, nil},
		{http.StatusInternalServerError, true, nil},
		{http.StatusServiceUnavailable, true, nil},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer server.Close()

			client := NewClient(server.URL, "token", Options{}, nil)
			_, err := client.Sections(context.Background())
			require.Error(t, err)

			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.code, se.Code)
			assert.Equal(t, tt.transient, IsTransient(err))
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
		})
	}
}

func TestIsTransient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	client := NewClient(addr, "token", Options{}, nil)
	_, err := client.Sections(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransient(err), "connection refused is transient: %v", err)
}

func TestIsTransient_Misc(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("boom")))
	assert.False(t, IsTransient(context.Canceled))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", gobreaker.ErrOpenState)))
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "token", Options{CircuitBreaker: true}, nil)
	for i := 0; i < 5; i++ {
		_, err := client.Sections(context.Background())
		require.Error(t, err)
	}

	_, err := client.Sections(context.Background())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.True(t, IsTransient(err))
	assert.Equal(t, int32(5), hits.Load(), "open breaker short-circuits requests")
}

func TestClient_CircuitBreakerIgnoresPermanentErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "token", Options{CircuitBreaker: true}, nil)
	for i := 0; i < 10; i++ {
		_, err := client.Sections(context.Background())
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, int32(10), hits.Load())
}

func TestClient_PathMapping(t *testing.T) {
	client := NewClient("http://plex", "token", Options{LocalPath: "/mnt/media/", RemotePath: "/data"}, nil)

	assert.Equal(t, "/data/tv/a.mkv", client.TranslateToRemote("/mnt/media/tv/a.mkv"))
	assert.Equal(t, "/mnt/media/tv/a.mkv", client.TranslateToLocal("/data/tv/a.mkv"))
	assert.Equal(t, "/mnt/media2/a.mkv", client.TranslateToRemote("/mnt/media2/a.mkv"), "prefix must end at a path boundary")
	assert.Equal(t, "/other/a.mkv", client.TranslateToLocal("/other/a.mkv"))

	unmapped := NewClient("http://plex", "token", Options{}, nil)
	assert.Equal(t, "/tv/a.mkv", unmapped.TranslateToRemote("/tv/a.mkv"))
}

func TestClient_Identity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		_, _ = w.Write([]byte(`<MediaContainer friendlyName="media" version="1.40.0"/>`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "token", Options{}, nil)
	id, err := client.Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "media", id.Name)
	assert.Equal(t, "1.40.0", id.Version)
}
