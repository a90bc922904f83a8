package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/nfosync/internal/config"
	"github.com/vmunix/nfosync/internal/events"
	"github.com/vmunix/nfosync/internal/plex"
	"github.com/vmunix/nfosync/internal/state"
)

func at(eventType, entityType, id string, ts time.Time) events.BaseEvent {
	b := events.NewBaseEvent(eventType, entityType, id)
	b.Timestamp = ts
	return b
}

func seedHistory(t *testing.T, now time.Time) *events.EventLog {
	t.Helper()
	st, err := state.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	log := events.NewEventLog(st.DB())
	for _, e := range []events.Event{
		&events.ItemFailed{
			BaseEvent: at(events.EventItemFailed, events.EntityItem, "101", now.Add(-48*time.Hour)),
			Sidecar:   "/tv/a.nfo",
			Error:     "unexpected status: 503",
			Attempts:  4,
		},
		&events.ItemUpdated{
			BaseEvent: at(events.EventItemUpdated, events.EntityItem, "101", now.Add(-time.Hour)),
			Sidecar:   "/tv/a.nfo",
			Title:     "Pilot",
			Fields:    []string{"title"},
			Attempts:  1,
		},
		&events.SidecarDeleted{
			BaseEvent: at(events.EventSidecarDeleted, events.EntitySidecar, "/tv/a.nfo", now.Add(-time.Hour)),
		},
		&events.SubtitleUploaded{
			BaseEvent: at(events.EventSubtitleUploaded, events.EntityItem, "202", now.Add(-30*time.Minute)),
			Stream:    2,
			Language:  "en",
			Codec:     "subrip",
		},
	} {
		_, err := log.Append(context.Background(), e)
		require.NoError(t, err)
	}
	return log
}

func eventTypes(list []events.RawEvent) []string {
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.EventType
	}
	return out
}

func TestQueryHistory(t *testing.T) {
	now := time.Now()
	log := seedHistory(t, now)
	ctx := context.Background()

	tests := []struct {
		name string
		q    historyQuery
		want []string
	}{
		{"recent", historyQuery{limit: 2}, []string{events.EventSubtitleUploaded, events.EventSidecarDeleted}},
		{"rating key", historyQuery{limit: 20, entity: "101"}, []string{events.EventItemUpdated, events.EventItemFailed}},
		{"rating key since", historyQuery{limit: 20, entity: "101", since: 24 * time.Hour}, []string{events.EventItemUpdated}},
		{"sidecar path", historyQuery{limit: 20, entity: "/tv/a.nfo"}, []string{events.EventSidecarDeleted}},
		{"since", historyQuery{limit: 20, since: 2 * time.Hour},
			[]string{events.EventSubtitleUploaded, events.EventSidecarDeleted, events.EventItemUpdated}},
		{"since with limit", historyQuery{limit: 1, since: 2 * time.Hour}, []string{events.EventSubtitleUploaded}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := queryHistory(ctx, log, tt.q, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, eventTypes(list))
		})
	}
}

func TestEntityFor(t *testing.T) {
	tests := []struct {
		arg, wantType, wantID string
	}{
		{"101", events.EntityItem, "101"},
		{"/tv/Show/S01E01.nfo", events.EntitySidecar, "/tv/Show/S01E01.nfo"},
		{"/tv/Show//S01E01.nfo", events.EntitySidecar, "/tv/Show/S01E01.nfo"},
		{"S01E01.NFO", events.EntitySidecar, "S01E01.NFO"},
	}
	for _, tt := range tests {
		typ, id := entityFor(tt.arg)
		assert.Equal(t, tt.wantType, typ, tt.arg)
		assert.Equal(t, tt.wantID, id, tt.arg)
	}
}

func TestPrintHistory_ShowsPayloadDetails(t *testing.T) {
	now := time.Now()
	list, err := queryHistory(context.Background(), seedHistory(t, now), historyQuery{limit: 20, entity: "101"}, now)
	require.NoError(t, err)
	list = append(list, events.RawEvent{EventType: "legacy.event", EntityType: "item", EntityID: "9", Payload: `{}`})

	var buf bytes.Buffer
	printHistory(&buf, events.DefaultRegistry(), list)

	out := buf.String()
	assert.Contains(t, out, "Recent Events (3)")
	assert.Contains(t, out, "4 attempt(s): unexpected status: 503")
	assert.Contains(t, out, "Pilot (title), 1 attempt(s)")
	assert.Contains(t, out, "legacy.event")
}

func TestDescribe(t *testing.T) {
	reg := events.DefaultRegistry()

	assert.Equal(t, "stream 2, en (subrip)", describe(reg, events.RawEvent{
		EventType: events.EventSubtitleUploaded,
		Payload:   `{"stream":2,"language":"en","codec":"subrip"}`,
	}))
	assert.Equal(t, "duplicate", describe(reg, events.RawEvent{
		EventType: events.EventSidecarSkipped,
		Payload:   `{"reason":"duplicate"}`,
	}))
	assert.Empty(t, describe(reg, events.RawEvent{EventType: events.EventItemFailed, Payload: `{broken`}))
}

type fakeServer struct {
	identityErr error
	sectionsErr error
}

func (f fakeServer) Identity(context.Context) (*plex.Identity, error) {
	if f.identityErr != nil {
		return nil, f.identityErr
	}
	return &plex.Identity{Name: "media", Version: "1.40.0"}, nil
}

func (f fakeServer) ResolveSections(_ context.Context, names []string) ([]plex.Section, error) {
	if f.sectionsErr != nil {
		return nil, f.sectionsErr
	}
	return []plex.Section{{Key: "2", Title: names[0]}}, nil
}

func TestCheckServer(t *testing.T) {
	cfg := config.Default()
	cfg.Plex.URL = "http://plex:32400"
	cfg.Plex.Libraries = []string{"TV Shows"}
	ctx := context.Background()

	id, cerr := checkServer(ctx, fakeServer{}, cfg)
	require.Nil(t, cerr)
	assert.Equal(t, "media", id.Name)

	_, cerr = checkServer(ctx, fakeServer{identityErr: plex.ErrUnauthorized}, cfg)
	require.NotNil(t, cerr)
	assert.True(t, cerr.HasErrors())
	assert.Equal(t, []string{"plex.token: rejected by http://plex:32400"}, cerr.Errors)

	_, cerr = checkServer(ctx, fakeServer{identityErr: errors.New("connection refused")}, cfg)
	require.NotNil(t, cerr)
	assert.Contains(t, cerr.Errors[0], "plex.url: http://plex:32400 is unreachable")

	_, cerr = checkServer(ctx, fakeServer{sectionsErr: plex.ErrLibraryNotFound}, cfg)
	require.NotNil(t, cerr)
	assert.Contains(t, cerr.Errors[0], "plex.libraries:")
}
