package plex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Edit is the set of fields pushed to one item. Empty fields are left
// untouched on the server.
type Edit struct {
	Title     string
	TitleSort string
	Summary   string
	Aired     string // YYYY-MM-DD
}

// Empty reports whether the edit carries no field at all.
func (e Edit) Empty() bool {
	return e.Title == "" && e.TitleSort == "" && e.Summary == "" && e.Aired == ""
}

// Target identifies the item being edited.
type Target struct {
	SectionKey string
	RatingKey  string
	Type       int
}

// UpdateMetadata edits an item's fields and locks them against agent refreshes.
func (c *Client) UpdateMetadata(ctx context.Context, t Target, e Edit) error {
	if e.Empty() {
		return nil
	}

	query := url.Values{}
	query.Set("id", t.RatingKey)
	if t.Type != 0 {
		query.Set("type", fmt.Sprint(t.Type))
	}
	setField(query, "title", e.Title)
	setField(query, "titleSort", e.TitleSort)
	setField(query, "summary", e.Summary)
	setField(query, "originallyAvailableAt", e.Aired)

	_, err := c.do(ctx, request{
		method: http.MethodPut,
		path:   "/library/sections/" + url.PathEscape(t.SectionKey) + "/all",
		query:  query,
	})
	if err != nil {
		return fmt.Errorf("update %s: %w", t.RatingKey, err)
	}
	return nil
}

func setField(q url.Values, name, value string) {
	if value == "" {
		return
	}
	q.Set(name+".value", value)
	q.Set(name+".locked", "1")
}

// UploadSubtitle attaches a subtitle file to an item. language is an
// ISO 639-1 code or "und".
func (c *Client) UploadSubtitle(ctx context.Context, ratingKey, path, language string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read subtitle: %w", err)
	}

	query := url.Values{}
	query.Set("title", filepath.Base(path))
	query.Set("format", strings.TrimPrefix(filepath.Ext(path), "."))
	query.Set("language", language)

	_, err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/library/metadata/" + url.PathEscape(ratingKey) + "/subtitles",
		query:       query,
		body:        data,
		contentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("upload subtitle to %s: %w", ratingKey, err)
	}
	return nil
}
