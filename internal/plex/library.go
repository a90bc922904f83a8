package plex

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Metadata type numbers used by the section listing and edit endpoints.
const (
	TypeMovie   = 1
	TypeShow    = 2
	TypeSeason  = 3
	TypeEpisode = 4
)

// Identity holds Plex server identity information.
type Identity struct {
	Name    string
	Version string
}

type identityResponse struct {
	XMLName      xml.Name `xml:"MediaContainer"`
	FriendlyName string   `xml:"friendlyName,attr"`
	Version      string   `xml:"version,attr"`
}

// Section represents a Plex library section.
type Section struct {
	Key       string     `xml:"key,attr"`
	Title     string     `xml:"title,attr"`
	Type      string     `xml:"type,attr"`
	Locations []Location `xml:"Location"`
}

// ItemType returns the metadata type listed by the section: episodes for
// show libraries, movies for movie libraries, 0 (everything) otherwise.
func (s Section) ItemType() int {
	switch s.Type {
	case "show":
		return TypeEpisode
	case "movie":
		return TypeMovie
	}
	return 0
}

// Location represents a library section's filesystem location.
type Location struct {
	Path string `xml:"path,attr"`
}

type sectionsResponse struct {
	XMLName  xml.Name  `xml:"MediaContainer"`
	Sections []Section `xml:"Directory"`
}

// Item is a playable library item with its editable fields.
type Item struct {
	RatingKey             string
	Type                  string // episode, movie, ...
	Title                 string
	TitleSort             string
	Summary               string
	OriginallyAvailableAt string
	Files                 []string // every media part, as Plex sees it
}

type itemXML struct {
	RatingKey             string `xml:"ratingKey,attr"`
	Type                  string `xml:"type,attr"`
	Title                 string `xml:"title,attr"`
	TitleSort             string `xml:"titleSort,attr"`
	Summary               string `xml:"summary,attr"`
	OriginallyAvailableAt string `xml:"originallyAvailableAt,attr"`
	Media                 []struct {
		Part []struct {
			File string `xml:"file,attr"`
		} `xml:"Part"`
	} `xml:"Media"`
}

type itemsResponse struct {
	XMLName xml.Name  `xml:"MediaContainer"`
	Videos  []itemXML `xml:"Video"`
}

// Identity returns the Plex server name and version.
func (c *Client) Identity(ctx context.Context) (*Identity, error) {
	data, err := c.do(ctx, request{method: http.MethodGet, path: "/"})
	if err != nil {
		return nil, err
	}

	var result identityResponse
	if err := xml.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &Identity{Name: result.FriendlyName, Version: result.Version}, nil
}

// Sections returns all library sections.
func (c *Client) Sections(ctx context.Context) ([]Section, error) {
	data, err := c.do(ctx, request{method: http.MethodGet, path: "/library/sections"})
	if err != nil {
		return nil, err
	}

	var result sectionsResponse
	if err := xml.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result.Sections, nil
}

// ResolveSections maps configured library names (titles, case-insensitive,
// or section keys) onto sections, preserving the configured order.
func (c *Client) ResolveSections(ctx context.Context, names []string) ([]Section, error) {
	sections, err := c.Sections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}

	resolved := make([]Section, 0, len(names))
	seen := make(map[string]bool)
	for _, name := range names {
		found := false
		for _, sec := range sections {
			if sec.Key == name || strings.EqualFold(sec.Title, name) {
				if !seen[sec.Key] {
					resolved = append(resolved, sec)
					seen[sec.Key] = true
				}
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrLibraryNotFound, name)
		}
	}
	return resolved, nil
}

// Items lists the playable items of a section.
func (c *Client) Items(ctx context.Context, section Section) ([]Item, error) {
	query := url.Values{}
	if t := section.ItemType(); t != 0 {
		query.Set("type", fmt.Sprint(t))
	}

	data, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/library/sections/" + url.PathEscape(section.Key) + "/all",
		query:  query,
	})
	if err != nil {
		return nil, err
	}

	var result itemsResponse
	if err := xml.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	items := make([]Item, 0, len(result.Videos))
	for _, v := range result.Videos {
		item := Item{
			RatingKey:             v.RatingKey,
			Type:                  v.Type,
			Title:                 v.Title,
			TitleSort:             v.TitleSort,
			Summary:               v.Summary,
			OriginallyAvailableAt: v.OriginallyAvailableAt,
		}
		for _, m := range v.Media {
			for _, p := range m.Part {
				if p.File != "" {
					item.Files = append(item.Files, p.File)
				}
			}
		}
		items = append(items, item)
	}
	return items, nil
}
