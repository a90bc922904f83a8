// Package nfo reads Kodi-style .nfo metadata sidecars.
package nfo

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrEmpty is recorded for sidecars with no content at all.
var ErrEmpty = errors.New("empty sidecar")

// VideoExtensions are the companion video extensions, in lookup order.
var VideoExtensions = []string{".mkv", ".mp4", ".avi", ".mov", ".wmv", ".flv", ".m4v"}

// Record is one parsed sidecar.
type Record struct {
	Path      string // sidecar path
	VideoPath string // companion video, "" when none was found
	Hash      string // SHA-256 of the raw file

	Title     string
	SortTitle string
	Aired     string
	Plot      string

	// Err is the read or parse error. A record may carry an error and still
	// have fields recovered from the part of the file read before it.
	Err error
}

// Malformed reports whether nothing usable was parsed.
func (r *Record) Malformed() bool {
	return r.Title == "" && r.SortTitle == "" && r.Aired == "" && r.Plot == ""
}

// Recovered reports whether fields were salvaged from a broken file.
// Such sidecars are applied but never deleted.
func (r *Record) Recovered() bool {
	return r.Err != nil && !r.Malformed()
}

// Deletable reports whether the sidecar may be removed after a successful update.
func (r *Record) Deletable() bool {
	return r.Err == nil && !r.Malformed()
}

// BaseName returns the sidecar's file name without extension.
func (r *Record) BaseName() string {
	name := filepath.Base(r.Path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// IsSidecar reports whether path names an .nfo file.
func IsSidecar(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".nfo")
}

// IsVideo reports whether path has a recognized video extension.
func IsVideo(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, v := range VideoExtensions {
		if ext == v {
			return true
		}
	}
	return false
}

// SidecarFor returns the sidecar path for a video file.
func SidecarFor(videoPath string) string {
	return strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + ".nfo"
}
