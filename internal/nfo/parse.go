package nfo

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/unicode/norm"
)

// fieldAliases maps element names (lower-cased) to the record field they
// fill, in priority order: an earlier alias wins over a later one.
var fieldAliases = map[string]struct {
	field    string
	priority int
}{
	"title":       {"title", 0},
	"sorttitle":   {"sorttitle", 0},
	"titlesort":   {"sorttitle", 1},
	"aired":       {"aired", 0},
	"premiered":   {"aired", 1},
	"releasedate": {"aired", 2},
	"plot":        {"plot", 0},
	"outline":     {"plot", 1},
}

// Parse reads and parses one sidecar. It never fails: read and syntax errors
// are stored in Record.Err and whatever was parsed before the error is kept.
func Parse(path string) *Record {
	rec := &Record{Path: path, VideoPath: FindVideo(path)}

	data, err := os.ReadFile(path)
	if err != nil {
		rec.Err = fmt.Errorf("read sidecar: %w", err)
		return rec
	}
	rec.Hash = Hash(data)
	if len(bytes.TrimSpace(data)) == 0 {
		rec.Err = ErrEmpty
		return rec
	}

	fields, err := parseFields(data)
	rec.Title = fields["title"]
	rec.SortTitle = fields["sorttitle"]
	rec.Aired = normalizeDate(fields["aired"])
	rec.Plot = fields["plot"]
	if err != nil {
		rec.Err = fmt.Errorf("parse sidecar: %w", err)
	}
	return rec
}

// parseFields walks the document and collects the direct children of the
// root element it knows about. It returns what it collected even on error.
func parseFields(data []byte) (map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(stripBOM(data)))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charsetReader

	fields := make(map[string]string)
	prio := make(map[string]int)

	var (
		depth   int
		current string // field being read, "" when outside one
		buf     strings.Builder
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return fields, nil
		}
		if err != nil {
			return fields, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 {
				if _, ok := fieldAliases[strings.ToLower(t.Name.Local)]; ok {
					current = strings.ToLower(t.Name.Local)
					buf.Reset()
				}
			}
		case xml.EndElement:
			if depth == 2 && current != "" {
				store(fields, prio, current, buf.String())
				current = ""
			}
			if depth > 0 {
				depth--
			}
		case xml.CharData:
			if current != "" {
				buf.Write(t)
			}
		}
	}
}

func store(fields map[string]string, prio map[string]int, name, raw string) {
	value := norm.NFC.String(strings.TrimSpace(raw))
	if value == "" {
		return
	}
	alias := fieldAliases[name]
	if p, ok := prio[alias.field]; ok && p <= alias.priority {
		return
	}
	fields[alias.field] = value
	prio[alias.field] = alias.priority
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"2006.01.02",
	"20060102",
}

// normalizeDate rewrites known date layouts as YYYY-MM-DD. Anything else
// is returned unchanged.
func normalizeDate(s string) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
}

// Hash returns the hex SHA-256 of a sidecar's raw bytes.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FindVideo returns the companion video sharing the sidecar's base name,
// or "" when none exists. Extensions are matched case-insensitively.
func FindVideo(nfoPath string) string {
	base := strings.TrimSuffix(nfoPath, filepath.Ext(nfoPath))
	for _, ext := range VideoExtensions {
		for _, candidate := range []string{base + ext, base + strings.ToUpper(ext)} {
			if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
				return candidate
			}
		}
	}

	// Fall back to a directory listing for mixed-case extensions.
	entries, err := os.ReadDir(filepath.Dir(nfoPath))
	if err != nil {
		return ""
	}
	want := filepath.Base(base)
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && IsVideo(name) && strings.TrimSuffix(name, filepath.Ext(name)) == want {
			return filepath.Join(filepath.Dir(nfoPath), name)
		}
	}
	return ""
}
