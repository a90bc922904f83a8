package nfo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yargevad/filepathx"
)

// ErrNoSidecar is returned by Resolve when a path has no sidecar.
var ErrNoSidecar = errors.New("no sidecar")

// Scan walks the directories recursively and returns the sidecar paths
// found, sorted and de-duplicated. Missing roots are reported as errors;
// unreadable subdirectories are skipped.
func Scan(dirs []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string

	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("scan %s: not a directory", dir)
		}

		err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if d != nil && d.IsDir() && path != dir {
					return fs.SkipDir
				}
				return err
			}
			if d.IsDir() || !IsSidecar(path) {
				return nil
			}
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
			if !seen[path] {
				seen[path] = true
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
	}

	sort.Strings(paths)
	return paths, nil
}

// Resolve turns user-supplied targets into sidecar paths. A target may be
// a sidecar, a video (its sidecar is used), or a glob pattern with "**"
// matching any number of directories.
func Resolve(targets []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, target := range targets {
		if strings.ContainsAny(target, "*?[") {
			if _, err := os.Stat(target); err != nil {
				matches, err := filepathx.Glob(target)
				if err != nil {
					return nil, fmt.Errorf("glob %s: %w", target, err)
				}
				for _, m := range matches {
					if IsSidecar(m) {
						add(m)
					}
				}
				continue
			}
		}

		switch {
		case IsSidecar(target):
			add(target)
		case IsVideo(target):
			sidecar := SidecarFor(target)
			if _, err := os.Stat(sidecar); err != nil {
				return nil, fmt.Errorf("%w for %s", ErrNoSidecar, target)
			}
			add(sidecar)
		default:
			return nil, fmt.Errorf("%w: %s is neither a sidecar nor a video", ErrNoSidecar, target)
		}
	}

	sort.Strings(paths)
	return paths, nil
}
