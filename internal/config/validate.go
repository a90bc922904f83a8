// internal/config/validate.go
package config

import (
	"fmt"
	"net/url"
	"os"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true, "": true,
}

// Validate checks the configuration for errors.
// Returns a slice of error messages (empty if valid).
func (c *Config) Validate() []string {
	var errs []string

	// Plex connection
	if c.Plex.URL == "" {
		errs = append(errs, "plex.url: required")
	} else if u, err := url.Parse(c.Plex.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("plex.url: must be an absolute URL, got %q", c.Plex.URL))
	}
	if c.Plex.Token == "" {
		errs = append(errs, "plex.token: required")
	}
	if len(c.Plex.Libraries) == 0 {
		errs = append(errs, "plex.libraries: at least one library must be listed")
	}
	if (c.Plex.LocalPath == "") != (c.Plex.RemotePath == "") {
		errs = append(errs, "plex.local_path, plex.remote_path: must be set together")
	}
	if c.Plex.Timeout < 0 {
		errs = append(errs, "plex.timeout: must not be negative")
	}

	// Verbosity
	if c.Log.Silent && c.Log.Detail {
		errs = append(errs, "log.silent, log.detail: mutually exclusive")
	}
	if !validLogLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level: must be one of debug, info, warn, error; got %q", c.Log.Level))
	}

	// Pipeline
	if c.Sync.Threads < 1 {
		errs = append(errs, fmt.Sprintf("sync.threads: must be at least 1, got %d", c.Sync.Threads))
	}
	if c.Sync.MaxConcurrentRequests < 1 {
		errs = append(errs, fmt.Sprintf("sync.max_concurrent_requests: must be at least 1, got %d", c.Sync.MaxConcurrentRequests))
	}
	if c.Sync.RetryCount < 0 {
		errs = append(errs, fmt.Sprintf("sync.retry_count: must not be negative, got %d", c.Sync.RetryCount))
	}
	if c.Sync.RequestDelay < 0 {
		errs = append(errs, "sync.request_delay: must not be negative")
	}
	if c.Sync.RetryDelay < 0 {
		errs = append(errs, "sync.retry_delay: must not be negative")
	}

	// Watch mode
	if c.Watch.Enabled && c.Watch.DebounceDelay <= 0 {
		errs = append(errs, "watch.debounce_delay: must be positive when watch is enabled")
	}

	if c.State.RetentionDays < 0 {
		errs = append(errs, "state.retention_days: must not be negative")
	}

	return errs
}

// Warnings reports non-fatal problems, such as scan directories that do not exist.
func (c *Config) Warnings() []string {
	var warns []string
	for _, dir := range c.Sync.Directories {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			warns = append(warns, fmt.Sprintf("sync.directories: directory %q does not exist", dir))
		}
	}
	if c.Sync.Subtitles && c.Sync.MaxConcurrentRequests > c.Sync.Threads {
		warns = append(warns, "sync.max_concurrent_requests: exceeds sync.threads and will never be reached")
	}
	return warns
}
