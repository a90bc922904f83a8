// Package config handles TOML configuration loading with environment variable substitution.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure.
type Config struct {
	Plex  PlexConfig  `toml:"plex"`
	Sync  SyncConfig  `toml:"sync"`
	Watch WatchConfig `toml:"watch"`
	Log   LogConfig   `toml:"log"`
	State StateConfig `toml:"state"`
	Tools ToolsConfig `toml:"tools"`
}

// PlexConfig describes the remote media server.
type PlexConfig struct {
	URL       string   `toml:"url"`
	Token     string   `toml:"token"`
	Libraries []string `toml:"libraries"` // section titles or keys, in priority order

	// Path mapping when Plex sees the media under a different prefix
	// (e.g. running in a container).
	LocalPath  string `toml:"local_path"`
	RemotePath string `toml:"remote_path"`

	Timeout        Seconds `toml:"timeout"`
	CircuitBreaker bool    `toml:"circuit_breaker"`
}

// SyncConfig controls the discovery and update pipeline.
type SyncConfig struct {
	Directories           []string `toml:"directories"`
	Threads               int      `toml:"threads"`
	MaxConcurrentRequests int      `toml:"max_concurrent_requests"`
	RequestDelay          Seconds  `toml:"request_delay"`
	RetryCount            int      `toml:"retry_count"`
	RetryDelay            Seconds  `toml:"retry_delay"`
	Subtitles             bool     `toml:"subtitles"`
	AlwaysApply           bool     `toml:"always_apply"`
	DeleteNFOAfterApply   bool     `toml:"delete_nfo_after_apply"`
}

type WatchConfig struct {
	Enabled       bool    `toml:"enabled"`
	DebounceDelay Seconds `toml:"debounce_delay"`
	LockFile      string  `toml:"lock_file"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Silent bool   `toml:"silent"`
	Detail bool   `toml:"detail"`
}

type StateConfig struct {
	Path          string `toml:"path"` // empty disables the applied-hash cache and event log
	RetentionDays int    `toml:"retention_days"`
}

type ToolsConfig struct {
	FFprobe string `toml:"ffprobe"`
	FFmpeg  string `toml:"ffmpeg"`
}

// Seconds is a duration expressed as (fractional) seconds in the config file.
type Seconds float64

// Duration converts the value to a time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

// Default returns a config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Plex: PlexConfig{
			Timeout:        30,
			CircuitBreaker: true,
		},
		Sync: SyncConfig{
			Threads:               8,
			MaxConcurrentRequests: 2,
			RequestDelay:          0.1,
			RetryCount:            3,
			RetryDelay:            1,
			DeleteNFOAfterApply:   true,
		},
		Watch: WatchConfig{
			DebounceDelay: 2,
		},
		Log: LogConfig{
			Level: "info",
		},
		State: StateConfig{
			Path:          "./data/nfosync.db",
			RetentionDays: 30,
		},
		Tools: ToolsConfig{
			FFprobe: "ffprobe",
			FFmpeg:  "ffmpeg",
		},
	}
}

// Load reads, substitutes, decodes and validates the configuration file.
// Files ending in .json are read in the legacy JSON format.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	content, missing := substituteEnvVars(string(data))
	if len(missing) > 0 {
		return nil, &Error{Path: path, Missing: missing}
	}

	var cfg *Config
	if strings.EqualFold(filepath.Ext(path), ".json") {
		cfg, err = decodeLegacy([]byte(content))
		if err != nil {
			return nil, fmt.Errorf("parsing legacy config: %w", err)
		}
	} else {
		cfg = Default()
		if _, err := toml.Decode(content, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	cfg.normalize()

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, &Error{Path: path, Errors: errs}
	}
	return cfg, nil
}

// normalize trims user input and fills values left empty by the file.
func (c *Config) normalize() {
	c.Plex.URL = strings.TrimSuffix(strings.TrimSpace(c.Plex.URL), "/")
	c.Plex.Token = strings.TrimSpace(c.Plex.Token)
	libs := c.Plex.Libraries[:0]
	for _, name := range c.Plex.Libraries {
		if name = strings.TrimSpace(name); name != "" {
			libs = append(libs, name)
		}
	}
	c.Plex.Libraries = libs
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if strings.TrimSpace(c.Tools.FFprobe) == "" {
		c.Tools.FFprobe = "ffprobe"
	}
	if strings.TrimSpace(c.Tools.FFmpeg) == "" {
		c.Tools.FFmpeg = "ffmpeg"
	}
}

// envVarPattern matches ${VAR}, ${VAR:-default} and ${VAR:?message}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:-|:\?)([^}]*))?\}`)

// substituteEnvVars replaces environment references and reports the ones that
// could not be resolved. Unresolved references are left unchanged.
func substituteEnvVars(content string) (string, []string) {
	var missing []string
	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		name, op, arg := parts[1], parts[2], parts[3]
		value, ok := os.LookupEnv(name)

		switch op {
		case ":-":
			if !ok || value == "" {
				return arg
			}
			return value
		case ":?":
			if !ok || value == "" {
				missing = append(missing, fmt.Sprintf("%s: %s", name, arg))
				return match
			}
			return value
		default:
			if !ok {
				missing = append(missing, name)
				return match
			}
			return value
		}
	})
	return result, missing
}
