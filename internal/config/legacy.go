package config

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// legacyConfig mirrors the flat JSON format used by earlier releases
// (settings/config.json). Pointer fields distinguish "absent" from zero.
type legacyConfig struct {
	PlexBaseURL           string   `json:"PLEX_BASE_URL"`
	PlexToken             string   `json:"PLEX_TOKEN"`
	PlexLibraryIDs        []any    `json:"PLEX_LIBRARY_IDS"`
	PlexLibraryNames      []string `json:"PLEX_LIBRARY_NAMES"`
	Silent                *bool    `json:"SILENT"`
	Detail                *bool    `json:"DETAIL"`
	Subtitles             *bool    `json:"SUBTITLES"`
	Threads               *int     `json:"THREADS"`
	MaxConcurrentRequests *int     `json:"MAX_CONCURRENT_REQUESTS"`
	RequestDelay          *float64 `json:"REQUEST_DELAY"`
	RetryCount            *int     `json:"RETRY_COUNT"`
	RetryDelay            *float64 `json:"RETRY_DELAY"`
	WatchFolders          *bool    `json:"WATCH_FOLDERS"`
	WatchDebounceDelay    *float64 `json:"WATCH_DEBOUNCE_DELAY"`
	AlwaysApplyNFO        *bool    `json:"ALWAYS_APPLY_NFO"`
	DeleteNFOAfterApply   *bool    `json:"DELETE_NFO_AFTER_APPLY"`
	WatchPaths            []string `json:"WATCH_PATHS"`
}

// decodeLegacy converts a legacy JSON config into a Config with defaults applied.
func decodeLegacy(data []byte) (*Config, error) {
	var lc legacyConfig
	if err := json.Unmarshal(data, &lc); err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.Plex.URL = lc.PlexBaseURL
	cfg.Plex.Token = lc.PlexToken
	for _, id := range lc.PlexLibraryIDs {
		switch v := id.(type) {
		case float64:
			cfg.Plex.Libraries = append(cfg.Plex.Libraries, strconv.FormatFloat(v, 'f', -1, 64))
		case string:
			cfg.Plex.Libraries = append(cfg.Plex.Libraries, v)
		default:
			return nil, fmt.Errorf("PLEX_LIBRARY_IDS: unsupported value %v", id)
		}
	}
	cfg.Plex.Libraries = append(cfg.Plex.Libraries, lc.PlexLibraryNames...)
	cfg.Sync.Directories = lc.WatchPaths

	setBool(&cfg.Log.Silent, lc.Silent)
	setBool(&cfg.Log.Detail, lc.Detail)
	setBool(&cfg.Sync.Subtitles, lc.Subtitles)
	setBool(&cfg.Watch.Enabled, lc.WatchFolders)
	setBool(&cfg.Sync.AlwaysApply, lc.AlwaysApplyNFO)
	setBool(&cfg.Sync.DeleteNFOAfterApply, lc.DeleteNFOAfterApply)
	if lc.Threads != nil {
		cfg.Sync.Threads = *lc.Threads
	}
	if lc.MaxConcurrentRequests != nil {
		cfg.Sync.MaxConcurrentRequests = *lc.MaxConcurrentRequests
	}
	if lc.RetryCount != nil {
		cfg.Sync.RetryCount = *lc.RetryCount
	}
	setSeconds(&cfg.Sync.RequestDelay, lc.RequestDelay)
	setSeconds(&cfg.Sync.RetryDelay, lc.RetryDelay)
	setSeconds(&cfg.Watch.DebounceDelay, lc.WatchDebounceDelay)

	return cfg, nil
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setSeconds(dst *Seconds, v *float64) {
	if v != nil {
		*dst = Seconds(*v)
	}
}
