package events

// Entity types
const (
	EntityRun     = "run"
	EntityItem    = "item"
	EntitySidecar = "sidecar"
)

// Event type constants
const (
	EventRunStarted       = "run.started"
	EventRunCompleted     = "run.completed"
	EventItemUpdated      = "item.updated"
	EventItemUnchanged    = "item.unchanged"
	EventItemFailed       = "item.failed"
	EventSidecarSkipped   = "sidecar.skipped"
	EventSidecarDeleted   = "sidecar.deleted"
	EventSubtitleUploaded = "subtitle.uploaded"
	EventSubtitleFailed   = "subtitle.failed"
	EventWatchDropped     = "watch.dropped"
)

// RunStarted is emitted when a sync cycle begins.
type RunStarted struct {
	BaseEvent
	Trigger  string `json:"trigger"` // "batch", "initial", "watch"
	Sidecars int    `json:"sidecars"`
}

// RunCompleted is emitted when a sync cycle finishes.
type RunCompleted struct {
	BaseEvent
	Succeeded  int   `json:"succeeded"`
	Failed     int   `json:"failed"`
	Unchanged  int   `json:"unchanged"`
	Unmatched  int   `json:"unmatched"`
	Duplicates int   `json:"duplicates"`
	Malformed  int   `json:"malformed"`
	Deleted    int   `json:"deleted"`
	Subtitles  int   `json:"subtitles"`
	DurationMS int64 `json:"duration_ms"`
}

// ItemUpdated is emitted after the media server accepted new metadata.
type ItemUpdated struct {
	BaseEvent
	RunID    string   `json:"run_id"`
	Sidecar  string   `json:"sidecar"`
	Title    string   `json:"title,omitempty"`
	Fields   []string `json:"fields"`
	Attempts int      `json:"attempts"`
}

// ItemUnchanged is emitted when an update was skipped because nothing changed.
type ItemUnchanged struct {
	BaseEvent
	RunID   string `json:"run_id"`
	Sidecar string `json:"sidecar"`
}

// ItemFailed is emitted when an update exhausted its attempts or failed permanently.
type ItemFailed struct {
	BaseEvent
	RunID    string `json:"run_id"`
	Sidecar  string `json:"sidecar"`
	Error    string `json:"error"`
	Attempts int    `json:"attempts"`
}

// SidecarSkipped is emitted for sidecars that never reached the executor.
type SidecarSkipped struct {
	BaseEvent
	RunID  string `json:"run_id"`
	Reason string `json:"reason"` // "unmatched", "duplicate", "malformed"
}

// SidecarDeleted is emitted after a sidecar was removed from disk.
type SidecarDeleted struct {
	BaseEvent
	RunID string `json:"run_id"`
}

// SubtitleUploaded is emitted for every track attached to an item.
type SubtitleUploaded struct {
	BaseEvent
	RunID    string `json:"run_id"`
	Stream   int    `json:"stream"`
	Language string `json:"language"`
	Codec    string `json:"codec"`
}

// SubtitleFailed is emitted when a single track could not be extracted or uploaded.
type SubtitleFailed struct {
	BaseEvent
	RunID  string `json:"run_id"`
	Stream int    `json:"stream"`
	Error  string `json:"error"`
}

// WatchDropped is emitted when a debounced trigger fired while a cycle was running.
type WatchDropped struct {
	BaseEvent
	Pending int `json:"pending"`
}
