// internal/events/registry.go
package events

import (
	"fmt"

	"github.com/goccy/go-json"
)

// EventFactory creates a new zero-value event of a specific type.
type EventFactory func() Event

// Registry maps event types to their factories for deserialization.
type Registry struct {
	factories map[string]EventFactory
}

// NewRegistry creates a new event registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]EventFactory),
	}
}

// Register adds an event type to the registry.
func (r *Registry) Register(eventType string, factory EventFactory) {
	r.factories[eventType] = factory
}

// Unmarshal deserializes a raw event into its concrete type.
func (r *Registry) Unmarshal(raw RawEvent) (Event, error) {
	factory, ok := r.factories[raw.EventType]
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", raw.EventType)
	}

	event := factory()
	if err := json.Unmarshal([]byte(raw.Payload), event); err != nil {
		return nil, fmt.Errorf("unmarshal event payload: %w", err)
	}

	return event, nil
}

// DefaultRegistry returns a registry with every sync event type registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(EventRunStarted, func() Event { return &RunStarted{} })
	r.Register(EventRunCompleted, func() Event { return &RunCompleted{} })

	r.Register(EventItemUpdated, func() Event { return &ItemUpdated{} })
	r.Register(EventItemUnchanged, func() Event { return &ItemUnchanged{} })
	r.Register(EventItemFailed, func() Event { return &ItemFailed{} })

	r.Register(EventSidecarSkipped, func() Event { return &SidecarSkipped{} })
	r.Register(EventSidecarDeleted, func() Event { return &SidecarDeleted{} })

	r.Register(EventSubtitleUploaded, func() Event { return &SubtitleUploaded{} })
	r.Register(EventSubtitleFailed, func() Event { return &SubtitleFailed{} })

	r.Register(EventWatchDropped, func() Event { return &WatchDropped{} })

	return r
}
