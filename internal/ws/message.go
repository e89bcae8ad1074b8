package ws

import (
	"time"

	"scarecrow/internal/region"
	"scarecrow/internal/sink"
)

// TriggerMessage represents a trigger event broadcast
type TriggerMessage struct {
	Type      string          `json:"type"` // "trigger"
	EventID   string          `json:"event_id"`
	Timestamp time.Time       `json:"timestamp"`
	TotalArea int             `json:"total_area"`
	Regions   []region.Region `json:"regions"`
}

// StateMessage represents a detector state change broadcast
type StateMessage struct {
	Type      string    `json:"type"` // "state"
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTriggerMessage creates a broadcast message for a trigger event
func NewTriggerMessage(event sink.Event) *TriggerMessage {
	return &TriggerMessage{
		Type:      "trigger",
		EventID:   event.ID,
		Timestamp: event.Timestamp,
		TotalArea: event.TotalArea,
		Regions:   event.Regions,
	}
}

// NewStateMessage creates a broadcast message for a state change
func NewStateMessage(state string) *StateMessage {
	return &StateMessage{
		Type:      "state",
		State:     state,
		Timestamp: time.Now(),
	}
}
