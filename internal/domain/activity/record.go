// Package activity models the backend events shown in the activity view.
package activity

import (
	"time"

	"github.com/google/uuid"
)

// Record is one backend event as the activity view keeps it.
type Record struct {
	ID   uuid.UUID      `json:"id"`
	Type string         `json:"type"`
	Time time.Time      `json:"time"`
	Data map[string]any `json:"data,omitempty"`
	// Meta is set when Data was cut down to fit the size limit.
	Meta *TruncationMeta `json:"meta,omitempty"`
}

// NewRecord creates a record with a fresh id. A zero at means now.
func NewRecord(eventType string, at time.Time, data map[string]any) *Record {
	if at.IsZero() {
		at = time.Now()
	}
	return &Record{ID: uuid.New(), Type: eventType, Time: at, Data: data}
}

// TruncationMeta describes a truncated payload.
type TruncationMeta struct {
	Truncated    bool   `json:"truncated"`
	OriginalSize int    `json:"originalSize"`
	TruncatedAt  int    `json:"truncatedAt"`
	Reason       string `json:"reason"`
}
