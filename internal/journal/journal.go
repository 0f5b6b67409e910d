package journal

import (
	"context"
	"time"
)

const (
	TypeSkip = "skip"
	TypeRun  = "run"
)

// Event represents a journaled event.
type Event struct {
	Time        time.Time
	Type        string // e.g., "skip", "run"
	Description string
	Data        map[string]any
}

// Journaler interface for journaling events.
type Journaler interface {
	LogEvent(ctx context.Context, event Event) error
	GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]Event, error)
}
