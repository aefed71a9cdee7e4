package history

import (
	"context"
	"time"

	"github.com/haeun-lim/herd/internal/task"
)

// EventType defines the kind of task lifecycle event.
type EventType string

const (
	// EventCompleted is emitted when a supervised task finishes and its
	// record transitions to completed-but-unread.
	EventCompleted EventType = "completed"
	// EventReclaimed is emitted for every entry the staleness sweep removes.
	EventReclaimed EventType = "reclaimed"
)

// Event represents a task lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType   `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	PID        int         `json:"pid"`
	Record     task.Record `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
