package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	// EventQueueStats carries a monitor.QueueStatsPayload snapshot
	EventQueueStats EventType = "queue_stats"
	// EventModuleStatus carries a *models.ModuleStatus after it changes
	EventModuleStatus EventType = "module_status"
	// EventRequestCompleted carries a RequestCompletedPayload
	EventRequestCompleted EventType = "request_completed"
	// EventStatusChanged carries the gateway state transition
	EventStatusChanged EventType = "status_changed"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// RequestCompletedPayload describes a worker result accepted by the broker
type RequestCompletedPayload struct {
	RequestID string `json:"request_id"`
	ModuleID  string `json:"module_id,omitempty"`
	Command   string `json:"command,omitempty"`
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Unsubscribe from an event type
	Unsubscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
