package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/inferd/internal/interfaces"
	"github.com/ternarybob/inferd/internal/models"
)

// NewLoggerSubscriber creates an event handler that traces module and request events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Trace().
			Str("event_type", string(event.Type))

		switch p := event.Payload.(type) {
		case *models.ModuleStatus:
			logEvent = logEvent.Str("module_id", p.ModuleID).Str("state", string(p.State))
		case interfaces.RequestCompletedPayload:
			logEvent = logEvent.Str("request_id", p.RequestID)
			if p.ModuleID != "" {
				logEvent = logEvent.Str("module_id", p.ModuleID)
			}
		}

		logEvent.Msg("Event published")
		return nil
	}
}

// SubscribeLoggerToEvents subscribes the logger to module and request events.
// queue_stats is left out because it fires on every stats tick.
func SubscribeLoggerToEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventModuleStatus,
		interfaces.EventRequestCompleted,
		interfaces.EventStatusChanged,
	}

	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	return nil
}
