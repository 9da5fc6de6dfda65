package handlers

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/inferd/internal/interfaces"
	"golang.org/x/time/rate"
)

// Broadcaster sends typed messages to websocket clients
type Broadcaster interface {
	Broadcast(messageType string, payload interface{})
}

// EventSubscriber bridges event bus events to websocket broadcasts
type EventSubscriber struct {
	handler       Broadcaster
	eventService  interfaces.EventService
	logger        arbor.ILogger
	allowedEvents map[string]bool          // Whitelist of events to broadcast (empty = allow all)
	throttlers    map[string]*rate.Limiter // Rate limiters for high-frequency events
}

// NewEventSubscriber creates a subscriber and registers it for every broadcast event.
// queue_stats is limited to one broadcast per statsInterval.
func NewEventSubscriber(handler Broadcaster, eventService interfaces.EventService, logger arbor.ILogger, allowedEvents []string, statsInterval time.Duration) *EventSubscriber {
	s := &EventSubscriber{
		handler:       handler,
		eventService:  eventService,
		logger:        logger,
		allowedEvents: make(map[string]bool),
		throttlers:    make(map[string]*rate.Limiter),
	}

	for _, eventType := range allowedEvents {
		s.allowedEvents[eventType] = true
	}

	if statsInterval > 0 {
		s.throttlers[string(interfaces.EventQueueStats)] = rate.NewLimiter(rate.Every(statsInterval), 1)
		logger.Debug().
			Str("event_type", string(interfaces.EventQueueStats)).
			Str("interval", statsInterval.String()).
			Msg("Throttler initialized for event type")
	}

	if eventService == nil {
		logger.Warn().Msg("EventSubscriber created with nil eventService - subscriptions will be skipped")
		return s
	}

	s.SubscribeAll()
	return s
}

// SubscribeAll registers subscriptions for every event streamed to clients
func (s *EventSubscriber) SubscribeAll() {
	for _, eventType := range []interfaces.EventType{
		interfaces.EventQueueStats,
		interfaces.EventModuleStatus,
		interfaces.EventRequestCompleted,
		interfaces.EventStatusChanged,
	} {
		if err := s.eventService.Subscribe(eventType, s.handleEvent); err != nil {
			s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe websocket to event")
		}
	}

	s.logger.Debug().Msg("EventSubscriber registered for websocket events")
}

func (s *EventSubscriber) handleEvent(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcastEvent(string(event.Type)) {
		return nil
	}
	s.handler.Broadcast(string(event.Type), event.Payload)
	return nil
}

// shouldBroadcastEvent checks if an event should be broadcast based on whitelist and throttling
func (s *EventSubscriber) shouldBroadcastEvent(eventType string) bool {
	// Check whitelist (empty allowedEvents = allow all)
	if len(s.allowedEvents) > 0 && !s.allowedEvents[eventType] {
		return false
	}

	if limiter, ok := s.throttlers[eventType]; ok && !limiter.Allow() {
		return false
	}

	return true
}
