package status

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/inferd/internal/common"
	"github.com/ternarybob/inferd/internal/interfaces"
	"github.com/ternarybob/inferd/internal/models"
	"github.com/ternarybob/inferd/internal/queue"
)

// AppState represents the gateway lifecycle state
type AppState string

const (
	StateStarting AppState = "starting"
	StateRunning  AppState = "running"
	StateStopping AppState = "stopping"
)

// QueueSource provides broker snapshots
type QueueSource interface {
	Stats() []queue.QueueStats
	PendingCount() int
}

// ModuleSource provides module status snapshots
type ModuleSource interface {
	Statuses() []*models.ModuleStatus
}

// Snapshot is the full gateway status returned by /api/status
type Snapshot struct {
	State     AppState               `json:"state"`
	Version   string                 `json:"version"`
	StartedAt time.Time              `json:"started_at"`
	Uptime    string                 `json:"uptime"`
	Pending   int                    `json:"pending"`
	Queues    []queue.QueueStats     `json:"queues"`
	Modules   []*models.ModuleStatus `json:"modules"`
	Timestamp time.Time              `json:"timestamp"`
}

// Service manages gateway status
type Service struct {
	state        AppState
	startedAt    time.Time
	mu           sync.RWMutex
	queues       QueueSource
	modules      ModuleSource
	eventService interfaces.EventService
	logger       arbor.ILogger
}

// NewService creates a new StatusService. modules may be nil.
func NewService(queues QueueSource, modules ModuleSource, eventService interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		state:        StateStarting,
		startedAt:    time.Now(),
		queues:       queues,
		modules:      modules,
		eventService: eventService,
		logger:       logger,
	}
}

// GetState returns the current gateway state (thread-safe)
func (s *Service) GetState() AppState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState updates the gateway state and broadcasts the change
func (s *Service) SetState(state AppState) {
	s.mu.Lock()
	oldState := s.state
	s.state = state
	s.mu.Unlock()

	if oldState == state {
		return
	}

	s.logger.Info().
		Str("old_state", string(oldState)).
		Str("new_state", string(state)).
		Msg("Gateway state changed")

	if s.eventService == nil {
		return
	}
	s.eventService.Publish(context.Background(), interfaces.Event{
		Type: interfaces.EventStatusChanged,
		Payload: map[string]interface{}{
			"state":     string(state),
			"timestamp": time.Now(),
		},
	})
}

// GetStatus returns the full status including queues, modules and uptime
func (s *Service) GetStatus() Snapshot {
	now := time.Now()
	snapshot := Snapshot{
		State:     s.GetState(),
		Version:   common.GetVersion(),
		StartedAt: s.startedAt,
		Uptime:    now.Sub(s.startedAt).Truncate(time.Second).String(),
		Queues:    []queue.QueueStats{},
		Modules:   []*models.ModuleStatus{},
		Timestamp: now,
	}

	if s.queues != nil {
		snapshot.Queues = s.queues.Stats()
		snapshot.Pending = s.queues.PendingCount()
	}
	if s.modules != nil {
		snapshot.Modules = s.modules.Statuses()
	}

	return snapshot
}
