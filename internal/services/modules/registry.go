package modules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/inferd/internal/interfaces"
	"github.com/ternarybob/inferd/internal/models"
	"github.com/ternarybob/inferd/internal/routing"
)

// QueueRegistrar is the broker operation used to create module queues at startup
type QueueRegistrar interface {
	EnsureQueueExists(queueName string) bool
}

// Registry holds the configured modules and what the gateway has observed of them
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*models.ModuleDescriptor // lower-case id
	statuses    map[string]*models.ModuleStatus     // lower-case id

	queues  QueueRegistrar
	routes  *routing.RouteTable
	events  interfaces.EventService
	storage interfaces.ModuleStatusStorage
	logger  arbor.ILogger
	now     func() time.Time
}

// NewRegistry creates an empty registry. events and storage may be nil.
func NewRegistry(queues QueueRegistrar, routes *routing.RouteTable, events interfaces.EventService, storage interfaces.ModuleStatusStorage, logger arbor.ILogger) *Registry {
	return &Registry{
		descriptors: make(map[string]*models.ModuleDescriptor),
		statuses:    make(map[string]*models.ModuleStatus),
		queues:      queues,
		routes:      routes,
		events:      events,
		storage:     storage,
		logger:      logger,
		now:         time.Now,
	}
}

func moduleKey(moduleID string) string {
	return strings.ToLower(strings.TrimSpace(moduleID))
}

// LoadDir registers every descriptor found in dir and returns how many were registered
func (r *Registry) LoadDir(ctx context.Context, dir string) (int, error) {
	descriptors, err := LoadDescriptors(dir, r.logger)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, descriptor := range descriptors {
		if err := r.Register(ctx, descriptor); err != nil {
			r.logger.Warn().Err(err).Str("module_id", descriptor.ID).Msg("Failed to register module")
			continue
		}
		count++
	}

	r.logger.Info().
		Str("dir", dir).
		Int("module_count", count).
		Int("route_count", r.routes.Count()).
		Msg("Modules loaded")

	return count, nil
}

// Register creates the module's queue, registers its routes and starts tracking its status.
// A previously persisted status is restored with its state reset to unknown.
func (r *Registry) Register(ctx context.Context, descriptor *models.ModuleDescriptor) error {
	if err := descriptor.Validate(); err != nil {
		return err
	}

	if !r.queues.EnsureQueueExists(descriptor.Queue) {
		return fmt.Errorf("module %s has an invalid queue name %q", descriptor.ID, descriptor.Queue)
	}
	for _, entry := range descriptor.RouteEntries() {
		r.routes.RegisterRoute(entry)
	}

	status := &models.ModuleStatus{
		ModuleID: descriptor.ID,
		Name:     descriptor.Name,
		Queue:    models.NormalizeQueueName(descriptor.Queue),
		State:    models.ModuleStateUnknown,
	}
	if r.storage != nil {
		stored, err := r.storage.GetStatus(ctx, descriptor.ID)
		switch {
		case err == nil:
			status.LastSeen = stored.LastSeen
			status.Processed = stored.Processed
			status.InferenceDevice = stored.InferenceDevice
			status.StatusData = stored.StatusData
		case !errors.Is(err, interfaces.ErrModuleNotFound):
			r.logger.Warn().Err(err).Str("module_id", descriptor.ID).Msg("Failed to restore module status")
		}
	}

	key := moduleKey(descriptor.ID)
	r.mu.Lock()
	r.descriptors[key] = descriptor
	r.statuses[key] = status
	r.mu.Unlock()

	r.logger.Debug().
		Str("module_id", descriptor.ID).
		Str("queue", status.Queue).
		Int("routes", len(descriptor.Routes)).
		Msg("Module registered")

	return nil
}

// Descriptor returns the descriptor registered for moduleID
func (r *Registry) Descriptor(moduleID string) (*models.ModuleDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[moduleKey(moduleID)]
	return d, ok
}

// Descriptors returns every registered descriptor ordered by id
func (r *Registry) Descriptors() []*models.ModuleDescriptor {
	r.mu.RLock()
	descriptors := make([]*models.ModuleDescriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		descriptors = append(descriptors, d)
	}
	r.mu.RUnlock()

	sort.Slice(descriptors, func(i, j int) bool {
		return strings.ToLower(descriptors[i].ID) < strings.ToLower(descriptors[j].ID)
	})
	return descriptors
}

// Status returns a copy of the current status of moduleID
func (r *Registry) Status(moduleID string) (models.ModuleStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.statuses[moduleKey(moduleID)]
	if !ok {
		return models.ModuleStatus{}, false
	}
	return *s, true
}

// Statuses returns copies of every module status ordered by id
func (r *Registry) Statuses() []*models.ModuleStatus {
	r.mu.RLock()
	statuses := make([]*models.ModuleStatus, 0, len(r.statuses))
	for _, s := range r.statuses {
		c := *s
		statuses = append(statuses, &c)
	}
	r.mu.RUnlock()

	sort.Slice(statuses, func(i, j int) bool {
		return strings.ToLower(statuses[i].ModuleID) < strings.ToLower(statuses[j].ModuleID)
	})
	return statuses
}

// update applies fn to the status of moduleID under the lock and publishes the
// result when fn reports a change. Returns false for an unknown module.
func (r *Registry) update(moduleID string, fn func(s *models.ModuleStatus) bool) bool {
	r.mu.Lock()
	s, ok := r.statuses[moduleKey(moduleID)]
	if !ok {
		r.mu.Unlock()
		return false
	}
	changed := fn(s)
	snapshot := *s
	r.mu.Unlock()

	if changed {
		r.publish(&snapshot)
	}
	return true
}

func (r *Registry) publish(status *models.ModuleStatus) {
	if r.events == nil {
		return
	}
	_ = r.events.Publish(context.Background(), interfaces.Event{
		Type:    interfaces.EventModuleStatus,
		Payload: status,
	})
}

// TouchLastSeen records that moduleID just talked to the gateway. A module
// that was advised to stop keeps its stopping state until the monitor marks it idle.
func (r *Registry) TouchLastSeen(moduleID string) bool {
	if moduleID == "" {
		return false
	}
	return r.update(moduleID, func(s *models.ModuleStatus) bool {
		s.LastSeen = r.now()
		if s.State == models.ModuleStateStopping || s.State == models.ModuleStateRunning {
			return false
		}
		s.State = models.ModuleStateRunning
		return true
	})
}

// RecordCompletion touches moduleID and counts a processed request unless the command was a status poll
func (r *Registry) RecordCompletion(moduleID, command string) bool {
	if moduleID == "" {
		return false
	}
	return r.update(moduleID, func(s *models.ModuleStatus) bool {
		s.LastSeen = r.now()
		if s.State != models.ModuleStateStopping {
			s.State = models.ModuleStateRunning
		}
		if command != "" && !strings.EqualFold(command, "status") {
			s.Processed++
		}
		return true
	})
}

// UpdateStatusData replaces the opaque status object reported by moduleID.
// data must be a JSON object.
func (r *Registry) UpdateStatusData(moduleID string, data json.RawMessage) bool {
	var probe map[string]interface{}
	if err := json.Unmarshal(data, &probe); err != nil || probe == nil {
		return false
	}
	device, _ := probe["inferenceDevice"].(string)

	return r.update(moduleID, func(s *models.ModuleStatus) bool {
		s.StatusData = append(json.RawMessage(nil), data...)
		if device != "" {
			s.InferenceDevice = device
		}
		return true
	})
}

// SetInferenceDevice records the device moduleID runs inference on
func (r *Registry) SetInferenceDevice(moduleID, device string) bool {
	if device == "" {
		return false
	}
	return r.update(moduleID, func(s *models.ModuleStatus) bool {
		if s.InferenceDevice == device {
			return false
		}
		s.InferenceDevice = device
		return true
	})
}

// AdviseShutdown marks moduleID as stopping after it picked up a quit command
func (r *Registry) AdviseShutdown(moduleID string) bool {
	return r.update(moduleID, func(s *models.ModuleStatus) bool {
		if s.State == models.ModuleStateStopping {
			return false
		}
		s.State = models.ModuleStateStopping
		r.logger.Info().Str("module_id", s.ModuleID).Msg("Module advised to shut down")
		return true
	})
}

// MarkIdle moves every running or stopping module not seen for idleAfter to idle
// and returns the ids that changed.
func (r *Registry) MarkIdle(idleAfter time.Duration) []string {
	cutoff := r.now().Add(-idleAfter)

	r.mu.Lock()
	changed := []*models.ModuleStatus{}
	for _, s := range r.statuses {
		if s.State != models.ModuleStateRunning && s.State != models.ModuleStateStopping {
			continue
		}
		if s.LastSeen.After(cutoff) {
			continue
		}
		s.State = models.ModuleStateIdle
		c := *s
		changed = append(changed, &c)
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(changed))
	for _, s := range changed {
		ids = append(ids, s.ModuleID)
		r.publish(s)
	}
	sort.Strings(ids)
	return ids
}

// Persist writes every module status to storage. A nil storage is a no-op.
func (r *Registry) Persist(ctx context.Context) error {
	if r.storage == nil {
		return nil
	}
	if err := r.storage.SaveStatuses(ctx, r.Statuses()); err != nil {
		return fmt.Errorf("failed to persist module statuses: %w", err)
	}
	return nil
}
