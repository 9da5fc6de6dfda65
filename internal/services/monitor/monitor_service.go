package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/inferd/internal/interfaces"
	"github.com/ternarybob/inferd/internal/queue"
)

// ModuleSweeper is the module registry surface the monitor drives
type ModuleSweeper interface {
	MarkIdle(idleAfter time.Duration) []string
	Persist(ctx context.Context) error
}

// StatsSource provides queue snapshots for the queue_stats event
type StatsSource interface {
	Stats() []queue.QueueStats
	PendingCount() int
}

// Compactor reclaims space in the status store
type Compactor interface {
	CollectGarbage() (int, error)
}

// QueueStatsPayload is published as the queue_stats event
type QueueStatsPayload struct {
	Queues    []queue.QueueStats `json:"queues"`
	Pending   int                `json:"pending"`
	Timestamp time.Time          `json:"timestamp"`
}

// Config controls the monitor's schedules
type Config struct {
	// Schedule is the cron spec for the liveness sweep
	Schedule string
	// IdleAfter is how long a module may be silent before it is marked idle
	IdleAfter time.Duration
	// StatsInterval is how often queue_stats is published; zero disables it
	StatsInterval time.Duration
	// CompactSchedule is the cron spec for store garbage collection
	CompactSchedule string
}

// Service runs periodic housekeeping: marking silent modules idle,
// persisting module status and publishing queue statistics.
type Service struct {
	config   Config
	modules  ModuleSweeper
	stats    StatsSource
	compact  Compactor
	events   interfaces.EventService
	logger   arbor.ILogger
	cron     *cron.Cron
	mu       sync.Mutex
	running  bool
	sweeping atomic.Bool
	sweeps   atomic.Int64
}

// NewService creates a monitor. stats and events may be nil, which disables queue_stats.
func NewService(config Config, modules ModuleSweeper, stats StatsSource, events interfaces.EventService, logger arbor.ILogger) *Service {
	if config.Schedule == "" {
		config.Schedule = "@every 15s"
	}
	if config.IdleAfter <= 0 {
		config.IdleAfter = time.Minute
	}
	if config.CompactSchedule == "" {
		config.CompactSchedule = "@every 10m"
	}
	return &Service{
		config:  config,
		modules: modules,
		stats:   stats,
		events:  events,
		logger:  logger,
		cron:    cron.New(),
	}
}

// SetCompactor enables periodic store garbage collection. Must be called before Start.
func (s *Service) SetCompactor(c Compactor) {
	s.compact = c
}

// Start schedules the jobs and starts the cron runner
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("monitor already running")
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, s.Sweep); err != nil {
		return fmt.Errorf("failed to schedule module sweep %q: %w", s.config.Schedule, err)
	}

	if s.config.StatsInterval > 0 && s.stats != nil && s.events != nil {
		spec := fmt.Sprintf("@every %s", s.config.StatsInterval)
		if _, err := s.cron.AddFunc(spec, s.PublishQueueStats); err != nil {
			return fmt.Errorf("failed to schedule queue stats %q: %w", spec, err)
		}
	}

	if s.compact != nil {
		if _, err := s.cron.AddFunc(s.config.CompactSchedule, s.Compact); err != nil {
			return fmt.Errorf("failed to schedule store compaction %q: %w", s.config.CompactSchedule, err)
		}
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", s.config.Schedule).
		Str("idle_after", s.config.IdleAfter.String()).
		Msg("Module monitor started")

	return nil
}

// Stop halts the cron runner, waits for a running job and persists a final snapshot
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("Module monitor stop timed out waiting for running job")
	}

	if err := s.modules.Persist(ctx); err != nil {
		return err
	}

	s.logger.Info().Msg("Module monitor stopped")
	return nil
}

// Sweep marks silent modules idle and persists every module status.
// Overlapping sweeps are skipped.
func (s *Service) Sweep() {
	if !s.sweeping.CompareAndSwap(false, true) {
		s.logger.Debug().Msg("Module sweep already running - skipping")
		return
	}
	defer s.sweeping.Store(false)

	idle := s.modules.MarkIdle(s.config.IdleAfter)
	if len(idle) > 0 {
		s.logger.Info().Strs("module_ids", idle).Msg("Modules marked idle")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.modules.Persist(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist module status")
	}

	s.sweeps.Add(1)
}

// Compact runs store garbage collection
func (s *Service) Compact() {
	if s.compact == nil {
		return
	}
	rewritten, err := s.compact.CollectGarbage()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Store garbage collection failed")
		return
	}
	if rewritten > 0 {
		s.logger.Debug().Int("rewritten", rewritten).Msg("Store garbage collection complete")
	}
}

// SweepCount returns how many sweeps have completed
func (s *Service) SweepCount() int64 {
	return s.sweeps.Load()
}

// PublishQueueStats publishes a queue_stats event with the current snapshot
func (s *Service) PublishQueueStats() {
	if s.stats == nil || s.events == nil {
		return
	}
	_ = s.events.Publish(context.Background(), interfaces.Event{
		Type: interfaces.EventQueueStats,
		Payload: QueueStatsPayload{
			Queues:    s.stats.Stats(),
			Pending:   s.stats.PendingCount(),
			Timestamp: time.Now(),
		},
	})
}
