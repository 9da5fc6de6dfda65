package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/inferd/internal/interfaces"
	"github.com/ternarybob/inferd/internal/queue"
	"github.com/ternarybob/inferd/internal/services/events"
)

type fakeSweeper struct {
	idleCalls    atomic.Int32
	persistCalls atomic.Int32
	idleAfter    atomic.Int64
	persistErr   error
}

func (f *fakeSweeper) MarkIdle(idleAfter time.Duration) []string {
	f.idleCalls.Add(1)
	f.idleAfter.Store(int64(idleAfter))
	return []string{"faces"}
}

func (f *fakeSweeper) Persist(ctx context.Context) error {
	f.persistCalls.Add(1)
	return f.persistErr
}

type fakeStats struct{}

func (fakeStats) Stats() []queue.QueueStats {
	return []queue.QueueStats{{Name: "faces", Depth: 1, Capacity: 32}}
}
func (fakeStats) PendingCount() int { return 1 }

func TestService_Sweep(t *testing.T) {
	sweeper := &fakeSweeper{}
	service := NewService(Config{IdleAfter: 30 * time.Second}, sweeper, nil, nil, arbor.NewNoOpLogger())

	service.Sweep()

	assert.Equal(t, int32(1), sweeper.idleCalls.Load())
	assert.Equal(t, int32(1), sweeper.persistCalls.Load())
	assert.Equal(t, int64(30*time.Second), sweeper.idleAfter.Load())
	assert.Equal(t, int64(1), service.SweepCount())

	// persistence failures are logged, not fatal
	sweeper.persistErr = errors.New("disk full")
	service.Sweep()
	assert.Equal(t, int64(2), service.SweepCount())
}

func TestService_StartRunsScheduledSweeps(t *testing.T) {
	sweeper := &fakeSweeper{}
	service := NewService(Config{Schedule: "@every 1s"}, sweeper, nil, nil, arbor.NewNoOpLogger())

	require.NoError(t, service.Start())
	assert.Error(t, service.Start())

	assert.Eventually(t, func() bool { return service.SweepCount() >= 1 }, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	before := sweeper.persistCalls.Load()
	require.NoError(t, service.Stop(ctx))
	assert.Greater(t, sweeper.persistCalls.Load(), before, "stop persists a final snapshot")

	// a second stop is a no-op
	require.NoError(t, service.Stop(ctx))
}

func TestService_InvalidSchedule(t *testing.T) {
	service := NewService(Config{Schedule: "not a schedule"}, &fakeSweeper{}, nil, nil, arbor.NewNoOpLogger())
	assert.Error(t, service.Start())
}

func TestService_PublishQueueStats(t *testing.T) {
	bus := events.NewService(arbor.NewNoOpLogger())
	defer bus.Close()

	var mu sync.Mutex
	var received []QueueStatsPayload
	require.NoError(t, bus.Subscribe(interfaces.EventQueueStats, func(ctx context.Context, event interfaces.Event) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event.Payload.(QueueStatsPayload))
		return nil
	}))

	service := NewService(Config{}, &fakeSweeper{}, fakeStats{}, bus, arbor.NewNoOpLogger())
	service.PublishQueueStats()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, received[0].Pending)
	require.Len(t, received[0].Queues, 1)
	assert.Equal(t, "faces", received[0].Queues[0].Name)
}

type fakeCompactor struct {
	calls atomic.Int32
	err   error
}

func (f *fakeCompactor) CollectGarbage() (int, error) {
	f.calls.Add(1)
	return 2, f.err
}

func TestService_Compact(t *testing.T) {
	compactor := &fakeCompactor{}
	service := NewService(Config{}, &fakeSweeper{}, nil, nil, arbor.NewNoOpLogger())

	// no compactor set
	service.Compact()

	service.SetCompactor(compactor)
	service.Compact()
	assert.Equal(t, int32(1), compactor.calls.Load())

	compactor.err = errors.New("gc failed")
	service.Compact()
	assert.Equal(t, int32(2), compactor.calls.Load())
}

func TestService_InvalidCompactSchedule(t *testing.T) {
	service := NewService(Config{CompactSchedule: "nope"}, &fakeSweeper{}, nil, nil, arbor.NewNoOpLogger())
	service.SetCompactor(&fakeCompactor{})
	assert.Error(t, service.Start())
}
