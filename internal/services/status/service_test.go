package status

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/inferd/internal/interfaces"
	"github.com/ternarybob/inferd/internal/models"
	"github.com/ternarybob/inferd/internal/queue"
	"github.com/ternarybob/inferd/internal/services/events"
)

type fakeQueues struct{}

func (fakeQueues) Stats() []queue.QueueStats {
	return []queue.QueueStats{{Name: "faces", Depth: 2, Capacity: 32}}
}
func (fakeQueues) PendingCount() int { return 3 }

type fakeModules struct{}

func (fakeModules) Statuses() []*models.ModuleStatus {
	return []*models.ModuleStatus{{ModuleID: "FaceProcessing", Queue: "faces", State: models.ModuleStateRunning}}
}

func TestService_GetStatus(t *testing.T) {
	service := NewService(fakeQueues{}, fakeModules{}, nil, arbor.NewNoOpLogger())

	snapshot := service.GetStatus()
	assert.Equal(t, StateStarting, snapshot.State)
	assert.Equal(t, 3, snapshot.Pending)
	require.Len(t, snapshot.Queues, 1)
	assert.Equal(t, "faces", snapshot.Queues[0].Name)
	require.Len(t, snapshot.Modules, 1)
	assert.Equal(t, "FaceProcessing", snapshot.Modules[0].ModuleID)
	assert.NotEmpty(t, snapshot.Version)
}

func TestService_GetStatusWithoutSources(t *testing.T) {
	service := NewService(nil, nil, nil, arbor.NewNoOpLogger())

	snapshot := service.GetStatus()
	assert.NotNil(t, snapshot.Queues)
	assert.NotNil(t, snapshot.Modules)
	assert.Zero(t, snapshot.Pending)
}

func TestService_SetStatePublishes(t *testing.T) {
	bus := events.NewService(arbor.NewNoOpLogger())
	defer bus.Close()

	received := make(chan interfaces.Event, 4)
	require.NoError(t, bus.Subscribe(interfaces.EventStatusChanged, func(ctx context.Context, event interfaces.Event) error {
		received <- event
		return nil
	}))

	service := NewService(nil, nil, bus, arbor.NewNoOpLogger())
	service.SetState(StateRunning)
	assert.Equal(t, StateRunning, service.GetState())

	select {
	case event := <-received:
		payload := event.Payload.(map[string]interface{})
		assert.Equal(t, "running", payload["state"])
	case <-time.After(time.Second):
		t.Fatal("status_changed not published")
	}

	// unchanged state does not publish
	service.SetState(StateRunning)
	select {
	case <-received:
		t.Fatal("unexpected event for unchanged state")
	case <-time.After(50 * time.Millisecond):
	}
}
