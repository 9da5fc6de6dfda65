package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ternarybob/inferd/internal/models"
)

// RequestDispatcher resolves inbound routes and sends payloads to worker queues.
type RequestDispatcher interface {
	Resolve(method, path string) (models.RouteEntry, []string, error)
	SendObject(ctx context.Context, queueName string, payload *models.RequestPayload) (map[string]interface{}, error)
}

// WorkQueue is the worker-facing side of the broker.
type WorkQueue interface {
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*models.Request, bool)
	Complete(requestID string, response string) bool
}

// ModuleTracker records what workers report about themselves.
type ModuleTracker interface {
	Descriptor(moduleID string) (*models.ModuleDescriptor, bool)
	TouchLastSeen(moduleID string) bool
	RecordCompletion(moduleID, command string) bool
	UpdateStatusData(moduleID string, data json.RawMessage) bool
	SetInferenceDevice(moduleID, device string) bool
	AdviseShutdown(moduleID string) bool
}
