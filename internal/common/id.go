package common

import (
	"github.com/google/uuid"
)

// NewRequestID generates a fresh correlation id for a queued request.
// Ids are never reused within a process lifetime.
func NewRequestID() string {
	return uuid.New().String()
}

// NewInstanceID generates an id identifying this gateway process to websocket clients
func NewInstanceID() string {
	return "inferd_" + uuid.New().String()
}
