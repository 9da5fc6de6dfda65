package queue

import (
	"time"

	"github.com/ternarybob/inferd/internal/common"
)

// Config holds the broker's limits
type Config struct {
	// ResponseTimeout bounds how long Submit waits for queue space plus a worker result
	ResponseTimeout time.Duration

	// CommandDequeueTimeout is the default long-poll ceiling for Dequeue
	CommandDequeueTimeout time.Duration

	// MaxQueueLength is the capacity of every queue
	MaxQueueLength int
}

// NewDefaultConfig creates a broker configuration with the stock limits
func NewDefaultConfig() Config {
	return Config{
		ResponseTimeout:       60 * time.Second,
		CommandDequeueTimeout: 10 * time.Second,
		MaxQueueLength:        32,
	}
}

// NewConfig converts the [queue] section of the application config
func NewConfig(c common.QueueConfig) Config {
	config := Config{
		ResponseTimeout:       c.ResponseTimeoutDuration(),
		CommandDequeueTimeout: c.CommandDequeueTimeoutDuration(),
		MaxQueueLength:        c.MaxQueueLength,
	}
	if config.MaxQueueLength <= 0 {
		config.MaxQueueLength = NewDefaultConfig().MaxQueueLength
	}
	return config
}
