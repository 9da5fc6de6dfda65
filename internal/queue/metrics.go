package queue

import "time"

// Metrics receives broker events. Implementations must be safe for concurrent use.
type Metrics interface {
	// RecordSubmit is called once per Submit with "completed" or the failure kind
	RecordSubmit(queueName, outcome string, elapsed time.Duration)
	RecordDequeue(queueName string)
	RecordSkip(queueName string)
}

// OutcomeCompleted is the RecordSubmit outcome for a successful round trip
const OutcomeCompleted = "completed"

type noopMetrics struct{}

func (noopMetrics) RecordSubmit(string, string, time.Duration) {}
func (noopMetrics) RecordDequeue(string)                       {}
func (noopMetrics) RecordSkip(string)                          {}
