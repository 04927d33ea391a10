package jobs

import "fmt"

// Redis key layout. Streams carry job envelopes per type; result keys hold
// preprocessing outputs for dependency resolution; channels wake waiters.

// streamForType returns the Redis stream jobs of the given type travel on.
func streamForType(jobType string) string {
	return fmt.Sprintf("jobs:%s", jobType)
}

// ConsumerGroup is the shared consumer group name on every job stream.
const ConsumerGroup = "workers"

// resultKey returns the Redis key holding a preprocessing result envelope.
func resultKey(key string) string {
	return fmt.Sprintf("job-results:%s", key)
}

// doneChannel returns the pub/sub channel signalled when a job finishes.
func doneChannel(jobID string) string {
	return fmt.Sprintf("job-done:%s", jobID)
}

// resultStream returns the stream delivery consumers read final generation
// results from.
func resultStream(jobID string) string {
	return fmt.Sprintf("job-result:%s", jobID)
}
