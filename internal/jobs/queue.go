package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/animus-ai/animus/pkg/types"
)

// Envelope is the wire form of a queued job. The full request rides along so
// workers need no extra lookup to start processing.
type Envelope struct {
	Job     types.Job     `json:"job"`
	Request types.Request `json:"request"`
}

// Delivery is a dequeued envelope plus the stream bookkeeping needed to ack
// it.
type Delivery struct {
	Envelope Envelope

	// StreamID is the Redis stream entry id, required for XACK.
	StreamID string
}

// Queue moves job envelopes over Redis streams, one stream per job type,
// with a shared consumer group so multiple worker processes can split the
// load.
type Queue struct {
	rdb *redis.Client
}

// NewQueue wraps a Redis client.
func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// EnsureGroups creates the consumer group on each job-type stream. Safe to
// call on every startup; existing groups are left untouched.
func (q *Queue) EnsureGroups(ctx context.Context) error {
	for _, jt := range []types.JobType{
		types.JobAudioTranscription,
		types.JobImageDescription,
		types.JobShapesImport,
		types.JobLLMGeneration,
	} {
		err := q.rdb.XGroupCreateMkStream(ctx, streamForType(string(jt)), ConsumerGroup, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("jobs: ensure group for %s: %w", jt, err)
		}
	}
	return nil
}

// Enqueue publishes one envelope to the stream for its job type.
func (q *Queue) Enqueue(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("jobs: enqueue %s: marshal: %w", env.Job.ID, err)
	}
	err = q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamForType(string(env.Job.Type)),
		Values: map[string]any{"envelope": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("jobs: enqueue %s: %w", env.Job.ID, err)
	}
	return nil
}

// Dequeue blocks up to block waiting for the next envelope of the given job
// type. Returns (nil, nil) when the wait times out with nothing to do.
func (q *Queue) Dequeue(ctx context.Context, jobType types.JobType, consumer string, block time.Duration) (*Delivery, error) {
	streams, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: consumer,
		Streams:  []string{streamForType(string(jobType)), ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("jobs: dequeue %s: %w", jobType, err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	msg := streams[0].Messages[0]
	raw, ok := msg.Values["envelope"].(string)
	if !ok {
		return nil, fmt.Errorf("jobs: dequeue %s: entry %s has no envelope field", jobType, msg.ID)
	}
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("jobs: dequeue %s: unmarshal entry %s: %w", jobType, msg.ID, err)
	}
	return &Delivery{Envelope: env, StreamID: msg.ID}, nil
}

// Ack acknowledges a processed delivery so the group stops redelivering it.
func (q *Queue) Ack(ctx context.Context, jobType types.JobType, streamID string) error {
	if err := q.rdb.XAck(ctx, streamForType(string(jobType)), ConsumerGroup, streamID).Err(); err != nil {
		return fmt.Errorf("jobs: ack %s: %w", streamID, err)
	}
	return nil
}
