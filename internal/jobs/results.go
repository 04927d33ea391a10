package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/animus-ai/animus/pkg/types"
)

// DefaultResultTTL bounds how long preprocessing results wait for their
// generation job. Generation normally consumes them within seconds.
const DefaultResultTTL = 30 * time.Minute

// ErrResultTimeout is returned when a dependency result does not arrive in
// time.
var ErrResultTimeout = errors.New("timed out waiting for job result")

// ResultBus moves job results through Redis. Preprocessing outputs are
// stored under their result keys for dependency resolution; final generation
// results are appended to a per-job stream that delivery consumers read.
// Both paths signal completion on a pub/sub channel so waiters wake without
// polling.
type ResultBus struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewResultBus wraps a Redis client. ttl <= 0 means [DefaultResultTTL].
func NewResultBus(rdb *redis.Client, ttl time.Duration) *ResultBus {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &ResultBus{rdb: rdb, ttl: ttl}
}

// PutPreprocessingResult stores a preprocessing output under its result key
// and signals the job's completion channel.
func (b *ResultBus) PutPreprocessingResult(ctx context.Context, jobID, key string, result types.PreprocessingResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("jobs: put result %s: marshal: %w", key, err)
	}
	if err := b.rdb.Set(ctx, resultKey(key), payload, b.ttl).Err(); err != nil {
		return fmt.Errorf("jobs: put result %s: %w", key, err)
	}
	if err := b.rdb.Publish(ctx, doneChannel(jobID), jobID).Err(); err != nil {
		return fmt.Errorf("jobs: signal done %s: %w", jobID, err)
	}
	return nil
}

// GetPreprocessingResult fetches a stored result, reporting found=false when
// the key does not exist yet.
func (b *ResultBus) GetPreprocessingResult(ctx context.Context, key string) (types.PreprocessingResult, bool, error) {
	var result types.PreprocessingResult
	raw, err := b.rdb.Get(ctx, resultKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return result, false, nil
	}
	if err != nil {
		return result, false, fmt.Errorf("jobs: get result %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, false, fmt.Errorf("jobs: get result %s: unmarshal: %w", key, err)
	}
	return result, true, nil
}

// WaitForResult blocks until the dependency's result is available or timeout
// elapses. The subscription is opened before the recheck so a result landing
// between the two cannot be missed.
func (b *ResultBus) WaitForResult(ctx context.Context, dep types.JobDependency, timeout time.Duration) (types.PreprocessingResult, error) {
	if result, found, err := b.GetPreprocessingResult(ctx, dep.ResultKey); err != nil || found {
		return result, err
	}

	sub := b.rdb.Subscribe(ctx, doneChannel(dep.JobID))
	defer sub.Close()

	// Recheck after subscribing: the result may have landed in the gap.
	if result, found, err := b.GetPreprocessingResult(ctx, dep.ResultKey); err != nil || found {
		return result, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return types.PreprocessingResult{}, fmt.Errorf("jobs: wait for %s: %w", dep.ResultKey, ctx.Err())
		case <-timer.C:
			return types.PreprocessingResult{}, fmt.Errorf("jobs: wait for %s: %w", dep.ResultKey, ErrResultTimeout)
		case <-sub.Channel():
			result, found, err := b.GetPreprocessingResult(ctx, dep.ResultKey)
			if err != nil {
				return types.PreprocessingResult{}, err
			}
			if found {
				return result, nil
			}
		}
	}
}

// PublishGenerationResult appends the final result to the job's delivery
// stream and signals completion. The stream expires with the result TTL so
// unclaimed results do not accumulate.
func (b *ResultBus) PublishGenerationResult(ctx context.Context, result types.GenerationResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("jobs: publish result %s: marshal: %w", result.JobID, err)
	}
	stream := resultStream(result.JobID)
	if err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"result": payload},
	}).Err(); err != nil {
		return fmt.Errorf("jobs: publish result %s: %w", result.JobID, err)
	}
	if err := b.rdb.Expire(ctx, stream, b.ttl).Err(); err != nil {
		return fmt.Errorf("jobs: publish result %s: expire: %w", result.JobID, err)
	}
	if err := b.rdb.Publish(ctx, doneChannel(result.JobID), result.JobID).Err(); err != nil {
		return fmt.Errorf("jobs: signal done %s: %w", result.JobID, err)
	}
	return nil
}

// ReadGenerationResult reads the final result for a job from its delivery
// stream, blocking up to block. Returns (nil, nil) on timeout.
func (b *ResultBus) ReadGenerationResult(ctx context.Context, jobID string, block time.Duration) (*types.GenerationResult, error) {
	streams, err := b.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{resultStream(jobID), "0"},
		Count:   1,
		Block:   block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("jobs: read result %s: %w", jobID, err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}
	raw, ok := streams[0].Messages[0].Values["result"].(string)
	if !ok {
		return nil, fmt.Errorf("jobs: read result %s: entry has no result field", jobID)
	}
	var result types.GenerationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("jobs: read result %s: unmarshal: %w", jobID, err)
	}
	return &result, nil
}
