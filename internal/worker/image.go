package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/animus-ai/animus/internal/jobs"
	"github.com/animus-ai/animus/internal/resilience"
	"github.com/animus-ai/animus/pkg/provider/vision"
	"github.com/animus-ai/animus/pkg/types"
)

// DefaultImageConcurrency bounds parallel description calls per job.
const DefaultImageConcurrency = 4

// ImageWorker describes every image attachment of a job concurrently.
// Partial failure degrades gracefully: as long as one image succeeds the
// job succeeds, with the failure count recorded in the metadata. Only when
// every image fails does the job fail.
type ImageWorker struct {
	describer   vision.Describer
	router      *vision.Router
	concurrency int
	retry       resilience.RetryConfig
	log         *slog.Logger
}

// NewImageWorker constructs an ImageWorker. concurrency <= 0 means
// [DefaultImageConcurrency]; logger may be nil.
func NewImageWorker(describer vision.Describer, router *vision.Router, concurrency int, logger *slog.Logger) *ImageWorker {
	if concurrency <= 0 {
		concurrency = DefaultImageConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageWorker{
		describer:   describer,
		router:      router,
		concurrency: concurrency,
		retry:       resilience.RetryConfig{},
		log:         logger.With("component", "image-worker"),
	}
}

// Process handles one batched image job.
func (w *ImageWorker) Process(ctx context.Context, env jobs.Envelope) types.PreprocessingResult {
	start := time.Now()
	job := env.Job

	if len(job.Attachments) == 0 {
		return failure("image job carries no attachments")
	}
	for _, att := range job.Attachments {
		if !att.IsImage() {
			return failure(fmt.Sprintf("Invalid attachment type: %s", att.ContentType))
		}
	}

	model := w.router.Resolve(env.Request.Personality.VisionModel, env.Request.Personality.Params.Model)

	// Indexed result slots keep descriptions in attachment order despite
	// concurrent completion.
	var mu sync.Mutex
	slots := make([]*types.ImageDescription, len(job.Attachments))
	var failures []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for i, att := range job.Attachments {
		i, att := i, att
		g.Go(func() error {
			desc, err := resilience.RetryWithResult(gctx, "describe-image", w.retry, func() (string, error) {
				return w.describer.Describe(gctx, model, att.URL, "")
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				w.log.Warn("image description failed",
					"jobId", job.ID, "url", att.URL, "error", err)
				failures = append(failures, fmt.Sprintf("%s: %v", att.Name, err))
				return nil
			}
			slots[i] = &types.ImageDescription{URL: att.URL, Description: desc}
			return nil
		})
	}
	// Workers never return errors; they record failures instead.
	_ = g.Wait()

	var descriptions []types.ImageDescription
	for _, slot := range slots {
		if slot != nil {
			descriptions = append(descriptions, *slot)
		}
	}

	meta := types.PreprocessingMetadata{
		ImageCount:       len(job.Attachments),
		FailedCount:      len(failures),
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}

	if len(descriptions) == 0 {
		return types.PreprocessingResult{
			Success:  false,
			Error:    "all images failed: " + strings.Join(failures, "; "),
			Metadata: meta,
		}
	}
	return types.PreprocessingResult{
		Success:      true,
		Descriptions: descriptions,
		Metadata:     meta,
	}
}
