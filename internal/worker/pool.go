package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/animus-ai/animus/internal/jobs"
	"github.com/animus-ai/animus/pkg/types"
)

// dequeueBlock is how long a consumer blocks on an empty stream before
// re-checking its context.
const dequeueBlock = 5 * time.Second

// PoolSizes configures how many consumers run per job type. Zero values fall
// back to the defaults.
type PoolSizes struct {
	Audio      int
	Image      int
	Generation int
}

func (p PoolSizes) withDefaults() PoolSizes {
	if p.Audio <= 0 {
		p.Audio = 2
	}
	if p.Image <= 0 {
		p.Image = 2
	}
	if p.Generation <= 0 {
		p.Generation = 4
	}
	return p
}

// Pool runs the consumer loops that drain the job queues. Each consumer
// claims one job at a time through the consumer group, moves it to active,
// runs the matching worker, publishes the result and acknowledges the stream
// entry. State transitions that fail because the lifecycle already moved on
// (a stuck-job sweep, a concurrent consumer) skip the job instead of
// processing it twice.
type Pool struct {
	queue      *jobs.Queue
	store      *jobs.Store
	bus        *jobs.ResultBus
	audio      *AudioWorker
	image      *ImageWorker
	generation *GenerationWorker
	importer   *ImportWorker
	sizes      PoolSizes
	log        *slog.Logger
}

// NewPool wires a Pool. importer may be nil to disable import jobs; logger
// may be nil.
func NewPool(
	queue *jobs.Queue,
	store *jobs.Store,
	bus *jobs.ResultBus,
	audio *AudioWorker,
	image *ImageWorker,
	generation *GenerationWorker,
	importer *ImportWorker,
	sizes PoolSizes,
	logger *slog.Logger,
) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:      queue,
		store:      store,
		bus:        bus,
		audio:      audio,
		image:      image,
		generation: generation,
		importer:   importer,
		sizes:      sizes.withDefaults(),
		log:        logger.With("component", "worker-pool"),
	}
}

// Run starts every consumer loop and blocks until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	spawn := func(jobType types.JobType, count int) {
		for i := 0; i < count; i++ {
			consumer := fmt.Sprintf("%s-%d", jobType, i)
			g.Go(func() error {
				p.consume(ctx, jobType, consumer)
				return nil
			})
		}
	}
	spawn(types.JobAudioTranscription, p.sizes.Audio)
	spawn(types.JobImageDescription, p.sizes.Image)
	spawn(types.JobLLMGeneration, p.sizes.Generation)
	if p.importer != nil {
		spawn(types.JobShapesImport, 1)
	}
	return g.Wait()
}

// consume is one consumer loop for a single job type.
func (p *Pool) consume(ctx context.Context, jobType types.JobType, consumer string) {
	log := p.log.With("jobType", jobType, "consumer", consumer)
	log.Info("consumer started")
	for {
		if ctx.Err() != nil {
			log.Info("consumer stopped")
			return
		}
		delivery, err := p.queue.Dequeue(ctx, jobType, consumer, dequeueBlock)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("consumer stopped")
				return
			}
			log.Error("dequeue failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if delivery == nil {
			continue
		}
		p.handle(ctx, jobType, delivery, log)
	}
}

func (p *Pool) handle(ctx context.Context, jobType types.JobType, delivery *jobs.Delivery, log *slog.Logger) {
	job := delivery.Envelope.Job
	log = log.With("jobId", job.ID, "requestId", job.RequestID)

	// Import jobs track their own lifecycle in the import_jobs table, not
	// the generic job state machine.
	if jobType == types.JobShapesImport {
		if err := p.importer.Process(ctx, delivery.Envelope); err != nil {
			log.Error("import failed", "error", err)
		}
		p.ack(ctx, jobType, delivery.StreamID, log)
		return
	}

	if err := p.store.UpdateState(ctx, job.ID, types.JobActive, ""); err != nil {
		// Already claimed, swept, or unknown: drop the stream entry.
		log.Warn("job not claimable, acking without work", "error", err)
		p.ack(ctx, jobType, delivery.StreamID, log)
		return
	}

	switch jobType {
	case types.JobAudioTranscription:
		res := p.audio.Process(ctx, delivery.Envelope)
		p.publishPreprocessing(ctx, job, jobs.AudioResultKey(job.RequestID, job.AttachmentIndex), res, log)
	case types.JobImageDescription:
		res := p.image.Process(ctx, delivery.Envelope)
		key := jobs.ImageResultKey(job.RequestID)
		if job.ID == jobs.ReferencedImageJobID(job.RequestID) {
			key = jobs.ReferencedImageResultKey(job.RequestID)
		}
		p.publishPreprocessing(ctx, job, key, res, log)
	case types.JobLLMGeneration:
		res := p.generation.Process(ctx, delivery.Envelope)
		p.publishGeneration(ctx, res, log)
	default:
		log.Error("no worker for job type")
		p.failJob(ctx, job.ID, fmt.Sprintf("no worker for job type %s", jobType), log)
	}

	p.ack(ctx, jobType, delivery.StreamID, log)
}

// publishPreprocessing stores a preprocessing result on the bus and records
// the terminal state.
func (p *Pool) publishPreprocessing(ctx context.Context, job types.Job, key string, res types.PreprocessingResult, log *slog.Logger) {
	if err := p.bus.PutPreprocessingResult(ctx, job.ID, key, res); err != nil {
		log.Error("result publish failed", "error", err)
		p.failJob(ctx, job.ID, fmt.Sprintf("publish result: %v", err), log)
		return
	}
	state := types.JobCompleted
	if !res.Success {
		state = types.JobFailed
		log.Warn("job failed", "error", res.Error)
	}
	if err := p.store.UpdateState(ctx, job.ID, state, res.Error); err != nil {
		log.Error("state update failed", "state", state, "error", err)
	}
}

// publishGeneration persists the final result for delivery tracking, then
// announces it on the result stream.
func (p *Pool) publishGeneration(ctx context.Context, res types.GenerationResult, log *slog.Logger) {
	if !res.Success {
		log.Warn("generation failed", "error", res.Error)
	}
	if err := p.store.SaveResult(ctx, res); err != nil {
		log.Error("result save failed", "error", err)
		return
	}
	if err := p.bus.PublishGenerationResult(ctx, res); err != nil {
		log.Error("result publish failed", "error", err)
	}
}

func (p *Pool) failJob(ctx context.Context, jobID, msg string, log *slog.Logger) {
	if err := p.store.UpdateState(ctx, jobID, types.JobFailed, msg); err != nil {
		log.Error("state update failed", "state", types.JobFailed, "error", err)
	}
}

func (p *Pool) ack(ctx context.Context, jobType types.JobType, streamID string, log *slog.Logger) {
	if err := p.queue.Ack(ctx, jobType, streamID); err != nil {
		log.Error("ack failed", "streamId", streamID, "error", err)
	}
}
