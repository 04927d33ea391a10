package worker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/animus-ai/animus/internal/jobs"
	"github.com/animus-ai/animus/internal/resilience"
	"github.com/animus-ai/animus/internal/transcript"
	"github.com/animus-ai/animus/pkg/provider/stt"
	"github.com/animus-ai/animus/pkg/types"
)

// AudioWorker transcribes one audio attachment per job. Voice-message
// transcripts are aligned against the conversation's known names before
// being published, since speech-to-text reliably mangles invented
// personality names.
type AudioWorker struct {
	transcriber stt.Transcriber
	corrector   *transcript.Corrector
	fetcher     Fetcher
	retry       resilience.RetryConfig
	log         *slog.Logger
}

// NewAudioWorker constructs an AudioWorker. corrector may be nil to skip
// name correction; logger may be nil.
func NewAudioWorker(transcriber stt.Transcriber, corrector *transcript.Corrector, fetcher Fetcher, logger *slog.Logger) *AudioWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &AudioWorker{
		transcriber: transcriber,
		corrector:   corrector,
		fetcher:     fetcher,
		retry:       resilience.RetryConfig{},
		log:         logger.With("component", "audio-worker"),
	}
}

// Process handles one transcription job and returns its result. Failures
// are reported in the result rather than as an error so the queue consumer
// can publish them for graceful degradation downstream.
func (w *AudioWorker) Process(ctx context.Context, env jobs.Envelope) types.PreprocessingResult {
	start := time.Now()
	job := env.Job

	if len(job.Attachments) != 1 {
		return failure(fmt.Sprintf("transcription job carries %d attachments, want 1", len(job.Attachments)))
	}
	att := job.Attachments[0]
	if !att.IsAudio() {
		return failure(fmt.Sprintf("Invalid attachment type: %s", att.ContentType))
	}

	body, err := w.fetcher.Fetch(ctx, att.URL)
	if err != nil {
		w.log.Error("attachment fetch failed", "jobId", job.ID, "url", att.URL, "error", err)
		return failure(fmt.Sprintf("fetch attachment: %v", err))
	}

	text, err := resilience.RetryWithResult(ctx, "transcribe", w.retry, func() (string, error) {
		return w.transcriber.Transcribe(ctx, stt.Audio{
			Reader:      bytes.NewReader(body),
			Filename:    att.Name,
			ContentType: att.ContentType,
		})
	})
	if err != nil {
		w.log.Error("transcription failed", "jobId", job.ID, "error", err)
		return failure(fmt.Sprintf("transcribe: %v", err))
	}

	if w.corrector != nil {
		names := knownNames(env.Request)
		corrected, corrections := w.corrector.Correct(text, names)
		if len(corrections) > 0 {
			w.log.Debug("corrected transcript names",
				"jobId", job.ID, "corrections", len(corrections))
			text = corrected
		}
	}

	return types.PreprocessingResult{
		Success: true,
		Content: text,
		Metadata: types.PreprocessingMetadata{
			ProcessingTimeMs: time.Since(start).Milliseconds(),
		},
	}
}

// knownNames collects the names a transcript might mention: the personality
// itself plus everyone in recent history.
func knownNames(req types.Request) []string {
	seen := map[string]bool{}
	var names []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	}
	add(req.Personality.Name)
	for _, msg := range req.Context.ConversationHistory {
		add(msg.AuthorName)
	}
	return names
}

func failure(msg string) types.PreprocessingResult {
	return types.PreprocessingResult{Success: false, Error: msg}
}
