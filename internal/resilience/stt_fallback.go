package resilience

import (
	"context"

	"github.com/animus-ai/animus/pkg/provider/stt"
)

// STTFallback implements [stt.Transcriber] with automatic failover across
// multiple transcription backends. Each backend has its own circuit breaker.
//
// Note: the audio reader can only be consumed once, so callers that want real
// failover should pass a rewindable source (e.g., bytes.Reader) and rewind in
// a wrapper. The preprocessing worker buffers attachments in memory, which
// satisfies this.
type STTFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

// Compile-time interface assertion.
var _ stt.Transcriber = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcriber as a fallback.
func (f *STTFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Transcribe runs the audio through the first healthy backend.
func (f *STTFallback) Transcribe(ctx context.Context, audio stt.Audio) (string, error) {
	return ExecuteWithResult(f.group, func(t stt.Transcriber) (string, error) {
		return t.Transcribe(ctx, audio)
	})
}

// ModelID reports the primary backend's model.
func (f *STTFallback) ModelID() string {
	if len(f.group.entries) > 0 {
		return f.group.entries[0].value.ModelID()
	}
	return ""
}
