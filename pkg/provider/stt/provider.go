// Package stt defines the Transcriber interface for speech-to-text backends.
//
// Animus transcribes audio attachments (including platform voice messages)
// before generation: each audio attachment becomes one transcription job, and
// the transcript is folded into the prompt — or replaces the user message
// entirely for text-less voice messages.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"io"
)

// Audio is one audio payload handed to a Transcriber.
type Audio struct {
	// Reader streams the audio bytes. The Transcriber consumes it fully.
	Reader io.Reader

	// Filename carries the original name; backends use its extension to
	// sniff the container format.
	Filename string

	// ContentType is the MIME type (e.g., "audio/ogg").
	ContentType string
}

// Transcriber is the abstraction over any speech-to-text backend.
type Transcriber interface {
	// Transcribe converts one audio payload to text. Returns the transcript
	// or an error if the backend fails or ctx is cancelled.
	Transcribe(ctx context.Context, audio Audio) (string, error)

	// ModelID returns the backend model identifier (e.g., "whisper-1").
	ModelID() string
}
