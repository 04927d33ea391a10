// Package mock provides a test double for the stt.Transcriber interface.
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/animus-ai/animus/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	Filename    string
	ContentType string
	// Body is the fully drained audio content.
	Body []byte
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// TranscribeResult is returned by Transcribe.
	TranscribeResult string

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// TranscribeCalls records every call in order.
	TranscribeCalls []TranscribeCall
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcribe records the call (draining the reader) and returns the
// configured result.
func (t *Transcriber) Transcribe(ctx context.Context, audio stt.Audio) (string, error) {
	var body []byte
	if audio.Reader != nil {
		body, _ = io.ReadAll(audio.Reader)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TranscribeCalls = append(t.TranscribeCalls, TranscribeCall{
		Filename:    audio.Filename,
		ContentType: audio.ContentType,
		Body:        body,
	})
	return t.TranscribeResult, t.TranscribeErr
}

// ModelID returns ModelIDValue.
func (t *Transcriber) ModelID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ModelIDValue
}

// CallCount returns the number of Transcribe invocations. Thread-safe.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.TranscribeCalls)
}
