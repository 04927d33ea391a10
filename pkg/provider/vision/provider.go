// Package vision defines the Describer interface for image-description
// backends.
//
// Animus describes image attachments before generation so that the text-only
// generation model can see them. Image jobs batch every image of a request
// and degrade gracefully: per-image failures are tolerated as long as at
// least one description succeeds.
//
// Implementations must be safe for concurrent use.
package vision

import "context"

// Describer is the abstraction over any vision-capable model backend.
type Describer interface {
	// Describe produces a textual description of the image at url using the
	// given model. The prompt steers what aspects of the image matter for
	// the conversation.
	Describe(ctx context.Context, model string, url string, prompt string) (string, error)
}
