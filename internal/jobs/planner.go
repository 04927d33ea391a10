// Package jobs plans, queues and tracks the asynchronous work spawned by a
// generation request.
//
// A request fans out into zero or more preprocessing jobs (audio
// transcription, image description) plus exactly one LLM generation job that
// depends on their results. Jobs travel over Redis streams with consumer
// groups; job state and delivered results are persisted in Postgres.
package jobs

import (
	"errors"
	"fmt"

	"github.com/animus-ai/animus/pkg/types"
)

// ErrInvalidAttachmentType is returned when a request mixes audio and image
// attachments or carries an attachment of a kind no worker can process.
var ErrInvalidAttachmentType = errors.New("invalid attachment type")

// GenerationJobID returns the deterministic id of the generation job for a
// request. Determinism makes planning idempotent: replanning the same request
// yields the same ids, so redelivery cannot spawn duplicate jobs.
func GenerationJobID(requestID string) string {
	return "llm-" + requestID
}

// AudioJobID returns the id of the transcription job for one audio
// attachment.
func AudioJobID(requestID string, index int) string {
	return fmt.Sprintf("%s-%s-%d", types.JobAudioTranscription, requestID, index)
}

// ImageJobID returns the id of the batched image description job for a
// request.
func ImageJobID(requestID string) string {
	return fmt.Sprintf("%s-%s", types.JobImageDescription, requestID)
}

// ReferencedImageJobID returns the id of the description job batching the
// images carried by referenced messages.
func ReferencedImageJobID(requestID string) string {
	return fmt.Sprintf("%s-%s-ref", types.JobImageDescription, requestID)
}

// AudioResultKey returns the result key a transcription job writes and the
// generation job reads.
func AudioResultKey(requestID string, index int) string {
	return fmt.Sprintf("%s:%s:%d", requestID, types.JobAudioTranscription, index)
}

// ImageResultKey returns the result key of the batched image job.
func ImageResultKey(requestID string) string {
	return fmt.Sprintf("%s:%s", requestID, types.JobImageDescription)
}

// ReferencedImageResultKey returns the result key of the referenced-message
// image job.
func ReferencedImageResultKey(requestID string) string {
	return fmt.Sprintf("%s:%s:ref", requestID, types.JobImageDescription)
}

// Plan validates the request's attachments and produces its job set. The
// generation job is always last in the returned slice, carrying one
// dependency per preprocessing job.
//
// Attachment rules: audio attachments each get their own transcription job;
// image attachments share a single batched description job; a request may
// not carry both kinds at once, and unrecognized attachment types are
// rejected outright. Images on referenced messages are described in a
// separate batched job so their output stays distinguishable from the
// current message's attachments.
func Plan(req types.Request) ([]types.Job, error) {
	var audio, images []types.Attachment
	for _, att := range req.Context.Attachments {
		switch {
		case att.IsAudio():
			audio = append(audio, att)
		case att.IsImage():
			images = append(images, att)
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidAttachmentType, att.ContentType)
		}
	}
	if len(audio) > 0 && len(images) > 0 {
		return nil, fmt.Errorf("%w: audio and image attachments cannot be mixed", ErrInvalidAttachmentType)
	}

	var (
		planned []types.Job
		deps    []types.JobDependency
	)

	for i, att := range audio {
		job := types.Job{
			ID:              AudioJobID(req.RequestID, i),
			Type:            types.JobAudioTranscription,
			RequestID:       req.RequestID,
			State:           types.JobQueued,
			Attachments:     []types.Attachment{att},
			AttachmentIndex: i,
			CreatedAt:       req.AcceptedAt,
		}
		planned = append(planned, job)
		deps = append(deps, types.JobDependency{
			JobID:     job.ID,
			ResultKey: AudioResultKey(req.RequestID, i),
			Type:      types.JobAudioTranscription,
		})
	}

	if len(images) > 0 {
		job := types.Job{
			ID:          ImageJobID(req.RequestID),
			Type:        types.JobImageDescription,
			RequestID:   req.RequestID,
			State:       types.JobQueued,
			Attachments: images,
			CreatedAt:   req.AcceptedAt,
		}
		planned = append(planned, job)
		deps = append(deps, types.JobDependency{
			JobID:     job.ID,
			ResultKey: ImageResultKey(req.RequestID),
			Type:      types.JobImageDescription,
		})
	}

	// Referenced-message images. Non-image attachments on referenced
	// messages are ignored rather than rejected: the user did not author
	// them.
	var refImages []types.Attachment
	for _, ref := range req.Context.ReferencedMessages {
		for _, att := range ref.Attachments {
			if att.IsImage() {
				refImages = append(refImages, att)
			}
		}
	}
	if len(refImages) > 0 {
		job := types.Job{
			ID:          ReferencedImageJobID(req.RequestID),
			Type:        types.JobImageDescription,
			RequestID:   req.RequestID,
			State:       types.JobQueued,
			Attachments: refImages,
			CreatedAt:   req.AcceptedAt,
		}
		planned = append(planned, job)
		deps = append(deps, types.JobDependency{
			JobID:     job.ID,
			ResultKey: ReferencedImageResultKey(req.RequestID),
			Type:      types.JobImageDescription,
		})
	}

	planned = append(planned, types.Job{
		ID:           GenerationJobID(req.RequestID),
		Type:         types.JobLLMGeneration,
		RequestID:    req.RequestID,
		State:        types.JobQueued,
		Dependencies: deps,
		CreatedAt:    req.AcceptedAt,
	})
	return planned, nil
}
