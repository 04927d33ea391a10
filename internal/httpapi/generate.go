package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/animus-ai/animus/internal/dedup"
	"github.com/animus-ai/animus/internal/jobs"
	"github.com/animus-ai/animus/pkg/types"
)

// acceptResponse is the body of a successful submission.
type acceptResponse struct {
	JobID     string `json:"jobId"`
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
}

// handleGenerate accepts a generation request, plans its job chain and
// enqueues every job atomically: any failure before the last enqueue rolls
// the dedup entry back so the caller can retry immediately.
func (a *API) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req types.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validateRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	fingerprint := dedup.Fingerprint(
		req.Personality.Name, req.Context.UserID, req.Context.ChannelID, req.Message)

	if entry, ok := a.dedup.Check(fingerprint); ok {
		if a.metrics != nil {
			a.metrics.RecordDedupHit(ctx)
		}
		a.log.Info("duplicate request short-circuited",
			"requestId", entry.RequestID, "jobId", entry.JobID)
		writeJSON(w, http.StatusAccepted, acceptResponse{
			JobID:     entry.JobID,
			RequestID: entry.RequestID,
			Status:    "duplicate",
		})
		return
	}

	req.RequestID = uuid.NewString()
	req.AcceptedAt = time.Now().UTC()
	jobID := jobs.GenerationJobID(req.RequestID)

	// Cache before enqueue so a concurrent identical request already hits the
	// entry while this one is still being planned.
	a.dedup.Cache(fingerprint, req.RequestID, jobID)

	planned, err := jobs.Plan(req)
	if err != nil {
		a.dedup.Dispose(fingerprint)
		if errors.Is(err, jobs.ErrInvalidAttachmentType) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.log.Error("request planning failed", "requestId", req.RequestID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not accept request")
		return
	}

	if err := a.store.CreateJobs(ctx, planned); err != nil {
		a.dedup.Dispose(fingerprint)
		a.log.Error("job persistence failed", "requestId", req.RequestID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not accept request")
		return
	}
	for _, job := range planned {
		if err := a.queue.Enqueue(ctx, jobs.Envelope{Job: job, Request: req}); err != nil {
			a.dedup.Dispose(fingerprint)
			a.log.Error("job enqueue failed",
				"requestId", req.RequestID, "jobId", job.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "could not accept request")
			return
		}
	}

	if a.metrics != nil {
		a.metrics.RequestsAccepted.Add(ctx, 1)
	}
	a.log.Info("request accepted",
		"requestId", req.RequestID, "jobId", jobID, "jobs", len(planned))
	writeJSON(w, http.StatusAccepted, acceptResponse{
		JobID:     jobID,
		RequestID: req.RequestID,
		Status:    "queued",
	})
}

// validateRequest checks the submission before any job is planned. A failure
// here aborts the whole chain; nothing is enqueued.
func validateRequest(req types.Request) error {
	if err := types.ValidateUUID(req.Personality.ID); err != nil {
		return fmt.Errorf("personality.id: %w", err)
	}
	if strings.TrimSpace(req.Personality.Name) == "" {
		return errors.New("personality.name is required")
	}
	if req.Personality.Slug != "" {
		if err := types.ValidateSlug(req.Personality.Slug); err != nil {
			return fmt.Errorf("personality.slug: %w", err)
		}
	}
	if req.Personality.ContextWindowTokens <= 0 {
		return errors.New("personality.contextWindowTokens must be positive")
	}
	if strings.TrimSpace(req.Context.UserID) == "" {
		return errors.New("context.userId is required")
	}
	if req.ResponseDestination == "" {
		return errors.New("responseDestination is required")
	}
	if strings.TrimSpace(req.Message) == "" && len(req.Context.Attachments) == 0 {
		return errors.New("message or attachments required")
	}
	for i, att := range req.Context.Attachments {
		if att.URL == "" {
			return fmt.Errorf("attachment %d: url is required", i)
		}
		if att.Size < 0 {
			return fmt.Errorf("attachment %d: size must be non-negative", i)
		}
	}
	return nil
}
