package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/animus-ai/animus/internal/jobs"
)

// resultBlock is how long GET result waits for a not-yet-published result
// before answering 404.
const resultBlock = 2 * time.Second

// confirmResponse is the body of a delivery confirmation.
type confirmResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// handleConfirmDelivery moves a result to DELIVERED. Confirming twice is a
// no-op that still answers 200.
func (a *API) handleConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	if err := a.store.ConfirmDelivery(r.Context(), jobID); err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "unknown job id")
			return
		}
		a.log.Error("delivery confirmation failed", "jobId", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "confirmation failed")
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{JobID: jobID, Status: "DELIVERED"})
}

// handleResult returns the generation result for a job, blocking briefly when
// the result has not been published yet.
func (a *API) handleResult(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	result, err := a.results.ReadGenerationResult(r.Context(), jobID, resultBlock)
	if err != nil {
		a.log.Error("result read failed", "jobId", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "result read failed")
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, "result not ready")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
