package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/animus-ai/animus/internal/jobs"
	"github.com/animus-ai/animus/pkg/types"
)

// importRequest is the submission body for a memory archive import.
type importRequest struct {
	UserID        string `json:"userId"`
	PersonalityID string `json:"personalityId"`
	ArchiveURL    string `json:"archiveUrl"`
}

// importAccepted is the body of a successful import submission.
type importAccepted struct {
	ImportID string `json:"importId"`
	Status   string `json:"status"`
}

// importStatus is the body of an import status lookup.
type importStatus struct {
	ImportID         string    `json:"importId"`
	State            string    `json:"state"`
	Error            string    `json:"error,omitempty"`
	TotalMemories    int       `json:"totalMemories"`
	ImportedMemories int       `json:"importedMemories"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// handleImportSubmit registers a memory archive import and queues it for the
// import worker.
func (a *API) handleImportSubmit(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validateImportRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	importID := uuid.NewString()
	requestID := uuid.NewString()

	if err := a.imports.Create(ctx, jobs.ImportJob{
		ID:            importID,
		RequestID:     requestID,
		UserID:        req.UserID,
		PersonalityID: req.PersonalityID,
	}); err != nil {
		a.log.Error("import persistence failed", "importId", importID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not accept import")
		return
	}

	env := jobs.Envelope{
		Job: types.Job{
			ID:        importID,
			Type:      types.JobShapesImport,
			RequestID: requestID,
			State:     types.JobQueued,
			Attachments: []types.Attachment{{
				URL:         req.ArchiveURL,
				ContentType: "application/json",
			}},
			CreatedAt: time.Now().UTC(),
		},
		Request: types.Request{
			RequestID:   requestID,
			Personality: types.Personality{ID: req.PersonalityID},
			Context:     types.RequestContext{UserID: req.UserID},
		},
	}
	if err := a.queue.Enqueue(ctx, env); err != nil {
		a.log.Error("import enqueue failed", "importId", importID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not accept import")
		return
	}

	a.log.Info("import accepted", "importId", importID, "userId", req.UserID)
	writeJSON(w, http.StatusAccepted, importAccepted{ImportID: importID, Status: "queued"})
}

// handleImportStatus reports lifecycle state and progress counters of one
// import.
func (a *API) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	importID := r.PathValue("importId")
	job, err := a.imports.Get(r.Context(), importID)
	if err != nil {
		if errors.Is(err, jobs.ErrImportNotFound) {
			writeError(w, http.StatusNotFound, "unknown import id")
			return
		}
		a.log.Error("import lookup failed", "importId", importID, "error", err)
		writeError(w, http.StatusInternalServerError, "import lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, importStatus{
		ImportID:         job.ID,
		State:            string(job.State),
		Error:            job.Error,
		TotalMemories:    job.TotalMemories,
		ImportedMemories: job.ImportedMemories,
		CreatedAt:        job.CreatedAt,
		UpdatedAt:        job.UpdatedAt,
	})
}

func validateImportRequest(req importRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return errors.New("userId is required")
	}
	if err := types.ValidateUUID(req.PersonalityID); err != nil {
		return fmt.Errorf("personalityId: %w", err)
	}
	if req.ArchiveURL == "" {
		return errors.New("archiveUrl is required")
	}
	return nil
}
