// Package httpapi exposes the request intake surface: job submission,
// delivery confirmation, result retrieval and memory archive imports.
//
// Submission is asynchronous. POST /generate validates the payload, plans the
// job chain and answers 202 with the generation job id; callers collect the
// result from the result stream (or GET /ai/job/{jobId}/result) and confirm
// receipt with POST /ai/job/{jobId}/confirm-delivery.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/animus-ai/animus/internal/dedup"
	"github.com/animus-ai/animus/internal/jobs"
	"github.com/animus-ai/animus/internal/observe"
	"github.com/animus-ai/animus/pkg/types"
)

// maxBodyBytes caps the request body size. Conversation history and base64
// free payloads stay well under this; anything larger is abuse.
const maxBodyBytes = 1 << 20

// JobStore is the subset of [jobs.Store] the API needs.
type JobStore interface {
	CreateJobs(ctx context.Context, planned []types.Job) error
	ConfirmDelivery(ctx context.Context, jobID string) error
}

// Enqueuer pushes planned jobs onto the work queue. *jobs.Queue is the
// production implementation.
type Enqueuer interface {
	Enqueue(ctx context.Context, env jobs.Envelope) error
}

// ResultReader fetches finished generation results. *jobs.ResultBus is the
// production implementation.
type ResultReader interface {
	ReadGenerationResult(ctx context.Context, jobID string, block time.Duration) (*types.GenerationResult, error)
}

// ImportRegistry persists import-job records. *jobs.ImportStore is the
// production implementation.
type ImportRegistry interface {
	Create(ctx context.Context, job jobs.ImportJob) error
	Get(ctx context.Context, id string) (jobs.ImportJob, error)
}

// API is the HTTP handler set for the orchestration service.
type API struct {
	dedup   *dedup.Cache
	store   JobStore
	queue   Enqueuer
	results ResultReader
	imports ImportRegistry
	metrics *observe.Metrics
	log     *slog.Logger
}

// New wires the API. imports may be nil to disable the import endpoints;
// metrics and logger may be nil.
func New(
	dedupCache *dedup.Cache,
	store JobStore,
	queue Enqueuer,
	results ResultReader,
	imports ImportRegistry,
	metrics *observe.Metrics,
	logger *slog.Logger,
) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		dedup:   dedupCache,
		store:   store,
		queue:   queue,
		results: results,
		imports: imports,
		metrics: metrics,
		log:     logger.With("component", "httpapi"),
	}
}

// Register adds all API routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /generate", a.handleGenerate)
	mux.HandleFunc("POST /ai/job/{jobId}/confirm-delivery", a.handleConfirmDelivery)
	mux.HandleFunc("GET /ai/job/{jobId}/result", a.handleResult)
	if a.imports != nil {
		mux.HandleFunc("POST /import", a.handleImportSubmit)
		mux.HandleFunc("GET /import/{importId}", a.handleImportStatus)
	}
}

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failure"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
