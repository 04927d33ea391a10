// Package worker provides an embeddings provider hosted by a dedicated child
// process.
//
// The embedding model (BGE-small-en-v1.5, 384 dimensions, L2-normalized
// output) runs inside a separate worker executable so that model load and
// inference never block or crash the main process. The parent talks to the
// worker over its stdin/stdout using newline-delimited JSON messages with
// request-id correlation, so multiple embeds can be in flight concurrently.
//
// Failure policy:
//   - A single embed times out after [Config.EmbedTimeout] (default 30 s).
//   - Initial model load must complete within [Config.LoadTimeout]
//     (default 60 s).
//   - If the worker process exits, every pending request is rejected with
//     [ErrWorkerCrashed] and the provider marks itself not ready. Callers
//     decide whether to degrade; the provider does not restart itself.
//
// A small LRU ([embeddings.Cache], 10 entries) holds recent embeddings so
// that sliding-window duplicate detection does not re-embed the same text.
package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/animus-ai/animus/pkg/provider/embeddings"
)

// ErrWorkerCrashed is returned for every request that was pending when the
// worker process exited, and for every request issued afterwards.
var ErrWorkerCrashed = errors.New("worker crashed")

// ErrNotReady is returned when the worker has not finished loading its model.
var ErrNotReady = errors.New("embedding worker not ready")

// Default protocol timeouts.
const (
	DefaultEmbedTimeout = 30 * time.Second
	DefaultLoadTimeout  = 60 * time.Second
)

// Dimensions is the fixed output dimension of the hosted model.
const Dimensions = 384

// DefaultModelID is the embedding model hosted by the stock worker binary.
const DefaultModelID = "bge-small-en-v1.5"

// Config configures a worker-backed Provider.
type Config struct {
	// Command is the worker executable and its arguments. Required.
	Command []string

	// ModelID overrides the reported model identifier.
	ModelID string

	// EmbedTimeout bounds a single embed round-trip. Defaults to 30 s.
	EmbedTimeout time.Duration

	// LoadTimeout bounds the initial model load. Defaults to 60 s.
	LoadTimeout time.Duration

	// CacheSize overrides the recent-embedding LRU capacity (default 10).
	CacheSize int
}

// request is one message sent to the worker.
type request struct {
	ID   string `json:"id"`
	Op   string `json:"op"` // "embed" | "health"
	Text string `json:"text,omitempty"`
}

// response is one message received from the worker.
type response struct {
	ID          string    `json:"id"`
	Embedding   []float32 `json:"embedding,omitempty"`
	ModelLoaded bool      `json:"modelLoaded,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Provider implements [embeddings.Provider] and [embeddings.HealthChecker]
// over a child worker process. Obtain one via [Start].
//
// Provider is safe for concurrent use.
type Provider struct {
	modelID      string
	embedTimeout time.Duration
	cache        *embeddings.Cache

	cmd   *exec.Cmd
	stdin io.WriteCloser

	mu      sync.Mutex
	pending map[string]chan response
	ready   bool
	crashed bool
}

var (
	_ embeddings.Provider      = (*Provider)(nil)
	_ embeddings.HealthChecker = (*Provider)(nil)
)

// Start launches the worker process and blocks until the model is loaded or
// the load timeout expires. On timeout the process is killed and an error is
// returned.
func Start(ctx context.Context, cfg Config) (*Provider, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("embedding worker: command must not be empty")
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = DefaultEmbedTimeout
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultLoadTimeout
	}
	modelID := cfg.ModelID
	if modelID == "" {
		modelID = DefaultModelID
	}

	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("embedding worker: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("embedding worker: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("embedding worker: start: %w", err)
	}

	p := &Provider{
		modelID:      modelID,
		embedTimeout: cfg.EmbedTimeout,
		cache:        embeddings.NewCache(cfg.CacheSize),
		cmd:          cmd,
		stdin:        stdin,
		pending:      make(map[string]chan response),
	}
	go p.readLoop(stdout)

	// Wait for the model load by issuing a health probe with the (longer)
	// load timeout.
	loadCtx, cancel := context.WithTimeout(ctx, cfg.LoadTimeout)
	defer cancel()
	resp, err := p.roundTrip(loadCtx, request{Op: "health"}, cfg.LoadTimeout)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("embedding worker: model load: %w", err)
	}
	if !resp.ModelLoaded {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("embedding worker: model did not load")
	}

	p.mu.Lock()
	p.ready = true
	p.mu.Unlock()
	return p, nil
}

// readLoop dispatches worker responses to their waiting callers. When stdout
// closes (worker exit), every pending request is failed with ErrWorkerCrashed
// and the provider is marked not ready.
func (p *Provider) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var resp response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			continue // garbage line; the per-request timeout covers the caller
		}
		p.mu.Lock()
		ch, ok := p.pending[resp.ID]
		if ok {
			delete(p.pending, resp.ID)
		}
		p.mu.Unlock()
		if ok {
			ch <- resp
		}
	}

	p.mu.Lock()
	p.ready = false
	p.crashed = true
	for id, ch := range p.pending {
		delete(p.pending, id)
		close(ch)
	}
	p.mu.Unlock()
	_ = p.cmd.Wait()
}

// roundTrip sends req and waits for its correlated response.
func (p *Provider) roundTrip(ctx context.Context, req request, timeout time.Duration) (response, error) {
	req.ID = uuid.New().String()
	ch := make(chan response, 1)

	p.mu.Lock()
	if p.crashed {
		p.mu.Unlock()
		return response{}, ErrWorkerCrashed
	}
	p.pending[req.ID] = ch
	p.mu.Unlock()

	line, err := json.Marshal(req)
	if err != nil {
		p.drop(req.ID)
		return response{}, fmt.Errorf("marshal: %w", err)
	}
	line = append(line, '\n')
	if _, err := p.stdin.Write(line); err != nil {
		p.drop(req.ID)
		return response{}, fmt.Errorf("write: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp, ok := <-ch:
		if !ok {
			return response{}, ErrWorkerCrashed
		}
		if resp.Error != "" {
			return response{}, errors.New(resp.Error)
		}
		return resp, nil
	case <-timer.C:
		p.drop(req.ID)
		return response{}, fmt.Errorf("timeout after %s", timeout)
	case <-ctx.Done():
		p.drop(req.ID)
		return response{}, ctx.Err()
	}
}

func (p *Provider) drop(id string) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

// Embed implements [embeddings.Provider]. Recently embedded texts are served
// from the LRU without a worker round-trip.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := p.cache.Get(text); ok {
		return vec, nil
	}

	p.mu.Lock()
	ready := p.ready
	p.mu.Unlock()
	if !ready {
		return nil, ErrNotReady
	}

	resp, err := p.roundTrip(ctx, request{Op: "embed", Text: text}, p.embedTimeout)
	if err != nil {
		return nil, fmt.Errorf("embedding worker: embed: %w", err)
	}
	if len(resp.Embedding) != Dimensions {
		return nil, fmt.Errorf("embedding worker: embed: got %d dimensions, want %d", len(resp.Embedding), Dimensions)
	}
	p.cache.Put(text, resp.Embedding)
	return resp.Embedding, nil
}

// EmbedBatch implements [embeddings.Provider] by issuing concurrent single
// embeds. The worker protocol is single-text; correlation ids keep the
// responses straight.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	errs := make([]error, len(texts))
	var wg sync.WaitGroup
	for i, t := range texts {
		wg.Add(1)
		go func(i int, t string) {
			defer wg.Done()
			out[i], errs[i] = p.Embed(ctx, t)
		}(i, t)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("embedding worker: embed batch: %w", err)
		}
	}
	return out, nil
}

// Dimensions implements [embeddings.Provider].
func (p *Provider) Dimensions() int { return Dimensions }

// ModelID implements [embeddings.Provider].
func (p *Provider) ModelID() string { return p.modelID }

// Healthy implements [embeddings.HealthChecker]. It reflects the provider's
// local readiness flag; it does not issue a round-trip, so a hung worker is
// only detected by embed timeouts.
func (p *Provider) Healthy(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// Close terminates the worker process. Pending requests are failed by the
// read loop as the pipe closes.
func (p *Provider) Close() error {
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}
