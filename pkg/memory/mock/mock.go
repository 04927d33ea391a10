// Package mock provides in-memory test doubles for the memory.Store and
// memory.Outbox interfaces.
package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/animus-ai/animus/pkg/memory"
	"github.com/animus-ai/animus/pkg/provider/embeddings"
)

// Ensure interfaces are implemented at compile time.
var (
	_ memory.Store  = (*Store)(nil)
	_ memory.Outbox = (*Outbox)(nil)
)

// Store is an in-memory memory.Store. Queries compute real cosine distances
// against stored embeddings and honour scope, exclusion and threshold
// filtering, so waterfall retrieval can be tested without Postgres.
type Store struct {
	mu sync.Mutex

	// Memories holds every inserted row keyed by id.
	Memories map[string]memory.Memory

	// InsertErr, if non-nil, is returned from Insert.
	InsertErr error

	// QueryErr, if non-nil, is returned from Query.
	QueryErr error

	// QueryCalls records the options of every Query invocation.
	QueryCalls []memory.QueryOptions
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{Memories: map[string]memory.Memory{}}
}

// Insert implements memory.Store.
func (s *Store) Insert(ctx context.Context, mem memory.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return s.InsertErr
	}
	if _, exists := s.Memories[mem.ID]; exists {
		return nil
	}
	s.Memories[mem.ID] = mem
	return nil
}

// Query implements memory.Store.
func (s *Store) Query(ctx context.Context, embedding []float32, opts memory.QueryOptions) ([]memory.ScoredMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.QueryCalls = append(s.QueryCalls, opts)
	if s.QueryErr != nil {
		return nil, s.QueryErr
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = memory.DefaultLimit
	}
	threshold := opts.ScoreThreshold
	if threshold <= 0 {
		threshold = memory.DefaultScoreThreshold
	}
	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = []memory.CanonScope{memory.ScopeGlobal, memory.ScopePersonal, memory.ScopeSession}
	}

	excluded := make(map[string]bool, len(opts.ExcludeIDs))
	for _, id := range opts.ExcludeIDs {
		excluded[id] = true
	}
	channels := make(map[string]bool, len(opts.ChannelIDs))
	for _, ch := range opts.ChannelIDs {
		channels[ch] = true
	}

	results := []memory.ScoredMemory{}
	for _, mem := range s.Memories {
		if !scopeAllowed(mem, scopes, opts) {
			continue
		}
		if opts.PersonalityID != "" && mem.PersonalityID != opts.PersonalityID {
			continue
		}
		if !opts.ExcludeNewerThan.IsZero() && mem.CreatedAt.After(opts.ExcludeNewerThan) {
			continue
		}
		if excluded[mem.ID] {
			continue
		}
		if len(channels) > 0 && !channels[mem.ChannelID] {
			continue
		}
		distance := 1 - float64(embeddings.Cosine(embedding, mem.Embedding))
		if distance >= 1-threshold {
			continue
		}
		results = append(results, memory.ScoredMemory{Memory: mem, Distance: distance})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func scopeAllowed(mem memory.Memory, scopes []memory.CanonScope, opts memory.QueryOptions) bool {
	for _, scope := range scopes {
		switch scope {
		case memory.ScopeGlobal:
			if mem.CanonScope == memory.ScopeGlobal {
				return true
			}
		case memory.ScopePersonal:
			if mem.CanonScope == memory.ScopePersonal && mem.PersonaID == opts.PersonaID {
				return true
			}
		case memory.ScopeSession:
			if mem.CanonScope == memory.ScopeSession && opts.SessionID != "" && mem.SessionID == opts.SessionID {
				return true
			}
		}
	}
	return false
}

// DeleteSessionMemories implements memory.Store.
func (s *Store) DeleteSessionMemories(ctx context.Context, personalityID, sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, mem := range s.Memories {
		if mem.CanonScope == memory.ScopeSession &&
			mem.PersonalityID == personalityID && mem.SessionID == sessionID {
			delete(s.Memories, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored memories.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Memories)
}

// Outbox is an in-memory memory.Outbox.
type Outbox struct {
	mu sync.Mutex

	// Pending holds every write-ahead row keyed by id.
	Pending map[string]memory.PendingMemory

	// CreateErr, if non-nil, is returned from Create.
	CreateErr error

	// MarkFailedCalls records the ids passed to MarkFailed.
	MarkFailedCalls []string
}

// NewOutbox returns an empty Outbox.
func NewOutbox() *Outbox {
	return &Outbox{Pending: map[string]memory.PendingMemory{}}
}

// Create implements memory.Outbox.
func (o *Outbox) Create(ctx context.Context, pending memory.PendingMemory) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.CreateErr != nil {
		return o.CreateErr
	}
	o.Pending[pending.ID] = pending
	return nil
}

// Delete implements memory.Outbox.
func (o *Outbox) Delete(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.Pending, id)
	return nil
}

// MarkFailed implements memory.Outbox.
func (o *Outbox) MarkFailed(ctx context.Context, id string, attemptErr error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.MarkFailedCalls = append(o.MarkFailedCalls, id)
	p, ok := o.Pending[id]
	if !ok {
		return nil
	}
	p.Attempts++
	if attemptErr != nil {
		p.LastError = attemptErr.Error()
	}
	o.Pending[id] = p
	return nil
}

// ListDue implements memory.Outbox.
func (o *Outbox) ListDue(ctx context.Context, limit int) ([]memory.PendingMemory, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	pending := make([]memory.PendingMemory, 0, len(o.Pending))
	for _, p := range o.Pending {
		pending = append(pending, p)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// Len returns the number of pending rows.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.Pending)
}
