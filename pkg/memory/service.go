package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/animus-ai/animus/pkg/provider/embeddings"
)

// Service ties the embedding provider, the vector store and the pending
// outbox together. All memory writes and similarity queries go through it.
type Service struct {
	embedder embeddings.Provider
	store    Store
	outbox   Outbox
	log      *slog.Logger
}

// NewService constructs a Service. logger may be nil, in which case
// slog.Default is used.
func NewService(embedder embeddings.Provider, store Store, outbox Outbox, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		embedder: embedder,
		store:    store,
		outbox:   outbox,
		log:      logger.With("component", "memory"),
	}
}

// Remember persists a new memory using the write-ahead outbox protocol:
//
//  1. Write a pending row with the full memory content.
//  2. Embed and normalize the content.
//  3. Insert the memory row.
//  4. Delete the pending row.
//
// A failure after step 1 leaves a retryable pending row; [Service.DrainOutbox]
// picks those up later. Returns the id of the stored memory.
func (s *Service) Remember(ctx context.Context, mem Memory) (string, error) {
	if mem.ID == "" {
		mem.ID = uuid.NewString()
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now().UTC()
	}
	if !mem.CanonScope.IsValid() {
		return "", fmt.Errorf("memory: remember: invalid canon scope %q", mem.CanonScope)
	}
	if mem.CanonScope == ScopeSession && mem.SessionID == "" {
		return "", fmt.Errorf("memory: remember: session scope requires a session id")
	}

	pending := PendingMemory{
		ID:            mem.ID,
		PersonaID:     mem.PersonaID,
		PersonalityID: mem.PersonalityID,
		Content:       mem.Content,
		CanonScope:    mem.CanonScope,
		SummaryType:   mem.SummaryType,
		ChannelID:     mem.ChannelID,
		GuildID:       mem.GuildID,
		SessionID:     mem.SessionID,
		Senders:       mem.Senders,
		MessageIDs:    mem.MessageIDs,
		CreatedAt:     mem.CreatedAt,
	}
	if err := s.outbox.Create(ctx, pending); err != nil {
		return "", fmt.Errorf("memory: remember: create pending: %w", err)
	}

	if err := s.embedAndInsert(ctx, mem); err != nil {
		if markErr := s.outbox.MarkFailed(ctx, mem.ID, err); markErr != nil {
			s.log.Error("failed to mark pending memory",
				"memoryId", mem.ID, "error", markErr)
		}
		return "", fmt.Errorf("memory: remember: %w", err)
	}

	if err := s.outbox.Delete(ctx, mem.ID); err != nil {
		// The memory itself is stored; the stale pending row will be
		// retried and tolerated by the idempotent insert.
		s.log.Warn("failed to delete pending memory after insert",
			"memoryId", mem.ID, "error", err)
	}
	return mem.ID, nil
}

func (s *Service) embedAndInsert(ctx context.Context, mem Memory) error {
	vec, err := s.embedder.Embed(ctx, mem.Content)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	mem.Embedding = embeddings.Normalize(vec)
	if err := s.store.Insert(ctx, mem); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

// Recall embeds the query text and returns the most similar memories under
// opts. The result is ordered by ascending distance.
func (s *Service) Recall(ctx context.Context, query string, opts QueryOptions) ([]ScoredMemory, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: recall: embed: %w", err)
	}
	results, err := s.store.Query(ctx, embeddings.Normalize(vec), opts)
	if err != nil {
		return nil, fmt.Errorf("memory: recall: %w", err)
	}
	return results, nil
}

// RecallByEmbedding runs a similarity query with a precomputed embedding,
// skipping the embed call. Used by waterfall retrieval where one query
// vector feeds several scoped passes.
func (s *Service) RecallByEmbedding(ctx context.Context, embedding []float32, opts QueryOptions) ([]ScoredMemory, error) {
	results, err := s.store.Query(ctx, embedding, opts)
	if err != nil {
		return nil, fmt.Errorf("memory: recall: %w", err)
	}
	return results, nil
}

// EmbedQuery embeds and normalizes query text for use with
// [Service.RecallByEmbedding].
func (s *Service) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}
	return embeddings.Normalize(vec), nil
}

// DeleteSession removes all session-scope memories for the given personality
// and session.
func (s *Service) DeleteSession(ctx context.Context, personalityID, sessionID string) (int64, error) {
	n, err := s.store.DeleteSessionMemories(ctx, personalityID, sessionID)
	if err != nil {
		return 0, fmt.Errorf("memory: delete session: %w", err)
	}
	if n > 0 {
		s.log.Info("deleted session memories",
			"personalityId", personalityID, "sessionId", sessionID, "count", n)
	}
	return n, nil
}

// DrainOutbox retries up to batchSize pending memories whose embed or insert
// previously failed. Rows that fail again keep their attempt accounting and
// stay in the outbox. Returns the number of successfully recovered rows.
func (s *Service) DrainOutbox(ctx context.Context, batchSize int) (int, error) {
	pending, err := s.outbox.ListDue(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("memory: drain outbox: list: %w", err)
	}

	recovered := 0
	for _, p := range pending {
		mem := Memory{
			ID:            p.ID,
			PersonaID:     p.PersonaID,
			PersonalityID: p.PersonalityID,
			Content:       p.Content,
			CanonScope:    p.CanonScope,
			SummaryType:   p.SummaryType,
			ChannelID:     p.ChannelID,
			GuildID:       p.GuildID,
			SessionID:     p.SessionID,
			Senders:       p.Senders,
			MessageIDs:    p.MessageIDs,
			CreatedAt:     p.CreatedAt,
		}
		if err := s.embedAndInsert(ctx, mem); err != nil {
			if markErr := s.outbox.MarkFailed(ctx, p.ID, err); markErr != nil {
				s.log.Error("failed to mark pending memory during drain",
					"memoryId", p.ID, "error", markErr)
			}
			continue
		}
		if err := s.outbox.Delete(ctx, p.ID); err != nil {
			s.log.Warn("failed to delete recovered pending memory",
				"memoryId", p.ID, "error", err)
		}
		recovered++
	}
	if recovered > 0 {
		s.log.Info("recovered pending memories", "count", recovered, "batch", len(pending))
	}
	return recovered, nil
}

// RunOutboxDrain periodically drains the outbox until ctx is cancelled.
func (s *Service) RunOutboxDrain(ctx context.Context, interval time.Duration, batchSize int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.DrainOutbox(ctx, batchSize); err != nil {
				s.log.Error("outbox drain failed", "error", err)
			}
		}
	}
}
