// Package postgres implements the memory store and pending outbox on
// PostgreSQL with the pgvector extension. Similarity search uses the cosine
// distance operator over an HNSW index.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/animus-ai/animus/pkg/memory"
)

// Ensure Store implements memory.Store at compile time.
var _ memory.Store = (*Store)(nil)

// Store is a pgvector-backed memory.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pgx pool with pgvector types registered on every
// connection and runs the schema migration.
func Connect(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	cfg.AfterConnect = pgxvec.RegisterTypes

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// NewStore wraps an existing pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Insert implements memory.Store. Inserts are idempotent on id: re-inserting
// an existing memory (outbox replay after a partial failure) is a no-op.
func (s *Store) Insert(ctx context.Context, mem memory.Memory) error {
	if len(mem.Embedding) != memory.EmbeddingDimensions {
		return fmt.Errorf("postgres: insert memory: embedding has %d dimensions, want %d",
			len(mem.Embedding), memory.EmbeddingDimensions)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO memories (
			id, persona_id, personality_id, content, embedding, canon_scope,
			summary_type, channel_id, guild_id, session_id, senders,
			message_ids, chunk_group_id, chunk_index, total_chunks, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO NOTHING`,
		mem.ID, nullUUID(mem.PersonaID), nullUUID(mem.PersonalityID),
		mem.Content, pgvector.NewVector(mem.Embedding), string(mem.CanonScope),
		mem.SummaryType, mem.ChannelID, mem.GuildID, mem.SessionID,
		mem.Senders, mem.MessageIDs, mem.ChunkGroupID, mem.ChunkIndex,
		mem.TotalChunks, mem.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert memory: %w", err)
	}
	return nil
}

// Query implements memory.Store. The WHERE clause is assembled dynamically
// from opts; scope permissions form an OR group so one query can span
// global, personal and session rows.
func (s *Store) Query(ctx context.Context, embedding []float32, opts memory.QueryOptions) ([]memory.ScoredMemory, error) {
	if opts.PersonaID == "" {
		return nil, fmt.Errorf("postgres: query memories: persona id is required")
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

	args := []any{pgvector.NewVector(embedding)}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var scopeClauses []string
	for _, scope := range scopes {
		switch scope {
		case memory.ScopeGlobal:
			scopeClauses = append(scopeClauses, `m.canon_scope = 'global'`)
		case memory.ScopePersonal:
			scopeClauses = append(scopeClauses,
				fmt.Sprintf(`(m.canon_scope = 'personal' AND m.persona_id = %s)`, next(opts.PersonaID)))
		case memory.ScopeSession:
			if opts.SessionID == "" {
				continue
			}
			scopeClauses = append(scopeClauses,
				fmt.Sprintf(`(m.canon_scope = 'session' AND m.session_id = %s)`, next(opts.SessionID)))
		}
	}
	if len(scopeClauses) == 0 {
		return []memory.ScoredMemory{}, nil
	}

	where := []string{"(" + strings.Join(scopeClauses, " OR ") + ")"}
	if opts.PersonalityID != "" {
		where = append(where, fmt.Sprintf("m.personality_id = %s", next(opts.PersonalityID)))
	}
	if !opts.ExcludeNewerThan.IsZero() {
		where = append(where, fmt.Sprintf("m.created_at <= %s", next(opts.ExcludeNewerThan)))
	}
	if len(opts.ExcludeIDs) > 0 {
		where = append(where, fmt.Sprintf("m.id != ALL(%s::uuid[])", next(opts.ExcludeIDs)))
	}
	if len(opts.ChannelIDs) > 0 {
		where = append(where, fmt.Sprintf("m.channel_id = ANY(%s)", next(opts.ChannelIDs)))
	}
	where = append(where, fmt.Sprintf("(m.embedding <=> $1) < %s", next(1.0-threshold)))

	query := fmt.Sprintf(`
		SELECT m.id::text, COALESCE(m.persona_id::text, ''),
			COALESCE(m.personality_id::text, ''), m.content,
			m.canon_scope, m.summary_type, m.channel_id, m.guild_id,
			m.session_id, m.senders, m.message_ids, m.chunk_group_id,
			m.chunk_index, m.total_chunks, m.created_at,
			COALESCE(p.name, ''), COALESCE(pl.name, ''),
			m.embedding <=> $1 AS distance
		FROM memories m
		LEFT JOIN personas p ON p.id = m.persona_id
		LEFT JOIN personalities pl ON pl.id = m.personality_id
		WHERE %s
		ORDER BY distance
		LIMIT %s`,
		strings.Join(where, " AND "), next(limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query memories: %w", err)
	}
	defer rows.Close()

	results := []memory.ScoredMemory{}
	for rows.Next() {
		var sm memory.ScoredMemory
		var scope string
		if err := rows.Scan(
			&sm.Memory.ID, &sm.Memory.PersonaID, &sm.Memory.PersonalityID,
			&sm.Memory.Content, &scope, &sm.Memory.SummaryType,
			&sm.Memory.ChannelID, &sm.Memory.GuildID, &sm.Memory.SessionID,
			&sm.Memory.Senders, &sm.Memory.MessageIDs, &sm.Memory.ChunkGroupID,
			&sm.Memory.ChunkIndex, &sm.Memory.TotalChunks, &sm.Memory.CreatedAt,
			&sm.Memory.PersonaName, &sm.Memory.PersonalityName, &sm.Distance,
		); err != nil {
			return nil, fmt.Errorf("postgres: query memories: scan: %w", err)
		}
		sm.Memory.CanonScope = memory.CanonScope(scope)
		results = append(results, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query memories: %w", err)
	}
	return results, nil
}

// DeleteSessionMemories implements memory.Store.
func (s *Store) DeleteSessionMemories(ctx context.Context, personalityID, sessionID string) (int64, error) {
	if sessionID == "" {
		return 0, fmt.Errorf("postgres: delete session memories: session id is required")
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM memories
		WHERE canon_scope = 'session' AND personality_id = $1 AND session_id = $2`,
		personalityID, sessionID)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete session memories: %w", err)
	}
	return tag.RowsAffected(), nil
}

// nullUUID maps an empty string to SQL NULL for nullable UUID columns.
func nullUUID(s string) any {
	if s == "" {
		return nil
	}
	return s
}
