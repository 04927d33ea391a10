package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the memory tables and indexes if they do not exist. It is
// idempotent and safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS personas (
			id               UUID PRIMARY KEY,
			user_id          TEXT NOT NULL,
			name             TEXT NOT NULL,
			discord_username TEXT NOT NULL DEFAULT '',
			description      TEXT NOT NULL DEFAULT '',
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS personas_user_id_idx ON personas (user_id)`,

		`CREATE TABLE IF NOT EXISTS personalities (
			id         UUID PRIMARY KEY,
			slug       TEXT NOT NULL UNIQUE,
			name       TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS memories (
			id             UUID PRIMARY KEY,
			persona_id     UUID,
			personality_id UUID,
			content        TEXT NOT NULL,
			embedding      vector(384) NOT NULL,
			canon_scope    TEXT NOT NULL,
			summary_type   TEXT NOT NULL DEFAULT '',
			channel_id     TEXT NOT NULL DEFAULT '',
			guild_id       TEXT NOT NULL DEFAULT '',
			session_id     TEXT NOT NULL DEFAULT '',
			senders        TEXT[] NOT NULL DEFAULT '{}',
			message_ids    TEXT[] NOT NULL DEFAULT '{}',
			chunk_group_id TEXT NOT NULL DEFAULT '',
			chunk_index    INTEGER,
			total_chunks   INTEGER,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS memories_embedding_idx
			ON memories USING hnsw (embedding vector_cosine_ops)`,
		`CREATE INDEX IF NOT EXISTS memories_personality_scope_idx
			ON memories (personality_id, canon_scope)`,
		`CREATE INDEX IF NOT EXISTS memories_session_idx
			ON memories (session_id) WHERE canon_scope = 'session'`,

		`CREATE TABLE IF NOT EXISTS pending_memories (
			id              UUID PRIMARY KEY,
			persona_id      UUID,
			personality_id  UUID,
			content         TEXT NOT NULL,
			canon_scope     TEXT NOT NULL,
			summary_type    TEXT NOT NULL DEFAULT '',
			channel_id      TEXT NOT NULL DEFAULT '',
			guild_id        TEXT NOT NULL DEFAULT '',
			session_id      TEXT NOT NULL DEFAULT '',
			senders         TEXT[] NOT NULL DEFAULT '{}',
			message_ids     TEXT[] NOT NULL DEFAULT '{}',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			attempts        INTEGER NOT NULL DEFAULT 0,
			last_attempt_at TIMESTAMPTZ,
			last_error      TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS pending_memories_created_at_idx
			ON pending_memories (created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}
