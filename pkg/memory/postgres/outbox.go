package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/animus-ai/animus/pkg/memory"
)

// Ensure Outbox implements memory.Outbox at compile time.
var _ memory.Outbox = (*Outbox)(nil)

// Outbox is the pending_memories table: a write-ahead mirror of memory rows
// awaiting a successful embed-and-insert.
type Outbox struct {
	pool *pgxpool.Pool
}

// NewOutbox wraps an existing pool.
func NewOutbox(pool *pgxpool.Pool) *Outbox {
	return &Outbox{pool: pool}
}

// Create implements memory.Outbox.
func (o *Outbox) Create(ctx context.Context, pending memory.PendingMemory) error {
	createdAt := pending.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := o.pool.Exec(ctx, `
		INSERT INTO pending_memories (
			id, persona_id, personality_id, content, canon_scope,
			summary_type, channel_id, guild_id, session_id, senders,
			message_ids, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`,
		pending.ID, nullUUID(pending.PersonaID), nullUUID(pending.PersonalityID),
		pending.Content, string(pending.CanonScope), pending.SummaryType,
		pending.ChannelID, pending.GuildID, pending.SessionID,
		pending.Senders, pending.MessageIDs, createdAt)
	if err != nil {
		return fmt.Errorf("postgres: create pending memory: %w", err)
	}
	return nil
}

// Delete implements memory.Outbox.
func (o *Outbox) Delete(ctx context.Context, id string) error {
	if _, err := o.pool.Exec(ctx, `DELETE FROM pending_memories WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete pending memory: %w", err)
	}
	return nil
}

// MarkFailed implements memory.Outbox.
func (o *Outbox) MarkFailed(ctx context.Context, id string, attemptErr error) error {
	msg := ""
	if attemptErr != nil {
		msg = attemptErr.Error()
	}
	_, err := o.pool.Exec(ctx, `
		UPDATE pending_memories
		SET attempts = attempts + 1, last_attempt_at = now(), last_error = $2
		WHERE id = $1`, id, msg)
	if err != nil {
		return fmt.Errorf("postgres: mark pending memory failed: %w", err)
	}
	return nil
}

// ListDue implements memory.Outbox. Rows are returned oldest first so
// long-stuck memories get retried before fresh failures.
func (o *Outbox) ListDue(ctx context.Context, limit int) ([]memory.PendingMemory, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := o.pool.Query(ctx, `
		SELECT id::text, COALESCE(persona_id::text, ''),
			COALESCE(personality_id::text, ''), content, canon_scope,
			summary_type, channel_id, guild_id, session_id, senders,
			message_ids, created_at, attempts, last_attempt_at, last_error
		FROM pending_memories
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending memories: %w", err)
	}
	defer rows.Close()

	pending, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.PendingMemory, error) {
		var p memory.PendingMemory
		var scope string
		var lastAttempt *time.Time
		err := row.Scan(&p.ID, &p.PersonaID, &p.PersonalityID, &p.Content,
			&scope, &p.SummaryType, &p.ChannelID, &p.GuildID, &p.SessionID,
			&p.Senders, &p.MessageIDs, &p.CreatedAt, &p.Attempts,
			&lastAttempt, &p.LastError)
		if err != nil {
			return p, err
		}
		p.CanonScope = memory.CanonScope(scope)
		if lastAttempt != nil {
			p.LastAttemptAt = *lastAttempt
		}
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending memories: scan: %w", err)
	}
	return pending, nil
}
