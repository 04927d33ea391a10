package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/animus-ai/animus/pkg/types"
)

// Directory resolves and lazily creates personas. Lookup methods return
// (nil, nil) when no persona matches, so callers can leave unresolvable
// references untouched.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory wraps a pgx pool.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// ByUserID returns the persona of a platform user, creating a default one on
// first contact. The created persona uses the raw user id as its display name
// until the user customises it.
func (d *Directory) ByUserID(ctx context.Context, userID string) (*types.Persona, error) {
	p, err := d.one(ctx, `WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}

	// First contact. The unique index on user_id makes a concurrent create
	// lose cleanly; re-select either way.
	_, err = d.pool.Exec(ctx, `
		INSERT INTO personas (id, user_id, name)
		VALUES ($1, $2, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, uuid.NewString(), userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: create persona for %s: %w", userID, err)
	}
	p, err = d.one(ctx, `WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("postgres: create persona for %s: row vanished", userID)
	}
	return p, nil
}

// ByUUID resolves a persona by its primary key.
func (d *Directory) ByUUID(ctx context.Context, id string) (*types.Persona, error) {
	return d.one(ctx, `WHERE id = $1::uuid`, id)
}

// BySnowflake resolves a persona by its platform user id without creating
// one.
func (d *Directory) BySnowflake(ctx context.Context, id string) (*types.Persona, error) {
	return d.one(ctx, `WHERE user_id = $1`, id)
}

// ByUsername resolves a persona by display name or platform username,
// case-insensitively.
func (d *Directory) ByUsername(ctx context.Context, username string) (*types.Persona, error) {
	return d.one(ctx, `WHERE lower(name) = lower($1) OR lower(discord_username) = lower($1)`, username)
}

func (d *Directory) one(ctx context.Context, where string, arg any) (*types.Persona, error) {
	var p types.Persona
	err := d.pool.QueryRow(ctx, `
		SELECT id, user_id, name, discord_username, description
		FROM personas `+where+` LIMIT 1
	`, arg).Scan(&p.ID, &p.UserID, &p.Name, &p.DiscordUsername, &p.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: persona lookup: %w", err)
	}
	return &p, nil
}
