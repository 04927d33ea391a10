package configcascade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/animus-ai/animus/pkg/types"
)

// PostgresStore persists override rows, one per (tier, owner). The params
// column is JSONB so new tunables need no schema change; unknown fields are
// dropped at decode time by the typed [types.LLMParams] shape.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ OverridesStore = (*PostgresStore)(nil)

// MigrateOverrides creates the config_overrides table.
func MigrateOverrides(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS config_overrides (
			tier       TEXT NOT NULL,
			owner_id   TEXT NOT NULL DEFAULT '',
			params     JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (tier, owner_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("configcascade: migrate: %w", err)
	}
	return nil
}

// GetAdmin fetches the admin singleton row.
func (s *PostgresStore) GetAdmin(ctx context.Context) (*types.ConfigOverrides, error) {
	return s.get(ctx, TierAdmin, "")
}

// GetUser fetches a user's default overrides.
func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*types.ConfigOverrides, error) {
	return s.get(ctx, TierUser, userID)
}

// GetChannel fetches a channel's overrides.
func (s *PostgresStore) GetChannel(ctx context.Context, channelID string) (*types.ConfigOverrides, error) {
	return s.get(ctx, TierChannel, channelID)
}

// GetPersonality fetches a personality's overrides.
func (s *PostgresStore) GetPersonality(ctx context.Context, personalityID string) (*types.ConfigOverrides, error) {
	return s.get(ctx, TierPersonality, personalityID)
}

// Upsert writes one override row, replacing any previous params for the same
// (tier, owner).
func (s *PostgresStore) Upsert(ctx context.Context, row types.ConfigOverrides) error {
	payload, err := json.Marshal(row.Params)
	if err != nil {
		return fmt.Errorf("configcascade: upsert %s/%s: marshal: %w", row.Tier, row.OwnerID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO config_overrides (tier, owner_id, params, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tier, owner_id)
		DO UPDATE SET params = EXCLUDED.params, updated_at = now()
	`, row.Tier, row.OwnerID, payload)
	if err != nil {
		return fmt.Errorf("configcascade: upsert %s/%s: %w", row.Tier, row.OwnerID, err)
	}
	return nil
}

// Delete removes one override row. Deleting a missing row is not an error.
func (s *PostgresStore) Delete(ctx context.Context, tier, ownerID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM config_overrides WHERE tier = $1 AND owner_id = $2`, tier, ownerID)
	if err != nil {
		return fmt.Errorf("configcascade: delete %s/%s: %w", tier, ownerID, err)
	}
	return nil
}

func (s *PostgresStore) get(ctx context.Context, tier, ownerID string) (*types.ConfigOverrides, error) {
	row := types.ConfigOverrides{Tier: tier, OwnerID: ownerID}
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT params, updated_at FROM config_overrides
		WHERE tier = $1 AND owner_id = $2
	`, tier, ownerID).Scan(&payload, &row.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("configcascade: get %s/%s: %w", tier, ownerID, err)
	}
	if err := json.Unmarshal(payload, &row.Params); err != nil {
		return nil, fmt.Errorf("configcascade: get %s/%s: decode params: %w", tier, ownerID, err)
	}
	return &row, nil
}
