package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"voice-credit-bot/internal/model"
)

// RateRepository stores minutes-per-credit settings. Server ID 0 holds the
// global default.
type RateRepository struct {
	pool *pgxpool.Pool
}

// NewRateRepository creates a new RateRepository instance.
func NewRateRepository(pool *pgxpool.Pool) *RateRepository {
	return &RateRepository{pool: pool}
}

// Get returns the stored rate for a server. ok is false when no row exists.
func (r *RateRepository) Get(ctx context.Context, guildID int64) (minutes int, ok bool, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT minutes_per_credit FROM voice_rates WHERE server_id = $1`,
		guildID,
	).Scan(&minutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get rate: %w", err)
	}
	return minutes, true, nil
}

// Set upserts a server's rate. Range checking is the caller's job; the
// table constraint rejects anything outside 1..60.
func (r *RateRepository) Set(ctx context.Context, guildID int64, minutes int, updatedBy int64) (*model.RateSetting, error) {
	const query = `
		INSERT INTO voice_rates (server_id, minutes_per_credit, updated_by, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (server_id) DO UPDATE
		SET minutes_per_credit = EXCLUDED.minutes_per_credit,
		    updated_by = EXCLUDED.updated_by,
		    updated_at = NOW()
		RETURNING server_id, minutes_per_credit, updated_by, updated_at
	`

	var rs model.RateSetting
	err := r.pool.QueryRow(ctx, query, guildID, minutes, updatedBy).Scan(
		&rs.GuildID,
		&rs.MinutesPerCredit,
		&rs.UpdatedBy,
		&rs.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set rate: %w", err)
	}
	return &rs, nil
}
