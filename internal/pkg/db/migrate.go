package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// Execer is the subset of pgxpool.Pool used by migrations.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "users table",
		sql: `
		CREATE TABLE IF NOT EXISTS users (
			user_id BIGINT PRIMARY KEY,
			credits BIGINT NOT NULL DEFAULT 0 CHECK (credits >= 0),
			level BIGINT NOT NULL DEFAULT 0,
			total_voice_minutes BIGINT NOT NULL DEFAULT 0,
			unlimited BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_leaderboard
			ON users(credits DESC, level DESC, total_voice_minutes DESC);
		`,
	},
	{
		name: "voice_sessions table",
		sql: `
		CREATE TABLE IF NOT EXISTS voice_sessions (
			user_id BIGINT PRIMARY KEY,
			guild_id BIGINT NOT NULL,
			channel_id BIGINT NOT NULL,
			join_time TIMESTAMPTZ NOT NULL,
			last_accounted_time TIMESTAMPTZ NOT NULL,
			CHECK (last_accounted_time >= join_time)
		);
		`,
	},
	{
		name: "voice_rates table",
		sql: `
		CREATE TABLE IF NOT EXISTS voice_rates (
			server_id BIGINT PRIMARY KEY,
			minutes_per_credit INT NOT NULL CHECK (minutes_per_credit BETWEEN 1 AND 60),
			updated_by BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		`,
	},
	{
		name: "service_prices table",
		sql: `
		CREATE TABLE IF NOT EXISTS service_prices (
			service_name VARCHAR(64) PRIMARY KEY,
			price BIGINT NOT NULL CHECK (price >= 1),
			updated_by BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		`,
	},
	{
		name: "admin tables",
		sql: `
		CREATE TABLE IF NOT EXISTS global_admins (
			user_id BIGINT PRIMARY KEY,
			added_by BIGINT NOT NULL DEFAULT 0,
			added_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS server_admins (
			server_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			added_by BIGINT NOT NULL DEFAULT 0,
			added_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (server_id, user_id)
		);
		`,
	},
	{
		name: "allowed_channels table",
		sql: `
		CREATE TABLE IF NOT EXISTS allowed_channels (
			channel_id BIGINT PRIMARY KEY,
			guild_id BIGINT NOT NULL,
			added_by BIGINT NOT NULL DEFAULT 0,
			added_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_allowed_channels_guild ON allowed_channels(guild_id);
		`,
	},
	{
		name: "transactions table",
		sql: `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, created_at DESC);
		`,
	},
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db Execer) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
		log.Info().Msgf("Migration %d: %s ready", i+1, m.name)
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
