package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AdminRepository stores global and per-server administrators.
type AdminRepository struct {
	pool *pgxpool.Pool
}

// NewAdminRepository creates a new AdminRepository instance.
func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{pool: pool}
}

// IsGlobalAdmin reports whether the user is in global_admins.
func (r *AdminRepository) IsGlobalAdmin(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM global_admins WHERE user_id = $1)`,
		userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check global admin: %w", err)
	}
	return exists, nil
}

// IsServerAdmin reports whether the user administers the given server.
func (r *AdminRepository) IsServerAdmin(ctx context.Context, guildID, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM server_admins WHERE server_id = $1 AND user_id = $2)`,
		guildID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check server admin: %w", err)
	}
	return exists, nil
}

// AddGlobalAdmin grants global admin rights. Re-adding is a no-op.
func (r *AdminRepository) AddGlobalAdmin(ctx context.Context, userID, addedBy int64) error {
	const query = `
		INSERT INTO global_admins (user_id, added_by, added_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, userID, addedBy); err != nil {
		return fmt.Errorf("failed to add global admin: %w", err)
	}
	return nil
}

// AddServerAdmin grants admin rights on one server. Re-adding is a no-op.
func (r *AdminRepository) AddServerAdmin(ctx context.Context, guildID, userID, addedBy int64) error {
	const query = `
		INSERT INTO server_admins (server_id, user_id, added_by, added_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (server_id, user_id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, guildID, userID, addedBy); err != nil {
		return fmt.Errorf("failed to add server admin: %w", err)
	}
	return nil
}

// RemoveServerAdmin revokes admin rights on one server.
func (r *AdminRepository) RemoveServerAdmin(ctx context.Context, guildID, userID int64) error {
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM server_admins WHERE server_id = $1 AND user_id = $2`,
		guildID, userID,
	); err != nil {
		return fmt.Errorf("failed to remove server admin: %w", err)
	}
	return nil
}
