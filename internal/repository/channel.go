package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ChannelRepository stores the text channels where commands are accepted.
type ChannelRepository struct {
	pool *pgxpool.Pool
}

// NewChannelRepository creates a new ChannelRepository instance.
func NewChannelRepository(pool *pgxpool.Pool) *ChannelRepository {
	return &ChannelRepository{pool: pool}
}

// AddAllowedChannel allows commands in channelID. Re-adding moves the row
// to the given server and records the new author.
func (r *ChannelRepository) AddAllowedChannel(ctx context.Context, guildID, channelID, addedBy int64) error {
	const query = `
		INSERT INTO allowed_channels (channel_id, guild_id, added_by, added_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (channel_id) DO UPDATE
		SET guild_id = EXCLUDED.guild_id,
		    added_by = EXCLUDED.added_by,
		    added_at = EXCLUDED.added_at
	`
	if _, err := r.pool.Exec(ctx, query, channelID, guildID, addedBy); err != nil {
		return fmt.Errorf("failed to add allowed channel: %w", err)
	}
	return nil
}

// IsAllowedChannel reports whether commands are accepted in channelID.
func (r *ChannelRepository) IsAllowedChannel(ctx context.Context, channelID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM allowed_channels WHERE channel_id = $1)`,
		channelID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check allowed channel: %w", err)
	}
	return exists, nil
}

// ListAllowedChannels returns a server's allowed channels, oldest first.
func (r *ChannelRepository) ListAllowedChannels(ctx context.Context, guildID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT channel_id FROM allowed_channels WHERE guild_id = $1 ORDER BY added_at, channel_id`,
		guildID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list allowed channels: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan allowed channel: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate allowed channels: %w", err)
	}
	return ids, nil
}
