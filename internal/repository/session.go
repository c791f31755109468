package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"voice-credit-bot/internal/model"
)

const sessionColumns = `user_id, guild_id, channel_id, join_time, last_accounted_time`

// SessionRepository persists active voice sessions, one row per user.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func scanSession(row pgx.Row) (*model.VoiceSession, error) {
	var s model.VoiceSession
	err := row.Scan(
		&s.UserID,
		&s.Location.GuildID,
		&s.Location.ChannelID,
		&s.JoinedAt,
		&s.LastAccountedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Get retrieves the user's active session.
// Returns ErrSessionNotFound if the user has none.
func (r *SessionRepository) Get(ctx context.Context, userID int64) (*model.VoiceSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM voice_sessions WHERE user_id = $1`

	s, err := scanSession(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// List returns every persisted session.
func (r *SessionRepository) List(ctx context.Context) ([]*model.VoiceSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM voice_sessions ORDER BY user_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.VoiceSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// Open stores a session, replacing any row the user already had.
func (r *SessionRepository) Open(ctx context.Context, s *model.VoiceSession) error {
	const query = `
		INSERT INTO voice_sessions (user_id, guild_id, channel_id, join_time, last_accounted_time)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET guild_id = EXCLUDED.guild_id,
		    channel_id = EXCLUDED.channel_id,
		    join_time = EXCLUDED.join_time,
		    last_accounted_time = EXCLUDED.last_accounted_time
	`

	_, err := r.pool.Exec(ctx, query,
		s.UserID,
		s.Location.GuildID,
		s.Location.ChannelID,
		s.JoinedAt,
		s.LastAccountedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	return nil
}

// Relocate rebinds a session to a new channel without touching its timestamps.
func (r *SessionRepository) Relocate(ctx context.Context, userID int64, loc model.Location) error {
	const query = `
		UPDATE voice_sessions
		SET guild_id = $2, channel_id = $3
		WHERE user_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, userID, loc.GuildID, loc.ChannelID)
	if err != nil {
		return fmt.Errorf("failed to relocate session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Settle moves a session checkpoint and credits the covered minutes in one
// transaction. The checkpoint update is conditional on the stored value
// still equalling s.Expected; otherwise ErrCheckpointMoved is returned and
// nothing is written. With s.Close the row is deleted instead of advanced.
// The returned Accrual is nil when no minutes were credited.
func (r *SessionRepository) Settle(ctx context.Context, s model.Settlement) (*model.Accrual, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var query string
	var args []any
	if s.Close {
		query = `DELETE FROM voice_sessions WHERE user_id = $1 AND last_accounted_time = $2`
		args = []any{s.UserID, s.Expected}
	} else {
		query = `
			UPDATE voice_sessions
			SET last_accounted_time = $3
			WHERE user_id = $1 AND last_accounted_time = $2
		`
		args = []any{s.UserID, s.Expected, s.NewCheckpoint}
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to move checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrCheckpointMoved
	}

	var accrual *model.Accrual
	if s.Minutes > 0 {
		accrual, err = accrue(ctx, tx, s.UserID, s.Minutes, s.Award, s.Description)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit settlement: %w", err)
	}
	return accrual, nil
}
