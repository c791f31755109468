package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"voice-credit-bot/internal/model"
)

const accountColumns = `user_id, credits, level, total_voice_minutes, unlimited, created_at, updated_at`

// AccountRepository handles the credit ledger. Every mutation is a single
// atomic increment in SQL; no caller reads a counter and writes it back.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository instance.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.UserID,
		&a.Credits,
		&a.Level,
		&a.TotalVoiceMinutes,
		&a.Unlimited,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ensureAccount creates the ledger row with zero counters if it is missing.
func ensureAccount(ctx context.Context, q querier, userID int64) error {
	const query = `
		INSERT INTO users (user_id, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := q.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to ensure account: %w", err)
	}
	return nil
}

// Get retrieves an account by user ID.
// Returns ErrUserNotFound if the user has never been seen.
func (r *AccountRepository) Get(ctx context.Context, userID int64) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE user_id = $1`

	a, err := scanAccount(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

// GetOrCreate retrieves an account, creating a zeroed one on first contact.
func (r *AccountRepository) GetOrCreate(ctx context.Context, userID int64) (*model.Account, error) {
	if err := ensureAccount(ctx, r.pool, userID); err != nil {
		return nil, err
	}
	return r.Get(ctx, userID)
}

// accrue adds minutes to the user's voice total and applies the award for
// the transition. The row is locked for the duration of the enclosing
// transaction so the before/after pair is exact.
func accrue(ctx context.Context, tx pgx.Tx, userID, minutes int64, award model.AwardFunc, description string) (*model.Accrual, error) {
	if err := ensureAccount(ctx, tx, userID); err != nil {
		return nil, err
	}

	var before int64
	err := tx.QueryRow(ctx,
		`SELECT total_voice_minutes FROM users WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&before)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}

	var credits, levels int64
	if award != nil {
		credits, levels = award(before, before+minutes)
	}

	query := `
		UPDATE users
		SET total_voice_minutes = total_voice_minutes + $2,
		    credits = credits + $3,
		    level = level + $4,
		    updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + accountColumns

	a, err := scanAccount(tx.QueryRow(ctx, query, userID, minutes, credits, levels))
	if err != nil {
		return nil, fmt.Errorf("failed to apply accrual: %w", err)
	}

	if credits > 0 {
		desc := description
		if _, err := insertTransaction(ctx, tx, userID, credits, model.TxTypeVoice, &desc); err != nil {
			return nil, err
		}
	}

	return &model.Accrual{
		Minutes:       minutes,
		Credits:       credits,
		Levels:        levels,
		MinutesBefore: before,
		Account:       a,
	}, nil
}

// Debit subtracts cost from a user's credits only if the balance covers it.
// Returns ErrInsufficientCredits when it does not; the balance never goes negative.
func (r *AccountRepository) Debit(ctx context.Context, userID, cost int64, description string) (*model.Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := ensureAccount(ctx, tx, userID); err != nil {
		return nil, err
	}

	query := `
		UPDATE users
		SET credits = credits - $2, updated_at = NOW()
		WHERE user_id = $1 AND credits >= $2
		RETURNING ` + accountColumns

	a, err := scanAccount(tx.QueryRow(ctx, query, userID, cost))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInsufficientCredits
		}
		return nil, fmt.Errorf("failed to debit credits: %w", err)
	}

	if _, err := insertTransaction(ctx, tx, userID, -cost, model.TxTypeDebit, &description); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit debit: %w", err)
	}
	return a, nil
}

// AddCredits increments a user's credits outside of voice accrual (refunds,
// admin grants). total_voice_minutes and level are untouched.
func (r *AccountRepository) AddCredits(ctx context.Context, userID, amount int64, txType, description string) (*model.Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
		INSERT INTO users (user_id, credits, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET credits = users.credits + EXCLUDED.credits, updated_at = NOW()
		RETURNING ` + accountColumns

	a, err := scanAccount(tx.QueryRow(ctx, query, userID, amount))
	if err != nil {
		return nil, fmt.Errorf("failed to add credits: %w", err)
	}

	if _, err := insertTransaction(ctx, tx, userID, amount, txType, &description); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit credit: %w", err)
	}
	return a, nil
}

// SetUnlimited toggles the unlimited flag, creating the account if needed.
func (r *AccountRepository) SetUnlimited(ctx context.Context, userID int64, unlimited bool) (*model.Account, error) {
	query := `
		INSERT INTO users (user_id, unlimited, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET unlimited = EXCLUDED.unlimited, updated_at = NOW()
		RETURNING ` + accountColumns

	a, err := scanAccount(r.pool.QueryRow(ctx, query, userID, unlimited))
	if err != nil {
		return nil, fmt.Errorf("failed to set unlimited: %w", err)
	}
	return a, nil
}

// TopUsers returns accounts with any voice time, ordered for the leaderboard.
func (r *AccountRepository) TopUsers(ctx context.Context, limit int) ([]*model.RankedAccount, error) {
	query := `
		SELECT ` + accountColumns + `,
		       ROW_NUMBER() OVER (ORDER BY credits DESC, level DESC, total_voice_minutes DESC, user_id) AS rank
		FROM users
		WHERE total_voice_minutes > 0
		ORDER BY rank
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	defer rows.Close()

	var ranked []*model.RankedAccount
	for rows.Next() {
		var ra model.RankedAccount
		err := rows.Scan(
			&ra.UserID,
			&ra.Credits,
			&ra.Level,
			&ra.TotalVoiceMinutes,
			&ra.Unlimited,
			&ra.CreatedAt,
			&ra.UpdatedAt,
			&ra.Rank,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ranked account: %w", err)
		}
		ranked = append(ranked, &ra)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}

	return ranked, nil
}

// Rank returns the user's leaderboard position. ok is false when the user has
// no voice time and is therefore unranked.
func (r *AccountRepository) Rank(ctx context.Context, userID int64) (rank int64, ok bool, err error) {
	const query = `
		SELECT rank FROM (
			SELECT user_id,
			       ROW_NUMBER() OVER (ORDER BY credits DESC, level DESC, total_voice_minutes DESC, user_id) AS rank
			FROM users
			WHERE total_voice_minutes > 0
		) ranked
		WHERE user_id = $1
	`

	err = r.pool.QueryRow(ctx, query, userID).Scan(&rank)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get rank: %w", err)
	}
	return rank, true, nil
}
