// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Common errors for repository operations.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrSessionNotFound     = errors.New("voice session not found")
	ErrCheckpointMoved     = errors.New("session checkpoint moved")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrPriceNotFound       = errors.New("service price not found")
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so statements can be
// shared between standalone calls and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
