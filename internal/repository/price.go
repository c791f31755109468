package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"voice-credit-bot/internal/model"
)

// PriceRepository stores the credit cost of each paid lookup.
type PriceRepository struct {
	pool *pgxpool.Pool
}

// NewPriceRepository creates a new PriceRepository instance.
func NewPriceRepository(pool *pgxpool.Pool) *PriceRepository {
	return &PriceRepository{pool: pool}
}

// Get returns a service's price or ErrPriceNotFound.
func (r *PriceRepository) Get(ctx context.Context, service string) (int64, error) {
	var price int64
	err := r.pool.QueryRow(ctx,
		`SELECT price FROM service_prices WHERE service_name = $1`,
		service,
	).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrPriceNotFound
		}
		return 0, fmt.Errorf("failed to get price: %w", err)
	}
	return price, nil
}

// Set upserts a service price.
func (r *PriceRepository) Set(ctx context.Context, service string, price, updatedBy int64) (*model.ServicePrice, error) {
	const query = `
		INSERT INTO service_prices (service_name, price, updated_by, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (service_name) DO UPDATE
		SET price = EXCLUDED.price, updated_by = EXCLUDED.updated_by, updated_at = NOW()
		RETURNING service_name, price, updated_by, updated_at
	`

	var sp model.ServicePrice
	err := r.pool.QueryRow(ctx, query, service, price, updatedBy).Scan(
		&sp.Service,
		&sp.Price,
		&sp.UpdatedBy,
		&sp.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set price: %w", err)
	}
	return &sp, nil
}

// List returns all prices ordered by service name.
func (r *PriceRepository) List(ctx context.Context) ([]*model.ServicePrice, error) {
	const query = `
		SELECT service_name, price, updated_by, updated_at
		FROM service_prices
		ORDER BY service_name
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list prices: %w", err)
	}
	defer rows.Close()

	var prices []*model.ServicePrice
	for rows.Next() {
		var sp model.ServicePrice
		if err := rows.Scan(&sp.Service, &sp.Price, &sp.UpdatedBy, &sp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		prices = append(prices, &sp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}

	return prices, nil
}

// SeedDefaults inserts the given prices for services that have no row yet.
// Existing prices are left alone.
func (r *PriceRepository) SeedDefaults(ctx context.Context, defaults map[string]int64) error {
	const query = `
		INSERT INTO service_prices (service_name, price, updated_by, updated_at)
		VALUES ($1, $2, 0, NOW())
		ON CONFLICT (service_name) DO NOTHING
	`

	batch := &pgx.Batch{}
	for service, price := range defaults {
		batch.Queue(query, service, price)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range defaults {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to seed price: %w", err)
		}
	}
	return nil
}
