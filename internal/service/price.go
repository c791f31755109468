package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voice-credit-bot/internal/model"
	"voice-credit-bot/internal/repository"
)

// ErrUnknownService is returned for a service name with no price.
var ErrUnknownService = errors.New("unknown service")

// PriceStore is the price persistence the price service needs.
type PriceStore interface {
	Get(ctx context.Context, service string) (int64, error)
	Set(ctx context.Context, service string, price, updatedBy int64) (*model.ServicePrice, error)
	List(ctx context.Context) ([]*model.ServicePrice, error)
	SeedDefaults(ctx context.Context, defaults map[string]int64) error
}

// PriceService manages the credit cost of paid lookups. Stored prices win;
// configured defaults cover services that were never priced.
type PriceService struct {
	store    PriceStore
	defaults map[string]int64
	logger   zerolog.Logger
}

// NewPriceService creates a new PriceService instance.
func NewPriceService(store PriceStore, defaults map[string]int64) *PriceService {
	normalized := make(map[string]int64, len(defaults))
	for name, price := range defaults {
		normalized[strings.ToLower(name)] = price
	}
	return &PriceService{
		store:    store,
		defaults: normalized,
		logger:   log.With().Str("component", "prices").Logger(),
	}
}

// Seed writes default prices for services missing from the store.
func (s *PriceService) Seed(ctx context.Context) error {
	if err := s.store.SeedDefaults(ctx, s.defaults); err != nil {
		return fmt.Errorf("failed to seed prices: %w", err)
	}
	return nil
}

// PriceOf returns the cost of a service.
func (s *PriceService) PriceOf(ctx context.Context, service string) (int64, error) {
	service = strings.ToLower(service)

	price, err := s.store.Get(ctx, service)
	if err == nil {
		return price, nil
	}
	if !errors.Is(err, repository.ErrPriceNotFound) {
		return 0, fmt.Errorf("failed to get price: %w", err)
	}

	if price, ok := s.defaults[service]; ok {
		return price, nil
	}
	return 0, ErrUnknownService
}

// SetPrice changes a known service's cost.
func (s *PriceService) SetPrice(ctx context.Context, service string, price, updatedBy int64) error {
	service = strings.ToLower(service)
	if price < 1 {
		return ErrInvalidAmount
	}
	if _, err := s.PriceOf(ctx, service); err != nil {
		return err
	}

	if _, err := s.store.Set(ctx, service, price, updatedBy); err != nil {
		return fmt.Errorf("failed to set price: %w", err)
	}

	s.logger.Info().
		Str("service", service).
		Int64("price", price).
		Int64("updated_by", updatedBy).
		Msg("Service price updated")
	return nil
}

// Prices lists every known service with its effective cost, sorted by name.
func (s *PriceService) Prices(ctx context.Context) ([]*model.ServicePrice, error) {
	stored, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list prices: %w", err)
	}

	seen := make(map[string]bool, len(stored))
	for _, p := range stored {
		seen[p.Service] = true
	}
	for name, price := range s.defaults {
		if !seen[name] {
			stored = append(stored, &model.ServicePrice{Service: name, Price: price})
		}
	}

	sort.Slice(stored, func(i, j int) bool { return stored[i].Service < stored[j].Service })
	return stored, nil
}
