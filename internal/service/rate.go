package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voice-credit-bot/internal/model"
)

// Rate bounds in minutes per credit.
const (
	MinMinutesPerCredit = 1
	MaxMinutesPerCredit = 60
)

// ErrInvalidRate is returned for a rate outside MinMinutesPerCredit..MaxMinutesPerCredit.
var ErrInvalidRate = errors.New("minutes per credit must be between 1 and 60")

// RateStore is the persistence the rate service needs.
type RateStore interface {
	Get(ctx context.Context, guildID int64) (int, bool, error)
	Set(ctx context.Context, guildID int64, minutes int, updatedBy int64) (*model.RateSetting, error)
}

// RateService resolves minutes-per-credit for a server: the server's own
// setting, else the global setting, else the configured default.
// Resolved values are cached briefly; any write purges the cache.
type RateService struct {
	store       RateStore
	defaultRate int
	cache       *expirable.LRU[int64, int]
	logger      zerolog.Logger
}

// NewRateService creates a new RateService instance.
func NewRateService(store RateStore, defaultRate int, ttl time.Duration) *RateService {
	if defaultRate < MinMinutesPerCredit || defaultRate > MaxMinutesPerCredit {
		defaultRate = 10
	}
	return &RateService{
		store:       store,
		defaultRate: defaultRate,
		cache:       expirable.NewLRU[int64, int](1024, nil, ttl),
		logger:      log.With().Str("component", "rates").Logger(),
	}
}

// GetRate returns the effective minutes-per-credit for guildID.
func (s *RateService) GetRate(ctx context.Context, guildID int64) (int, error) {
	if rate, ok := s.cache.Get(guildID); ok {
		return rate, nil
	}

	rate, err := s.resolve(ctx, guildID)
	if err != nil {
		return 0, err
	}
	s.cache.Add(guildID, rate)
	return rate, nil
}

func (s *RateService) resolve(ctx context.Context, guildID int64) (int, error) {
	if guildID != model.GlobalRateGuild {
		rate, ok, err := s.store.Get(ctx, guildID)
		if err != nil {
			return 0, fmt.Errorf("failed to get server rate: %w", err)
		}
		if ok {
			return rate, nil
		}
	}

	rate, ok, err := s.store.Get(ctx, model.GlobalRateGuild)
	if err != nil {
		return 0, fmt.Errorf("failed to get global rate: %w", err)
	}
	if ok {
		return rate, nil
	}
	return s.defaultRate, nil
}

// SetRate stores a server-specific rate. guildID 0 sets the global rate.
func (s *RateService) SetRate(ctx context.Context, guildID int64, minutes int, updatedBy int64) error {
	if minutes < MinMinutesPerCredit || minutes > MaxMinutesPerCredit {
		return ErrInvalidRate
	}

	if _, err := s.store.Set(ctx, guildID, minutes, updatedBy); err != nil {
		return fmt.Errorf("failed to set rate: %w", err)
	}
	s.cache.Purge()

	s.logger.Info().
		Int64("guild_id", guildID).
		Int("minutes_per_credit", minutes).
		Int64("updated_by", updatedBy).
		Msg("Voice rate updated")
	return nil
}

// SetGlobalRate stores the rate used by servers without their own setting.
func (s *RateService) SetGlobalRate(ctx context.Context, minutes int, updatedBy int64) error {
	return s.SetRate(ctx, model.GlobalRateGuild, minutes, updatedBy)
}

// DefaultRate returns the configured fallback rate.
func (s *RateService) DefaultRate() int {
	return s.defaultRate
}
