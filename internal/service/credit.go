package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voice-credit-bot/internal/model"
	"voice-credit-bot/internal/pkg/lock"
	"voice-credit-bot/internal/repository"
)

// Credit errors.
var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("invalid amount: must be positive")
)

// AccountStore is the ledger persistence the credit service needs.
type AccountStore interface {
	Get(ctx context.Context, userID int64) (*model.Account, error)
	GetOrCreate(ctx context.Context, userID int64) (*model.Account, error)
	Debit(ctx context.Context, userID, cost int64, description string) (*model.Account, error)
	AddCredits(ctx context.Context, userID, amount int64, txType, description string) (*model.Account, error)
	SetUnlimited(ctx context.Context, userID int64, unlimited bool) (*model.Account, error)
}

// CreditService spends, refunds and grants credits. Unlimited accounts pass
// every balance check and are never charged.
type CreditService struct {
	accounts AccountStore
	locks    *lock.UserLock
	logger   zerolog.Logger
}

// NewCreditService creates a new CreditService instance. locks is shared
// with the voice engine so ledger writes for a user are serialized.
func NewCreditService(accounts AccountStore, locks *lock.UserLock) *CreditService {
	if locks == nil {
		locks = lock.NewUserLock()
	}
	return &CreditService{
		accounts: accounts,
		locks:    locks,
		logger:   log.With().Str("component", "credits").Logger(),
	}
}

// Balance returns a user's account, creating an empty one on first contact.
func (s *CreditService) Balance(ctx context.Context, userID int64) (*model.Account, error) {
	acc, err := s.accounts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return acc, nil
}

// HasSufficientCredit reports whether the user can pay cost.
func (s *CreditService) HasSufficientCredit(ctx context.Context, userID, cost int64) (bool, error) {
	acc, err := s.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	return acc.Unlimited || acc.Credits >= cost, nil
}

// Debit charges cost to the user. Unlimited users are not charged.
// Returns ErrInsufficientCredits if the balance does not cover cost.
func (s *CreditService) Debit(ctx context.Context, userID, cost int64, reason string) (*model.Account, error) {
	if cost <= 0 {
		return nil, ErrInvalidAmount
	}

	var acc *model.Account
	err := s.locks.WithLock(ctx, userID, func() error {
		current, err := s.accounts.GetOrCreate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to get account: %w", err)
		}
		if current.Unlimited {
			acc = current
			return nil
		}

		acc, err = s.accounts.Debit(ctx, userID, cost, reason)
		if err != nil {
			if errors.Is(err, repository.ErrInsufficientCredits) {
				return ErrInsufficientCredits
			}
			return fmt.Errorf("failed to debit credits: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Int64("user_id", userID).
		Int64("cost", cost).
		Str("reason", reason).
		Bool("unlimited", acc.Unlimited).
		Msg("Credits debited")
	return acc, nil
}

// Refund returns cost to a user after a failed paid operation.
// Unlimited users were never charged, so nothing is returned to them.
func (s *CreditService) Refund(ctx context.Context, userID, cost int64, reason string) (*model.Account, error) {
	if cost <= 0 {
		return nil, ErrInvalidAmount
	}

	var acc *model.Account
	err := s.locks.WithLock(ctx, userID, func() error {
		current, err := s.accounts.GetOrCreate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to get account: %w", err)
		}
		if current.Unlimited {
			acc = current
			return nil
		}

		acc, err = s.accounts.AddCredits(ctx, userID, cost, model.TxTypeRefund, reason)
		if err != nil {
			return fmt.Errorf("failed to refund credits: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// GrantCredits adds credits on an admin's behalf. The grant does not touch
// voice minutes or level.
func (s *CreditService) GrantCredits(ctx context.Context, adminID, userID, amount int64) (*model.Account, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var acc *model.Account
	err := s.locks.WithLock(ctx, userID, func() error {
		var err error
		acc, err = s.accounts.AddCredits(ctx, userID, amount, model.TxTypeAdminGrant,
			fmt.Sprintf("granted by %d", adminID))
		if err != nil {
			return fmt.Errorf("failed to grant credits: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("admin_id", adminID).
		Int64("user_id", userID).
		Int64("amount", amount).
		Int64("credits", acc.Credits).
		Msg("Credits granted")
	return acc, nil
}

// GrantUnlimited marks the user as unlimited.
func (s *CreditService) GrantUnlimited(ctx context.Context, adminID, userID int64) (*model.Account, error) {
	return s.setUnlimited(ctx, adminID, userID, true)
}

// RevokeUnlimited clears the unlimited flag.
func (s *CreditService) RevokeUnlimited(ctx context.Context, adminID, userID int64) (*model.Account, error) {
	return s.setUnlimited(ctx, adminID, userID, false)
}

func (s *CreditService) setUnlimited(ctx context.Context, adminID, userID int64, unlimited bool) (*model.Account, error) {
	acc, err := s.accounts.SetUnlimited(ctx, userID, unlimited)
	if err != nil {
		return nil, fmt.Errorf("failed to set unlimited: %w", err)
	}

	s.logger.Info().
		Int64("admin_id", adminID).
		Int64("user_id", userID).
		Bool("unlimited", unlimited).
		Msg("Unlimited flag changed")
	return acc, nil
}
