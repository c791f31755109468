package service

import (
	"context"
	"errors"
	"fmt"

	"voice-credit-bot/internal/model"
)

// ErrUnknownTxType is returned when a history filter names no transaction type.
var ErrUnknownTxType = errors.New("unknown transaction type")

// HistoryStore reads the credit audit trail.
type HistoryStore interface {
	GetByUserID(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error)
	GetByUserIDAndType(ctx context.Context, userID int64, txType string, limit int) ([]*model.Transaction, error)
}

// HistoryService lists a user's recent credit movements.
type HistoryService struct {
	store HistoryStore
	limit int
}

// NewHistoryService creates a HistoryService returning at most limit rows.
func NewHistoryService(store HistoryStore, limit int) *HistoryService {
	if limit <= 0 {
		limit = 10
	}
	return &HistoryService{store: store, limit: limit}
}

// TxTypes lists the transaction types accepted as a filter.
func TxTypes() []string {
	return []string{model.TxTypeVoice, model.TxTypeDebit, model.TxTypeRefund, model.TxTypeAdminGrant}
}

// Recent returns the newest movements, newest first. An empty txType
// means every type.
func (s *HistoryService) Recent(ctx context.Context, userID int64, txType string) ([]*model.Transaction, error) {
	if txType == "" {
		txs, err := s.store.GetByUserID(ctx, userID, s.limit)
		if err != nil {
			return nil, fmt.Errorf("failed to load history: %w", err)
		}
		return txs, nil
	}

	known := false
	for _, t := range TxTypes() {
		if t == txType {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTxType, txType)
	}

	txs, err := s.store.GetByUserIDAndType(ctx, userID, txType, s.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return txs, nil
}
