package service

import (
	"context"
	"fmt"

	"voice-credit-bot/internal/model"
)

// RankingStore is the leaderboard persistence the ranking service needs.
type RankingStore interface {
	TopUsers(ctx context.Context, limit int) ([]*model.RankedAccount, error)
	Rank(ctx context.Context, userID int64) (int64, bool, error)
}

// Leaderboard is the top of the ranking plus the caller's own position.
type Leaderboard struct {
	Entries []*model.RankedAccount
	// CallerRank is zero when the caller has no voice time.
	CallerRank int64
}

// RankingService handles leaderboard operations. Only users with voice time
// are ranked, ordered by credits, then level, then voice minutes.
type RankingService struct {
	store RankingStore
	limit int
}

// NewRankingService creates a new RankingService instance.
func NewRankingService(store RankingStore, limit int) *RankingService {
	if limit <= 0 {
		limit = 10
	}
	return &RankingService{store: store, limit: limit}
}

// GetLeaderboard returns the top entries and callerID's rank.
func (s *RankingService) GetLeaderboard(ctx context.Context, callerID int64) (*Leaderboard, error) {
	entries, err := s.store.TopUsers(ctx, s.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}

	lb := &Leaderboard{Entries: entries}
	for _, e := range entries {
		if e.UserID == callerID {
			lb.CallerRank = e.Rank
			return lb, nil
		}
	}

	rank, ok, err := s.store.Rank(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get rank: %w", err)
	}
	if ok {
		lb.CallerRank = rank
	}
	return lb, nil
}
