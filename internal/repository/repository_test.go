// Package repository provides data access layer implementations.
// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"voice-credit-bot/internal/model"
	"voice-credit-bot/internal/pkg/db"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a migrated connection pool.
// Skips the test if Docker is not available
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, db.Migrate(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// rate10 awards one credit per 10 minutes and one level per 2 credits.
func rate10(before, after int64) (int64, int64) {
	return after/10 - before/10, after/20 - before/20
}

// ============================================================================
// AccountRepository Tests
// ============================================================================

func TestAccountRepository_GetOrCreate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	_, err := repo.Get(ctx, 12345)
	assert.ErrorIs(t, err, ErrUserNotFound)

	acc, err := repo.GetOrCreate(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), acc.UserID)
	assert.Zero(t, acc.Credits)
	assert.Zero(t, acc.Level)
	assert.Zero(t, acc.TotalVoiceMinutes)
	assert.False(t, acc.Unlimited)

	again, err := repo.GetOrCreate(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, acc.CreatedAt.Unix(), again.CreatedAt.Unix())
}

func TestAccountRepository_Debit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	txRepo := NewTransactionRepository(pool)
	ctx := context.Background()

	_, err := repo.AddCredits(ctx, 1, 3, model.TxTypeAdminGrant, "seed")
	require.NoError(t, err)

	acc, err := repo.Debit(ctx, 1, 2, "mobile lookup")
	require.NoError(t, err)
	assert.Equal(t, int64(1), acc.Credits)

	_, err = repo.Debit(ctx, 1, 2, "mobile lookup")
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	acc, err = repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), acc.Credits)

	debits, err := txRepo.GetByUserIDAndType(ctx, 1, model.TxTypeDebit, 10)
	require.NoError(t, err)
	require.Len(t, debits, 1)
	assert.Equal(t, int64(-2), debits[0].Amount)
}

func TestAccountRepository_Debit_Concurrent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	_, err := repo.AddCredits(ctx, 1, 5, model.TxTypeAdminGrant, "seed")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Debit(ctx, 1, 1, "lookup"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	acc, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, acc.Credits)
}

func TestAccountRepository_SetUnlimited(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	acc, err := repo.SetUnlimited(ctx, 9, true)
	require.NoError(t, err)
	assert.True(t, acc.Unlimited)

	acc, err = repo.SetUnlimited(ctx, 9, false)
	require.NoError(t, err)
	assert.False(t, acc.Unlimited)
}

func TestAccountRepository_TopUsersAndRank(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	accounts := NewAccountRepository(pool)
	sessions := NewSessionRepository(pool)
	ctx := context.Background()

	credit := func(userID, minutes int64) {
		start := time.Now().UTC().Truncate(time.Microsecond)
		require.NoError(t, sessions.Open(ctx, &model.VoiceSession{
			UserID:          userID,
			Location:        model.Location{GuildID: 1, ChannelID: 2},
			JoinedAt:        start,
			LastAccountedAt: start,
		}))
		_, err := sessions.Settle(ctx, model.Settlement{
			UserID:   userID,
			Expected: start,
			Minutes:  minutes,
			Close:    true,
			Award:    rate10,
		})
		require.NoError(t, err)
	}

	credit(1, 15)
	credit(2, 45)
	credit(3, 45)
	_, err := accounts.AddCredits(ctx, 4, 100, model.TxTypeAdminGrant, "no voice time")
	require.NoError(t, err)

	top, err := accounts.TopUsers(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, int64(2), top[0].UserID)
	assert.Equal(t, int64(1), top[0].Rank)
	assert.Equal(t, int64(3), top[1].UserID)
	assert.Equal(t, int64(1), top[2].UserID)

	rank, ok, err := accounts.Rank(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), rank)

	_, ok, err = accounts.Rank(ctx, 4)
	require.NoError(t, err)
	assert.False(t, ok)
}

// ============================================================================
// SessionRepository Tests
// ============================================================================

func TestSessionRepository_OpenGetRelocate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewSessionRepository(pool)
	ctx := context.Background()

	_, err := repo.Get(ctx, 7)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, repo.Relocate(ctx, 7, model.Location{GuildID: 1, ChannelID: 1}), ErrSessionNotFound)

	start := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.Open(ctx, &model.VoiceSession{
		UserID:          7,
		Location:        model.Location{GuildID: 100, ChannelID: 200},
		JoinedAt:        start,
		LastAccountedAt: start,
	}))

	require.NoError(t, repo.Relocate(ctx, 7, model.Location{GuildID: 100, ChannelID: 300}))

	s, err := repo.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, model.Location{GuildID: 100, ChannelID: 300}, s.Location)
	assert.True(t, s.JoinedAt.Equal(start))
	assert.True(t, s.LastAccountedAt.Equal(start))

	// Reopening replaces the row rather than adding a second one.
	later := start.Add(time.Hour)
	require.NoError(t, repo.Open(ctx, &model.VoiceSession{
		UserID:          7,
		Location:        model.Location{GuildID: 101, ChannelID: 201},
		JoinedAt:        later,
		LastAccountedAt: later,
	}))
	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(101), all[0].Location.GuildID)

	_, err = repo.Settle(ctx, model.Settlement{UserID: 7, Expected: later, Close: true})
	require.NoError(t, err)
	all, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSessionRepository_SettleAdvances(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	sessions := NewSessionRepository(pool)
	accounts := NewAccountRepository(pool)
	txRepo := NewTransactionRepository(pool)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, sessions.Open(ctx, &model.VoiceSession{
		UserID:          5,
		Location:        model.Location{GuildID: 1, ChannelID: 2},
		JoinedAt:        start,
		LastAccountedAt: start,
	}))

	next := start.Add(25 * time.Minute)
	accrual, err := sessions.Settle(ctx, model.Settlement{
		UserID:        5,
		Expected:      start,
		NewCheckpoint: next,
		Minutes:       25,
		Award:         rate10,
		Description:   "voice 1/2",
	})
	require.NoError(t, err)
	require.NotNil(t, accrual)
	assert.Equal(t, int64(2), accrual.Credits)
	assert.Equal(t, int64(1), accrual.Levels)
	assert.Equal(t, int64(0), accrual.MinutesBefore)
	assert.Equal(t, int64(25), accrual.Account.TotalVoiceMinutes)

	s, err := sessions.Get(ctx, 5)
	require.NoError(t, err)
	assert.True(t, s.LastAccountedAt.Equal(next))

	// A stale expectation must not credit anything.
	_, err = sessions.Settle(ctx, model.Settlement{
		UserID:        5,
		Expected:      start,
		NewCheckpoint: next.Add(time.Minute),
		Minutes:       1,
		Award:         rate10,
	})
	assert.ErrorIs(t, err, ErrCheckpointMoved)

	acc, err := accounts.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(25), acc.TotalVoiceMinutes)
	assert.Equal(t, int64(2), acc.Credits)
	assert.Equal(t, int64(1), acc.Level)

	txs, err := txRepo.GetByUserIDAndType(ctx, 5, model.TxTypeVoice, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(2), txs[0].Amount)
}

func TestSessionRepository_SettleClose(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	sessions := NewSessionRepository(pool)
	accounts := NewAccountRepository(pool)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, sessions.Open(ctx, &model.VoiceSession{
		UserID:          6,
		Location:        model.Location{GuildID: 1, ChannelID: 2},
		JoinedAt:        start,
		LastAccountedAt: start,
	}))

	accrual, err := sessions.Settle(ctx, model.Settlement{
		UserID:   6,
		Expected: start,
		Close:    true,
	})
	require.NoError(t, err)
	assert.Nil(t, accrual)

	_, err = sessions.Get(ctx, 6)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Forfeiting never creates a ledger row.
	_, err = accounts.Get(ctx, 6)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

// ============================================================================
// Rate, price and admin tests
// ============================================================================

func TestRateRepository_GetSet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRateRepository(pool)
	ctx := context.Background()

	_, ok, err := repo.Get(ctx, model.GlobalRateGuild)
	require.NoError(t, err)
	assert.False(t, ok)

	rs, err := repo.Set(ctx, 555, 5, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, rs.MinutesPerCredit)

	minutes, ok, err := repo.Get(ctx, 555)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, minutes)

	_, err = repo.Set(ctx, 555, 61, 1)
	assert.Error(t, err)
}

func TestPriceRepository_SeedAndSet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPriceRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.SeedDefaults(ctx, map[string]int64{"mobile": 1, "telegram": 5}))

	_, err := repo.Set(ctx, "telegram", 7, 1)
	require.NoError(t, err)

	// Seeding again must not clobber the admin's price.
	require.NoError(t, repo.SeedDefaults(ctx, map[string]int64{"mobile": 1, "telegram": 5}))

	price, err := repo.Get(ctx, "telegram")
	require.NoError(t, err)
	assert.Equal(t, int64(7), price)

	_, err = repo.Get(ctx, "passport")
	assert.ErrorIs(t, err, ErrPriceNotFound)

	prices, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, "mobile", prices[0].Service)
}

func TestAdminRepository(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAdminRepository(pool)
	ctx := context.Background()

	ok, err := repo.IsGlobalAdmin(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.AddGlobalAdmin(ctx, 1, 0))
	require.NoError(t, repo.AddGlobalAdmin(ctx, 1, 0))
	ok, err = repo.IsGlobalAdmin(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.AddServerAdmin(ctx, 10, 2, 1))
	ok, err = repo.IsServerAdmin(ctx, 10, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.IsServerAdmin(ctx, 11, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.RemoveServerAdmin(ctx, 10, 2))
	ok, err = repo.IsServerAdmin(ctx, 10, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChannelRepository(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewChannelRepository(pool)
	ctx := context.Background()

	ok, err := repo.IsAllowedChannel(ctx, 300)
	require.NoError(t, err)
	assert.False(t, ok)

	ids, err := repo.ListAllowedChannels(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, repo.AddAllowedChannel(ctx, 10, 300, 1))
	require.NoError(t, repo.AddAllowedChannel(ctx, 10, 301, 1))
	require.NoError(t, repo.AddAllowedChannel(ctx, 10, 300, 2))
	require.NoError(t, repo.AddAllowedChannel(ctx, 11, 400, 1))

	ok, err = repo.IsAllowedChannel(ctx, 300)
	require.NoError(t, err)
	assert.True(t, ok)

	ids, err = repo.ListAllowedChannels(ctx, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{300, 301}, ids)

	ids, err = repo.ListAllowedChannels(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, []int64{400}, ids)
}

// ============================================================================
// TransactionRepository Tests
// ============================================================================

func TestTransactionRepository_GetByUserID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	accounts := NewAccountRepository(pool)
	txRepo := NewTransactionRepository(pool)
	ctx := context.Background()

	_, err := accounts.AddCredits(ctx, 12345, 3, model.TxTypeAdminGrant, "manual")
	require.NoError(t, err)
	_, err = accounts.Debit(ctx, 12345, 1, "lookup: mobile")
	require.NoError(t, err)

	txs, err := txRepo.GetByUserID(ctx, 12345, 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, model.TxTypeDebit, txs[0].Type)
	assert.Equal(t, int64(-1), txs[0].Amount)
	require.NotNil(t, txs[1].Description)
	assert.Equal(t, "manual", *txs[1].Description)

	grants, err := txRepo.GetByUserIDAndType(ctx, 12345, model.TxTypeAdminGrant, 10)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, int64(3), grants[0].Amount)
}
