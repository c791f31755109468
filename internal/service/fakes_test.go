package service

import (
	"context"
	"sync"

	"voice-credit-bot/internal/model"
	"voice-credit-bot/internal/repository"
)

// memAccounts is an in-memory AccountStore and RankingStore.
type memAccounts struct {
	mu       sync.Mutex
	accounts map[int64]*model.Account
	txs      []model.Transaction
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: make(map[int64]*model.Account)}
}

func (m *memAccounts) ensure(userID int64) *model.Account {
	a, ok := m.accounts[userID]
	if !ok {
		a = &model.Account{UserID: userID}
		m.accounts[userID] = a
	}
	return a
}

func (m *memAccounts) Get(_ context.Context, userID int64) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) GetOrCreate(_ context.Context, userID int64) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.ensure(userID)
	return &cp, nil
}

func (m *memAccounts) Debit(_ context.Context, userID, cost int64, _ string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.ensure(userID)
	if a.Credits < cost {
		return nil, repository.ErrInsufficientCredits
	}
	a.Credits -= cost
	m.txs = append(m.txs, model.Transaction{UserID: userID, Amount: -cost, Type: model.TxTypeDebit})
	cp := *a
	return &cp, nil
}

func (m *memAccounts) AddCredits(_ context.Context, userID, amount int64, txType, _ string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.ensure(userID)
	a.Credits += amount
	m.txs = append(m.txs, model.Transaction{UserID: userID, Amount: amount, Type: txType})
	cp := *a
	return &cp, nil
}

func (m *memAccounts) SetUnlimited(_ context.Context, userID int64, unlimited bool) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.ensure(userID)
	a.Unlimited = unlimited
	cp := *a
	return &cp, nil
}

// memPrices is an in-memory PriceStore.
type memPrices struct {
	prices map[string]int64
}

func newMemPrices() *memPrices {
	return &memPrices{prices: make(map[string]int64)}
}

func (m *memPrices) Get(_ context.Context, service string) (int64, error) {
	p, ok := m.prices[service]
	if !ok {
		return 0, repository.ErrPriceNotFound
	}
	return p, nil
}

func (m *memPrices) Set(_ context.Context, service string, price, by int64) (*model.ServicePrice, error) {
	m.prices[service] = price
	return &model.ServicePrice{Service: service, Price: price, UpdatedBy: by}, nil
}

func (m *memPrices) List(_ context.Context) ([]*model.ServicePrice, error) {
	var out []*model.ServicePrice
	for s, p := range m.prices {
		out = append(out, &model.ServicePrice{Service: s, Price: p})
	}
	return out, nil
}

func (m *memPrices) SeedDefaults(_ context.Context, defaults map[string]int64) error {
	for s, p := range defaults {
		if _, ok := m.prices[s]; !ok {
			m.prices[s] = p
		}
	}
	return nil
}

// memAdmins is an in-memory AdminStore.
type memAdmins struct {
	global map[int64]bool
	server map[[2]int64]bool
}

func newMemAdmins() *memAdmins {
	return &memAdmins{global: make(map[int64]bool), server: make(map[[2]int64]bool)}
}

func (m *memAdmins) IsGlobalAdmin(_ context.Context, userID int64) (bool, error) {
	return m.global[userID], nil
}

func (m *memAdmins) IsServerAdmin(_ context.Context, guildID, userID int64) (bool, error) {
	return m.server[[2]int64{guildID, userID}], nil
}

func (m *memAdmins) AddGlobalAdmin(_ context.Context, userID, _ int64) error {
	m.global[userID] = true
	return nil
}

func (m *memAdmins) AddServerAdmin(_ context.Context, guildID, userID, _ int64) error {
	m.server[[2]int64{guildID, userID}] = true
	return nil
}

func (m *memAdmins) RemoveServerAdmin(_ context.Context, guildID, userID int64) error {
	delete(m.server, [2]int64{guildID, userID})
	return nil
}

// memChannels is an in-memory ChannelStore.
type memChannels struct {
	byChannel map[int64]int64
	order     []int64
}

func newMemChannels() *memChannels {
	return &memChannels{byChannel: make(map[int64]int64)}
}

func (m *memChannels) AddAllowedChannel(_ context.Context, guildID, channelID, _ int64) error {
	if _, ok := m.byChannel[channelID]; !ok {
		m.order = append(m.order, channelID)
	}
	m.byChannel[channelID] = guildID
	return nil
}

func (m *memChannels) IsAllowedChannel(_ context.Context, channelID int64) (bool, error) {
	_, ok := m.byChannel[channelID]
	return ok, nil
}

func (m *memChannels) ListAllowedChannels(_ context.Context, guildID int64) ([]int64, error) {
	var ids []int64
	for _, id := range m.order {
		if m.byChannel[id] == guildID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// memRanking is a canned RankingStore.
type memRanking struct {
	top   []*model.RankedAccount
	ranks map[int64]int64
	calls int
}

func (m *memRanking) TopUsers(_ context.Context, limit int) ([]*model.RankedAccount, error) {
	if len(m.top) > limit {
		return m.top[:limit], nil
	}
	return m.top, nil
}

func (m *memRanking) Rank(_ context.Context, userID int64) (int64, bool, error) {
	m.calls++
	r, ok := m.ranks[userID]
	return r, ok, nil
}
