package handler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bwmarrin/discordgo"

	"voice-credit-bot/internal/model"
	"voice-credit-bot/internal/repository"
	"voice-credit-bot/internal/voice"
)

type memAccounts struct {
	mu       sync.Mutex
	accounts map[int64]*model.Account
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
	cp := *a
	return &cp, nil
}

func (m *memAccounts) AddCredits(_ context.Context, userID, amount int64, _, _ string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.ensure(userID)
	a.Credits += amount
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

type memRates struct {
	mu    sync.Mutex
	rates map[int64]int
}

func (m *memRates) Get(_ context.Context, guildID int64) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rates[guildID]
	return r, ok, nil
}

func (m *memRates) Set(_ context.Context, guildID int64, minutes int, by int64) (*model.RateSetting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[guildID] = minutes
	return &model.RateSetting{GuildID: guildID, MinutesPerCredit: minutes, UpdatedBy: by}, nil
}

type memPrices struct {
	mu     sync.Mutex
	prices map[string]int64
}

func (m *memPrices) Get(_ context.Context, service string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[service]
	if !ok {
		return 0, repository.ErrPriceNotFound
	}
	return p, nil
}

func (m *memPrices) Set(_ context.Context, service string, price, by int64) (*model.ServicePrice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[service] = price
	return &model.ServicePrice{Service: service, Price: price, UpdatedBy: by}, nil
}

func (m *memPrices) List(_ context.Context) ([]*model.ServicePrice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.ServicePrice, 0, len(m.prices))
	for name, price := range m.prices {
		out = append(out, &model.ServicePrice{Service: name, Price: price})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out, nil
}

func (m *memPrices) SeedDefaults(_ context.Context, defaults map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, price := range defaults {
		if _, ok := m.prices[name]; !ok {
			m.prices[name] = price
		}
	}
	return nil
}

type memAdmins struct {
	mu     sync.Mutex
	global map[int64]bool
	server map[[2]int64]bool
}

func (m *memAdmins) IsGlobalAdmin(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.global[userID], nil
}

func (m *memAdmins) IsServerAdmin(_ context.Context, guildID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.server[[2]int64{guildID, userID}], nil
}

func (m *memAdmins) AddGlobalAdmin(_ context.Context, userID, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.global[userID] = true
	return nil
}

func (m *memAdmins) AddServerAdmin(_ context.Context, guildID, userID, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.server[[2]int64{guildID, userID}] = true
	return nil
}

func (m *memAdmins) RemoveServerAdmin(_ context.Context, guildID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.server, [2]int64{guildID, userID})
	return nil
}

type memChannels struct {
	mu        sync.Mutex
	byChannel map[int64]int64
}

func (m *memChannels) AddAllowedChannel(_ context.Context, guildID, channelID, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byChannel[channelID] = guildID
	return nil
}

func (m *memChannels) IsAllowedChannel(_ context.Context, channelID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byChannel[channelID]
	return ok, nil
}

func (m *memChannels) ListAllowedChannels(_ context.Context, guildID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for ch, g := range m.byChannel {
		if g == guildID {
			ids = append(ids, ch)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type fakeDirectory struct {
	members  map[int64][]Member
	guilds   map[int64]string
	channels map[int64]int64
	infos    []model.GuildInfo
}

func (d *fakeDirectory) Members(guildID int64) []Member {
	return d.members[guildID]
}

func (d *fakeDirectory) DisplayName(_ context.Context, userID int64) string {
	for _, ms := range d.members {
		for _, m := range ms {
			if m.ID == userID {
				return m.Username
			}
		}
	}
	return fmt.Sprintf("User %d", userID)
}

func (d *fakeDirectory) GuildName(guildID int64) (string, bool) {
	name, ok := d.guilds[guildID]
	return name, ok
}

func (d *fakeDirectory) ChannelName(channelID int64) string {
	return fmt.Sprintf("channel-%d", channelID)
}

func (d *fakeDirectory) ChannelGuild(channelID int64) (int64, bool) {
	id, ok := d.channels[channelID]
	return id, ok
}

func (d *fakeDirectory) Guilds() []model.GuildInfo {
	out := make([]model.GuildInfo, len(d.infos))
	copy(out, d.infos)
	return out
}

// recordingReplier keeps every reply.
type recordingReplier struct {
	embeds []*discordgo.MessageEmbed
	texts  []string
}

func (r *recordingReplier) ReplyEmbed(embed *discordgo.MessageEmbed) error {
	r.embeds = append(r.embeds, embed)
	return nil
}

func (r *recordingReplier) ReplyText(text string) error {
	r.texts = append(r.texts, text)
	return nil
}

func (r *recordingReplier) lastTitle() string {
	if len(r.embeds) == 0 {
		return ""
	}
	return r.embeds[len(r.embeds)-1].Title
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []voice.Notification
	to  []int64
}

func (n *recordingNotifier) Notify(_ context.Context, userID int64, note voice.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, note)
	n.to = append(n.to, userID)
	return nil
}
