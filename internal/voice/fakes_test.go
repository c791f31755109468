package voice

import (
	"context"
	"errors"
	"sync"

	"voice-credit-bot/internal/model"
	"voice-credit-bot/internal/repository"
)

// memStore is an in-memory Store with the same settlement semantics as the
// Postgres repository.
type memStore struct {
	mu       sync.Mutex
	sessions map[int64]model.VoiceSession
	accounts map[int64]*model.Account
	failNext error
	listErr  error
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[int64]model.VoiceSession),
		accounts: make(map[int64]*model.Account),
	}
}

func (m *memStore) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *memStore) Get(_ context.Context, userID int64) (*model.VoiceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	s, ok := m.sessions[userID]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	return &s, nil
}

func (m *memStore) List(_ context.Context) ([]*model.VoiceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]*model.VoiceSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		cp := s
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) Open(_ context.Context, s *model.VoiceSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.sessions[s.UserID] = *s
	return nil
}

func (m *memStore) Relocate(_ context.Context, userID int64, loc model.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	s.Location = loc
	m.sessions[userID] = s
	return nil
}

func (m *memStore) Settle(_ context.Context, st model.Settlement) (*model.Accrual, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	s, ok := m.sessions[st.UserID]
	if !ok || !s.LastAccountedAt.Equal(st.Expected) {
		return nil, repository.ErrCheckpointMoved
	}
	if st.Close {
		delete(m.sessions, st.UserID)
	} else {
		s.LastAccountedAt = st.NewCheckpoint
		m.sessions[st.UserID] = s
	}

	if st.Minutes <= 0 {
		return nil, nil
	}

	acc, ok := m.accounts[st.UserID]
	if !ok {
		acc = &model.Account{UserID: st.UserID}
		m.accounts[st.UserID] = acc
	}
	before := acc.TotalVoiceMinutes
	credits, levels := st.Award(before, before+st.Minutes)
	acc.TotalVoiceMinutes += st.Minutes
	acc.Credits += credits
	acc.Level += levels

	cp := *acc
	return &model.Accrual{
		Minutes:       st.Minutes,
		Credits:       credits,
		Levels:        levels,
		MinutesBefore: before,
		Account:       &cp,
	}, nil
}

func (m *memStore) session(userID int64) (model.VoiceSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

func (m *memStore) account(userID int64) model.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[userID]; ok {
		return *a
	}
	return model.Account{UserID: userID}
}

// memPresence is a settable PresenceSource.
type memPresence struct {
	mu          sync.Mutex
	where       map[int64]model.Location
	bots        map[int64]bool
	unavailable map[int64]bool
	err         error
}

func newMemPresence() *memPresence {
	return &memPresence{
		where:       make(map[int64]model.Location),
		bots:        make(map[int64]bool),
		unavailable: make(map[int64]bool),
	}
}

func (p *memPresence) set(userID int64, loc model.Location) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.where[userID] = loc
}

func (p *memPresence) clear(userID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.where, userID)
}

func (p *memPresence) VoiceLocation(_ context.Context, guildID, userID int64) (model.Location, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return model.Location{}, false, p.err
	}
	if p.unavailable[guildID] {
		return model.Location{}, false, ErrGuildUnavailable
	}
	loc, ok := p.where[userID]
	if !ok || loc.GuildID != guildID {
		return model.Location{}, false, nil
	}
	return loc, true, nil
}

func (p *memPresence) Snapshot(_ context.Context) ([]Presence, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Presence
	for id, loc := range p.where {
		if p.unavailable[loc.GuildID] {
			continue
		}
		out = append(out, Presence{UserID: id, Location: loc, Bot: p.bots[id]})
	}
	return out, nil
}

// fixedRates resolves every server to the same rate.
type fixedRates int

func (r fixedRates) GetRate(context.Context, int64) (int, error) {
	return int(r), nil
}

// recordingNotifier collects delivered notifications.
type recordingNotifier struct {
	mu   sync.Mutex
	got  []Notification
	to   []int64
	fail bool
}

func (r *recordingNotifier) Notify(_ context.Context, userID int64, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("dm closed")
	}
	r.got = append(r.got, n)
	r.to = append(r.to, userID)
	return nil
}

func (r *recordingNotifier) kinds() []NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NotificationKind, 0, len(r.got))
	for _, n := range r.got {
		out = append(out, n.Kind)
	}
	return out
}

// staticGuilds is a fixed GuildLister.
type staticGuilds []model.GuildInfo

func (g staticGuilds) Guilds() []model.GuildInfo {
	return g
}
