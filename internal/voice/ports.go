// Package voice turns voice channel presence into credited minutes.
//
// A Tracker owns every session mutation and serializes them per user. The
// Sweeper credits elapsed minutes on a fixed interval, the Reaper removes
// sessions that stopped being accounted, and the Reconciler validates
// persisted sessions once at startup. Elapsed time is always measured from
// a session's checkpoint and the checkpoint only ever advances by the whole
// minutes credited, so a minute can be credited at most once.
package voice

import (
	"context"
	"errors"

	"voice-credit-bot/internal/model"
)

// ErrGuildUnavailable is returned by a PresenceSource when the server can no
// longer be resolved. Sessions in such a server are dropped.
var ErrGuildUnavailable = errors.New("guild unavailable")

// Store persists sessions and settles checkpoints against the ledger.
type Store interface {
	Get(ctx context.Context, userID int64) (*model.VoiceSession, error)
	List(ctx context.Context) ([]*model.VoiceSession, error)
	Open(ctx context.Context, s *model.VoiceSession) error
	Relocate(ctx context.Context, userID int64, loc model.Location) error
	Settle(ctx context.Context, s model.Settlement) (*model.Accrual, error)
}

// RateResolver returns minutes-per-credit for a server.
type RateResolver interface {
	GetRate(ctx context.Context, guildID int64) (int, error)
}

// GuildLister lists the servers the bot is in.
type GuildLister interface {
	Guilds() []model.GuildInfo
}

// Presence is one member's live voice state.
type Presence struct {
	UserID   int64
	Location model.Location
	Bot      bool
}

// PresenceSource answers questions about live voice state.
type PresenceSource interface {
	// VoiceLocation reports where userID currently is in guildID. ok is
	// false when the user is not in a voice channel there.
	VoiceLocation(ctx context.Context, guildID, userID int64) (loc model.Location, ok bool, err error)
	// Snapshot lists everyone currently in a voice channel.
	Snapshot(ctx context.Context) ([]Presence, error)
}

// PresenceEvent is a voice state transition reported by the chat platform.
// Before and After are nil when the user was or is not in a channel.
type PresenceEvent struct {
	UserID int64
	Before *model.Location
	After  *model.Location
	Bot    bool
}

// Kind classifies the transition.
func (e PresenceEvent) Kind() string {
	switch {
	case e.Before == nil && e.After == nil:
		return "none"
	case e.Before == nil:
		return "join"
	case e.After == nil:
		return "leave"
	case *e.Before != *e.After:
		return "move"
	default:
		return "update"
	}
}
