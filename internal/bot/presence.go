package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"voice-credit-bot/internal/model"
	"voice-credit-bot/internal/voice"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid snowflake %q: %w", s, err)
	}
	return id, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func isBot(m *discordgo.Member) bool {
	return m != nil && m.User != nil && m.User.Bot
}

// presenceEvent converts a gateway voice state update. When the previous
// state is unknown and the user has no channel, the event is a leave from
// the update's server.
func presenceEvent(vs *discordgo.VoiceStateUpdate) (voice.PresenceEvent, error) {
	if vs == nil || vs.VoiceState == nil {
		return voice.PresenceEvent{}, errors.New("empty voice state update")
	}
	guildID, err := parseID(vs.GuildID)
	if err != nil {
		return voice.PresenceEvent{}, err
	}
	userID, err := parseID(vs.UserID)
	if err != nil {
		return voice.PresenceEvent{}, err
	}

	ev := voice.PresenceEvent{UserID: userID, Bot: isBot(vs.Member)}
	if vs.ChannelID != "" {
		ch, err := parseID(vs.ChannelID)
		if err != nil {
			return voice.PresenceEvent{}, err
		}
		ev.After = &model.Location{GuildID: guildID, ChannelID: ch}
	}

	switch {
	case vs.BeforeUpdate != nil && vs.BeforeUpdate.ChannelID != "":
		ch, err := parseID(vs.BeforeUpdate.ChannelID)
		if err != nil {
			return voice.PresenceEvent{}, err
		}
		ev.Before = &model.Location{GuildID: guildID, ChannelID: ch}
	case vs.BeforeUpdate == nil && vs.ChannelID == "":
		ev.Before = &model.Location{GuildID: guildID}
	}
	return ev, nil
}

// StatePresence answers live voice presence from the gateway state cache.
type StatePresence struct {
	state *discordgo.State
}

// NewStatePresence creates a StatePresence.
func NewStatePresence(state *discordgo.State) *StatePresence {
	return &StatePresence{state: state}
}

// VoiceLocation reports where userID is in voice inside guildID. A server
// missing from the cache or marked unavailable yields voice.ErrGuildUnavailable.
func (p *StatePresence) VoiceLocation(_ context.Context, guildID, userID int64) (model.Location, bool, error) {
	gid := formatID(guildID)
	g, err := p.state.Guild(gid)
	if err != nil {
		return model.Location{}, false, voice.ErrGuildUnavailable
	}
	p.state.RLock()
	unavailable := g.Unavailable
	p.state.RUnlock()
	if unavailable {
		return model.Location{}, false, voice.ErrGuildUnavailable
	}

	vs, err := p.state.VoiceState(gid, formatID(userID))
	if err != nil {
		if errors.Is(err, discordgo.ErrStateNotFound) {
			return model.Location{}, false, nil
		}
		return model.Location{}, false, fmt.Errorf("voice state: %w", err)
	}
	if vs.ChannelID == "" {
		return model.Location{}, false, nil
	}

	ch, err := parseID(vs.ChannelID)
	if err != nil {
		return model.Location{}, false, err
	}
	return model.Location{GuildID: guildID, ChannelID: ch}, true, nil
}

type cachedVoiceState struct {
	guildID   string
	userID    string
	channelID string
	member    *discordgo.Member
}

// Snapshot lists everyone currently in a voice channel of an available server.
func (p *StatePresence) Snapshot(_ context.Context) ([]voice.Presence, error) {
	var states []cachedVoiceState
	p.state.RLock()
	for _, g := range p.state.Guilds {
		if g.Unavailable {
			continue
		}
		for _, vs := range g.VoiceStates {
			if vs.ChannelID == "" {
				continue
			}
			states = append(states, cachedVoiceState{
				guildID:   g.ID,
				userID:    vs.UserID,
				channelID: vs.ChannelID,
				member:    vs.Member,
			})
		}
	}
	p.state.RUnlock()

	out := make([]voice.Presence, 0, len(states))
	for _, s := range states {
		guildID, err := parseID(s.guildID)
		if err != nil {
			continue
		}
		userID, err := parseID(s.userID)
		if err != nil {
			continue
		}
		channelID, err := parseID(s.channelID)
		if err != nil {
			continue
		}
		out = append(out, voice.Presence{
			UserID:   userID,
			Location: model.Location{GuildID: guildID, ChannelID: channelID},
			Bot:      p.isBot(s.guildID, s.userID, s.member),
		})
	}
	return out, nil
}

// isBot checks the member attached to a voice state, falling back to the
// member cache.
func (p *StatePresence) isBot(guildID, userID string, m *discordgo.Member) bool {
	if m == nil {
		if cached, err := p.state.Member(guildID, userID); err == nil {
			m = cached
		}
	}
	return isBot(m)
}
