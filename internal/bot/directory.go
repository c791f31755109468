package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"voice-credit-bot/internal/handler"
	"voice-credit-bot/internal/model"
)

// StateDirectory resolves names from the gateway cache, falling back to
// the REST API for users outside it.
type StateDirectory struct {
	session *discordgo.Session
	names   *expirable.LRU[int64, string]
}

// NewStateDirectory creates a StateDirectory.
func NewStateDirectory(session *discordgo.Session) *StateDirectory {
	return &StateDirectory{
		session: session,
		names:   expirable.NewLRU[int64, string](4096, nil, 30*time.Minute),
	}
}

// Members returns the cached members of guildID.
func (d *StateDirectory) Members(guildID int64) []handler.Member {
	g, err := d.session.State.Guild(formatID(guildID))
	if err != nil {
		return nil
	}

	d.session.State.RLock()
	defer d.session.State.RUnlock()

	out := make([]handler.Member, 0, len(g.Members))
	for _, m := range g.Members {
		if m.User == nil {
			continue
		}
		id, err := parseID(m.User.ID)
		if err != nil {
			continue
		}
		out = append(out, handler.Member{
			ID:         id,
			Username:   m.User.Username,
			Nick:       m.Nick,
			GlobalName: m.User.GlobalName,
		})
	}
	return out
}

// DisplayName returns the user's name, or a placeholder if it cannot be
// fetched.
func (d *StateDirectory) DisplayName(ctx context.Context, userID int64) string {
	if name, ok := d.names.Get(userID); ok {
		return name
	}
	u, err := d.session.User(formatID(userID), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Sprintf("User %d", userID)
	}
	name := u.GlobalName
	if name == "" {
		name = u.Username
	}
	d.names.Add(userID, name)
	return name
}

// GuildName returns the server's name if the bot is in it.
func (d *StateDirectory) GuildName(guildID int64) (string, bool) {
	g, err := d.session.State.Guild(formatID(guildID))
	if err != nil {
		return "", false
	}
	d.session.State.RLock()
	defer d.session.State.RUnlock()
	return g.Name, true
}

// ChannelName returns the channel's name or its ID.
func (d *StateDirectory) ChannelName(channelID int64) string {
	ch, err := d.session.State.Channel(formatID(channelID))
	if err != nil {
		return fmt.Sprintf("#%d", channelID)
	}
	return ch.Name
}

// ChannelGuild returns the server a cached channel belongs to.
func (d *StateDirectory) ChannelGuild(channelID int64) (int64, bool) {
	ch, err := d.session.State.Channel(formatID(channelID))
	if err != nil || ch.GuildID == "" {
		return 0, false
	}
	id, err := parseID(ch.GuildID)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Guilds lists the cached servers the bot is in.
func (d *StateDirectory) Guilds() []model.GuildInfo {
	d.session.State.RLock()
	defer d.session.State.RUnlock()

	out := make([]model.GuildInfo, 0, len(d.session.State.Guilds))
	for _, g := range d.session.State.Guilds {
		if info, ok := guildInfo(g); ok {
			out = append(out, info)
		}
	}
	return out
}

// guildInfo converts a gateway guild. ok is false for malformed IDs.
func guildInfo(g *discordgo.Guild) (model.GuildInfo, bool) {
	id, err := parseID(g.ID)
	if err != nil {
		return model.GuildInfo{}, false
	}
	// Owner is unknown on unavailable guilds.
	owner, _ := parseID(g.OwnerID)
	count := g.MemberCount
	if count == 0 {
		count = len(g.Members)
	}
	return model.GuildInfo{ID: id, Name: g.Name, OwnerID: owner, MemberCount: count}, true
}
