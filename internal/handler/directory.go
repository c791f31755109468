package handler

import (
	"context"

	"voice-credit-bot/internal/model"
)

// Member is a server member as seen by user resolution.
type Member struct {
	ID         int64
	Username   string
	Nick       string
	GlobalName string
}

// Directory looks up platform names for display and user resolution.
type Directory interface {
	Members(guildID int64) []Member
	DisplayName(ctx context.Context, userID int64) string
	GuildName(guildID int64) (string, bool)
	ChannelName(channelID int64) string
	// ChannelGuild returns the server channelID belongs to, if known.
	ChannelGuild(channelID int64) (int64, bool)
	Guilds() []model.GuildInfo
}
