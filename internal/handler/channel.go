package handler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"voice-credit-bot/internal/service"
)

// ChannelHandler manages the channels where user commands are accepted.
type ChannelHandler struct {
	permissions *service.PermissionService
	directory   Directory
}

// NewChannelHandler creates a new ChannelHandler.
func NewChannelHandler(permissions *service.PermissionService, directory Directory) *ChannelHandler {
	return &ChannelHandler{permissions: permissions, directory: directory}
}

var channelMentionPattern = regexp.MustCompile(`^<#(\d+)>$`)

// parseChannel accepts a channel mention or a raw channel ID.
func parseChannel(input string) (int64, bool) {
	input = strings.TrimSpace(input)
	if m := channelMentionPattern.FindStringSubmatch(input); m != nil {
		input = m[1]
	}
	id, err := strconv.ParseInt(input, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ChannelMention renders a channel mention.
func ChannelMention(channelID int64) string {
	return fmt.Sprintf("<#%d>", channelID)
}

// HandleAddChannel handles !addchannel <#channel>.
func (h *ChannelHandler) HandleAddChannel(r *Request) error {
	if r.GuildID == 0 {
		return r.ReplyText("This command only works inside a server.")
	}
	if len(r.Args) < 1 {
		return r.ReplyText("❌ Please mention a channel! Example: `!addchannel #general`")
	}
	channelID, ok := parseChannel(r.Arg(0))
	if !ok {
		return r.Reply(errorEmbed("❌ Invalid Channel", "Please mention a channel or give its ID."))
	}
	if guildID, known := h.directory.ChannelGuild(channelID); !known || guildID != r.GuildID {
		return r.Reply(errorEmbed("❌ Invalid Channel", "That channel is not part of this server."))
	}

	if err := h.permissions.AllowChannel(r.Ctx, r.GuildID, channelID, r.AuthorID); err != nil {
		return err
	}

	name, _ := h.directory.GuildName(r.GuildID)
	mention := ChannelMention(channelID)
	embed := successEmbed("✅ Channel Added!", fmt.Sprintf("**%s is now an allowed channel!**", mention))
	embed.Fields = []*discordgo.MessageEmbedField{
		field("📢 Channel", fmt.Sprintf("%s\n(ID: `%d`)", mention, channelID), true),
		field("🏢 Server", fmt.Sprintf("**%s**", name), true),
		field("👤 Added By", Mention(r.AuthorID), true),
	}
	return r.Reply(embed)
}

// HandleListChannels handles !listchannels for the current server.
func (h *ChannelHandler) HandleListChannels(r *Request) error {
	if r.GuildID == 0 {
		return r.ReplyText("This command only works inside a server.")
	}
	ids, err := h.permissions.AllowedChannels(r.Ctx, r.GuildID)
	if err != nil {
		return err
	}

	embed := &discordgo.MessageEmbed{Title: "📋 Allowed Channels"}
	if len(ids) == 0 {
		embed.Description = "❌ No channels configured for this server!\nUse `!addchannel #channel` to add one."
		embed.Color = ColorError
	} else {
		var sb strings.Builder
		sb.WriteString("**Channels where bot commands can be used:**\n")
		for _, id := range ids {
			if guildID, ok := h.directory.ChannelGuild(id); ok && guildID == r.GuildID {
				fmt.Fprintf(&sb, "\n• %s (ID: `%d`)", ChannelMention(id), id)
			} else {
				fmt.Fprintf(&sb, "\n• Unknown Channel (ID: `%d`)", id)
			}
		}
		embed.Description = sb.String()
		embed.Color = ColorInfo
	}

	name, _ := h.directory.GuildName(r.GuildID)
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Server: " + name}
	return r.Reply(embed)
}
