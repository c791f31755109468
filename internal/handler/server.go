package handler

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

const serverListSize = 25

// ServerHandler shows the servers the bot is in.
type ServerHandler struct {
	directory Directory
}

// NewServerHandler creates a new ServerHandler.
func NewServerHandler(directory Directory) *ServerHandler {
	return &ServerHandler{directory: directory}
}

// HandleServers handles !servers: the largest servers first.
func (h *ServerHandler) HandleServers(r *Request) error {
	guilds := h.directory.Guilds()
	sort.SliceStable(guilds, func(i, j int) bool {
		return guilds[i].MemberCount > guilds[j].MemberCount
	})

	embed := &discordgo.MessageEmbed{
		Title:     "🏢 Bot Servers List",
		Color:     ColorPrimary,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**Total Servers:** %d", len(guilds))
	if len(guilds) == 0 {
		embed.Fields = []*discordgo.MessageEmbedField{
			field("No Servers", "The bot is not in any servers yet.", false),
		}
	} else {
		sb.WriteString("\n")
		for i, g := range guilds {
			if i == serverListSize {
				fmt.Fprintf(&sb, "\n…and %d more", len(guilds)-serverListSize)
				break
			}
			owner := "Unknown"
			if g.OwnerID != 0 {
				owner = Mention(g.OwnerID)
			}
			fmt.Fprintf(&sb, "\n%d. **%s**\n   👑 %s | 👥 %d | 🆔 `%d`", i+1, g.Name, owner, g.MemberCount, g.ID)
		}
	}
	embed.Description = sb.String()

	requester := fmt.Sprintf("%d", r.AuthorID)
	if r.Author != nil {
		requester = r.Author.Username
	}
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Requested by " + requester}
	return r.Reply(embed)
}
