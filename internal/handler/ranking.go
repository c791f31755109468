package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"voice-credit-bot/internal/service"
)

// RankingHandler handles the leaderboard command.
type RankingHandler struct {
	ranking   *service.RankingService
	credits   *service.CreditService
	directory Directory
}

// NewRankingHandler creates a new RankingHandler.
func NewRankingHandler(ranking *service.RankingService, credits *service.CreditService, directory Directory) *RankingHandler {
	return &RankingHandler{
		ranking:   ranking,
		credits:   credits,
		directory: directory,
	}
}

// HandleLeader handles !leader.
func (h *RankingHandler) HandleLeader(r *Request) error {
	board, err := h.ranking.GetLeaderboard(r.Ctx, r.AuthorID)
	if err != nil {
		return r.Reply(errorEmbed("❌ Error", "Could not load the leaderboard, please try again later."))
	}

	embed := &discordgo.MessageEmbed{
		Title:       "🏆 Global Leaderboard",
		Description: "**Ranked by credits and voice activity**",
		Color:       ColorGold,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}

	if len(board.Entries) == 0 {
		embed.Fields = append(embed.Fields,
			field("No Users Yet", "Be the first to join voice chat and earn credits! 🎤", false))
	} else {
		var sb strings.Builder
		for _, e := range board.Entries {
			fmt.Fprintf(&sb, "%s **%s**\n   💰 **%d credits** | ⭐ Level %d | 🎧 %d mins\n",
				Medal(e.Rank), h.directory.DisplayName(r.Ctx, e.UserID), e.Credits, e.Level, e.TotalVoiceMinutes)
		}
		embed.Fields = append(embed.Fields, field("🏅 Top Users", sb.String(), false))
	}

	if board.CallerRank > 0 {
		acc, err := h.credits.Balance(r.Ctx, r.AuthorID)
		if err == nil {
			embed.Fields = append(embed.Fields, field("📈 Your Rank", fmt.Sprintf(
				"**You are ranked #%d globally!**\n💰 **Credits:** %d\n⭐ **Level:** %d\n🎧 **Voice Minutes:** %d",
				board.CallerRank, acc.Credits, acc.Level, acc.TotalVoiceMinutes), false))
		}
	}
	return r.Reply(embed)
}
