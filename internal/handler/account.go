package handler

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"voice-credit-bot/internal/service"
	"voice-credit-bot/internal/voice"
)

// AccountHandler handles a user's own credit, voice and level commands.
type AccountHandler struct {
	credits   *service.CreditService
	rates     *service.RateService
	policy    service.RewardPolicy
	tracker   *voice.Tracker
	directory Directory
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(credits *service.CreditService, rates *service.RateService, policy service.RewardPolicy, tracker *voice.Tracker, directory Directory) *AccountHandler {
	return &AccountHandler{
		credits:   credits,
		rates:     rates,
		policy:    policy,
		tracker:   tracker,
		directory: directory,
	}
}

func (h *AccountHandler) nextRewards(total int64, rate int) *discordgo.MessageEmbedField {
	p := h.policy.Progress(total, rate)
	return field("🎯 Next Rewards", fmt.Sprintf(
		"**%d minutes** → 1 credit\n**%d minutes** → level up",
		p.MinutesToNextCredit, p.MinutesToNextLevel,
	), false)
}

// HandleCredits handles !credits.
func (h *AccountHandler) HandleCredits(r *Request) error {
	acc, err := h.credits.Balance(r.Ctx, r.AuthorID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", r.AuthorID).Msg("Failed to load balance")
		return r.Reply(errorEmbed("❌ Error", "Could not load your balance, please try again later."))
	}
	rate, err := h.rates.GetRate(r.Ctx, r.GuildID)
	if err != nil {
		return err
	}

	embed := &discordgo.MessageEmbed{
		Title:       "💰 Your Credit Balance",
		Description: fmt.Sprintf("**%s, here are your current stats:**", Mention(r.AuthorID)),
		Color:       ColorPremium,
	}
	if acc.Unlimited {
		embed.Fields = append(embed.Fields, field("✨ UNLIMITED ACCESS", "**You have unlimited credits!** 🎉", false))
	} else {
		embed.Fields = append(embed.Fields, field("💎 Credits Available", fmt.Sprintf("**%d** credits", acc.Credits), true))
	}
	embed.Fields = append(embed.Fields,
		field("⭐ Level", fmt.Sprintf("**%d**", acc.Level), true),
		field("🎧 Voice Minutes", fmt.Sprintf("**%d** minutes", acc.TotalVoiceMinutes), true),
		h.nextRewards(acc.TotalVoiceMinutes, rate),
		field("🌍 Global Credits", "Your credits are **global**: use them in any server this bot is in.", false),
	)
	return r.Reply(embed)
}

// HandleVoice handles !voice. It shows the live session, if any, next to
// lifetime totals.
func (h *AccountHandler) HandleVoice(r *Request) error {
	acc, err := h.credits.Balance(r.Ctx, r.AuthorID)
	if err != nil {
		return err
	}
	status, err := h.tracker.Status(r.Ctx, r.AuthorID)
	if err != nil {
		return err
	}
	rate, err := h.rates.GetRate(r.Ctx, r.GuildID)
	if err != nil {
		return err
	}

	embed := &discordgo.MessageEmbed{
		Title:       "🎧 Voice Chat Status",
		Description: fmt.Sprintf("**%s, here's your voice activity:**", Mention(r.AuthorID)),
		Color:       ColorInfo,
	}

	if status != nil {
		s := status.Session
		embed.Fields = append(embed.Fields,
			field("🔴 Live Session Active", fmt.Sprintf(
				"**Current Session:** %s\n**Pending:** %s\n**Total Time:** %d minutes\n**Level:** %d",
				FormatDuration(time.Since(s.JoinedAt)),
				Plural(status.PendingMinutes, "minute"),
				acc.TotalVoiceMinutes, acc.Level,
			), false),
			field("📢 In Channel", fmt.Sprintf("**%s** in **%s**",
				h.directory.ChannelName(s.Location.ChannelID), h.guildName(s.Location.GuildID)), true),
			field("⚙️ Session Rate", fmt.Sprintf("**%d minutes** = 1 credit", status.MinutesPerCredit), true),
		)
	} else {
		embed.Fields = append(embed.Fields,
			field("🟢 Ready to Earn", "Join any voice channel to start earning credits!", false))
	}

	embed.Fields = append(embed.Fields,
		h.nextRewards(acc.TotalVoiceMinutes, rate),
		field("⚙️ Server Settings", fmt.Sprintf("**%d minutes** = 1 credit", rate), false),
	)
	return r.Reply(embed)
}

func (h *AccountHandler) guildName(guildID int64) string {
	if name, ok := h.directory.GuildName(guildID); ok {
		return name
	}
	return fmt.Sprintf("server %d", guildID)
}

// HandleLevel handles !level.
func (h *AccountHandler) HandleLevel(r *Request) error {
	acc, err := h.credits.Balance(r.Ctx, r.AuthorID)
	if err != nil {
		return err
	}
	rate, err := h.rates.GetRate(r.Ctx, r.GuildID)
	if err != nil {
		return err
	}

	perLevel := int64(rate) * int64(h.policy.CreditsPerLevel)
	p := h.policy.Progress(acc.TotalVoiceMinutes, rate)
	bar, percent := ProgressBar(perLevel-p.MinutesToNextLevel, perLevel)

	return r.Reply(&discordgo.MessageEmbed{
		Title:       "⭐ Your Level Stats",
		Description: fmt.Sprintf("**%s, here's your level progression:**", Mention(r.AuthorID)),
		Color:       ColorGold,
		Fields: []*discordgo.MessageEmbedField{
			field("🏆 Current Level", fmt.Sprintf("**%d**", acc.Level), true),
			field("🎧 Total Voice Minutes", fmt.Sprintf("**%d** minutes", acc.TotalVoiceMinutes), true),
			field(fmt.Sprintf("📊 Progress to Level %d", acc.Level+1),
				fmt.Sprintf("%s %d%%\n**%d minutes needed**", bar, percent, p.MinutesToNextLevel), false),
			field("🎯 Level Up Rewards", fmt.Sprintf(
				"Every **%d minutes** in voice chat gives you:\n• **%d credits** 💎\n• **1 level** ⭐",
				perLevel, h.policy.CreditsPerLevel), false),
		},
	})
}
