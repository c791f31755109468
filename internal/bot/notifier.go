package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"voice-credit-bot/internal/handler"
	"voice-credit-bot/internal/voice"
)

// DMNotifier delivers engine notifications as direct messages.
type DMNotifier struct {
	session *discordgo.Session
}

// NewDMNotifier creates a DMNotifier.
func NewDMNotifier(session *discordgo.Session) *DMNotifier {
	return &DMNotifier{session: session}
}

// Notify sends n to userID. Users with closed DMs produce an error that the
// dispatcher logs and drops.
func (d *DMNotifier) Notify(ctx context.Context, userID int64, n voice.Notification) error {
	ch, err := d.session.UserChannelCreate(formatID(userID), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open DM channel: %w", err)
	}
	if _, err := d.session.ChannelMessageSendEmbed(ch.ID, RenderNotification(userID, n), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send DM: %w", err)
	}
	return nil
}

const footer = "Credits are global: use them in any server with this bot! 💫"

// RenderNotification builds the DM embed for a notification.
func RenderNotification(userID int64, n voice.Notification) *discordgo.MessageEmbed {
	mention := handler.Mention(userID)
	embed := &discordgo.MessageEmbed{Footer: &discordgo.MessageEmbedFooter{Text: footer}}

	switch n.Kind {
	case voice.NotifySessionStarted:
		embed.Title = "🎤 Voice Chat Started!"
		embed.Description = fmt.Sprintf("**%s, you're now earning credits in voice chat!**", mention)
		embed.Color = handler.ColorSuccess
		howTo := "Stay active in voice chat to earn credits and levels."
		if n.MinutesPerCredit > 0 {
			howTo = fmt.Sprintf("Stay active in voice chat to earn:\n• **1 credit** every %d minutes", n.MinutesPerCredit)
		}
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "💰 How to Earn", Value: howTo},
		}

	case voice.NotifyCreditsEarned:
		embed.Title = "💰 CREDITS EARNED! 💰"
		embed.Description = fmt.Sprintf("**%s earned %s from voice chat!**", mention, handler.Plural(n.Credits, "credit"))
		embed.Color = handler.ColorSuccess
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "🎧 Voice Activity", Value: fmt.Sprintf("**Minutes Talked:** %d minutes", n.Minutes), Inline: true},
		}
		if n.Account != nil {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name: "💎 Total Credits", Value: fmt.Sprintf("**%d credits**", n.Account.Credits), Inline: true,
			})
		}

	case voice.NotifyLevelUp:
		embed.Title = "🎉 LEVEL UP! 🎉"
		embed.Color = handler.ColorGold
		if n.Account != nil {
			embed.Description = fmt.Sprintf("**%s just reached Level %d!**", mention, n.Account.Level)
			embed.Fields = []*discordgo.MessageEmbedField{
				{Name: "🎧 Voice Activity", Value: fmt.Sprintf("**Total Time:** %d minutes", n.Account.TotalVoiceMinutes), Inline: true},
				{Name: "💰 Credits", Value: fmt.Sprintf("**Total Credits:** %d", n.Account.Credits), Inline: true},
			}
		} else {
			embed.Description = fmt.Sprintf("**%s gained %s!**", mention, handler.Plural(n.Levels, "level"))
		}

	case voice.NotifySessionEnded:
		embed.Title = "🎤 Voice Session Complete"
		embed.Description = fmt.Sprintf("**%s, your voice session has ended!**", mention)
		embed.Color = handler.ColorInfo
		summary := fmt.Sprintf("**Time Spent:** %s\n**Credited This Close:** %s",
			handler.FormatDuration(n.Duration), handler.Plural(n.Minutes, "minute"))
		if n.Credits > 0 {
			summary += fmt.Sprintf("\n**Credits Earned:** %d", n.Credits)
		}
		if n.Account != nil {
			summary += fmt.Sprintf("\n**Total Voice Minutes:** %d", n.Account.TotalVoiceMinutes)
		}
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "📊 Session Summary", Value: summary + "\nCheck your balance with `!credits`"},
		}

	case voice.NotifyCreditsGranted:
		embed.Title = "🎉 Credits Added!"
		embed.Description = fmt.Sprintf("You received **%s** from %s", handler.Plural(n.Credits, "credit"), handler.Mention(n.ActorID))
		embed.Color = handler.ColorSuccess
		if n.Account != nil {
			embed.Fields = []*discordgo.MessageEmbedField{
				{Name: "📊 New Balance", Value: fmt.Sprintf("**%d credits**", n.Account.Credits), Inline: true},
			}
		}

	case voice.NotifyDailyReport:
		embed.Title = "📊 Daily Server Report"
		embed.Color = handler.ColorPrimary
		embed.Timestamp = time.Now().UTC().Format(time.RFC3339)
		embed.Footer.Text = "Automated Daily Report"
		if r := n.Report; r != nil {
			embed.Fields = []*discordgo.MessageEmbedField{
				{Name: "📈 Server Statistics", Value: fmt.Sprintf(
					"**Total Servers:** %d\n**Total Users:** %d\n**Bot Uptime:** %s",
					r.Guilds, r.Members, handler.FormatDuration(r.Uptime))},
				{Name: "🎧 Voice", Value: fmt.Sprintf("**Active Sessions:** %d", r.ActiveSessions)},
			}
		}

	case voice.NotifyGuildJoined:
		embed.Title = "📥 BOT ADDED TO NEW SERVER!"
		embed.Color = handler.ColorSuccess
		embed.Timestamp = time.Now().UTC().Format(time.RFC3339)
		embed.Footer.Text = "Bot Join Notification"
		if g := n.Guild; g != nil {
			owner := "Unknown"
			if g.OwnerID != 0 {
				owner = handler.Mention(g.OwnerID)
			}
			embed.Fields = []*discordgo.MessageEmbedField{
				{Name: "🏢 Server Name", Value: fmt.Sprintf("**%s**", g.Name), Inline: true},
				{Name: "🆔 Server ID", Value: fmt.Sprintf("`%d`", g.ID), Inline: true},
				{Name: "👑 Server Owner", Value: owner, Inline: true},
				{Name: "👥 Member Count", Value: fmt.Sprintf("**%d** members", g.MemberCount), Inline: true},
			}
		}

	default:
		embed.Title = "🔔 Notification"
		embed.Description = n.Kind.String()
		embed.Color = handler.ColorPrimary
	}
	return embed
}
