package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"voice-credit-bot/internal/handler"
	"voice-credit-bot/internal/model"
	"voice-credit-bot/internal/voice"
)

func TestRenderNotification(t *testing.T) {
	account := &model.Account{UserID: 5, Credits: 12, Level: 3, TotalVoiceMinutes: 130}

	tests := []struct {
		name     string
		n        voice.Notification
		title    string
		color    int
		contains string
	}{
		{
			name:     "started",
			n:        voice.Notification{Kind: voice.NotifySessionStarted, MinutesPerCredit: 10},
			title:    "🎤 Voice Chat Started!",
			color:    handler.ColorSuccess,
			contains: "every 10 minutes",
		},
		{
			name:     "earned",
			n:        voice.Notification{Kind: voice.NotifyCreditsEarned, Credits: 2, Minutes: 20, Account: account},
			title:    "💰 CREDITS EARNED! 💰",
			color:    handler.ColorSuccess,
			contains: "**12 credits**",
		},
		{
			name:     "level up",
			n:        voice.Notification{Kind: voice.NotifyLevelUp, Levels: 1, Account: account},
			title:    "🎉 LEVEL UP! 🎉",
			color:    handler.ColorGold,
			contains: "130 minutes",
		},
		{
			name:     "ended",
			n:        voice.Notification{Kind: voice.NotifySessionEnded, Minutes: 1, Credits: 1, Duration: 95 * time.Second, Account: account},
			title:    "🎤 Voice Session Complete",
			color:    handler.ColorInfo,
			contains: "1 minute",
		},
		{
			name:     "granted",
			n:        voice.Notification{Kind: voice.NotifyCreditsGranted, Credits: 50, ActorID: 9, Account: account},
			title:    "🎉 Credits Added!",
			color:    handler.ColorSuccess,
			contains: "<@9>",
		},
		{
			name: "daily report",
			n: voice.Notification{Kind: voice.NotifyDailyReport, Report: &model.DailyReport{
				Guilds: 3, Members: 250, ActiveSessions: 4, Uptime: 26*time.Hour + 5*time.Minute,
			}},
			title:    "📊 Daily Server Report",
			color:    handler.ColorPrimary,
			contains: "**Total Users:** 250\n**Bot Uptime:** 26h 05m",
		},
		{
			name: "guild joined",
			n: voice.Notification{Kind: voice.NotifyGuildJoined, Guild: &model.GuildInfo{
				ID: 77, Name: "Gamma", OwnerID: 8, MemberCount: 41,
			}},
			title:    "📥 BOT ADDED TO NEW SERVER!",
			color:    handler.ColorSuccess,
			contains: "**41** members",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embed := RenderNotification(5, tt.n)
			assert.Equal(t, tt.title, embed.Title)
			assert.Equal(t, tt.color, embed.Color)
			assert.NotNil(t, embed.Footer)

			text := embed.Description
			for _, f := range embed.Fields {
				text += "\n" + f.Value
			}
			assert.Contains(t, text, tt.contains)
		})
	}
}

func TestRenderNotification_LevelUpWithoutAccount(t *testing.T) {
	embed := RenderNotification(5, voice.Notification{Kind: voice.NotifyLevelUp, Levels: 2})
	assert.Contains(t, embed.Description, "2 levels")
	assert.Empty(t, embed.Fields)
}

func TestRenderNotification_OwnerNoticesUseOwnFooter(t *testing.T) {
	embed := RenderNotification(1, voice.Notification{
		Kind:  voice.NotifyGuildJoined,
		Guild: &model.GuildInfo{ID: 77, Name: "Gamma"},
	})
	assert.Equal(t, "Bot Join Notification", embed.Footer.Text)
	assert.Equal(t, "Unknown", embed.Fields[2].Value)

	embed = RenderNotification(1, voice.Notification{Kind: voice.NotifyDailyReport})
	assert.Equal(t, "Automated Daily Report", embed.Footer.Text)
	assert.Empty(t, embed.Fields)
}
