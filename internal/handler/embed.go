package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Embed colors.
const (
	ColorPrimary = 0x5865F2
	ColorSuccess = 0x57F287
	ColorError   = 0xED4245
	ColorInfo    = 0x3498DB
	ColorPremium = 0x9B59B6
	ColorGold    = 0xFFD700
)

var medals = []string{"🥇", "🥈", "🥉", "4️⃣", "5️⃣", "6️⃣", "7️⃣", "8️⃣", "9️⃣", "🔟"}

func field(name, value string, inline bool) *discordgo.MessageEmbedField {
	return &discordgo.MessageEmbedField{Name: name, Value: value, Inline: inline}
}

func errorEmbed(title, description string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{Title: title, Description: description, Color: ColorError}
}

func successEmbed(title, description string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       ColorSuccess,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

// ProgressBar renders done out of total as ten squares.
func ProgressBar(done, total int64) (bar string, percent int64) {
	if total <= 0 {
		return strings.Repeat("⬜", 10), 0
	}
	if done < 0 {
		done = 0
	}
	if done > total {
		done = total
	}
	percent = done * 100 / total
	filled := int(percent / 10)
	return strings.Repeat("🟩", filled) + strings.Repeat("⬜", 10-filled), percent
}

// Plural returns "n unit" or "n units".
func Plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// Medal returns the leaderboard marker for a 1-based rank.
func Medal(rank int64) string {
	if rank >= 1 && int(rank) <= len(medals) {
		return medals[rank-1]
	}
	return fmt.Sprintf("%d.", rank)
}

// FormatDuration renders whole minutes as "1h 05m" or "42m".
func FormatDuration(d time.Duration) string {
	minutes := int64(d / time.Minute)
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
}
