// Package model defines the data models for the voice credit bot.
package model

import (
	"fmt"
	"time"
)

// Account is a user's global credit ledger row. It is created lazily with all
// counters at zero and is never deleted.
type Account struct {
	UserID            int64     `db:"user_id"`
	Credits           int64     `db:"credits"`
	Level             int64     `db:"level"`
	TotalVoiceMinutes int64     `db:"total_voice_minutes"`
	Unlimited         bool      `db:"unlimited"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// Location identifies a voice channel inside a server.
type Location struct {
	GuildID   int64 `db:"guild_id"`
	ChannelID int64 `db:"channel_id"`
}

// String renders the location as guild/channel.
func (l Location) String() string {
	return fmt.Sprintf("%d/%d", l.GuildID, l.ChannelID)
}

// VoiceSession is a user's single active presence session.
// LastAccountedAt is the checkpoint up to which TotalVoiceMinutes has been
// credited; it never precedes JoinedAt.
type VoiceSession struct {
	UserID          int64     `db:"user_id"`
	Location        Location  `db:"-"`
	JoinedAt        time.Time `db:"join_time"`
	LastAccountedAt time.Time `db:"last_accounted_time"`
}

// RateSetting is a minutes-per-credit setting. GuildID 0 is the global default.
type RateSetting struct {
	GuildID          int64     `db:"server_id"`
	MinutesPerCredit int       `db:"minutes_per_credit"`
	UpdatedBy        int64     `db:"updated_by"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// GlobalRateGuild is the GuildID under which the global default rate is stored.
const GlobalRateGuild int64 = 0

// ServicePrice is the credit cost of a paid lookup operation.
type ServicePrice struct {
	Service   string    `db:"service_name"`
	Price     int64     `db:"price"`
	UpdatedBy int64     `db:"updated_by"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Transaction is an audit record of a credit movement.
type Transaction struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	Amount      int64     `db:"amount"`
	Type        string    `db:"type"`
	Description *string   `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// RankedAccount is an account with its leaderboard position.
type RankedAccount struct {
	Account
	Rank int64 `db:"rank"`
}

// Transaction types for categorizing credit changes.
const (
	TxTypeVoice      = "voice"       // Credits earned from voice presence
	TxTypeDebit      = "debit"       // Credits spent on a paid lookup
	TxTypeRefund     = "refund"      // Debit returned after a failed lookup
	TxTypeAdminGrant = "admin_grant" // Credits granted by an admin
)

// AwardFunc maps a total_voice_minutes transition to the credits and levels it earns.
type AwardFunc func(minutesBefore, minutesAfter int64) (credits, levels int64)

// Settlement describes one checkpoint move of a voice session together with
// the minutes it credits. Expected must equal the stored checkpoint or the
// settlement is rejected. When Close is set the session row is deleted
// instead of advanced.
type Settlement struct {
	UserID        int64
	Expected      time.Time
	NewCheckpoint time.Time
	Minutes       int64
	Close         bool
	Award         AwardFunc
	Description   string
}

// Accrual is the ledger outcome of a settlement.
type Accrual struct {
	Minutes       int64
	Credits       int64
	Levels        int64
	MinutesBefore int64
	Account       *Account
}

// GuildInfo describes a server the bot is in.
type GuildInfo struct {
	ID          int64
	Name        string
	OwnerID     int64
	MemberCount int
}

// DailyReport is the periodic summary sent to the bot owner.
type DailyReport struct {
	Guilds         int
	Members        int
	ActiveSessions int
	Uptime         time.Duration
}
