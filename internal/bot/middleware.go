package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"voice-credit-bot/internal/handler"
	"voice-credit-bot/internal/metrics"
)

// PermissionChecker answers admin questions for middleware.
type PermissionChecker interface {
	IsGlobalAdmin(ctx context.Context, userID int64) (bool, error)
	IsServerAdmin(ctx context.Context, guildID, userID int64) (bool, error)
}

// RequireGlobalAdmin lets only global admins through.
func RequireGlobalAdmin(perms PermissionChecker) handler.MiddlewareFunc {
	return func(next handler.HandlerFunc) handler.HandlerFunc {
		return func(r *handler.Request) error {
			ok, err := perms.IsGlobalAdmin(r.Ctx, r.AuthorID)
			if err != nil {
				return err
			}
			if !ok {
				log.Warn().
					Int64("user_id", r.AuthorID).
					Str("command", r.Command).
					Msg("Non-admin attempted global admin command")
				return r.ReplyText("🚫 You need global administrator privileges to use this command.")
			}
			return next(r)
		}
	}
}

// RequireServerAdmin lets through admins of the server the command came
// from. Global admins pass everywhere.
func RequireServerAdmin(perms PermissionChecker) handler.MiddlewareFunc {
	return func(next handler.HandlerFunc) handler.HandlerFunc {
		return func(r *handler.Request) error {
			ok, err := perms.IsServerAdmin(r.Ctx, r.GuildID, r.AuthorID)
			if err != nil {
				return err
			}
			if !ok {
				log.Warn().
					Int64("user_id", r.AuthorID).
					Int64("guild_id", r.GuildID).
					Str("command", r.Command).
					Msg("Non-admin attempted server admin command")
				return r.ReplyText("🚫 You need server administrator privileges to use this command.")
			}
			return next(r)
		}
	}
}

// ChannelChecker answers whether user commands may run in a channel.
type ChannelChecker interface {
	IsChannelAllowed(ctx context.Context, channelID, userID int64) (bool, error)
}

// RequireAllowedChannel lets commands through only in channels a server
// admin has opened.
func RequireAllowedChannel(channels ChannelChecker) handler.MiddlewareFunc {
	return func(next handler.HandlerFunc) handler.HandlerFunc {
		return func(r *handler.Request) error {
			ok, err := channels.IsChannelAllowed(r.Ctx, r.ChannelID, r.AuthorID)
			if err != nil {
				return err
			}
			if !ok {
				log.Debug().
					Int64("user_id", r.AuthorID).
					Int64("channel_id", r.ChannelID).
					Str("command", r.Command).
					Msg("Command used outside allowed channels")
				return r.Reply(&discordgo.MessageEmbed{
					Title:       "🚫 Channel Restricted",
					Description: "This bot can only be used in authorized channels.",
					Color:       handler.ColorError,
				})
			}
			return next(r)
		}
	}
}

// LoggingMiddleware logs every command.
func LoggingMiddleware() handler.MiddlewareFunc {
	return func(next handler.HandlerFunc) handler.HandlerFunc {
		return func(r *handler.Request) error {
			start := time.Now()
			err := next(r)

			logEvent := log.Debug()
			if err != nil {
				logEvent = log.Warn().Err(err)
			}
			logEvent.
				Int64("user_id", r.AuthorID).
				Int64("guild_id", r.GuildID).
				Int64("channel_id", r.ChannelID).
				Str("command", r.Command).
				Strs("args", r.Args).
				Dur("took", time.Since(start)).
				Msg("Handled command")
			return err
		}
	}
}

// MetricsMiddleware counts commands by outcome.
func MetricsMiddleware() handler.MiddlewareFunc {
	return func(next handler.HandlerFunc) handler.HandlerFunc {
		return func(r *handler.Request) error {
			err := next(r)
			result := "ok"
			if err != nil {
				result = "error"
			}
			metrics.CommandsTotal.WithLabelValues(r.Command, result).Inc()
			return err
		}
	}
}

// RecoveryMiddleware turns a handler panic into an error.
func RecoveryMiddleware() handler.MiddlewareFunc {
	return func(next handler.HandlerFunc) handler.HandlerFunc {
		return func(r *handler.Request) (err error) {
			defer func() {
				if p := recover(); p != nil {
					log.Error().
						Interface("panic", p).
						Str("command", r.Command).
						Msg("Recovered from panic in handler")
					err = fmt.Errorf("panic in %s: %v", r.Command, p)
				}
			}()
			return next(r)
		}
	}
}
