// Package handler implements the bot's chat commands.
package handler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"
)

// Replier sends responses back to the channel a command came from.
type Replier interface {
	ReplyEmbed(embed *discordgo.MessageEmbed) error
	ReplyText(text string) error
}

// Request is one parsed command invocation.
type Request struct {
	Ctx       context.Context
	Command   string
	Args      []string
	GuildID   int64
	ChannelID int64
	AuthorID  int64
	Author    *discordgo.User

	replier Replier
}

// NewRequest creates a Request answered through replier.
func NewRequest(ctx context.Context, replier Replier) *Request {
	return &Request{Ctx: ctx, replier: replier}
}

// Reply sends an embed.
func (r *Request) Reply(embed *discordgo.MessageEmbed) error {
	return r.replier.ReplyEmbed(embed)
}

// ReplyText sends a plain message.
func (r *Request) ReplyText(text string) error {
	return r.replier.ReplyText(text)
}

// Arg returns the i-th argument or "".
func (r *Request) Arg(i int) string {
	if i < 0 || i >= len(r.Args) {
		return ""
	}
	return r.Args[i]
}

// IntArg parses the i-th argument as an integer.
func (r *Request) IntArg(i int) (int64, error) {
	raw := r.Arg(i)
	if raw == "" {
		return 0, fmt.Errorf("missing argument %d", i+1)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("argument %d is not a number: %q", i+1, raw)
	}
	return n, nil
}

// HandlerFunc handles a command.
type HandlerFunc func(r *Request) error

// MiddlewareFunc wraps a HandlerFunc.
type MiddlewareFunc func(next HandlerFunc) HandlerFunc

// Mention renders a user mention.
func Mention(userID int64) string {
	return fmt.Sprintf("<@%d>", userID)
}
