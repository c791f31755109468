package handler

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"voice-credit-bot/internal/service"
)

// PriceHandler shows what paid lookups cost.
type PriceHandler struct {
	prices  *service.PriceService
	credits *service.CreditService
}

// NewPriceHandler creates a new PriceHandler.
func NewPriceHandler(prices *service.PriceService, credits *service.CreditService) *PriceHandler {
	return &PriceHandler{prices: prices, credits: credits}
}

// HandlePrices handles !prices, listing each service and whether the caller
// can afford it.
func (h *PriceHandler) HandlePrices(r *Request) error {
	prices, err := h.prices.Prices(r.Ctx)
	if err != nil {
		return err
	}

	var sb strings.Builder
	for _, p := range prices {
		mark := "❌"
		ok, err := h.credits.HasSufficientCredit(r.Ctx, r.AuthorID, p.Price)
		if err != nil {
			log.Warn().Err(err).Int64("user_id", r.AuthorID).Msg("Failed to check credit")
		} else if ok {
			mark = "✅"
		}
		fmt.Fprintf(&sb, "%s **%s**: %s\n", mark, p.Service, Plural(p.Price, "credit"))
	}

	return r.Reply(&discordgo.MessageEmbed{
		Title:       "💎 Service Prices",
		Description: sb.String(),
		Color:       ColorPrimary,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Earn credits by staying in voice chat"},
	})
}
