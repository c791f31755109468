package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"voice-credit-bot/internal/model"
	"voice-credit-bot/internal/service"
)

// HistoryHandler shows a user's recent credit movements.
type HistoryHandler struct {
	history *service.HistoryService
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(history *service.HistoryService) *HistoryHandler {
	return &HistoryHandler{history: history}
}

var txLabels = map[string]string{
	model.TxTypeVoice:      "🎧 Voice",
	model.TxTypeDebit:      "🔍 Lookup",
	model.TxTypeRefund:     "↩️ Refund",
	model.TxTypeAdminGrant: "🎁 Admin grant",
}

// HandleHistory handles !history [type].
func (h *HistoryHandler) HandleHistory(r *Request) error {
	txType := strings.ToLower(r.Arg(0))
	txs, err := h.history.Recent(r.Ctx, r.AuthorID, txType)
	if errors.Is(err, service.ErrUnknownTxType) {
		return r.Reply(errorEmbed("❌ Unknown Type",
			fmt.Sprintf("Use one of: `%s`", strings.Join(service.TxTypes(), "`, `"))))
	}
	if err != nil {
		return err
	}

	embed := &discordgo.MessageEmbed{
		Title:       "📜 Credit History",
		Description: fmt.Sprintf("**Recent activity for %s**", Mention(r.AuthorID)),
		Color:       ColorInfo,
	}
	if len(txs) == 0 {
		embed.Fields = append(embed.Fields, field("Nothing yet", "Join a voice channel to start earning credits! 🎤", false))
		return r.Reply(embed)
	}

	var sb strings.Builder
	for _, tx := range txs {
		label, ok := txLabels[tx.Type]
		if !ok {
			label = tx.Type
		}
		fmt.Fprintf(&sb, "%s **%+d** · <t:%d:R>", label, tx.Amount, tx.CreatedAt.Unix())
		if tx.Description != nil && *tx.Description != "" {
			fmt.Fprintf(&sb, "\n   %s", *tx.Description)
		}
		sb.WriteString("\n")
	}
	embed.Fields = append(embed.Fields, field("🧾 Transactions", sb.String(), false))
	return r.Reply(embed)
}
