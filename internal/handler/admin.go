package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"voice-credit-bot/internal/service"
	"voice-credit-bot/internal/voice"
)

// AdminHandler handles admin commands. Permission checks happen in
// middleware before these run.
type AdminHandler struct {
	credits     *service.CreditService
	rates       *service.RateService
	prices      *service.PriceService
	permissions *service.PermissionService
	dispatcher  *voice.Dispatcher
	directory   Directory
	resolvers   ResolverChain
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	credits *service.CreditService,
	rates *service.RateService,
	prices *service.PriceService,
	permissions *service.PermissionService,
	dispatcher *voice.Dispatcher,
	directory Directory,
) *AdminHandler {
	return &AdminHandler{
		credits:     credits,
		rates:       rates,
		prices:      prices,
		permissions: permissions,
		dispatcher:  dispatcher,
		directory:   directory,
		resolvers:   DefaultResolvers,
	}
}

func (h *AdminHandler) resolve(r *Request, input string) (int64, bool) {
	return h.resolvers.Resolve(input, h.directory.Members(r.GuildID))
}

func userNotFound() *discordgo.MessageEmbed {
	return errorEmbed("❌ User Not Found", "Please provide a valid user ID, mention, or username.")
}

// HandleAddCredits handles !addcredits <user> <amount>.
func (h *AdminHandler) HandleAddCredits(r *Request) error {
	if len(r.Args) < 2 {
		return r.ReplyText("Usage: `!addcredits <user> <amount>`")
	}
	userID, ok := h.resolve(r, r.Arg(0))
	if !ok {
		return r.Reply(userNotFound())
	}
	amount, err := r.IntArg(1)
	if err != nil || amount <= 0 {
		return r.Reply(errorEmbed("❌ Invalid Amount", "Credit amount must be a positive number."))
	}

	acc, err := h.credits.GrantCredits(r.Ctx, r.AuthorID, userID, amount)
	if err != nil {
		return err
	}

	h.dispatcher.Enqueue(userID, voice.Notification{
		Kind:    voice.NotifyCreditsGranted,
		Credits: amount,
		Account: acc,
		ActorID: r.AuthorID,
	})

	embed := successEmbed("💰 Credits Added!",
		fmt.Sprintf("**Successfully added %s to %s!**", Plural(amount, "credit"), Mention(userID)))
	embed.Fields = []*discordgo.MessageEmbedField{
		field("👤 User", fmt.Sprintf("%s\n(ID: `%d`)", Mention(userID), userID), true),
		field("💎 Credits Added", fmt.Sprintf("**%d**", amount), true),
		field("📊 New Balance", fmt.Sprintf("**%d credits**", acc.Credits), true),
		field("👤 Added By", Mention(r.AuthorID), true),
	}
	return r.Reply(embed)
}

// HandleUnlimited handles !unlimited <user> [on|off].
func (h *AdminHandler) HandleUnlimited(r *Request) error {
	if len(r.Args) < 1 {
		return r.ReplyText("Usage: `!unlimited <user> [on|off]`")
	}
	userID, ok := h.resolve(r, r.Arg(0))
	if !ok {
		return r.Reply(userNotFound())
	}

	grant := true
	switch strings.ToLower(r.Arg(1)) {
	case "", "on", "yes", "true":
	case "off", "no", "false":
		grant = false
	default:
		return r.ReplyText("Usage: `!unlimited <user> [on|off]`")
	}

	var err error
	if grant {
		_, err = h.credits.GrantUnlimited(r.Ctx, r.AuthorID, userID)
	} else {
		_, err = h.credits.RevokeUnlimited(r.Ctx, r.AuthorID, userID)
	}
	if err != nil {
		return err
	}

	if grant {
		return r.Reply(successEmbed("✨ Unlimited Access Granted", fmt.Sprintf("%s now has unlimited credits.", Mention(userID))))
	}
	return r.Reply(successEmbed("✅ Unlimited Access Revoked", fmt.Sprintf("%s pays for lookups again.", Mention(userID))))
}

// HandleSetVCTime handles !setvctime <minutes>, the global rate.
func (h *AdminHandler) HandleSetVCTime(r *Request) error {
	minutes, err := r.IntArg(0)
	if err != nil {
		return r.ReplyText("Usage: `!setvctime <minutes>`")
	}
	if err := h.rates.SetGlobalRate(r.Ctx, int(minutes), r.AuthorID); err != nil {
		if errors.Is(err, service.ErrInvalidRate) {
			return r.Reply(errorEmbed("❌ Invalid Rate", "Minutes must be between 1 and 60!"))
		}
		return err
	}

	embed := successEmbed("✅ Global Voice Chat Time Updated!",
		fmt.Sprintf("**Global voice chat time per credit has been set to %d minutes!**", minutes))
	embed.Fields = []*discordgo.MessageEmbedField{
		field("⏰ New Setting", fmt.Sprintf("**%d minutes** = 1 credit", minutes), true),
		field("👤 Updated By", Mention(r.AuthorID), true),
		field("📊 Affects", "All servers without their own setting", false),
	}
	return r.Reply(embed)
}

// HandleSetVC handles !setvc <server_id> <minutes>.
func (h *AdminHandler) HandleSetVC(r *Request) error {
	guildID, err := r.IntArg(0)
	if err != nil {
		return r.ReplyText("Usage: `!setvc <server_id> <minutes>`")
	}
	minutes, err := r.IntArg(1)
	if err != nil {
		return r.ReplyText("Usage: `!setvc <server_id> <minutes>`")
	}
	if minutes < service.MinMinutesPerCredit || minutes > service.MaxMinutesPerCredit {
		return r.Reply(errorEmbed("❌ Invalid Rate", "Minutes must be between 1 and 60!"))
	}

	name, ok := h.directory.GuildName(guildID)
	if !ok {
		return r.Reply(errorEmbed("❌ Server Not Found", fmt.Sprintf("The bot is not in server `%d`.", guildID)))
	}

	if err := h.rates.SetRate(r.Ctx, guildID, int(minutes), r.AuthorID); err != nil {
		return err
	}

	embed := successEmbed("✅ Server Voice Chat Time Updated!",
		fmt.Sprintf("**Voice chat time per credit has been set to %d minutes for %s!**", minutes, name))
	embed.Fields = []*discordgo.MessageEmbedField{
		field("⏰ New Setting", fmt.Sprintf("**%d minutes** = 1 credit", minutes), true),
		field("🏢 Server", fmt.Sprintf("**%s**\n(ID: `%d`)", name, guildID), true),
		field("👤 Updated By", Mention(r.AuthorID), true),
	}
	return r.Reply(embed)
}

// HandleSetPrice handles !setprice <service> <price>.
func (h *AdminHandler) HandleSetPrice(r *Request) error {
	if len(r.Args) < 2 {
		return r.ReplyText("Usage: `!setprice <service> <price>`")
	}
	name := strings.ToLower(r.Arg(0))
	price, err := r.IntArg(1)
	if err != nil {
		return r.ReplyText("Usage: `!setprice <service> <price>`")
	}

	if err := h.prices.SetPrice(r.Ctx, name, price, r.AuthorID); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			return r.Reply(errorEmbed("❌ Invalid Price", "Price must be at least 1 credit!"))
		case errors.Is(err, service.ErrUnknownService):
			return r.Reply(errorEmbed("❌ Invalid Service", "Valid services: "+h.serviceNames(r)))
		}
		return err
	}

	embed := successEmbed("✅ Service Price Updated!", fmt.Sprintf("**%s** now costs %s.", name, Plural(price, "credit")))
	embed.Fields = []*discordgo.MessageEmbedField{
		field("👤 Updated By", Mention(r.AuthorID), true),
	}
	return r.Reply(embed)
}

func (h *AdminHandler) serviceNames(r *Request) string {
	prices, err := h.prices.Prices(r.Ctx)
	if err != nil {
		return "unavailable"
	}
	names := make([]string, 0, len(prices))
	for _, p := range prices {
		names = append(names, p.Service)
	}
	return strings.Join(names, ", ")
}

// HandleAddAdmin handles !addadmin <user> for the current server.
func (h *AdminHandler) HandleAddAdmin(r *Request) error {
	if r.GuildID == 0 {
		return r.ReplyText("This command only works inside a server.")
	}
	if len(r.Args) < 1 {
		return r.ReplyText("Usage: `!addadmin <user>`")
	}
	userID, ok := h.resolve(r, r.Arg(0))
	if !ok {
		return r.Reply(userNotFound())
	}

	already, err := h.permissions.IsServerAdmin(r.Ctx, r.GuildID, userID)
	if err != nil {
		return err
	}
	if already {
		return r.Reply(errorEmbed("❌ Already an Admin", fmt.Sprintf("%s is already a server admin!", Mention(userID))))
	}

	if err := h.permissions.AddServerAdmin(r.Ctx, r.GuildID, userID, r.AuthorID); err != nil {
		return err
	}

	name, _ := h.directory.GuildName(r.GuildID)
	embed := successEmbed("✅ Server Admin Added!", fmt.Sprintf("**%s is now a server admin!**", Mention(userID)))
	embed.Fields = []*discordgo.MessageEmbedField{
		field("👤 New Admin", fmt.Sprintf("%s\n(ID: `%d`)", Mention(userID), userID), true),
		field("🏢 Server", fmt.Sprintf("**%s**", name), true),
		field("👑 Added By", Mention(r.AuthorID), true),
	}
	return r.Reply(embed)
}

// HandleRemoveAdmin handles !removeadmin <user> for the current server.
func (h *AdminHandler) HandleRemoveAdmin(r *Request) error {
	if r.GuildID == 0 {
		return r.ReplyText("This command only works inside a server.")
	}
	if len(r.Args) < 1 {
		return r.ReplyText("Usage: `!removeadmin <user>`")
	}
	userID, ok := h.resolve(r, r.Arg(0))
	if !ok {
		return r.Reply(userNotFound())
	}

	global, err := h.permissions.IsGlobalAdmin(r.Ctx, userID)
	if err != nil {
		return err
	}
	if global {
		return r.Reply(errorEmbed("❌ Global Admin", fmt.Sprintf("%s is a global admin and cannot be removed here.", Mention(userID))))
	}
	isAdmin, err := h.permissions.IsServerAdmin(r.Ctx, r.GuildID, userID)
	if err != nil {
		return err
	}
	if !isAdmin {
		return r.Reply(errorEmbed("❌ Not an Admin", fmt.Sprintf("%s is not a server admin.", Mention(userID))))
	}

	if err := h.permissions.RemoveServerAdmin(r.Ctx, r.GuildID, userID, r.AuthorID); err != nil {
		return err
	}
	return r.Reply(successEmbed("✅ Server Admin Removed", fmt.Sprintf("**%s is no longer a server admin.**", Mention(userID))))
}
