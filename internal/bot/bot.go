// Package bot wires the Discord gateway to the voice engine and the
// command handlers.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"voice-credit-bot/internal/config"
	"voice-credit-bot/internal/handler"
	"voice-credit-bot/internal/service"
	"voice-credit-bot/internal/voice"
)

const (
	readyTimeout   = 30 * time.Second
	commandTimeout = 30 * time.Second
	eventTimeout   = 15 * time.Second
)

// NewSession creates a gateway session with the intents the bot needs.
// The session is not opened.
func NewSession(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	session.StateEnabled = true
	session.State.TrackVoice = true
	session.State.TrackMembers = true
	return session, nil
}

// Bot wraps the gateway session with application dependencies.
type Bot struct {
	session  *discordgo.Session
	cfg      *config.Config
	engine   *voice.Engine
	router   *Router
	ready    *readyWaiter
	presence *StatePresence

	// Handlers
	accountHandler *handler.AccountHandler
	rankingHandler *handler.RankingHandler
	priceHandler   *handler.PriceHandler
	historyHandler *handler.HistoryHandler
	adminHandler   *handler.AdminHandler
	channelHandler *handler.ChannelHandler
	serverHandler  *handler.ServerHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config      *config.Config
	Session     *discordgo.Session
	Directory   *StateDirectory
	Engine      *voice.Engine
	Credits     *service.CreditService
	Rates       *service.RateService
	Prices      *service.PriceService
	Ranking     *service.RankingService
	History     *service.HistoryService
	Permissions *service.PermissionService
	Policy      service.RewardPolicy
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Session == nil {
		return nil, fmt.Errorf("discord session is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("voice engine is required")
	}

	directory := deps.Directory
	if directory == nil {
		directory = NewStateDirectory(deps.Session)
	}
	b := &Bot{
		session:  deps.Session,
		cfg:      deps.Config,
		engine:   deps.Engine,
		router:   NewRouter(deps.Config.Bot.CommandPrefix),
		ready:    newReadyWaiter(),
		presence: NewStatePresence(deps.Session.State),
	}

	b.accountHandler = handler.NewAccountHandler(deps.Credits, deps.Rates, deps.Policy, deps.Engine.Tracker(), directory)
	b.rankingHandler = handler.NewRankingHandler(deps.Ranking, deps.Credits, directory)
	b.priceHandler = handler.NewPriceHandler(deps.Prices, deps.Credits)
	b.historyHandler = handler.NewHistoryHandler(deps.History)
	b.adminHandler = handler.NewAdminHandler(deps.Credits, deps.Rates, deps.Prices, deps.Permissions,
		deps.Engine.Dispatcher(), directory)
	b.channelHandler = handler.NewChannelHandler(deps.Permissions, directory)
	b.serverHandler = handler.NewServerHandler(directory)

	b.registerMiddleware()
	b.registerHandlers(deps.Permissions)

	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onGuildCreate)
	b.session.AddHandler(b.voiceStateUpdate)
	b.session.AddHandler(b.messageCreate)

	return b, nil
}

// registerMiddleware registers middleware run around every command.
func (b *Bot) registerMiddleware() {
	b.router.Use(MetricsMiddleware(), LoggingMiddleware(), RecoveryMiddleware())
}

// registerHandlers registers all commands.
func (b *Bot) registerHandlers(perms *service.PermissionService) {
	user := b.router.Group(RequireAllowedChannel(perms))
	user.Handle("credits", b.accountHandler.HandleCredits)
	user.Handle("voice", b.accountHandler.HandleVoice)
	user.Handle("level", b.accountHandler.HandleLevel)
	user.Handle("leader", b.rankingHandler.HandleLeader)
	user.Handle("prices", b.priceHandler.HandlePrices)
	user.Handle("history", b.historyHandler.HandleHistory)

	globalAdmin := b.router.Group(RequireGlobalAdmin(perms))
	globalAdmin.Handle("addcredits", b.adminHandler.HandleAddCredits)
	globalAdmin.Handle("unlimited", b.adminHandler.HandleUnlimited)
	globalAdmin.Handle("setvctime", b.adminHandler.HandleSetVCTime)
	globalAdmin.Handle("setvc", b.adminHandler.HandleSetVC)
	globalAdmin.Handle("setprice", b.adminHandler.HandleSetPrice)
	globalAdmin.Handle("servers", b.serverHandler.HandleServers)

	serverAdmin := b.router.Group(RequireServerAdmin(perms))
	serverAdmin.Handle("addadmin", b.adminHandler.HandleAddAdmin)
	serverAdmin.Handle("removeadmin", b.adminHandler.HandleRemoveAdmin)
	serverAdmin.Handle("addchannel", b.channelHandler.HandleAddChannel)
	serverAdmin.Handle("listchannels", b.channelHandler.HandleListChannels)
}

// Start opens the gateway, waits for the server list to load and then
// starts the voice engine, which reconciles against that state.
func (b *Bot) Start(ctx context.Context) error {
	log.Info().Msg("Starting bot...")
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	if !b.ready.wait(ctx, readyTimeout) {
		log.Warn().
			Int("pending_guilds", b.ready.pending()).
			Msg("Timed out waiting for guilds, starting with partial state")
	}

	if err := b.engine.Start(ctx); err != nil {
		_ = b.session.Close()
		return fmt.Errorf("failed to start voice engine: %w", err)
	}
	log.Info().
		Str("user", b.session.State.User.Username).
		Str("prefix", b.cfg.Bot.CommandPrefix).
		Msg("Bot is running")
	return nil
}

// Stop stops the engine and closes the gateway.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.engine.Stop()
	if err := b.session.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close Discord session")
	}
}

// Healthy reports whether the gateway connection is up.
func (b *Bot) Healthy() error {
	if !b.session.DataReady {
		return fmt.Errorf("discord gateway not ready")
	}
	return nil
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	log.Info().Int("guilds", len(r.Guilds)).Msg("Gateway ready")
	b.ready.onReady(r)
}

// onGuildCreate completes startup for servers announced in READY. A server
// never seen before is a new join and is reported to the owner.
func (b *Bot) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if !b.ready.onGuild(g.ID) || g.Guild == nil {
		return
	}
	info, ok := guildInfo(g.Guild)
	if !ok {
		return
	}
	log.Info().
		Int64("guild_id", info.ID).
		Str("name", info.Name).
		Int("members", info.MemberCount).
		Msg("Joined new server")
	b.engine.Dispatcher().EnqueueAdmin(voice.Notification{Kind: voice.NotifyGuildJoined, Guild: &info})
}

// voiceStateUpdate feeds voice presence changes to the tracker.
func (b *Bot) voiceStateUpdate(_ *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	ev, err := presenceEvent(vs)
	if err != nil {
		log.Debug().Err(err).Msg("Ignoring voice state update")
		return
	}
	if !ev.Bot && vs.Member == nil {
		ev.Bot = b.presence.isBot(vs.GuildID, vs.UserID, nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := b.engine.Tracker().HandlePresence(ctx, ev); err != nil {
		log.Error().
			Err(err).
			Int64("user_id", ev.UserID).
			Str("kind", ev.Kind()).
			Msg("Failed to handle voice state update")
	}
}

// messageCreate routes prefixed commands.
func (b *Bot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	command, args, ok := b.router.Parse(m.Content)
	if !ok {
		return
	}
	authorID, err := parseID(m.Author.ID)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	req := handler.NewRequest(ctx, &channelReplier{session: s, channelID: m.ChannelID, ref: m.Reference()})
	req.Command = command
	req.Args = args
	req.AuthorID = authorID
	req.Author = m.Author
	req.ChannelID, _ = parseID(m.ChannelID)
	if m.GuildID != "" {
		req.GuildID, _ = parseID(m.GuildID)
	}

	handled, err := b.router.Dispatch(req)
	if handled && err != nil {
		log.Error().Err(err).Str("command", command).Int64("user_id", authorID).Msg("Command failed")
		_ = req.ReplyText("❌ Something went wrong, please try again later.")
	}
}

// channelReplier answers in the channel a command came from.
type channelReplier struct {
	session   *discordgo.Session
	channelID string
	ref       *discordgo.MessageReference
}

func (c *channelReplier) ReplyEmbed(embed *discordgo.MessageEmbed) error {
	_, err := c.session.ChannelMessageSendComplex(c.channelID, &discordgo.MessageSend{
		Embeds:    []*discordgo.MessageEmbed{embed},
		Reference: c.ref,
	})
	return err
}

func (c *channelReplier) ReplyText(text string) error {
	_, err := c.session.ChannelMessageSendReply(c.channelID, text, c.ref)
	return err
}

// readyWaiter tracks the servers announced in READY until each has
// arrived in a GUILD_CREATE. It also remembers every server seen so that
// later joins can be told apart from reconnects.
type readyWaiter struct {
	mu       sync.Mutex
	waiting  map[string]bool
	known    map[string]bool
	gotReady bool
	done     chan struct{}
	closed   bool
}

func newReadyWaiter() *readyWaiter {
	return &readyWaiter{
		waiting: make(map[string]bool),
		known:   make(map[string]bool),
		done:    make(chan struct{}),
	}
}

func (w *readyWaiter) onReady(r *discordgo.Ready) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.gotReady = true
	for _, g := range r.Guilds {
		w.waiting[g.ID] = true
		w.known[g.ID] = true
	}
	w.maybeClose()
}

// onGuild records a GUILD_CREATE and reports whether it is a server the
// bot was not in when it connected.
func (w *readyWaiter) onGuild(guildID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.waiting, guildID)
	w.maybeClose()

	joined := w.gotReady && !w.known[guildID]
	w.known[guildID] = true
	return joined
}

func (w *readyWaiter) maybeClose() {
	if w.gotReady && !w.closed && len(w.waiting) == 0 {
		w.closed = true
		close(w.done)
	}
}

func (w *readyWaiter) pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.waiting)
}

// wait blocks until every server arrived, ctx ends or timeout passes.
func (w *readyWaiter) wait(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.done:
		return true
	case <-ctx.Done():
		return false
	case <-timer.C:
		return false
	}
}
