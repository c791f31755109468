package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"voice-credit-bot/internal/bot"
	"voice-credit-bot/internal/config"
	"voice-credit-bot/internal/metrics"
	"voice-credit-bot/internal/pkg/db"
	"voice-credit-bot/internal/pkg/lock"
	"voice-credit-bot/internal/repository"
	"voice-credit-bot/internal/service"
	"voice-credit-bot/internal/voice"
)

const (
	leaderboardSize = 10
	historySize     = 10
	shutdownTimeout = 10 * time.Second
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "voicebot",
		Short:         "Discord bot that pays credits for time spent in voice chat",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config", "directory containing config.yaml")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and start accruing credits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrate(cmd.Context(), configPath)
		},
	})
	return root
}

// setupLogger configures the global zerolog logger.
func setupLogger(cfg config.LoggingConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogger(cfg.Logging)
	log.Info().Msg("Configuration loaded successfully")
	return cfg, nil
}

func migrate(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	pool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	return db.Migrate(ctx, pool)
}

func run(parent context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	// Repositories
	accountRepo := repository.NewAccountRepository(pool.Pool)
	sessionRepo := repository.NewSessionRepository(pool.Pool)
	rateRepo := repository.NewRateRepository(pool.Pool)
	priceRepo := repository.NewPriceRepository(pool.Pool)
	adminRepo := repository.NewAdminRepository(pool.Pool)
	channelRepo := repository.NewChannelRepository(pool.Pool)
	txRepo := repository.NewTransactionRepository(pool.Pool)

	// Services
	userLock := lock.NewUserLock()
	creditService := service.NewCreditService(accountRepo, userLock)
	rateService := service.NewRateService(rateRepo, cfg.Voice.DefaultMinutesPerCredit, cfg.Voice.RateCacheTTL)
	priceService := service.NewPriceService(priceRepo, cfg.Prices)
	rankingService := service.NewRankingService(accountRepo, leaderboardSize)
	historyService := service.NewHistoryService(txRepo, historySize)
	permissionService := service.NewPermissionService(adminRepo, channelRepo, cfg.AdminIDs())
	policy := service.NewRewardPolicy(cfg.Voice.CreditsPerLevel)

	if err := priceService.Seed(ctx); err != nil {
		return fmt.Errorf("failed to seed service prices: %w", err)
	}
	if err := permissionService.Bootstrap(ctx); err != nil {
		return fmt.Errorf("failed to bootstrap admins: %w", err)
	}

	// Discord session and voice engine
	session, err := bot.NewSession(cfg.Bot.Token)
	if err != nil {
		return err
	}

	directory := bot.NewStateDirectory(session)
	engine := voice.NewEngine(voice.Deps{
		Store:    sessionRepo,
		Rates:    rateService,
		Presence: bot.NewStatePresence(session.State),
		Notifier: bot.NewDMNotifier(session),
		Locks:    userLock,
		Guilds:   directory,
	}, voice.Config{
		SweepInterval:   cfg.Voice.SweepInterval,
		ReapInterval:    cfg.Voice.ReapInterval,
		StaleTimeout:    cfg.Voice.StaleTimeout,
		CreditsPerLevel: cfg.Voice.CreditsPerLevel,
		NotifyJoin:      cfg.Voice.NotifyJoin,
		NotifyQueueSize: cfg.Voice.NotifyQueueSize,
		AdminID:         cfg.Bot.OwnerID,
		ReportInterval:  cfg.Reports.DailyInterval,
	})

	discordBot, err := bot.New(&bot.Dependencies{
		Config:      cfg,
		Session:     session,
		Directory:   directory,
		Engine:      engine,
		Credits:     creditService,
		Rates:       rateService,
		Prices:      priceService,
		Ranking:     rankingService,
		History:     historyService,
		Permissions: permissionService,
		Policy:      policy,
	})
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	// Metrics
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr, func(ctx context.Context) error {
			if err := pool.HealthCheck(ctx); err != nil {
				return err
			}
			return discordBot.Healthy()
		}, log.Logger)
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	if err := discordBot.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info().Msg("Received shutdown signal")

	discordBot.Stop()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to stop metrics server")
		}
	}
	log.Info().Msg("Bot stopped gracefully")
	return nil
}
