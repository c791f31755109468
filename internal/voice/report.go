package voice

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voice-credit-bot/internal/metrics"
	"voice-credit-bot/internal/model"
)

// Reporter sends the bot owner a periodic summary of servers, members and
// live sessions.
type Reporter struct {
	tracker    *Tracker
	guilds     GuildLister
	dispatcher *Dispatcher
	interval   time.Duration
	logger     zerolog.Logger
}

// NewReporter creates a Reporter.
func NewReporter(tracker *Tracker, guilds GuildLister, dispatcher *Dispatcher, interval time.Duration) *Reporter {
	return &Reporter{
		tracker:    tracker,
		guilds:     guilds,
		dispatcher: dispatcher,
		interval:   interval,
		logger:     log.With().Str("component", "reporter").Logger(),
	}
}

// Run reports once per interval until ctx is done. The first report goes
// out one interval after start.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("Reporter started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Reporter stopped")
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick builds one report and queues it for the owner.
func (r *Reporter) Tick(ctx context.Context) model.DailyReport {
	start := time.Now()
	defer func() {
		metrics.TickDuration.WithLabelValues("report").Observe(time.Since(start).Seconds())
	}()

	report := model.DailyReport{Uptime: r.tracker.Uptime()}
	for _, g := range r.guilds.Guilds() {
		report.Guilds++
		report.Members += g.MemberCount
	}

	sessions, err := r.tracker.Sessions(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to count sessions for report")
	} else {
		report.ActiveSessions = len(sessions)
	}

	if !r.dispatcher.EnqueueAdmin(Notification{Kind: NotifyDailyReport, Report: &report}) {
		r.logger.Warn().Msg("Daily report not queued")
	}
	return report
}
