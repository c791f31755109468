package voice

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voice-credit-bot/internal/metrics"
)

// Reaper deletes sessions whose checkpoint has not moved for longer than
// the stale timeout. Reaped time is never credited.
type Reaper struct {
	tracker  *Tracker
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewReaper creates a Reaper.
func NewReaper(tracker *Tracker, interval, timeout time.Duration) *Reaper {
	return &Reaper{
		tracker:  tracker,
		interval: interval,
		timeout:  timeout,
		logger:   log.With().Str("component", "reaper").Logger(),
	}
}

// Run ticks until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().
		Dur("interval", r.interval).
		Dur("stale_timeout", r.timeout).
		Msg("Reaper started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Reaper stopped")
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick reaps every stale session and returns how many it removed.
func (r *Reaper) Tick(ctx context.Context) int {
	start := time.Now()
	defer func() {
		metrics.TickDuration.WithLabelValues("reap").Observe(time.Since(start).Seconds())
	}()

	sessions, err := r.tracker.Sessions(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to list sessions")
		return 0
	}

	reaped := 0
	for _, sess := range sessions {
		if ctx.Err() != nil {
			break
		}
		if !r.tracker.IsStale(sess, r.timeout) {
			continue
		}

		ok, err := r.tracker.ReapIfStale(ctx, sess.UserID, r.timeout)
		if err != nil {
			r.logger.Warn().Err(err).Int64("user_id", sess.UserID).Msg("Reap failed for user")
			continue
		}
		if ok {
			reaped++
		}
	}

	if reaped > 0 {
		r.logger.Info().Int("reaped", reaped).Msg("Stale sessions removed")
	}
	return reaped
}
