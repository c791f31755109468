package voice

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voice-credit-bot/internal/metrics"
)

// SweepStats summarizes one sweep.
type SweepStats struct {
	Sessions int
	Credited int
	Closed   int
	Rebound  int
	Errors   int
}

// Sweeper periodically credits every active session. Ticks run one after
// another on a single goroutine, so a slow tick delays the next instead of
// overlapping it.
type Sweeper struct {
	tracker  *Tracker
	interval time.Duration
	logger   zerolog.Logger
}

// NewSweeper creates a Sweeper.
func NewSweeper(tracker *Tracker, interval time.Duration) *Sweeper {
	return &Sweeper{
		tracker:  tracker,
		interval: interval,
		logger:   log.With().Str("component", "sweeper").Logger(),
	}
}

// Run ticks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("Sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Sweeper stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick sweeps every stored session once. A failure for one user is logged
// and left for the next tick.
func (s *Sweeper) Tick(ctx context.Context) SweepStats {
	start := time.Now()
	defer func() {
		metrics.TickDuration.WithLabelValues("sweep").Observe(time.Since(start).Seconds())
	}()

	var stats SweepStats
	sessions, err := s.tracker.Sessions(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list sessions")
		stats.Errors++
		return stats
	}
	stats.Sessions = len(sessions)
	metrics.ActiveSessions.Set(float64(len(sessions)))

	for _, sess := range sessions {
		if ctx.Err() != nil {
			break
		}

		result, err := s.tracker.Sweep(ctx, sess.UserID)
		if err != nil {
			stats.Errors++
			s.logger.Warn().Err(err).Int64("user_id", sess.UserID).Msg("Sweep failed for user")
			continue
		}

		switch result {
		case SweepCredited:
			stats.Credited++
		case SweepClosed:
			stats.Closed++
		case SweepRebound:
			stats.Rebound++
		}
	}

	s.logger.Debug().
		Int("sessions", stats.Sessions).
		Int("credited", stats.Credited).
		Int("closed", stats.Closed).
		Int("rebound", stats.Rebound).
		Int("errors", stats.Errors).
		Msg("Sweep complete")
	return stats
}
