package voice

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ReconcileStats summarizes a startup reconciliation.
type ReconcileStats struct {
	Restored int
	Dropped  int
	Adopted  int
	Errors   int
}

// Reconciler brings persisted sessions in line with live presence once,
// before the sweeper starts.
type Reconciler struct {
	tracker  *Tracker
	presence PresenceSource
	logger   zerolog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(tracker *Tracker, presence PresenceSource) *Reconciler {
	return &Reconciler{
		tracker:  tracker,
		presence: presence,
		logger:   log.With().Str("component", "reconciler").Logger(),
	}
}

// Run restores sessions whose users are still in the recorded channel and
// drops the rest without credit. Users found in voice with no session get a
// new one. Restored checkpoints are left as stored; downtime is excluded by
// the tracker's resume floor.
func (r *Reconciler) Run(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats

	sessions, err := r.tracker.Sessions(ctx)
	if err != nil {
		return stats, fmt.Errorf("load sessions: %w", err)
	}

	for _, s := range sessions {
		kept, err := r.tracker.Restore(ctx, s.UserID)
		if err != nil {
			stats.Errors++
			r.logger.Warn().Err(err).Int64("user_id", s.UserID).Msg("Failed to restore session")
			continue
		}
		if kept {
			stats.Restored++
		} else {
			stats.Dropped++
		}
	}

	live, err := r.presence.Snapshot(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to snapshot voice presence, skipping adoption")
		stats.Errors++
	}
	for _, p := range live {
		opened, err := r.tracker.Adopt(ctx, p)
		if err != nil {
			stats.Errors++
			r.logger.Warn().Err(err).Int64("user_id", p.UserID).Msg("Failed to adopt live presence")
			continue
		}
		if opened {
			stats.Adopted++
		}
	}

	r.logger.Info().
		Int("restored", stats.Restored).
		Int("dropped", stats.Dropped).
		Int("adopted", stats.Adopted).
		Int("errors", stats.Errors).
		Msg("Voice sessions reconciled")
	return stats, nil
}
