package voice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voice-credit-bot/internal/metrics"
	"voice-credit-bot/internal/model"
	"voice-credit-bot/internal/pkg/lock"
	"voice-credit-bot/internal/repository"
	"voice-credit-bot/internal/service"
)

// Close reasons, used in logs and metrics.
const (
	ReasonLeave    = "leave"
	ReasonRejoin   = "rejoin"
	ReasonGone     = "implicit_leave"
	ReasonRebound  = "relocated"
	ReasonStale    = "stale"
	ReasonRestored = "startup_dropped"
)

// SweepResult is what a sweep did to one session.
type SweepResult int

const (
	SweepIdle SweepResult = iota
	SweepCredited
	SweepClosed
	SweepRebound
	SweepMissing
)

// Status is a read-only view of a user's session.
type Status struct {
	Session          *model.VoiceSession
	PendingMinutes   int64
	MinutesPerCredit int
}

// Tracker owns every voice session mutation. All work for a user happens
// under that user's lock, so events, sweeps and reaping never interleave for
// the same user.
type Tracker struct {
	store      Store
	rates      RateResolver
	presence   PresenceSource
	policy     service.RewardPolicy
	dispatcher *Dispatcher
	locks      *lock.UserLock
	clock      Clock
	notifyJoin bool
	logger     zerolog.Logger

	// resumeFloor is when this process started accounting. Time before it
	// is never credited, whatever a persisted checkpoint says.
	resumeFloor time.Time
}

// NewTracker creates a Tracker. The resume floor is the clock's current time.
func NewTracker(deps Deps, dispatcher *Dispatcher, cfg Config) *Tracker {
	clock := deps.Clock
	if clock == nil {
		clock = RealClock{}
	}
	locks := deps.Locks
	if locks == nil {
		locks = lock.NewUserLock()
	}

	t := &Tracker{
		store:      deps.Store,
		rates:      deps.Rates,
		presence:   deps.Presence,
		policy:     service.NewRewardPolicy(cfg.CreditsPerLevel),
		dispatcher: dispatcher,
		locks:      locks,
		clock:      clock,
		notifyJoin: cfg.NotifyJoin,
		logger:     log.With().Str("component", "tracker").Logger(),
	}
	t.resumeFloor = t.now()
	return t
}

// Uptime is how long this process has been accounting.
func (t *Tracker) Uptime() time.Duration {
	return t.now().Sub(t.resumeFloor)
}

// now truncates to the store's timestamp precision so that values read back
// compare equal to the ones written.
func (t *Tracker) now() time.Time {
	return t.clock.Now().UTC().Truncate(time.Microsecond)
}

// checkpoint returns the instant elapsed time is measured from.
func (t *Tracker) checkpoint(s *model.VoiceSession) time.Time {
	if s.LastAccountedAt.Before(t.resumeFloor) {
		return t.resumeFloor
	}
	return s.LastAccountedAt
}

// owed returns the checkpoint and the whole minutes elapsed since it.
func (t *Tracker) owed(s *model.VoiceSession, now time.Time) (time.Time, int64) {
	from := t.checkpoint(s)
	if !now.After(from) {
		return from, 0
	}
	return from, int64(now.Sub(from) / time.Minute)
}

// load returns the user's session, or nil if there is none.
func (t *Tracker) load(ctx context.Context, userID int64) (*model.VoiceSession, error) {
	s, err := t.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// HandlePresence routes a platform voice state event. Bot accounts and
// updates that do not change the channel are ignored.
func (t *Tracker) HandlePresence(ctx context.Context, ev PresenceEvent) error {
	if ev.Bot {
		return nil
	}

	kind := ev.Kind()
	switch kind {
	case "join":
		metrics.PresenceEventsTotal.WithLabelValues(kind).Inc()
		return t.OnJoin(ctx, ev.UserID, *ev.After)
	case "leave":
		metrics.PresenceEventsTotal.WithLabelValues(kind).Inc()
		return t.leave(ctx, ev.UserID, ev.Before)
	case "move":
		metrics.PresenceEventsTotal.WithLabelValues(kind).Inc()
		return t.OnMove(ctx, ev.UserID, *ev.After)
	default:
		return nil
	}
}

// OnJoin opens a session at loc. A session the user already had is closed
// first, crediting what it owed.
func (t *Tracker) OnJoin(ctx context.Context, userID int64, loc model.Location) error {
	return t.locks.WithLock(ctx, userID, func() error {
		now := t.now()
		existing, err := t.load(ctx, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			if _, err := t.closeLocked(ctx, existing, now, ReasonRejoin, true); err != nil {
				return err
			}
		}
		return t.openLocked(ctx, userID, loc, now, t.notifyJoin)
	})
}

// OnLeave closes the user's session, crediting the whole minutes it owed.
// The sub-minute remainder is forfeited. Without a session this is a no-op.
func (t *Tracker) OnLeave(ctx context.Context, userID int64) error {
	return t.leave(ctx, userID, nil)
}

// leave is OnLeave for an event that names the server being left. A leave
// from a server other than the session's arrived after the user already
// joined elsewhere and is ignored.
func (t *Tracker) leave(ctx context.Context, userID int64, from *model.Location) error {
	return t.locks.WithLock(ctx, userID, func() error {
		s, err := t.load(ctx, userID)
		if err != nil {
			return err
		}
		if s == nil {
			t.logger.Debug().Int64("user_id", userID).Msg("Leave without session")
			return nil
		}
		if from != nil && from.GuildID != s.Location.GuildID {
			t.logger.Debug().
				Int64("user_id", userID).
				Int64("guild_id", from.GuildID).
				Str("session", s.Location.String()).
				Msg("Ignoring leave from another server")
			return nil
		}

		now := t.now()
		accrual, err := t.closeLocked(ctx, s, now, ReasonLeave, false)
		if err != nil {
			return err
		}

		summary := Notification{
			Kind:     NotifySessionEnded,
			Location: s.Location,
			Duration: now.Sub(s.JoinedAt),
		}
		if accrual != nil {
			summary.Minutes = accrual.Minutes
			summary.Credits = accrual.Credits
			summary.Levels = accrual.Levels
			summary.Account = accrual.Account
		}
		t.dispatcher.Enqueue(userID, summary)
		return nil
	})
}

// OnMove credits the minutes owed at the old location and rebinds the
// session to loc. The sub-minute remainder carries over. Without a session
// the move is treated as a join.
func (t *Tracker) OnMove(ctx context.Context, userID int64, loc model.Location) error {
	return t.locks.WithLock(ctx, userID, func() error {
		now := t.now()
		s, err := t.load(ctx, userID)
		if err != nil {
			return err
		}
		if s == nil {
			return t.openLocked(ctx, userID, loc, now, t.notifyJoin)
		}
		if s.Location == loc {
			return nil
		}

		if _, err := t.advanceLocked(ctx, s, now, true); err != nil {
			return err
		}
		if err := t.store.Relocate(ctx, userID, loc); err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				return t.openLocked(ctx, userID, loc, now, false)
			}
			return fmt.Errorf("relocate session: %w", err)
		}

		t.logger.Debug().
			Int64("user_id", userID).
			Str("from", s.Location.String()).
			Str("to", loc.String()).
			Msg("Session moved")
		return nil
	})
}

// Sweep credits the minutes a session owes, or ends it if the user is no
// longer where the session says. Every sweep leaves less than a minute
// unaccounted, and an ended session forfeits that tail: when the user
// actually left is unknown, so nothing past the checkpoint is credited. A
// user found in another channel gets a fresh session there.
func (t *Tracker) Sweep(ctx context.Context, userID int64) (SweepResult, error) {
	result := SweepIdle
	err := t.locks.WithLock(ctx, userID, func() error {
		s, err := t.load(ctx, userID)
		if err != nil {
			return err
		}
		if s == nil {
			result = SweepMissing
			return nil
		}

		live, inVoice, err := t.presence.VoiceLocation(ctx, s.Location.GuildID, userID)
		if err != nil && !errors.Is(err, ErrGuildUnavailable) {
			return fmt.Errorf("presence lookup: %w", err)
		}

		now := t.now()
		switch {
		case err != nil || !inVoice:
			if _, err := t.closeLocked(ctx, s, time.Time{}, ReasonGone, false); err != nil {
				return err
			}
			t.logger.Info().
				Int64("user_id", userID).
				Str("location", s.Location.String()).
				Msg("User no longer in voice, session closed")
			result = SweepClosed

		case live != s.Location:
			if _, err := t.closeLocked(ctx, s, time.Time{}, ReasonRebound, false); err != nil {
				return err
			}
			if err := t.openLocked(ctx, userID, live, now, false); err != nil {
				return err
			}
			result = SweepRebound

		default:
			accrual, err := t.advanceLocked(ctx, s, now, true)
			if err != nil {
				return err
			}
			if accrual != nil {
				result = SweepCredited
			}
		}
		return nil
	})
	return result, err
}

// ReapIfStale removes the user's session without crediting it when its
// checkpoint is more than timeout behind. It reports whether it did.
func (t *Tracker) ReapIfStale(ctx context.Context, userID int64, timeout time.Duration) (bool, error) {
	reaped := false
	err := t.locks.WithLock(ctx, userID, func() error {
		s, err := t.load(ctx, userID)
		if err != nil || s == nil {
			return err
		}

		now := t.now()
		if now.Sub(t.checkpoint(s)) <= timeout {
			return nil
		}
		if _, err := t.closeLocked(ctx, s, time.Time{}, ReasonStale, false); err != nil {
			return err
		}

		t.logger.Warn().
			Int64("user_id", userID).
			Str("location", s.Location.String()).
			Time("checkpoint", s.LastAccountedAt).
			Msg("Reaped stale session")
		reaped = true
		return nil
	})
	return reaped, err
}

// Restore validates a persisted session against live presence. A session
// whose user is still in the recorded channel is kept with its checkpoint
// unchanged. Otherwise it is dropped without credit, and if the user is in
// some other channel a fresh session is opened there.
func (t *Tracker) Restore(ctx context.Context, userID int64) (bool, error) {
	kept := false
	err := t.locks.WithLock(ctx, userID, func() error {
		s, err := t.load(ctx, userID)
		if err != nil || s == nil {
			return err
		}

		live, inVoice, err := t.presence.VoiceLocation(ctx, s.Location.GuildID, userID)
		if err != nil && !errors.Is(err, ErrGuildUnavailable) {
			kept = true
			return fmt.Errorf("presence lookup: %w", err)
		}

		if err == nil && inVoice && live == s.Location {
			kept = true
			return nil
		}

		now := t.now()
		if _, err := t.closeLocked(ctx, s, time.Time{}, ReasonRestored, false); err != nil {
			return err
		}
		if err == nil && inVoice {
			return t.openLocked(ctx, userID, live, now, false)
		}
		return nil
	})
	return kept, err
}

// Adopt opens a session for a user found in voice with none recorded.
// It reports whether a session was opened.
func (t *Tracker) Adopt(ctx context.Context, p Presence) (bool, error) {
	if p.Bot {
		return false, nil
	}
	opened := false
	err := t.locks.WithLock(ctx, p.UserID, func() error {
		s, err := t.load(ctx, p.UserID)
		if err != nil || s != nil {
			return err
		}
		if err := t.openLocked(ctx, p.UserID, p.Location, t.now(), false); err != nil {
			return err
		}
		opened = true
		return nil
	})
	return opened, err
}

// Sessions lists every stored session.
func (t *Tracker) Sessions(ctx context.Context) ([]*model.VoiceSession, error) {
	sessions, err := t.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Status returns the user's session and the whole minutes it currently owes.
// It returns nil when the user has no session.
func (t *Tracker) Status(ctx context.Context, userID int64) (*Status, error) {
	s, err := t.load(ctx, userID)
	if err != nil || s == nil {
		return nil, err
	}
	_, pending := t.owed(s, t.now())
	rate, err := t.rates.GetRate(ctx, s.Location.GuildID)
	if err != nil {
		return nil, fmt.Errorf("get rate: %w", err)
	}
	return &Status{Session: s, PendingMinutes: pending, MinutesPerCredit: rate}, nil
}

// IsStale reports whether the session's checkpoint is more than timeout old.
func (t *Tracker) IsStale(s *model.VoiceSession, timeout time.Duration) bool {
	return t.now().Sub(t.checkpoint(s)) > timeout
}

func (t *Tracker) openLocked(ctx context.Context, userID int64, loc model.Location, now time.Time, announce bool) error {
	s := &model.VoiceSession{
		UserID:          userID,
		Location:        loc,
		JoinedAt:        now,
		LastAccountedAt: now,
	}
	if err := t.store.Open(ctx, s); err != nil {
		metrics.AccrualErrorsTotal.WithLabelValues("open").Inc()
		return fmt.Errorf("open session: %w", err)
	}

	t.logger.Debug().
		Int64("user_id", userID).
		Str("location", loc.String()).
		Msg("Session opened")

	if announce {
		n := Notification{Kind: NotifySessionStarted, Location: loc}
		if rate, err := t.rates.GetRate(ctx, loc.GuildID); err == nil {
			n.MinutesPerCredit = rate
		}
		t.dispatcher.Enqueue(userID, n)
	}
	return nil
}

func (t *Tracker) award(ctx context.Context, guildID int64) (model.AwardFunc, int, error) {
	rate, err := t.rates.GetRate(ctx, guildID)
	if err != nil {
		return nil, 0, fmt.Errorf("get rate: %w", err)
	}
	return t.policy.Award(rate), rate, nil
}

// advanceLocked credits the whole minutes s owes and moves its checkpoint
// forward by exactly that much. It returns nil when nothing was owed.
func (t *Tracker) advanceLocked(ctx context.Context, s *model.VoiceSession, now time.Time, announce bool) (*model.Accrual, error) {
	from, minutes := t.owed(s, now)
	if minutes == 0 {
		return nil, nil
	}

	award, rate, err := t.award(ctx, s.Location.GuildID)
	if err != nil {
		metrics.AccrualErrorsTotal.WithLabelValues("rate").Inc()
		return nil, err
	}

	next := from.Add(time.Duration(minutes) * time.Minute)
	accrual, err := t.store.Settle(ctx, model.Settlement{
		UserID:        s.UserID,
		Expected:      s.LastAccountedAt,
		NewCheckpoint: next,
		Minutes:       minutes,
		Award:         award,
		Description:   fmt.Sprintf("%d voice minutes in %s", minutes, s.Location),
	})
	if err != nil {
		if errors.Is(err, repository.ErrCheckpointMoved) {
			t.logger.Debug().Int64("user_id", s.UserID).Msg("Checkpoint moved, skipping accrual")
			return nil, nil
		}
		metrics.AccrualErrorsTotal.WithLabelValues("advance").Inc()
		return nil, fmt.Errorf("advance session: %w", err)
	}

	s.LastAccountedAt = next
	t.record(s, accrual, rate, announce)
	return accrual, nil
}

// closeLocked deletes s, crediting in the same settlement the whole minutes
// it owed as of until. A zero until forfeits everything past the checkpoint.
func (t *Tracker) closeLocked(ctx context.Context, s *model.VoiceSession, until time.Time, reason string, announce bool) (*model.Accrual, error) {
	settlement := model.Settlement{
		UserID:   s.UserID,
		Expected: s.LastAccountedAt,
		Close:    true,
	}

	var rate int
	if !until.IsZero() {
		from, minutes := t.owed(s, until)
		if minutes > 0 {
			award, r, err := t.award(ctx, s.Location.GuildID)
			if err != nil {
				metrics.AccrualErrorsTotal.WithLabelValues("rate").Inc()
				return nil, err
			}
			rate = r
			settlement.Minutes = minutes
			settlement.NewCheckpoint = from.Add(time.Duration(minutes) * time.Minute)
			settlement.Award = award
			settlement.Description = fmt.Sprintf("%d voice minutes in %s", minutes, s.Location)
		}
	}

	accrual, err := t.store.Settle(ctx, settlement)
	if err != nil {
		if errors.Is(err, repository.ErrCheckpointMoved) {
			t.logger.Debug().Int64("user_id", s.UserID).Msg("Session already closed")
			return nil, nil
		}
		metrics.AccrualErrorsTotal.WithLabelValues("close").Inc()
		return nil, fmt.Errorf("close session: %w", err)
	}

	metrics.SessionsClosedTotal.WithLabelValues(reason).Inc()
	t.logger.Debug().
		Int64("user_id", s.UserID).
		Str("reason", reason).
		Int64("minutes", settlement.Minutes).
		Msg("Session closed")

	t.record(s, accrual, rate, announce)
	return accrual, nil
}

// record updates metrics and queues notifications for an accrual.
func (t *Tracker) record(s *model.VoiceSession, accrual *model.Accrual, rate int, announceCredits bool) {
	if accrual == nil {
		return
	}

	metrics.MinutesCreditedTotal.Add(float64(accrual.Minutes))
	metrics.CreditsAwardedTotal.Add(float64(accrual.Credits))
	metrics.LevelsAwardedTotal.Add(float64(accrual.Levels))

	if accrual.Credits > 0 {
		t.logger.Info().
			Int64("user_id", s.UserID).
			Int64("minutes", accrual.Minutes).
			Int64("credits", accrual.Credits).
			Int64("total_credits", accrual.Account.Credits).
			Msg("Voice credits awarded")
	}

	if announceCredits && accrual.Credits > 0 {
		t.dispatcher.Enqueue(s.UserID, Notification{
			Kind:             NotifyCreditsEarned,
			Location:         s.Location,
			Minutes:          accrual.Minutes,
			Credits:          accrual.Credits,
			MinutesPerCredit: rate,
			Account:          accrual.Account,
		})
	}
	if accrual.Levels > 0 {
		t.dispatcher.Enqueue(s.UserID, Notification{
			Kind:     NotifyLevelUp,
			Location: s.Location,
			Levels:   accrual.Levels,
			Account:  accrual.Account,
		})
	}
}
