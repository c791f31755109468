package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"voice-credit-bot/internal/pkg/lock"
)

// ErrEngineStopped is returned when Start is called on an engine that has
// already been stopped.
var ErrEngineStopped = errors.New("voice engine cannot be restarted")

// Deps are the engine's collaborators.
type Deps struct {
	Store    Store
	Rates    RateResolver
	Presence PresenceSource
	Notifier Notifier
	Locks    *lock.UserLock
	Clock    Clock
	// Guilds feeds the owner's daily report. Without it no report is sent.
	Guilds GuildLister
}

// Config tunes the engine.
type Config struct {
	SweepInterval   time.Duration
	ReapInterval    time.Duration
	StaleTimeout    time.Duration
	CreditsPerLevel int
	NotifyJoin      bool
	NotifyQueueSize int
	// AdminID receives owner notices. Zero disables them.
	AdminID        int64
	ReportInterval time.Duration
}

// Engine wires the tracker to its background loops.
type Engine struct {
	tracker    *Tracker
	sweeper    *Sweeper
	reaper     *Reaper
	reconciler *Reconciler
	reporter   *Reporter
	dispatcher *Dispatcher

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	stopped bool
}

// NewEngine creates an Engine. The tracker's resume floor is fixed here.
func NewEngine(deps Deps, cfg Config) *Engine {
	dispatcher := NewDispatcher(deps.Notifier, cfg.NotifyQueueSize)
	dispatcher.admin = cfg.AdminID
	tracker := NewTracker(deps, dispatcher, cfg)
	e := &Engine{
		tracker:    tracker,
		sweeper:    NewSweeper(tracker, cfg.SweepInterval),
		reaper:     NewReaper(tracker, cfg.ReapInterval, cfg.StaleTimeout),
		reconciler: NewReconciler(tracker, deps.Presence),
		dispatcher: dispatcher,
	}
	if deps.Guilds != nil && cfg.AdminID != 0 && cfg.ReportInterval > 0 {
		e.reporter = NewReporter(tracker, deps.Guilds, dispatcher, cfg.ReportInterval)
	}
	return e
}

// Tracker returns the engine's tracker, the entry point for presence events.
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

// Dispatcher returns the engine's notification dispatcher.
func (e *Engine) Dispatcher() *Dispatcher {
	return e.dispatcher
}

// Start reconciles persisted sessions and then launches the sweeper,
// reaper and, when configured, the owner's reporter. It must be called once live presence is available. An engine
// starts at most once: after Stop or a failed reconcile the dispatcher is
// closed and Start returns ErrEngineStopped.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("voice engine already running")
	}
	if e.stopped {
		return ErrEngineStopped
	}

	e.dispatcher.Start()

	if _, err := e.reconciler.Run(ctx); err != nil {
		e.dispatcher.Stop()
		e.stopped = true
		return fmt.Errorf("reconcile sessions: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.running = true

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.sweeper.Run(loopCtx)
	}()
	go func() {
		defer e.wg.Done()
		e.reaper.Run(loopCtx)
	}()
	if e.reporter != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.reporter.Run(loopCtx)
		}()
	}

	log.Info().Msg("Voice engine started")
	return nil
}

// Stop halts the background loops, waits for an in-flight tick to finish,
// then drains queued notifications.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}

	e.cancel()
	e.wg.Wait()
	e.dispatcher.Stop()
	e.running = false
	e.stopped = true

	log.Info().Msg("Voice engine stopped")
}
