package voice

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voice-credit-bot/internal/metrics"
	"voice-credit-bot/internal/model"
)

// NotificationKind identifies what a notification announces.
type NotificationKind int

const (
	NotifySessionStarted NotificationKind = iota
	NotifyCreditsEarned
	NotifyLevelUp
	NotifySessionEnded
	NotifyCreditsGranted
	NotifyDailyReport
	NotifyGuildJoined
)

func (k NotificationKind) String() string {
	switch k {
	case NotifySessionStarted:
		return "session_started"
	case NotifyCreditsEarned:
		return "credits_earned"
	case NotifyLevelUp:
		return "level_up"
	case NotifySessionEnded:
		return "session_ended"
	case NotifyCreditsGranted:
		return "credits_granted"
	case NotifyDailyReport:
		return "daily_report"
	case NotifyGuildJoined:
		return "guild_joined"
	default:
		return "unknown"
	}
}

// Notification is a message for one user. Rendering is left to the Notifier.
// Report and Guild are only set on owner notices.
type Notification struct {
	Kind     NotificationKind
	Location model.Location
	// Minutes credited by the event that produced the notification.
	Minutes          int64
	Credits          int64
	Levels           int64
	MinutesPerCredit int
	Duration         time.Duration
	// Account is the ledger row after the change, when there was one.
	Account *model.Account
	// ActorID is the admin behind a grant.
	ActorID int64
	Report  *model.DailyReport
	Guild   *model.GuildInfo
}

// Notifier delivers a notification to a user.
type Notifier interface {
	Notify(ctx context.Context, userID int64, n Notification) error
}

type delivery struct {
	userID int64
	n      Notification
}

// Dispatcher delivers notifications off the accounting path. Delivery is
// best effort: when the queue is full the notification is dropped, and
// failures are logged and counted but never retried.
type Dispatcher struct {
	sink    Notifier
	admin   int64
	queue   chan delivery
	timeout time.Duration
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with room for size queued notifications.
// A nil sink discards everything.
func NewDispatcher(sink Notifier, size int) *Dispatcher {
	if size <= 0 {
		size = 256
	}
	return &Dispatcher{
		sink:    sink,
		queue:   make(chan delivery, size),
		timeout: 10 * time.Second,
		logger:  log.With().Str("component", "notify").Logger(),
	}
}

// Start launches the delivery worker.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for job := range d.queue {
		d.deliver(job)
	}
}

func (d *Dispatcher) deliver(job delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.sink.Notify(ctx, job.userID, job.n); err != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		d.logger.Warn().
			Err(err).
			Int64("user_id", job.userID).
			Str("kind", job.n.Kind.String()).
			Msg("Notification delivery failed")
		return
	}
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
}

// Enqueue queues a notification without blocking. It reports whether the
// notification was accepted.
func (d *Dispatcher) Enqueue(userID int64, n Notification) bool {
	if d == nil || d.sink == nil {
		return false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.queue <- delivery{userID: userID, n: n}:
		return true
	default:
		metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		d.logger.Warn().
			Int64("user_id", userID).
			Str("kind", n.Kind.String()).
			Msg("Notification queue full, dropping")
		return false
	}
}

// EnqueueAdmin queues a notification for the bot owner. Without a
// configured owner it is dropped.
func (d *Dispatcher) EnqueueAdmin(n Notification) bool {
	if d == nil || d.admin == 0 {
		return false
	}
	return d.Enqueue(d.admin, n)
}

// Stop refuses new notifications and waits for queued ones to be delivered.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}
