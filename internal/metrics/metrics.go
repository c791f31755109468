// Package metrics exposes Prometheus collectors for the voice engine and
// serves them over HTTP.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Presence metrics
	PresenceEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicebot_presence_events_total",
			Help: "Voice presence events handled, by kind",
		},
		[]string{"kind"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "voicebot_active_sessions",
			Help: "Voice sessions seen by the last sweep",
		},
	)

	SessionsClosedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicebot_sessions_closed_total",
			Help: "Voice sessions closed, by reason",
		},
		[]string{"reason"},
	)

	// Accrual metrics
	MinutesCreditedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voicebot_minutes_credited_total",
			Help: "Voice minutes added to users' totals",
		},
	)

	CreditsAwardedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voicebot_credits_awarded_total",
			Help: "Credits earned from voice time",
		},
	)

	LevelsAwardedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voicebot_levels_awarded_total",
			Help: "Levels earned from voice time",
		},
	)

	// Background loops
	TickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicebot_tick_duration_seconds",
			Help:    "Duration of background loop ticks",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"loop"},
	)

	AccrualErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicebot_accrual_errors_total",
			Help: "Per-user accrual failures, by operation",
		},
		[]string{"op"},
	)

	// Notifications
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicebot_notifications_total",
			Help: "Notifications by outcome (sent, failed, dropped)",
		},
		[]string{"outcome"},
	)

	// Commands
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicebot_commands_total",
			Help: "Chat commands handled",
		},
		[]string{"command", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		PresenceEventsTotal,
		ActiveSessions,
		SessionsClosedTotal,
		MinutesCreditedTotal,
		CreditsAwardedTotal,
		LevelsAwardedTotal,
		TickDuration,
		AccrualErrorsTotal,
		NotificationsTotal,
		CommandsTotal,
	)
}

// HealthFunc reports whether a dependency is usable.
type HealthFunc func(ctx context.Context) error

// Server is the metrics HTTP server
type Server struct {
	server *http.Server
	logger zerolog.Logger
}

// NewServer creates a new metrics server. health may be nil.
func NewServer(addr string, health HealthFunc, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := health(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Shutdown(ctx)
}
