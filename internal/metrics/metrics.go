package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Tracking metrics
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabwarden_ticks_total",
			Help: "Total tracking ticks processed",
		},
	)

	TrackedSecondsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabwarden_tracked_seconds_total",
			Help: "Seconds of tracked usage accrued",
		},
		[]string{"domain"},
	)

	TrackingActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tabwarden_tracking_active",
			Help: "Whether a session is currently accruing time (0 or 1)",
		},
	)

	// Enforcement metrics
	RedirectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabwarden_redirects_total",
			Help: "Redirect commands issued, by block page type",
		},
		[]string{"type"},
	)

	// Persistence metrics
	FlushesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabwarden_flushes_total",
			Help: "Usage ledger flushes attempted",
		},
	)

	FlushErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabwarden_flush_errors_total",
			Help: "Usage ledger flushes that failed",
		},
	)

	// Notification metrics
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabwarden_notifications_total",
			Help: "Notification dispatch outcomes",
		},
		[]string{"event", "outcome"},
	)

	// Bridge metrics
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabwarden_messages_total",
			Help: "Bridge protocol messages handled, by type",
		},
		[]string{"type"},
	)

	ConnectedTabs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tabwarden_connected_tabs",
			Help: "Tabs holding an open event stream",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		TrackedSecondsTotal,
		TrackingActive,
		RedirectsTotal,
		FlushesTotal,
		FlushErrorsTotal,
		NotificationsTotal,
		MessagesTotal,
		ConnectedTabs,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
