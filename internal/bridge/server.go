// Package bridge is the localhost HTTP surface the browser extension
// talks to: browser events in, request/response messages, and one
// server-sent event stream per tab for pushes. The stream doubles as
// the keepalive that stops the extension's service worker from being
// torn down mid-session.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/goodtune/tabwarden/internal/coordinator"
	"github.com/goodtune/tabwarden/internal/storage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Server is the bridge HTTP server.
type Server struct {
	server    *http.Server
	listener  net.Listener // optional pre-created listener (systemd socket activation)
	coord     *coordinator.Coordinator
	hub       *Hub
	settings  storage.SettingsStore
	heartbeat time.Duration
	logger    zerolog.Logger
}

// NewServer creates the bridge server.
func NewServer(addr string, coord *coordinator.Coordinator, hub *Hub, settings storage.SettingsStore, heartbeat time.Duration, logger zerolog.Logger) *Server {
	if heartbeat == 0 {
		heartbeat = 25 * time.Second
	}
	s := &Server{
		coord:     coord,
		hub:       hub,
		settings:  settings,
		heartbeat: heartbeat,
		logger:    logger.With().Str("component", "bridge").Logger(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/events", s.handleEvents).Methods(http.MethodPost)
	r.HandleFunc("/v1/messages", s.handleMessage).Methods(http.MethodPost)
	r.HandleFunc("/v1/tabs/{id:[0-9]+}/stream", s.handleStream).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// SetListener sets a pre-created listener for systemd socket activation.
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start serves in a background goroutine.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting bridge server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated bridge listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Bridge server error")
		}
	}()
	return nil
}

// Stop shuts the server down, ending all open streams.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping bridge server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// browserEvent is the envelope for every browser lifecycle event.
type browserEvent struct {
	Type        string                    `json:"type"`
	TabID       int                       `json:"tabId"`
	URL         string                    `json:"url"`
	Audible     bool                      `json:"audible"`
	Focused     bool                      `json:"focused"`
	ActiveTabID int                       `json:"activeTabId"`
	Tabs        []coordinator.TabSnapshot `json:"tabs"`
}

// handleEvents ingests browser lifecycle events. Events are facts the
// browser already committed to, so the response is 202 regardless of
// what tracking makes of them.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var ev browserEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode event: %w", err))
		return
	}

	switch ev.Type {
	case "tab_activated":
		s.coord.TabActivated(ev.TabID)
	case "tab_navigated":
		s.coord.TabNavigated(ev.TabID, ev.URL)
	case "tab_audible":
		s.coord.TabAudibleChanged(ev.TabID, ev.Audible)
	case "tab_removed":
		s.coord.TabRemoved(ev.TabID)
	case "window_focus":
		s.coord.WindowFocusChanged(ev.Focused)
	case "browser_sync":
		s.coord.SyncBrowserState(ev.Focused, ev.ActiveTabID, ev.Tabs)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown event type: %q", ev.Type))
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// handleStream serves one tab's server-sent event stream: time updates
// and redirect commands out, heartbeat comments to keep the connection
// (and the extension's service worker) alive.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	tabID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid tab id: %w", err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.hub.register(tabID)
	s.coord.TabConnected(tabID)
	defer func() {
		s.hub.unregister(tabID, ch)
		s.coord.TabDisconnected(tabID)
	}()

	s.logger.Debug().Int("tab_id", tabID).Msg("Tab stream opened")

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug().Int("tab_id", tabID).Msg("Tab stream closed")
			return
		case msg, open := <-ch:
			if !open {
				// Replaced by a newer stream for the same tab.
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
