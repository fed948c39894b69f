package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/goodtune/tabwarden/internal/metrics"
	"github.com/goodtune/tabwarden/internal/notify"
	"github.com/goodtune/tabwarden/internal/storage"
)

// message is the request envelope of the extension protocol. One
// struct covers every message type; unused fields stay zero.
type message struct {
	Type    string `json:"type"`
	TabID   int    `json:"tabId"`
	Domain  string `json:"domain"`
	Minutes int    `json:"minutes"`
	Event   string `json:"event"`

	Accountability *storage.AccountabilitySettings `json:"accountability,omitempty"`
	Motivational   *storage.MotivationalSettings   `json:"motivational,omitempty"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// queuedResponse acknowledges a fire-and-forget request: the work was
// accepted, not completed.
type queuedResponse struct {
	Queued bool `json:"queued"`
}

// handleMessage dispatches one request/response protocol message.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode message: %w", err))
		return
	}
	metrics.MessagesTotal.WithLabelValues(msg.Type).Inc()

	switch msg.Type {
	case "GET_USAGE":
		writeJSON(w, http.StatusOK, s.coord.GetUsage())

	case "GET_CURRENT_STATE":
		state := s.coord.GetCurrentState(msg.TabID)
		if state == nil {
			writeJSON(w, http.StatusOK, nil)
			return
		}
		writeJSON(w, http.StatusOK, state)

	case "GET_RULES":
		writeJSON(w, http.StatusOK, map[string]any{
			"limitedSites": s.coord.Limits(),
			"blockedSites": s.coord.Blocks(),
		})

	case "EXTEND_LIMIT":
		ok, err := s.coord.ExtendLimit(msg.Domain, msg.Minutes)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, okResponse{OK: ok})

	case "RESET_USAGE":
		s.coord.ResetUsage(msg.Domain)
		writeJSON(w, http.StatusOK, okResponse{OK: true})

	case "ADD_LIMIT":
		s.ruleChange(w, s.coord.AddLimit(msg.Domain, msg.Minutes))

	case "REMOVE_LIMIT":
		s.ruleChange(w, s.coord.RemoveLimit(msg.Domain))

	case "ADD_BLOCK":
		s.ruleChange(w, s.coord.AddBlock(msg.Domain))

	case "REMOVE_BLOCK":
		s.ruleChange(w, s.coord.RemoveBlock(msg.Domain))

	case "EMAIL_EVENT":
		if err := s.coord.NotifyEvent(notify.Event(msg.Event), msg.Domain); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, queuedResponse{Queued: true})

	case "TEST_EMAIL":
		writeJSON(w, http.StatusOK, s.coord.TestEmail(r.Context(), msg.Accountability))

	case "GET_SETTINGS":
		s.handleGetSettings(w, r)

	case "SAVE_SETTINGS":
		s.handleSaveSettings(w, r, msg)

	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown message type: %q", msg.Type))
	}
}

func (s *Server) ruleChange(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	accountability := storage.DefaultAccountabilitySettings()
	if stored, err := s.settings.GetAccountability(r.Context()); err == nil {
		accountability = *stored
	} else if !errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	motivational := storage.DefaultMotivationalSettings()
	if stored, err := s.settings.GetMotivational(r.Context()); err == nil {
		motivational = *stored
	} else if !errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accountability": accountability,
		"motivational":   motivational,
	})
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request, msg message) {
	if msg.Accountability != nil {
		if err := s.settings.SaveAccountability(r.Context(), *msg.Accountability); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	if msg.Motivational != nil {
		if err := s.settings.SaveMotivational(r.Context(), *msg.Motivational); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}
