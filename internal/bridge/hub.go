package bridge

import (
	"encoding/json"
	"net/url"
	"sync"

	"github.com/goodtune/tabwarden/internal/coordinator"
	"github.com/goodtune/tabwarden/internal/policy"
	"github.com/rs/zerolog"
)

// Hub fans push messages out to per-tab event streams. It implements
// coordinator.Sink; delivery is best-effort and a slow consumer's
// messages are dropped rather than stalling the caller.
type Hub struct {
	mu     sync.Mutex
	tabs   map[int]chan []byte
	logger zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		tabs:   make(map[int]chan []byte),
		logger: logger.With().Str("component", "bridge").Logger(),
	}
}

// register opens a stream for a tab. A reconnect replaces the old
// stream, which ends the stale handler.
func (h *Hub) register(tabID int) chan []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.tabs[tabID]; ok {
		close(old)
	}
	ch := make(chan []byte, 16)
	h.tabs[tabID] = ch
	return ch
}

// unregister closes a tab's stream if it is still the current one.
func (h *Hub) unregister(tabID int, ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.tabs[tabID]; ok && cur == ch {
		close(cur)
		delete(h.tabs, tabID)
	}
}

func (h *Hub) send(tabID int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode push message")
		return
	}

	// The send must happen under the lock: register closes a replaced
	// stream while holding it, so an unlocked send could hit a closed
	// channel. The send never blocks, so holding the lock is safe.
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.tabs[tabID]
	if !ok {
		return
	}

	select {
	case ch <- data:
	default:
		h.logger.Debug().Int("tab_id", tabID).Msg("Dropping push message for slow stream")
	}
}

// PushTimeUpdate delivers a live usage update to one tab.
func (h *Hub) PushTimeUpdate(tabID int, update coordinator.TimeUpdate) {
	h.send(tabID, update)
}

type redirectMessage struct {
	Type   string `json:"type"`
	Domain string `json:"domain"`
	Kind   string `json:"kind"`
	Target string `json:"target"`
}

// Redirect tells one tab to replace itself with the block page. Target
// follows the extension's block page convention.
func (h *Hub) Redirect(tabID int, domainName string, kind policy.RedirectType) {
	q := url.Values{}
	q.Set("domain", domainName)
	q.Set("type", string(kind))
	h.send(tabID, redirectMessage{
		Type:   "REDIRECT",
		Domain: domainName,
		Kind:   string(kind),
		Target: "blocked.html?" + q.Encode(),
	})
}
