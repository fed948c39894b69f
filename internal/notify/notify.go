// Package notify delivers accountability emails for rule lifecycle
// events. Delivery is one fire-and-forget POST to an EmailJS-compatible
// endpoint; failures are captured as a result value and never retried.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goodtune/tabwarden/internal/storage"
	"github.com/rs/zerolog"
)

// Event identifies a notification-worthy lifecycle event.
type Event string

const (
	EventLimitAdded    Event = "limit_added"
	EventLimitRemoved  Event = "limit_removed"
	EventBlockAdded    Event = "block_added"
	EventBlockRemoved  Event = "block_removed"
	EventLimitExceeded Event = "limit_exceeded"
	EventLimitExtended Event = "limit_extended"
)

// Valid reports whether e is a known event.
func (e Event) Valid() bool {
	switch e {
	case EventLimitAdded, EventLimitRemoved, EventBlockAdded,
		EventBlockRemoved, EventLimitExceeded, EventLimitExtended:
		return true
	}
	return false
}

// Result is the outcome of one delivery attempt. Errors live here, not
// in a returned error: production callers fire and forget, and only the
// test-email surface shows the string.
type Result struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// DefaultEndpoint is the EmailJS REST send endpoint.
const DefaultEndpoint = "https://api.emailjs.com/api/v1.0/email/send"

// Config holds the EmailJS credentials. They come from the daemon
// config, never from the settings store.
type Config struct {
	Endpoint   string
	ServiceID  string
	TemplateID string
	PublicKey  string
	Timeout    time.Duration
}

// Dispatcher sends accountability notifications.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher. A zero timeout defaults to 10s.
func NewDispatcher(cfg Config, logger zerolog.Logger) *Dispatcher {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Dispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// Configured reports whether the delivery credentials are present.
func (d *Dispatcher) Configured() bool {
	return d.cfg.ServiceID != "" && d.cfg.TemplateID != "" && d.cfg.PublicKey != ""
}

// enabled reports whether the settings turn this event on.
func enabled(s storage.AccountabilitySettings, event Event) bool {
	switch event {
	case EventLimitAdded:
		return s.NotifyOnLimitAdded
	case EventLimitRemoved:
		return s.NotifyOnLimitRemoved
	case EventBlockAdded:
		return s.NotifyOnBlockAdded
	case EventBlockRemoved:
		return s.NotifyOnBlockRemoved
	case EventLimitExceeded:
		return s.NotifyOnLimitExceeded
	case EventLimitExtended:
		return s.NotifyOnLimitExtended
	}
	return false
}

// content builds the human-readable pieces for one event.
func content(event Event, d, name string) (title, subject, message string) {
	n := strings.TrimSpace(name)
	if n == "" {
		n = "your Buddy"
	}
	switch event {
	case EventLimitAdded:
		return "Time Limit Set",
			fmt.Sprintf("%s set a time limit for %s", n, d),
			fmt.Sprintf("%s set a daily time limit for %s. Holding them accountable is now your job. Good luck.", n, d)
	case EventLimitRemoved:
		return "Time Limit Removed",
			fmt.Sprintf("%s removed the time limit for %s", n, d),
			fmt.Sprintf("%s removed their time limit for %s. The internet wins again.", n, d)
	case EventBlockAdded:
		return "Site Blocked",
			fmt.Sprintf("%s blocked %s", n, d),
			fmt.Sprintf("%s blocked %s completely. Apparently it had it coming.", n, d)
	case EventBlockRemoved:
		return "Site Unblocked",
			fmt.Sprintf("%s unblocked %s", n, d),
			fmt.Sprintf("%s just unblocked %s. Go make fun of them or something.", n, d)
	case EventLimitExceeded:
		return "Daily Limit Hit",
			fmt.Sprintf("%s has surpassed their limit for %s", n, d),
			fmt.Sprintf("%s blew past their daily limit on %s. Go make fun of them or something.", n, d)
	case EventLimitExtended:
		return "Limit Extended",
			fmt.Sprintf("%s extended their time limit for %s", n, d),
			fmt.Sprintf("%s just gave themselves extra time on %s. Was that really necessary?", n, d)
	}
	return "", "", ""
}

type sendRequest struct {
	ServiceID      string         `json:"service_id"`
	TemplateID     string         `json:"template_id"`
	UserID         string         `json:"user_id"`
	TemplateParams templateParams `json:"template_params"`
}

type templateParams struct {
	ToEmail string `json:"to_email"`
	Name    string `json:"name"`
	Title   string `json:"title"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Send performs one delivery attempt. It never issues a network call
// when the recipient email is empty or the event's toggle is off, and
// it never returns a Go error: every failure mode lands in the Result.
func (d *Dispatcher) Send(ctx context.Context, settings storage.AccountabilitySettings, event Event, domainName string) Result {
	if settings.Email == "" || !enabled(settings, event) {
		return Result{OK: false, Error: "recipient email not set or event disabled"}
	}
	if !d.Configured() {
		return Result{OK: false, Error: "email delivery not configured"}
	}

	title, subject, message := content(event, domainName, settings.Name)
	// The subject is prepended to the body so it stays visible even when
	// the remote template's subject field is static.
	payload := sendRequest{
		ServiceID:  d.cfg.ServiceID,
		TemplateID: d.cfg.TemplateID,
		UserID:     d.cfg.PublicKey,
		TemplateParams: templateParams{
			ToEmail: settings.Email,
			Name:    settings.Name,
			Title:   title,
			Subject: subject,
			Message: subject + "\n\n" + message,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{OK: false, Error: fmt.Sprintf("encode payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{OK: false, Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return Result{OK: false, Error: fmt.Sprintf("send email: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{OK: false, Error: fmt.Sprintf("email delivery error %d: %s", resp.StatusCode, strings.TrimSpace(string(text)))}
	}

	return Result{OK: true}
}
