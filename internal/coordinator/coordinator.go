// Package coordinator wires browser events into the tracking policy,
// session clock and usage ledger. It owns the single in-memory snapshot
// of current state; every mutation runs on one event-loop goroutine, so
// the snapshot needs no locks.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/tabwarden/internal/clock"
	"github.com/goodtune/tabwarden/internal/ledger"
	"github.com/goodtune/tabwarden/internal/metrics"
	"github.com/goodtune/tabwarden/internal/notify"
	"github.com/goodtune/tabwarden/internal/policy"
	"github.com/goodtune/tabwarden/internal/storage"
	"github.com/rs/zerolog"
)

// TimeUpdate is the live usage push sent to the tab currently being
// tracked, and the response shape of a current-state query.
type TimeUpdate struct {
	Type             string `json:"type"`
	Domain           string `json:"domain"`
	UsedSeconds      int    `json:"usedSeconds"`
	LimitSeconds     int    `json:"limitSeconds"`
	RemainingSeconds int    `json:"remainingSeconds"`
}

// Sink receives push updates and redirect commands for delivery to
// tabs. Delivery is best-effort: a sink must never block and never
// report failure back.
type Sink interface {
	PushTimeUpdate(tabID int, update TimeUpdate)
	Redirect(tabID int, domainName string, kind policy.RedirectType)
}

// TabSnapshot describes one open tab in a browser state sync.
type TabSnapshot struct {
	TabID   int    `json:"tabId"`
	URL     string `json:"url"`
	Audible bool   `json:"audible"`
}

type tabInfo struct {
	url     string
	audible bool
}

// Options configures a Coordinator.
type Options struct {
	Store    storage.Store
	Engine   *policy.Engine
	Ledger   *ledger.Ledger
	Clock    clock.Clock
	Notifier *notify.Dispatcher
	Sink     Sink
	Logger   zerolog.Logger

	TickInterval  time.Duration // cadence of the tracking tick
	FlushInterval time.Duration // flush deadline while tracking
	PeriodicFlush time.Duration // unconditional flush cadence
}

// Coordinator owns the mutable snapshot: ledger, rule caches (held by
// the engine), session, tab table, active-tab id and window-focus flag.
type Coordinator struct {
	store    storage.Store
	engine   *policy.Engine
	led      *ledger.Ledger
	clk      clock.Clock
	notifier *notify.Dispatcher
	sink     Sink
	logger   zerolog.Logger

	tickInterval  time.Duration
	flushInterval time.Duration
	periodicFlush time.Duration

	sess          policy.Session
	audible       map[int]*policy.Session
	tabs          map[int]*tabInfo
	connected     map[int]struct{}
	activeTabID   int
	windowFocused bool
	browserSynced bool

	lastFlush    time.Time
	lastTickUsed int
	lastTickDom  string

	calls chan call
	done  chan struct{}
}

type call struct {
	fn   func()
	done chan struct{}
}

// New creates a coordinator. Run must be started before any of the
// event, command or query methods are used.
func New(opts Options) *Coordinator {
	if opts.TickInterval == 0 {
		opts.TickInterval = time.Second
	}
	if opts.FlushInterval == 0 {
		opts.FlushInterval = 10 * time.Second
	}
	if opts.PeriodicFlush == 0 {
		opts.PeriodicFlush = time.Minute
	}
	return &Coordinator{
		store:         opts.Store,
		engine:        opts.Engine,
		led:           opts.Ledger,
		clk:           opts.Clock,
		notifier:      opts.Notifier,
		sink:          opts.Sink,
		logger:        opts.Logger.With().Str("component", "coordinator").Logger(),
		tickInterval:  opts.TickInterval,
		flushInterval: opts.FlushInterval,
		periodicFlush: opts.PeriodicFlush,
		audible:       make(map[int]*policy.Session),
		tabs:          make(map[int]*tabInfo),
		connected:     make(map[int]struct{}),
		activeTabID:   -1,
		calls:         make(chan call, 64),
		done:          make(chan struct{}),
	}
}

// Load restores durable state: the usage ledger (with day rollover
// applied to every entry) and both rule lists. Live browser state is
// never assumed; it arrives with the extension's first state sync.
func (c *Coordinator) Load(ctx context.Context) error {
	usage, err := c.store.Usage().GetUsage(ctx)
	if err != nil {
		return fmt.Errorf("load usage ledger: %w", err)
	}
	limits, err := c.store.Rules().GetLimits(ctx)
	if err != nil {
		return fmt.Errorf("load limit rules: %w", err)
	}
	blocks, err := c.store.Rules().GetBlocks(ctx)
	if err != nil {
		return fmt.Errorf("load block rules: %w", err)
	}

	c.led.Load(usage)
	c.engine.SetRules(limits, blocks)
	c.lastFlush = c.clk.Now()

	c.logger.Info().
		Int("usage_entries", len(usage)).
		Int("limit_rules", len(limits)).
		Int("block_rules", len(blocks)).
		Msg("State loaded")

	return nil
}

// Run drains the event loop until ctx is cancelled, then pauses the
// session and performs a final synchronous flush.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()
	periodic := time.NewTicker(c.periodicFlush)
	defer periodic.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			close(c.done)
			return
		case cl := <-c.calls:
			cl.fn()
			if cl.done != nil {
				close(cl.done)
			}
		case <-ticker.C:
			c.onTick()
		case <-periodic.C:
			c.flushAsync()
		}
	}
}

// run executes fn on the event loop and waits for it. After shutdown
// it returns without executing.
func (c *Coordinator) run(fn func()) {
	done := make(chan struct{})
	select {
	case c.calls <- call{fn: fn, done: done}:
		select {
		case <-done:
		case <-c.done:
		}
	case <-c.done:
	}
}

// Tick runs one tracking tick synchronously. Exposed for tests and for
// hosts that drive the cadence themselves; Run's internal ticker calls
// the same body.
func (c *Coordinator) Tick() {
	c.run(c.onTick)
}

func (c *Coordinator) shutdown() {
	c.sess.Pause(c.clk, c.led)
	for id, sess := range c.audible {
		sess.Pause(c.clk, c.led)
		delete(c.audible, id)
	}
	metrics.TrackingActive.Set(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.store.Usage().SaveUsage(ctx, c.led.Snapshot()); err != nil {
		c.logger.Error().Err(err).Msg("Final usage flush failed")
	}
	c.logger.Info().Msg("Coordinator stopped")
}

// flushAsync persists a copy of the ledger in a detached goroutine.
// No caller waits on the periodic flush, so its failure is logged and
// dropped.
func (c *Coordinator) flushAsync() {
	c.lastFlush = c.clk.Now()
	snap := c.led.Snapshot()
	usage := c.store.Usage()
	logger := c.logger
	go func() {
		metrics.FlushesTotal.Inc()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := usage.SaveUsage(ctx, snap); err != nil {
			metrics.FlushErrorsTotal.Inc()
			logger.Error().Err(err).Msg("Failed to flush usage ledger")
		}
	}()
}

// push delivers a live update to a tab, best-effort.
func (c *Coordinator) push(tabID int, u TimeUpdate) {
	if c.sink == nil || tabID < 0 {
		return
	}
	u.Type = "TIME_UPDATE"
	c.sink.PushTimeUpdate(tabID, u)
}

// redirect issues a redirect command for a tab.
func (c *Coordinator) redirect(tabID int, domainName string, kind policy.RedirectType) {
	metrics.RedirectsTotal.WithLabelValues(string(kind)).Inc()
	c.logger.Info().
		Int("tab_id", tabID).
		Str("domain", domainName).
		Str("type", string(kind)).
		Msg("Redirecting tab")
	if c.sink != nil && tabID >= 0 {
		c.sink.Redirect(tabID, domainName, kind)
	}
}

// dispatchNotify fires one notification in a detached goroutine:
// settings read, gating and delivery all happen off the loop, and the
// result is logged and counted but never propagated.
func (c *Coordinator) dispatchNotify(event notify.Event, domainName string) {
	settingsStore := c.store.Settings()
	notifier := c.notifier
	logger := c.logger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		settings := storage.DefaultAccountabilitySettings()
		if stored, err := settingsStore.GetAccountability(ctx); err == nil {
			settings = *stored
		}

		res := notifier.Send(ctx, settings, event, domainName)
		outcome := "sent"
		if !res.OK {
			outcome = "skipped"
			logger.Debug().
				Str("event", string(event)).
				Str("domain", domainName).
				Str("error", res.Error).
				Msg("Notification not sent")
		} else {
			logger.Info().
				Str("event", string(event)).
				Str("domain", domainName).
				Msg("Notification sent")
		}
		metrics.NotificationsTotal.WithLabelValues(string(event), outcome).Inc()
	}()
}
