package coordinator

import (
	"github.com/goodtune/tabwarden/internal/metrics"
	"github.com/goodtune/tabwarden/internal/notify"
	"github.com/goodtune/tabwarden/internal/policy"
)

// SyncBrowserState replaces the whole tab table with what the browser
// actually shows right now. The extension sends one of these on connect
// and after service-worker restarts; until the first one arrives
// nothing is tracked.
func (c *Coordinator) SyncBrowserState(focused bool, activeTabID int, tabs []TabSnapshot) {
	c.run(func() {
		c.tabs = make(map[int]*tabInfo, len(tabs))
		for _, t := range tabs {
			c.tabs[t.TabID] = &tabInfo{url: t.URL, audible: t.Audible}
		}
		c.windowFocused = focused
		c.activeTabID = activeTabID
		c.browserSynced = true

		for id, sess := range c.audible {
			if _, ok := c.tabs[id]; !ok {
				sess.Pause(c.clk, c.led)
				delete(c.audible, id)
			}
		}

		c.logger.Debug().
			Int("tabs", len(tabs)).
			Int("active_tab", activeTabID).
			Bool("focused", focused).
			Msg("Browser state synced")
		c.evaluateActiveTab()
	})
}

// TabActivated records a new active tab and re-evaluates.
func (c *Coordinator) TabActivated(tabID int) {
	c.run(func() {
		c.activeTabID = tabID
		if _, ok := c.tabs[tabID]; !ok {
			c.tabs[tabID] = &tabInfo{}
		}
		c.evaluateActiveTab()
	})
}

// TabNavigated records a tab's new URL. Only a navigation of the
// active tab changes what is tracked.
func (c *Coordinator) TabNavigated(tabID int, url string) {
	c.run(func() {
		info, ok := c.tabs[tabID]
		if !ok {
			info = &tabInfo{}
			c.tabs[tabID] = info
		}
		info.url = url
		if sess, ok := c.audible[tabID]; ok {
			// Background navigation invalidates its audible session.
			sess.Pause(c.clk, c.led)
			delete(c.audible, tabID)
		}
		if tabID == c.activeTabID {
			c.evaluateActiveTab()
		}
	})
}

// TabAudibleChanged records a tab starting or stopping audio playback.
func (c *Coordinator) TabAudibleChanged(tabID int, audible bool) {
	c.run(func() {
		info, ok := c.tabs[tabID]
		if !ok {
			info = &tabInfo{}
			c.tabs[tabID] = info
		}
		info.audible = audible
		if !audible {
			if sess, ok := c.audible[tabID]; ok {
				sess.Pause(c.clk, c.led)
				delete(c.audible, tabID)
			}
		}
		if tabID == c.activeTabID {
			c.applyGate()
		}
	})
}

// TabRemoved drops a closed tab. Closing the active tab pauses
// tracking until the browser reports the next activation.
func (c *Coordinator) TabRemoved(tabID int) {
	c.run(func() {
		delete(c.tabs, tabID)
		if sess, ok := c.audible[tabID]; ok {
			sess.Pause(c.clk, c.led)
			delete(c.audible, tabID)
		}
		if tabID == c.activeTabID {
			c.activeTabID = -1
			c.pauseActive()
		}
	})
}

// WindowFocusChanged suspends or resumes accrual according to the gate.
func (c *Coordinator) WindowFocusChanged(focused bool) {
	c.run(func() {
		c.windowFocused = focused
		if !c.sess.Tracking() {
			if focused {
				c.evaluateActiveTab()
			}
			return
		}
		c.applyGate()
	})
}

// TabConnected registers a tab holding an open event stream.
func (c *Coordinator) TabConnected(tabID int) {
	c.run(func() {
		c.connected[tabID] = struct{}{}
		metrics.ConnectedTabs.Set(float64(len(c.connected)))
	})
}

// TabDisconnected unregisters a tab's event stream.
func (c *Coordinator) TabDisconnected(tabID int) {
	c.run(func() {
		delete(c.connected, tabID)
		metrics.ConnectedTabs.Set(float64(len(c.connected)))
	})
}

// activeTabState builds the gate's view of the active tab.
func (c *Coordinator) activeTabState() policy.TabState {
	tab := policy.TabState{
		TabID:         c.activeTabID,
		Active:        true,
		WindowFocused: c.windowFocused,
	}
	if info, ok := c.tabs[c.activeTabID]; ok {
		tab.URL = info.url
		tab.Audible = info.audible
	}
	return tab
}

// evaluateActiveTab reclassifies the active tab and moves the session
// to match: idle, redirected, or tracking from today's accumulated
// total.
func (c *Coordinator) evaluateActiveTab() {
	if !c.browserSynced || c.activeTabID < 0 {
		c.pauseActive()
		return
	}

	tab := c.activeTabState()
	dec := c.engine.Classify(tab, c.led)

	switch dec.State {
	case policy.StateBlocked:
		c.pauseActive()
		c.redirect(c.activeTabID, dec.Domain, policy.RedirectBlocked)
	case policy.StateLimitedOver:
		c.pauseActive()
		c.flushAsync()
		c.redirect(c.activeTabID, dec.Domain, policy.RedirectLimit)
	case policy.StateLimitedUnder:
		c.startTracking(dec, tab)
	default:
		c.pauseActive()
	}
}

// startTracking points the session at a limited-under domain. A
// same-domain re-evaluation keeps the running session; a domain switch
// pauses the old one and flushes.
func (c *Coordinator) startTracking(dec policy.Decision, tab policy.TabState) {
	if c.sess.Domain != dec.Domain {
		if c.sess.Tracking() {
			c.sess.Pause(c.clk, c.led)
			c.flushAsync()
		}
		c.sess.Begin(c.clk, dec.Domain, dec.UsedSeconds)
		c.logger.Info().
			Str("domain", dec.Domain).
			Int("used_seconds", dec.UsedSeconds).
			Int("limit_seconds", dec.LimitSeconds).
			Msg("Tracking started")
	}
	c.applyGate()

	c.push(c.activeTabID, TimeUpdate{
		Domain:           dec.Domain,
		UsedSeconds:      dec.UsedSeconds,
		LimitSeconds:     dec.LimitSeconds,
		RemainingSeconds: dec.RemainingSeconds,
	})
}

// applyGate suspends or resumes the session per the accrual gate's
// verdict on the current active-tab state. Suspension flushes, since a
// focus loss can precede a long idle stretch.
func (c *Coordinator) applyGate() {
	if !c.sess.Tracking() {
		metrics.TrackingActive.Set(0)
		return
	}
	if c.engine.Gate().ShouldAccrue(c.activeTabState()) {
		c.sess.Resume(c.clk)
	} else if c.sess.Accruing() {
		c.sess.Suspend(c.clk, c.led)
		c.flushAsync()
	}
	if c.sess.Accruing() {
		metrics.TrackingActive.Set(1)
	} else {
		metrics.TrackingActive.Set(0)
	}
}

// pauseActive folds the session into the ledger and goes idle.
func (c *Coordinator) pauseActive() {
	if c.sess.Tracking() {
		c.sess.Pause(c.clk, c.led)
		c.flushAsync()
	}
	metrics.TrackingActive.Set(0)
}

// onTick is one beat of the tracking clock: recompute the active
// session's total from the anchor, push the update, and enforce the
// threshold crossing exactly once.
func (c *Coordinator) onTick() {
	metrics.TicksTotal.Inc()
	c.tickAudible()

	res := c.engine.Tick(&c.sess, c.led)
	if res.RuleGone {
		metrics.TrackingActive.Set(0)
		c.flushAsync()
		return
	}
	if !res.Tracking {
		return
	}

	if res.Domain == c.lastTickDom && res.UsedSeconds > c.lastTickUsed {
		metrics.TrackedSecondsTotal.WithLabelValues(res.Domain).
			Add(float64(res.UsedSeconds - c.lastTickUsed))
	}
	c.lastTickDom = res.Domain
	c.lastTickUsed = res.UsedSeconds

	c.push(c.activeTabID, TimeUpdate{
		Domain:           res.Domain,
		UsedSeconds:      res.UsedSeconds,
		LimitSeconds:     res.LimitSeconds,
		RemainingSeconds: res.RemainingSeconds,
	})

	if res.LimitExceeded {
		metrics.TrackingActive.Set(0)
		c.flushAsync()
		c.dispatchNotify(notify.EventLimitExceeded, res.Domain)
		c.redirect(c.activeTabID, res.Domain, policy.RedirectLimit)
		return
	}

	if c.clk.Now().Sub(c.lastFlush) >= c.flushInterval {
		c.flushAsync()
	}
}

// tickAudible runs the same per-domain accounting for background tabs
// that are playing media, one session per such tab. Only meaningful
// under the audible-aware gate.
func (c *Coordinator) tickAudible() {
	if _, ok := c.engine.Gate().(policy.AudibleAware); !ok {
		return
	}

	for tabID, info := range c.tabs {
		if tabID == c.activeTabID || !info.audible || info.url == "" {
			continue
		}

		tab := policy.TabState{TabID: tabID, URL: info.url, Audible: true}
		dec := c.engine.Classify(tab, c.led)

		// The foreground session already accounts for this domain.
		if dec.Domain != "" && dec.Domain == c.sess.Domain {
			if sess, ok := c.audible[tabID]; ok {
				sess.Pause(c.clk, c.led)
				delete(c.audible, tabID)
			}
			continue
		}

		switch dec.State {
		case policy.StateLimitedUnder:
			sess, ok := c.audible[tabID]
			if !ok || sess.Domain != dec.Domain {
				if ok {
					sess.Pause(c.clk, c.led)
				}
				sess = &policy.Session{}
				sess.Begin(c.clk, dec.Domain, dec.UsedSeconds)
				c.audible[tabID] = sess
			}
			res := c.engine.Tick(sess, c.led)
			if res.LimitExceeded || res.RuleGone {
				delete(c.audible, tabID)
				c.flushAsync()
				if res.LimitExceeded {
					c.dispatchNotify(notify.EventLimitExceeded, res.Domain)
					c.redirect(tabID, res.Domain, policy.RedirectLimit)
				}
			}
		case policy.StateLimitedOver:
			if sess, ok := c.audible[tabID]; ok {
				sess.Pause(c.clk, c.led)
				delete(c.audible, tabID)
			}
			c.redirect(tabID, dec.Domain, policy.RedirectLimit)
		case policy.StateBlocked:
			if sess, ok := c.audible[tabID]; ok {
				sess.Pause(c.clk, c.led)
				delete(c.audible, tabID)
			}
			c.redirect(tabID, dec.Domain, policy.RedirectBlocked)
		default:
			if sess, ok := c.audible[tabID]; ok {
				sess.Pause(c.clk, c.led)
				delete(c.audible, tabID)
			}
		}
	}
}
