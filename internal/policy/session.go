package policy

import (
	"time"

	"github.com/goodtune/tabwarden/internal/clock"
	"github.com/goodtune/tabwarden/internal/ledger"
)

// Session is the in-memory, wall-clock-anchored record of which domain
// is accruing time right now. Anchoring to a timestamp instead of
// incrementing a per-tick counter makes the measured usage immune to
// missed ticks: after a 40-second stall the next computation yields the
// true 40-second gap instead of silently undercounting.
//
// Exactly one Session exists per process lifetime; it is rebuilt from
// the persisted ledger plus live browser state after a restart.
type Session struct {
	Domain          string
	Anchor          time.Time // zero when not accruing
	BaseUsedSeconds int
}

// Tracking reports whether the session has a domain, accruing or not.
func (s *Session) Tracking() bool {
	return s.Domain != ""
}

// Accruing reports whether elapsed time is currently being counted.
// A session can be tracking but suspended (anchor cleared), e.g. when
// the window lost focus under a focus-gated policy.
func (s *Session) Accruing() bool {
	return s.Domain != "" && !s.Anchor.IsZero()
}

// Begin starts accruing time for domain on top of baseUsedSeconds.
func (s *Session) Begin(clk clock.Clock, d string, baseUsedSeconds int) {
	s.Domain = d
	s.Anchor = clk.Now()
	s.BaseUsedSeconds = baseUsedSeconds
}

// ElapsedSeconds returns the whole seconds since the anchor, or 0 when
// not accruing.
func (s *Session) ElapsedSeconds(clk clock.Clock) int {
	if s.Anchor.IsZero() {
		return 0
	}
	return int(clk.Now().Sub(s.Anchor).Round(time.Second) / time.Second)
}

// UsedSeconds returns the session's view of today's total for its
// domain: the base it started from plus elapsed time.
func (s *Session) UsedSeconds(clk clock.Clock) int {
	return s.BaseUsedSeconds + s.ElapsedSeconds(clk)
}

// Snapshot writes the current total into the ledger WITHOUT touching
// the anchor, so live reads never interrupt tracking. Returns the
// written total.
func (s *Session) Snapshot(clk clock.Clock, led *ledger.Ledger) int {
	if !s.Tracking() {
		return 0
	}
	used := s.UsedSeconds(clk)
	led.EnsureToday(s.Domain)
	led.SetUsedSeconds(s.Domain, used)
	return used
}

// Suspend snapshots and clears the anchor, keeping the domain known
// but not accruing.
func (s *Session) Suspend(clk clock.Clock, led *ledger.Ledger) {
	if !s.Accruing() {
		return
	}
	s.BaseUsedSeconds = s.Snapshot(clk, led)
	s.Anchor = time.Time{}
}

// Resume re-anchors a suspended session at its accumulated base.
func (s *Session) Resume(clk clock.Clock) {
	if !s.Tracking() || s.Accruing() {
		return
	}
	s.Anchor = clk.Now()
}

// Pause snapshots and fully clears the session.
func (s *Session) Pause(clk clock.Clock, led *ledger.Ledger) {
	s.Snapshot(clk, led)
	s.Domain = ""
	s.Anchor = time.Time{}
	s.BaseUsedSeconds = 0
}
