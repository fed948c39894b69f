// Package ledger maintains the per-domain, per-day accumulated-seconds
// records. Day rollover is lazy: there is no midnight job, a stale entry
// is reset the next time its domain is touched.
package ledger

import (
	"github.com/goodtune/tabwarden/internal/clock"
	"github.com/goodtune/tabwarden/internal/storage"
)

const dateFormat = "2006-01-02"

// Ledger is the in-memory usage ledger. It is not safe for concurrent
// use; the coordinator event loop is its only caller.
type Ledger struct {
	entries map[string]storage.UsageEntry
	clk     clock.Clock
}

// New creates an empty ledger.
func New(clk clock.Clock) *Ledger {
	return &Ledger{
		entries: make(map[string]storage.UsageEntry),
		clk:     clk,
	}
}

// Today returns the current calendar date as YYYY-MM-DD, computed per
// call so a day boundary is never cached across.
func (l *Ledger) Today() string {
	return l.clk.Now().Format(dateFormat)
}

// Load replaces the ledger contents with persisted entries, applying
// day rollover to each: entries from a previous day reset to zero.
func (l *Ledger) Load(entries map[string]storage.UsageEntry) {
	today := l.Today()
	l.entries = make(map[string]storage.UsageEntry, len(entries))
	for d, e := range entries {
		if e.Date != today {
			e = storage.UsageEntry{Date: today, UsedSeconds: 0}
		}
		l.entries[d] = e
	}
}

// EnsureToday makes sure the domain has a valid entry for today,
// resetting a missing or stale one to zero. Idempotent.
func (l *Ledger) EnsureToday(d string) {
	today := l.Today()
	if e, ok := l.entries[d]; !ok || e.Date != today {
		l.entries[d] = storage.UsageEntry{Date: today, UsedSeconds: 0}
	}
}

// UsedSeconds returns today's accumulated seconds for the domain.
// A missing or stale entry reads as zero.
func (l *Ledger) UsedSeconds(d string) int {
	e, ok := l.entries[d]
	if !ok || e.Date != l.Today() {
		return 0
	}
	return e.UsedSeconds
}

// SetUsedSeconds overwrites today's count for the domain.
func (l *Ledger) SetUsedSeconds(d string, seconds int) {
	l.entries[d] = storage.UsageEntry{Date: l.Today(), UsedSeconds: seconds}
}

// Reset deletes the domain's entry entirely, so a later re-add starts
// fresh.
func (l *Ledger) Reset(d string) {
	delete(l.entries, d)
}

// Snapshot returns a copy of the ledger suitable for handing to a
// detached flush without racing the event loop.
func (l *Ledger) Snapshot() map[string]storage.UsageEntry {
	out := make(map[string]storage.UsageEntry, len(l.entries))
	for d, e := range l.entries {
		out[d] = e
	}
	return out
}

// TodayUsage returns domain → seconds for entries dated today only.
func (l *Ledger) TodayUsage() map[string]int {
	today := l.Today()
	out := make(map[string]int)
	for d, e := range l.entries {
		if e.Date == today {
			out[d] = e.UsedSeconds
		}
	}
	return out
}
