package ledger

import (
	"testing"
	"time"

	"github.com/goodtune/tabwarden/internal/clock"
	"github.com/goodtune/tabwarden/internal/storage"
)

func testClock() *clock.TestClock {
	return &clock.TestClock{CurrentTime: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func TestLoadAppliesRollover(t *testing.T) {
	clk := testClock()
	led := New(clk)

	led.Load(map[string]storage.UsageEntry{
		"youtube.com": {Date: "2025-03-10", UsedSeconds: 120},
		"twitter.com": {Date: "2025-03-09", UsedSeconds: 900},
	})

	if got := led.UsedSeconds("youtube.com"); got != 120 {
		t.Fatalf("expected today's entry to survive with 120s, got %d", got)
	}
	if got := led.UsedSeconds("twitter.com"); got != 0 {
		t.Fatalf("expected yesterday's entry to reset to 0, got %d", got)
	}
}

func TestEnsureTodayIdempotent(t *testing.T) {
	clk := testClock()
	led := New(clk)

	led.EnsureToday("youtube.com")
	led.SetUsedSeconds("youtube.com", 55)
	led.EnsureToday("youtube.com")

	if got := led.UsedSeconds("youtube.com"); got != 55 {
		t.Fatalf("EnsureToday must not clobber a fresh entry, got %d", got)
	}
}

func TestStaleEntryReadsAsZero(t *testing.T) {
	clk := testClock()
	led := New(clk)

	led.SetUsedSeconds("youtube.com", 300)

	// Cross midnight.
	clk.Advance(24 * time.Hour)

	if got := led.UsedSeconds("youtube.com"); got != 0 {
		t.Fatalf("expected stale entry to read as 0, got %d", got)
	}

	// Touching the domain resets the entry to today.
	led.EnsureToday("youtube.com")
	led.SetUsedSeconds("youtube.com", 10)
	if got := led.UsedSeconds("youtube.com"); got != 10 {
		t.Fatalf("expected 10 after reset, got %d", got)
	}
}

func TestReset(t *testing.T) {
	clk := testClock()
	led := New(clk)

	led.SetUsedSeconds("youtube.com", 300)
	led.Reset("youtube.com")

	if got := led.UsedSeconds("youtube.com"); got != 0 {
		t.Fatalf("expected 0 after reset, got %d", got)
	}
	if _, ok := led.Snapshot()["youtube.com"]; ok {
		t.Fatal("expected entry to be deleted entirely")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	clk := testClock()
	led := New(clk)

	led.SetUsedSeconds("youtube.com", 60)
	snap := led.Snapshot()
	snap["youtube.com"] = storage.UsageEntry{Date: led.Today(), UsedSeconds: 999}

	if got := led.UsedSeconds("youtube.com"); got != 60 {
		t.Fatalf("mutating a snapshot must not touch the ledger, got %d", got)
	}
}

func TestTodayUsageSkipsStale(t *testing.T) {
	clk := testClock()
	led := New(clk)

	led.SetUsedSeconds("youtube.com", 60)
	clk.Advance(24 * time.Hour)
	led.SetUsedSeconds("twitter.com", 30)

	usage := led.TodayUsage()
	if len(usage) != 1 {
		t.Fatalf("expected 1 entry for today, got %d", len(usage))
	}
	if usage["twitter.com"] != 30 {
		t.Fatalf("expected twitter.com=30, got %d", usage["twitter.com"])
	}
}
