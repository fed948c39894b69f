package policy

import (
	"testing"
	"time"

	"github.com/goodtune/tabwarden/internal/clock"
	"github.com/goodtune/tabwarden/internal/domain"
	"github.com/goodtune/tabwarden/internal/ledger"
	"github.com/rs/zerolog"
)

func newTestEngine(t *testing.T, clk clock.Clock) *Engine {
	t.Helper()
	matcher, err := domain.NewMatcher(0)
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	return NewEngine(matcher, FocusGated{}, clk, zerolog.Nop())
}

func testSetup(t *testing.T) (*Engine, *ledger.Ledger) {
	t.Helper()
	clk := testClock()
	eng := newTestEngine(t, clk)
	led := ledger.New(clk)
	eng.SetRules(
		[]domain.LimitRule{{Domain: "youtube.com", LimitMinutes: 1}},
		[]domain.BlockRule{{Domain: "reddit.com"}},
	)
	return eng, led
}

func TestClassify(t *testing.T) {
	eng, led := testSetup(t)

	tests := []struct {
		name string
		url  string
		want State
	}{
		{"empty url", "", StateIdle},
		{"unparseable", "about:blank", StateIdle},
		{"no rule", "https://example.com/", StateIdle},
		{"blocked", "https://www.reddit.com/r/golang", StateBlocked},
		{"blocked subdomain", "https://old.reddit.com/", StateBlocked},
		{"limited under", "https://www.youtube.com/watch", StateLimitedUnder},
		{"limited subdomain", "https://music.youtube.com/", StateLimitedUnder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := eng.Classify(TabState{TabID: 1, URL: tt.url, Active: true, WindowFocused: true}, led)
			if dec.State != tt.want {
				t.Fatalf("Classify(%q) = %v, want %v", tt.url, dec.State, tt.want)
			}
		})
	}
}

func TestClassifyBlockWinsOverLimit(t *testing.T) {
	eng, led := testSetup(t)
	eng.SetRules(
		[]domain.LimitRule{{Domain: "reddit.com", LimitMinutes: 30}},
		[]domain.BlockRule{{Domain: "reddit.com"}},
	)

	dec := eng.Classify(TabState{URL: "https://reddit.com/", Active: true, WindowFocused: true}, led)
	if dec.State != StateBlocked {
		t.Fatalf("expected block to win over limit, got %v", dec.State)
	}
	if dec.Redirect != RedirectBlocked {
		t.Fatalf("expected blocked redirect, got %q", dec.Redirect)
	}
}

func TestClassifyOverLimit(t *testing.T) {
	eng, led := testSetup(t)
	led.SetUsedSeconds("youtube.com", 60)

	dec := eng.Classify(TabState{URL: "https://youtube.com/", Active: true, WindowFocused: true}, led)
	if dec.State != StateLimitedOver {
		t.Fatalf("expected limited-over, got %v", dec.State)
	}
	if dec.Redirect != RedirectLimit {
		t.Fatalf("expected limit redirect, got %q", dec.Redirect)
	}
}

func TestTickThresholdFiresExactlyOnce(t *testing.T) {
	clk := testClock()
	matcher, _ := domain.NewMatcher(0)
	eng := NewEngine(matcher, FocusGated{}, clk, zerolog.Nop())
	led := ledger.New(clk)
	eng.SetRules([]domain.LimitRule{{Domain: "youtube.com", LimitMinutes: 1}}, nil)

	var sess Session
	sess.Begin(clk, "youtube.com", 0)

	// 59 seconds in: under the limit.
	clk.Advance(59 * time.Second)
	res := eng.Tick(&sess, led)
	if res.LimitExceeded {
		t.Fatal("limit must not fire at 59s of a 60s budget")
	}
	if res.RemainingSeconds != 1 {
		t.Fatalf("expected 1 second remaining, got %d", res.RemainingSeconds)
	}

	// The 60th second crosses the threshold.
	clk.Advance(1 * time.Second)
	res = eng.Tick(&sess, led)
	if !res.LimitExceeded {
		t.Fatal("expected the crossing tick to report LimitExceeded")
	}
	if res.UsedSeconds != 60 {
		t.Fatalf("expected 60 used seconds, got %d", res.UsedSeconds)
	}
	if sess.Tracking() {
		t.Fatal("expected the session to be paused after the crossing")
	}

	// Subsequent ticks are inert: the crossing fires exactly once.
	clk.Advance(1 * time.Second)
	res = eng.Tick(&sess, led)
	if res.Tracking || res.LimitExceeded {
		t.Fatalf("expected no further tracking after pause, got %+v", res)
	}
	if got := led.UsedSeconds("youtube.com"); got != 60 {
		t.Fatalf("expected ledger to hold 60, got %d", got)
	}
}

func TestTickRuleGone(t *testing.T) {
	clk := testClock()
	matcher, _ := domain.NewMatcher(0)
	eng := NewEngine(matcher, FocusGated{}, clk, zerolog.Nop())
	led := ledger.New(clk)
	eng.SetRules([]domain.LimitRule{{Domain: "youtube.com", LimitMinutes: 1}}, nil)

	var sess Session
	sess.Begin(clk, "youtube.com", 0)
	clk.Advance(10 * time.Second)

	eng.SetRules(nil, nil)

	res := eng.Tick(&sess, led)
	if !res.RuleGone {
		t.Fatal("expected RuleGone after the rule was deleted")
	}
	if sess.Tracking() {
		t.Fatal("expected session to be paused")
	}
}

func TestTickNotAccruing(t *testing.T) {
	eng, led := testSetup(t)

	var sess Session
	res := eng.Tick(&sess, led)
	if res.Tracking {
		t.Fatal("expected no tracking for an empty session")
	}
}
