package coordinator

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/tabwarden/internal/clock"
	"github.com/goodtune/tabwarden/internal/domain"
	"github.com/goodtune/tabwarden/internal/ledger"
	"github.com/goodtune/tabwarden/internal/notify"
	"github.com/goodtune/tabwarden/internal/policy"
	"github.com/goodtune/tabwarden/internal/storage"
	"github.com/goodtune/tabwarden/internal/storage/bolt"
	"github.com/rs/zerolog"
)

type fakeRedirect struct {
	tabID  int
	domain string
	kind   policy.RedirectType
}

// fakeSink records pushes; the coordinator calls it from its event
// loop while tests read from their own goroutine.
type fakeSink struct {
	mu        sync.Mutex
	updates   []TimeUpdate
	redirects []fakeRedirect
}

func (s *fakeSink) PushTimeUpdate(tabID int, u TimeUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
}

func (s *fakeSink) Redirect(tabID int, d string, kind policy.RedirectType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirects = append(s.redirects, fakeRedirect{tabID: tabID, domain: d, kind: kind})
}

func (s *fakeSink) redirectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.redirects)
}

func (s *fakeSink) lastRedirect() (fakeRedirect, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.redirects) == 0 {
		return fakeRedirect{}, false
	}
	return s.redirects[len(s.redirects)-1], true
}

type harness struct {
	clk    *clock.TestClock
	coord  *Coordinator
	sink   *fakeSink
	store  storage.Store
	cancel context.CancelFunc
	done   chan struct{}
}

func newHarness(t *testing.T, gate policy.AccrualGate) *harness {
	t.Helper()

	clk := &clock.TestClock{CurrentTime: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}

	store, err := bolt.Open(filepath.Join(t.TempDir(), "tabwarden.bolt"))
	if err != nil {
		t.Fatalf("open bolt store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	matcher, err := domain.NewMatcher(0)
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}

	eng := policy.NewEngine(matcher, gate, clk, zerolog.Nop())
	led := ledger.New(clk)
	sink := &fakeSink{}

	coord := New(Options{
		Store:    store,
		Engine:   eng,
		Ledger:   led,
		Clock:    clk,
		Notifier: notify.NewDispatcher(notify.Config{}, zerolog.Nop()),
		Sink:     sink,
		Logger:   zerolog.Nop(),
		// The tests drive ticks through Tick; park the wall-clock
		// tickers out of the way.
		TickInterval:  time.Hour,
		FlushInterval: time.Hour,
		PeriodicFlush: time.Hour,
	})

	if err := coord.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		coord.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &harness{clk: clk, coord: coord, sink: sink, store: store, cancel: cancel, done: done}
}

// tick advances simulated time by one second and runs one tracking tick.
func (h *harness) tick() {
	h.clk.Advance(time.Second)
	h.coord.Tick()
}

func TestLimitLifecycle(t *testing.T) {
	h := newHarness(t, policy.FocusGated{})

	if usage := h.coord.GetUsage(); len(usage) != 0 {
		t.Fatalf("expected empty usage at start, got %+v", usage)
	}

	if err := h.coord.AddLimit("youtube.com", 1); err != nil {
		t.Fatalf("add limit: %v", err)
	}

	h.coord.SyncBrowserState(true, 1, []TabSnapshot{
		{TabID: 1, URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
	})

	st := h.coord.GetCurrentState(1)
	if st == nil {
		t.Fatal("expected a tracked state for the active tab")
	}
	if st.Domain != "youtube.com" || st.UsedSeconds != 0 || st.LimitSeconds != 60 || st.RemainingSeconds != 60 {
		t.Fatalf("unexpected initial state: %+v", st)
	}

	// 59 seconds: still under budget, no redirect.
	for i := 0; i < 59; i++ {
		h.tick()
	}
	if n := h.sink.redirectCount(); n != 0 {
		t.Fatalf("expected no redirect at 59s, got %d", n)
	}
	st = h.coord.GetCurrentState(1)
	if st == nil || st.UsedSeconds != 59 || st.RemainingSeconds != 1 {
		t.Fatalf("unexpected state at 59s: %+v", st)
	}

	// The 60th second spends the budget.
	h.tick()
	r, ok := h.sink.lastRedirect()
	if !ok {
		t.Fatal("expected a redirect on the crossing tick")
	}
	if r.tabID != 1 || r.domain != "youtube.com" || r.kind != policy.RedirectLimit {
		t.Fatalf("unexpected redirect: %+v", r)
	}
	if got := h.coord.GetUsage()["youtube.com"]; got != 60 {
		t.Fatalf("expected 60 seconds in the ledger, got %d", got)
	}
	if st := h.coord.GetCurrentState(1); st != nil {
		t.Fatalf("expected no tracked state after the crossing, got %+v", st)
	}

	// Further ticks change nothing: the crossing fired exactly once.
	h.tick()
	h.tick()
	if n := h.sink.redirectCount(); n != 1 {
		t.Fatalf("expected exactly one redirect, got %d", n)
	}
	if got := h.coord.GetUsage()["youtube.com"]; got != 60 {
		t.Fatalf("expected ledger to stay at 60, got %d", got)
	}
}

func TestExtendLimitResumesTracking(t *testing.T) {
	h := newHarness(t, policy.FocusGated{})

	if err := h.coord.AddLimit("youtube.com", 1); err != nil {
		t.Fatalf("add limit: %v", err)
	}
	h.coord.SyncBrowserState(true, 1, []TabSnapshot{
		{TabID: 1, URL: "https://youtube.com/watch"},
	})
	for i := 0; i < 60; i++ {
		h.tick()
	}
	if _, ok := h.sink.lastRedirect(); !ok {
		t.Fatal("expected the budget to be spent first")
	}

	ok, err := h.coord.ExtendLimit("youtube.com", 5)
	if err != nil {
		t.Fatalf("extend limit: %v", err)
	}
	if !ok {
		t.Fatal("expected extend to find the rule")
	}

	limits := h.coord.Limits()
	if len(limits) != 1 || limits[0].LimitMinutes != 6 {
		t.Fatalf("expected rule raised to 6 minutes, got %+v", limits)
	}

	// The active tab resumes tracking against the raised budget.
	st := h.coord.GetCurrentState(1)
	if st == nil {
		t.Fatal("expected tracking to resume after extension")
	}
	if st.UsedSeconds != 60 || st.LimitSeconds != 360 || st.RemainingSeconds != 300 {
		t.Fatalf("unexpected state after extension: %+v", st)
	}
}

func TestExtendLimitWithoutRule(t *testing.T) {
	h := newHarness(t, policy.FocusGated{})

	ok, err := h.coord.ExtendLimit("example.com", 5)
	if err != nil {
		t.Fatalf("extend limit: %v", err)
	}
	if ok {
		t.Fatal("expected extend to report no matching rule")
	}
}

func TestFocusLossSuspendsAccrual(t *testing.T) {
	h := newHarness(t, policy.FocusGated{})

	if err := h.coord.AddLimit("youtube.com", 10); err != nil {
		t.Fatalf("add limit: %v", err)
	}
	h.coord.SyncBrowserState(true, 1, []TabSnapshot{
		{TabID: 1, URL: "https://youtube.com/"},
	})

	for i := 0; i < 5; i++ {
		h.tick()
	}
	if got := h.coord.GetUsage()["youtube.com"]; got != 5 {
		t.Fatalf("expected 5s before focus loss, got %d", got)
	}

	h.coord.WindowFocusChanged(false)

	// Half a minute unfocused accrues nothing.
	for i := 0; i < 30; i++ {
		h.tick()
	}
	if got := h.coord.GetUsage()["youtube.com"]; got != 5 {
		t.Fatalf("expected usage frozen at 5s while unfocused, got %d", got)
	}

	h.coord.WindowFocusChanged(true)
	for i := 0; i < 5; i++ {
		h.tick()
	}
	if got := h.coord.GetUsage()["youtube.com"]; got != 10 {
		t.Fatalf("expected 10s after refocus, got %d", got)
	}
}

func TestNavigationSwitchesDomain(t *testing.T) {
	h := newHarness(t, policy.FocusGated{})

	if err := h.coord.AddLimit("youtube.com", 10); err != nil {
		t.Fatalf("add limit: %v", err)
	}
	h.coord.SyncBrowserState(true, 1, []TabSnapshot{
		{TabID: 1, URL: "https://youtube.com/"},
	})
	for i := 0; i < 20; i++ {
		h.tick()
	}

	// Navigating away pauses and folds the total into the ledger.
	h.coord.TabNavigated(1, "https://example.com/")
	if st := h.coord.GetCurrentState(1); st != nil {
		t.Fatalf("expected no tracking on an unruled domain, got %+v", st)
	}
	if got := h.coord.GetUsage()["youtube.com"]; got != 20 {
		t.Fatalf("expected 20s kept for youtube.com, got %d", got)
	}

	// Coming back resumes from the accumulated total.
	h.coord.TabNavigated(1, "https://youtube.com/feed")
	st := h.coord.GetCurrentState(1)
	if st == nil || st.UsedSeconds != 20 {
		t.Fatalf("expected tracking to resume at 20s, got %+v", st)
	}
}

func TestAddBlockRedirectsActiveTab(t *testing.T) {
	h := newHarness(t, policy.FocusGated{})

	h.coord.SyncBrowserState(true, 3, []TabSnapshot{
		{TabID: 3, URL: "https://www.reddit.com/r/golang"},
	})
	if n := h.sink.redirectCount(); n != 0 {
		t.Fatalf("expected no redirect before the rule exists, got %d", n)
	}

	if err := h.coord.AddBlock("reddit.com"); err != nil {
		t.Fatalf("add block: %v", err)
	}

	r, ok := h.sink.lastRedirect()
	if !ok {
		t.Fatal("expected the active tab to be redirected")
	}
	if r.tabID != 3 || r.domain != "reddit.com" || r.kind != policy.RedirectBlocked {
		t.Fatalf("unexpected redirect: %+v", r)
	}
}

func TestRemoveLimitResetsUsage(t *testing.T) {
	h := newHarness(t, policy.FocusGated{})

	if err := h.coord.AddLimit("youtube.com", 10); err != nil {
		t.Fatalf("add limit: %v", err)
	}
	h.coord.SyncBrowserState(true, 1, []TabSnapshot{
		{TabID: 1, URL: "https://youtube.com/"},
	})
	for i := 0; i < 30; i++ {
		h.tick()
	}
	if got := h.coord.GetUsage()["youtube.com"]; got != 30 {
		t.Fatalf("expected 30s tracked, got %d", got)
	}

	if err := h.coord.RemoveLimit("youtube.com"); err != nil {
		t.Fatalf("remove limit: %v", err)
	}

	if _, ok := h.coord.GetUsage()["youtube.com"]; ok {
		t.Fatal("expected usage to be cleared with the rule")
	}
	if st := h.coord.GetCurrentState(1); st != nil {
		t.Fatalf("expected no tracking after rule removal, got %+v", st)
	}
}

func TestResetUsageRestartsFromZero(t *testing.T) {
	h := newHarness(t, policy.FocusGated{})

	if err := h.coord.AddLimit("youtube.com", 1); err != nil {
		t.Fatalf("add limit: %v", err)
	}
	h.coord.SyncBrowserState(true, 1, []TabSnapshot{
		{TabID: 1, URL: "https://youtube.com/"},
	})
	for i := 0; i < 30; i++ {
		h.tick()
	}

	h.coord.ResetUsage("youtube.com")

	st := h.coord.GetCurrentState(1)
	if st == nil || st.UsedSeconds != 0 {
		t.Fatalf("expected tracking restarted from zero, got %+v", st)
	}

	// The old total must not leak back in.
	for i := 0; i < 10; i++ {
		h.tick()
	}
	if got := h.coord.GetUsage()["youtube.com"]; got != 10 {
		t.Fatalf("expected 10s after reset, got %d", got)
	}
}

func TestNothingTrackedBeforeBrowserSync(t *testing.T) {
	h := newHarness(t, policy.FocusGated{})

	if err := h.coord.AddLimit("youtube.com", 1); err != nil {
		t.Fatalf("add limit: %v", err)
	}

	// Events before the first full sync must not start a session: the
	// real focus and active-tab state is unknown.
	for i := 0; i < 30; i++ {
		h.tick()
	}
	if got := h.coord.GetUsage()["youtube.com"]; got != 0 {
		t.Fatalf("expected no usage before browser sync, got %d", got)
	}
}

func TestShutdownFlushesLedger(t *testing.T) {
	h := newHarness(t, policy.FocusGated{})

	if err := h.coord.AddLimit("youtube.com", 10); err != nil {
		t.Fatalf("add limit: %v", err)
	}
	h.coord.SyncBrowserState(true, 1, []TabSnapshot{
		{TabID: 1, URL: "https://youtube.com/"},
	})
	for i := 0; i < 42; i++ {
		h.tick()
	}

	h.cancel()
	<-h.done

	entries, err := h.store.Usage().GetUsage(context.Background())
	if err != nil {
		t.Fatalf("get usage: %v", err)
	}
	if entries["youtube.com"].UsedSeconds != 42 {
		t.Fatalf("expected 42s persisted at shutdown, got %+v", entries["youtube.com"])
	}
}

func TestAudibleBackgroundTab(t *testing.T) {
	h := newHarness(t, policy.AudibleAware{})

	if err := h.coord.AddLimit("youtube.com", 1); err != nil {
		t.Fatalf("add limit: %v", err)
	}

	// Tab 2 plays audio in the background while tab 1 is active on an
	// untracked site.
	h.coord.SyncBrowserState(true, 1, []TabSnapshot{
		{TabID: 1, URL: "https://example.com/"},
		{TabID: 2, URL: "https://youtube.com/watch", Audible: true},
	})

	// The audible session anchors on the first tick, so the budget is
	// spent one tick later than for a foreground session.
	for i := 0; i < 61; i++ {
		h.tick()
	}

	r, ok := h.sink.lastRedirect()
	if !ok {
		t.Fatal("expected the audible tab to be redirected")
	}
	if r.tabID != 2 || r.kind != policy.RedirectLimit {
		t.Fatalf("unexpected redirect: %+v", r)
	}
	if got := h.coord.GetUsage()["youtube.com"]; got != 60 {
		t.Fatalf("expected 60s accrued by the audible tab, got %d", got)
	}
}

func TestRulePersistenceAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tabwarden.bolt")

	store, err := bolt.Open(path)
	if err != nil {
		t.Fatalf("open bolt store: %v", err)
	}
	if err := store.Rules().SaveLimits(context.Background(), []domain.LimitRule{
		{Domain: "youtube.com", LimitMinutes: 7},
	}); err != nil {
		t.Fatalf("save limits: %v", err)
	}
	if err := store.Usage().SaveUsage(context.Background(), map[string]storage.UsageEntry{
		"youtube.com": {Date: "2025-03-10", UsedSeconds: 120},
	}); err != nil {
		t.Fatalf("save usage: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	// Restart: a fresh coordinator picks up rules and today's ledger.
	store, err = bolt.Open(path)
	if err != nil {
		t.Fatalf("reopen bolt store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	clk := &clock.TestClock{CurrentTime: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	matcher, _ := domain.NewMatcher(0)
	eng := policy.NewEngine(matcher, policy.FocusGated{}, clk, zerolog.Nop())
	coord := New(Options{
		Store:         store,
		Engine:        eng,
		Ledger:        ledger.New(clk),
		Clock:         clk,
		Notifier:      notify.NewDispatcher(notify.Config{}, zerolog.Nop()),
		Sink:          &fakeSink{},
		Logger:        zerolog.Nop(),
		TickInterval:  time.Hour,
		FlushInterval: time.Hour,
		PeriodicFlush: time.Hour,
	})
	if err := coord.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		coord.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	limits := coord.Limits()
	if len(limits) != 1 || limits[0].LimitMinutes != 7 {
		t.Fatalf("expected persisted rule to survive restart, got %+v", limits)
	}
	if got := coord.GetUsage()["youtube.com"]; got != 120 {
		t.Fatalf("expected persisted usage to survive restart, got %d", got)
	}
}
