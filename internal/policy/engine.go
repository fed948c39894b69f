// Package policy decides what should be tracked, and when a tab must
// be redirected. It owns the rule caches and the wall-clock-anchored
// session; all durable state stays in the ledger.
package policy

import (
	"github.com/goodtune/tabwarden/internal/clock"
	"github.com/goodtune/tabwarden/internal/domain"
	"github.com/goodtune/tabwarden/internal/ledger"
	"github.com/rs/zerolog"
)

// State classifies what is being timed for an observed tab.
type State int

const (
	// StateIdle means no domain is tracked: extension page, parse
	// failure, or no matching rule.
	StateIdle State = iota
	// StateBlocked means the domain matches a block rule.
	StateBlocked
	// StateLimitedUnder means the domain has a limit with budget left.
	StateLimitedUnder
	// StateLimitedOver means the domain's daily budget is spent.
	StateLimitedOver
)

func (s State) String() string {
	switch s {
	case StateBlocked:
		return "blocked"
	case StateLimitedUnder:
		return "limited-under"
	case StateLimitedOver:
		return "limited-over"
	default:
		return "idle"
	}
}

// RedirectType names the block page variant a redirect command targets.
type RedirectType string

const (
	RedirectNone    RedirectType = ""
	RedirectBlocked RedirectType = "blocked"
	RedirectLimit   RedirectType = "limit"
)

// Decision is the result of classifying a tab against the rule caches
// and today's ledger.
type Decision struct {
	State            State
	Domain           string
	Rule             domain.LimitRule // valid for the limited states
	Redirect         RedirectType
	UsedSeconds      int
	LimitSeconds     int
	RemainingSeconds int
}

// TickResult is the outcome of one tick of the active session.
type TickResult struct {
	Tracking         bool
	Domain           string
	UsedSeconds      int
	LimitSeconds     int
	RemainingSeconds int
	LimitExceeded    bool
	RuleGone         bool
}

// Engine evaluates tabs against the rule caches. Not safe for
// concurrent use; the coordinator event loop is its only caller.
type Engine struct {
	matcher *domain.Matcher
	gate    AccrualGate
	clk     clock.Clock
	logger  zerolog.Logger

	limits []domain.LimitRule
	blocks []domain.BlockRule
}

// NewEngine creates a policy engine with empty rule caches.
func NewEngine(matcher *domain.Matcher, gate AccrualGate, clk clock.Clock, logger zerolog.Logger) *Engine {
	return &Engine{
		matcher: matcher,
		gate:    gate,
		clk:     clk,
		logger:  logger.With().Str("component", "policy").Logger(),
	}
}

// SetRules replaces both rule caches.
func (e *Engine) SetRules(limits []domain.LimitRule, blocks []domain.BlockRule) {
	e.limits = limits
	e.blocks = blocks
}

// Limits returns the current limit rule cache.
func (e *Engine) Limits() []domain.LimitRule { return e.limits }

// Blocks returns the current block rule cache.
func (e *Engine) Blocks() []domain.BlockRule { return e.blocks }

// Gate returns the configured accrual gate.
func (e *Engine) Gate() AccrualGate { return e.gate }

// MatchLimit finds the most specific limit rule covering d.
func (e *Engine) MatchLimit(d string) (domain.LimitRule, bool) {
	return domain.MatchLimit(e.limits, d)
}

// Classify maps a tab to a tracking state. Block rules win over limit
// rules on the same domain. The ledger is touched (EnsureToday) only
// when a limit rule matches.
func (e *Engine) Classify(tab TabState, led *ledger.Ledger) Decision {
	if tab.URL == "" {
		return Decision{State: StateIdle}
	}

	d, ok := e.matcher.DomainOf(tab.URL)
	if !ok {
		return Decision{State: StateIdle}
	}

	if domain.MatchBlock(e.blocks, d) {
		e.logger.Debug().Str("domain", d).Msg("Domain is blocked")
		return Decision{State: StateBlocked, Domain: d, Redirect: RedirectBlocked}
	}

	rule, ok := domain.MatchLimit(e.limits, d)
	if !ok {
		return Decision{State: StateIdle, Domain: d}
	}

	led.EnsureToday(d)
	used := led.UsedSeconds(d)
	limit := rule.LimitSeconds()

	if used >= limit {
		return Decision{
			State:        StateLimitedOver,
			Domain:       d,
			Rule:         rule,
			Redirect:     RedirectLimit,
			UsedSeconds:  used,
			LimitSeconds: limit,
		}
	}

	return Decision{
		State:            StateLimitedUnder,
		Domain:           d,
		Rule:             rule,
		UsedSeconds:      used,
		LimitSeconds:     limit,
		RemainingSeconds: limit - used,
	}
}

// Tick advances the active session by recomputing its total from the
// wall clock. On a threshold crossing it pauses the session, which is
// what makes the crossing fire exactly once: the next tick finds no
// accruing session and short-circuits.
func (e *Engine) Tick(sess *Session, led *ledger.Ledger) TickResult {
	if !sess.Accruing() {
		return TickResult{}
	}

	rule, ok := domain.MatchLimit(e.limits, sess.Domain)
	if !ok {
		// The rule covering the tracked domain was deleted.
		e.logger.Debug().Str("domain", sess.Domain).Msg("Tracked domain lost its rule")
		sess.Pause(e.clk, led)
		return TickResult{RuleGone: true}
	}

	used := sess.Snapshot(e.clk, led)
	limit := rule.LimitSeconds()
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	result := TickResult{
		Tracking:         true,
		Domain:           sess.Domain,
		UsedSeconds:      used,
		LimitSeconds:     limit,
		RemainingSeconds: remaining,
		LimitExceeded:    remaining <= 0,
	}

	if result.LimitExceeded {
		e.logger.Info().
			Str("domain", sess.Domain).
			Int("used_seconds", used).
			Int("limit_seconds", limit).
			Msg("Daily limit exceeded")
		sess.Pause(e.clk, led)
	}

	return result
}
