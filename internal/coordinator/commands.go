package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/tabwarden/internal/domain"
	"github.com/goodtune/tabwarden/internal/notify"
	"github.com/goodtune/tabwarden/internal/policy"
	"github.com/goodtune/tabwarden/internal/storage"
)

// DefaultExtendMinutes is granted when an extension request does not
// say how much.
const DefaultExtendMinutes = 5

const saveTimeout = 5 * time.Second

// GetUsage returns today's per-domain used seconds, including time
// accrued since the last flush.
func (c *Coordinator) GetUsage() map[string]int {
	var out map[string]int
	c.run(func() {
		c.sess.Snapshot(c.clk, c.led)
		for _, sess := range c.audible {
			sess.Snapshot(c.clk, c.led)
		}
		out = c.led.TodayUsage()
	})
	if out == nil {
		out = map[string]int{}
	}
	return out
}

// GetCurrentState answers a tab's poll for its own live counters.
// Returns nil for any tab that is not the one being tracked, so a
// stale poll from a background tab never shows another domain's
// numbers.
func (c *Coordinator) GetCurrentState(tabID int) *TimeUpdate {
	var out *TimeUpdate
	c.run(func() {
		if tabID != c.activeTabID || !c.sess.Tracking() {
			return
		}
		rule, ok := c.engine.MatchLimit(c.sess.Domain)
		if !ok {
			return
		}
		used := c.sess.Snapshot(c.clk, c.led)
		limit := rule.LimitSeconds()
		remaining := limit - used
		if remaining < 0 {
			remaining = 0
		}
		out = &TimeUpdate{
			Type:             "TIME_UPDATE",
			Domain:           c.sess.Domain,
			UsedSeconds:      used,
			LimitSeconds:     limit,
			RemainingSeconds: remaining,
		}
	})
	return out
}

// Limits returns the current limit rules.
func (c *Coordinator) Limits() []domain.LimitRule {
	var out []domain.LimitRule
	c.run(func() {
		out = append(out, c.engine.Limits()...)
	})
	return out
}

// Blocks returns the current block rules.
func (c *Coordinator) Blocks() []domain.BlockRule {
	var out []domain.BlockRule
	c.run(func() {
		out = append(out, c.engine.Blocks()...)
	})
	return out
}

// ExtendLimit raises the most specific limit rule covering domainInput
// by minutes for the rest of the day. Returns false without error when
// no rule covers the domain; a persistence failure returns false with
// the error, leaving the in-memory rule untouched.
func (c *Coordinator) ExtendLimit(domainInput string, minutes int) (bool, error) {
	if minutes <= 0 {
		minutes = DefaultExtendMinutes
	}
	d := domain.NormalizeInput(domainInput)

	var ok bool
	var err error
	c.run(func() {
		rule, found := c.engine.MatchLimit(d)
		if !found {
			return
		}

		limits := make([]domain.LimitRule, len(c.engine.Limits()))
		copy(limits, c.engine.Limits())
		for i := range limits {
			if limits[i].Domain == rule.Domain {
				limits[i].LimitMinutes += minutes
			}
		}

		if err = c.saveLimits(limits); err != nil {
			return
		}
		c.engine.SetRules(limits, c.engine.Blocks())
		ok = true

		c.logger.Info().
			Str("domain", rule.Domain).
			Int("minutes", minutes).
			Msg("Limit extended")
		c.dispatchNotify(notify.EventLimitExtended, rule.Domain)
		c.evaluateActiveTab()
	})
	return ok, err
}

// ResetUsage zeroes today's usage for a domain. A session tracking the
// domain restarts from zero instead of writing its old total back.
func (c *Coordinator) ResetUsage(domainInput string) {
	d := domain.NormalizeInput(domainInput)
	c.run(func() {
		c.led.Reset(d)
		if c.sess.Domain == d {
			c.sess = policy.Session{}
		}
		for id, sess := range c.audible {
			if sess.Domain == d {
				delete(c.audible, id)
			}
		}
		c.flushAsync()
		c.logger.Info().Str("domain", d).Msg("Usage reset")
		c.evaluateActiveTab()
	})
}

// AddLimit creates or replaces the limit rule for a domain.
func (c *Coordinator) AddLimit(domainInput string, minutes int) error {
	d := domain.NormalizeInput(domainInput)
	if d == "" {
		return fmt.Errorf("invalid domain: %q", domainInput)
	}
	if minutes <= 0 {
		return fmt.Errorf("limit must be positive, got %d", minutes)
	}

	var err error
	c.run(func() {
		limits := make([]domain.LimitRule, 0, len(c.engine.Limits())+1)
		replaced := false
		for _, r := range c.engine.Limits() {
			if r.Domain == d {
				r.LimitMinutes = minutes
				replaced = true
			}
			limits = append(limits, r)
		}
		if !replaced {
			limits = append(limits, domain.LimitRule{Domain: d, LimitMinutes: minutes})
		}

		if err = c.saveLimits(limits); err != nil {
			return
		}
		c.engine.SetRules(limits, c.engine.Blocks())
		c.logger.Info().Str("domain", d).Int("minutes", minutes).Msg("Limit rule added")
		c.dispatchNotify(notify.EventLimitAdded, d)
		c.evaluateActiveTab()
	})
	return err
}

// RemoveLimit deletes a domain's limit rule and its usage for today.
func (c *Coordinator) RemoveLimit(domainInput string) error {
	d := domain.NormalizeInput(domainInput)

	var err error
	c.run(func() {
		limits := make([]domain.LimitRule, 0, len(c.engine.Limits()))
		for _, r := range c.engine.Limits() {
			if r.Domain != d {
				limits = append(limits, r)
			}
		}

		if err = c.saveLimits(limits); err != nil {
			return
		}
		c.engine.SetRules(limits, c.engine.Blocks())
		c.led.Reset(d)
		if c.sess.Domain != "" && domain.Matches(d, c.sess.Domain) {
			c.sess = policy.Session{}
		}
		c.flushAsync()
		c.logger.Info().Str("domain", d).Msg("Limit rule removed")
		c.dispatchNotify(notify.EventLimitRemoved, d)
		c.evaluateActiveTab()
	})
	return err
}

// AddBlock creates a permanent block rule for a domain.
func (c *Coordinator) AddBlock(domainInput string) error {
	d := domain.NormalizeInput(domainInput)
	if d == "" {
		return fmt.Errorf("invalid domain: %q", domainInput)
	}

	var err error
	c.run(func() {
		blocks := c.engine.Blocks()
		for _, r := range blocks {
			if r.Domain == d {
				return
			}
		}
		blocks = append(append([]domain.BlockRule{}, blocks...), domain.BlockRule{Domain: d})

		if err = c.saveBlocks(blocks); err != nil {
			return
		}
		c.engine.SetRules(c.engine.Limits(), blocks)
		c.logger.Info().Str("domain", d).Msg("Block rule added")
		c.dispatchNotify(notify.EventBlockAdded, d)
		c.evaluateActiveTab()
	})
	return err
}

// RemoveBlock deletes a domain's block rule.
func (c *Coordinator) RemoveBlock(domainInput string) error {
	d := domain.NormalizeInput(domainInput)

	var err error
	c.run(func() {
		blocks := make([]domain.BlockRule, 0, len(c.engine.Blocks()))
		for _, r := range c.engine.Blocks() {
			if r.Domain != d {
				blocks = append(blocks, r)
			}
		}

		if err = c.saveBlocks(blocks); err != nil {
			return
		}
		c.engine.SetRules(c.engine.Limits(), blocks)
		c.logger.Info().Str("domain", d).Msg("Block rule removed")
		c.dispatchNotify(notify.EventBlockRemoved, d)
		c.evaluateActiveTab()
	})
	return err
}

// ReloadRules re-reads both rule lists from storage, picking up edits
// made by another writer.
func (c *Coordinator) ReloadRules(ctx context.Context) error {
	limits, err := c.store.Rules().GetLimits(ctx)
	if err != nil {
		return fmt.Errorf("reload limit rules: %w", err)
	}
	blocks, err := c.store.Rules().GetBlocks(ctx)
	if err != nil {
		return fmt.Errorf("reload block rules: %w", err)
	}
	c.run(func() {
		c.engine.SetRules(limits, blocks)
		c.logger.Info().
			Int("limit_rules", len(limits)).
			Int("block_rules", len(blocks)).
			Msg("Rules reloaded")
		c.evaluateActiveTab()
	})
	return nil
}

// NotifyEvent fires one accountability notification, fire-and-forget.
func (c *Coordinator) NotifyEvent(event notify.Event, domainName string) error {
	if !event.Valid() {
		return fmt.Errorf("unknown notification event: %q", event)
	}
	c.dispatchNotify(event, domainName)
	return nil
}

// TestEmail sends a sample notification so a user can verify their
// accountability setup before relying on it. A non-nil override is
// used instead of the stored settings, letting the settings page test
// unsaved input.
func (c *Coordinator) TestEmail(ctx context.Context, override *storage.AccountabilitySettings) notify.Result {
	settings := storage.DefaultAccountabilitySettings()
	if override != nil {
		settings = *override
	} else if stored, err := c.store.Settings().GetAccountability(ctx); err == nil {
		settings = *stored
	}
	return c.notifier.Send(ctx, settings, notify.EventLimitAdded, "example.com")
}

func (c *Coordinator) saveLimits(limits []domain.LimitRule) error {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := c.store.Rules().SaveLimits(ctx, limits); err != nil {
		c.logger.Error().Err(err).Msg("Failed to persist limit rules")
		return fmt.Errorf("save limit rules: %w", err)
	}
	return nil
}

func (c *Coordinator) saveBlocks(blocks []domain.BlockRule) error {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := c.store.Rules().SaveBlocks(ctx, blocks); err != nil {
		c.logger.Error().Err(err).Msg("Failed to persist block rules")
		return fmt.Errorf("save block rules: %w", err)
	}
	return nil
}
