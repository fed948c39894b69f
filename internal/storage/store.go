package storage

import (
	"context"
	"errors"

	"github.com/goodtune/tabwarden/internal/domain"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface. Each logical record
// (rule lists, usage ledger, settings) occupies its own key and is
// loaded and saved wholesale; concurrent writers to the same key race
// with last-write-wins semantics, which is acceptable because writers
// update disjoint keys in normal operation.
type Store interface {
	Close() error
	Rules() RuleStore
	Usage() UsageStore
	Settings() SettingsStore
}

// RuleStore manages the user-declared limit and block rule lists.
// A missing list reads as empty, not as an error.
type RuleStore interface {
	GetLimits(ctx context.Context) ([]domain.LimitRule, error)
	SaveLimits(ctx context.Context, rules []domain.LimitRule) error
	GetBlocks(ctx context.Context) ([]domain.BlockRule, error)
	SaveBlocks(ctx context.Context, rules []domain.BlockRule) error
}

// UsageStore persists the per-domain usage ledger as one blob.
// A missing ledger reads as an empty map.
type UsageStore interface {
	GetUsage(ctx context.Context) (map[string]UsageEntry, error)
	SaveUsage(ctx context.Context, entries map[string]UsageEntry) error
}

// SettingsStore manages user-editable settings records. Getters return
// ErrNotFound when the record has never been saved; callers substitute
// the documented defaults.
type SettingsStore interface {
	GetAccountability(ctx context.Context) (*AccountabilitySettings, error)
	SaveAccountability(ctx context.Context, s AccountabilitySettings) error
	GetMotivational(ctx context.Context) (*MotivationalSettings, error)
	SaveMotivational(ctx context.Context, s MotivationalSettings) error
}
