package bolt

import (
	"context"
	"errors"

	"github.com/goodtune/tabwarden/internal/domain"
	"github.com/goodtune/tabwarden/internal/storage"
	"go.etcd.io/bbolt"
)

type ruleStore struct {
	db *bbolt.DB
}

func (s *ruleStore) GetLimits(ctx context.Context) ([]domain.LimitRule, error) {
	rules, err := getValue[[]domain.LimitRule](ctx, s.db, bucketRules, keyLimitedSites)
	if errors.Is(err, storage.ErrNotFound) {
		return []domain.LimitRule{}, nil
	}
	if err != nil {
		return nil, err
	}
	return *rules, nil
}

func (s *ruleStore) SaveLimits(ctx context.Context, rules []domain.LimitRule) error {
	return putValue(ctx, s.db, bucketRules, keyLimitedSites, rules)
}

func (s *ruleStore) GetBlocks(ctx context.Context) ([]domain.BlockRule, error) {
	rules, err := getValue[[]domain.BlockRule](ctx, s.db, bucketRules, keyBlockedSites)
	if errors.Is(err, storage.ErrNotFound) {
		return []domain.BlockRule{}, nil
	}
	if err != nil {
		return nil, err
	}
	return *rules, nil
}

func (s *ruleStore) SaveBlocks(ctx context.Context, rules []domain.BlockRule) error {
	return putValue(ctx, s.db, bucketRules, keyBlockedSites, rules)
}

type usageStore struct {
	db *bbolt.DB
}

func (s *usageStore) GetUsage(ctx context.Context) (map[string]storage.UsageEntry, error) {
	entries, err := getValue[map[string]storage.UsageEntry](ctx, s.db, bucketUsage, keyLedger)
	if errors.Is(err, storage.ErrNotFound) {
		return map[string]storage.UsageEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return *entries, nil
}

func (s *usageStore) SaveUsage(ctx context.Context, entries map[string]storage.UsageEntry) error {
	return putValue(ctx, s.db, bucketUsage, keyLedger, entries)
}

type settingsStore struct {
	db *bbolt.DB
}

func (s *settingsStore) GetAccountability(ctx context.Context) (*storage.AccountabilitySettings, error) {
	return getValue[storage.AccountabilitySettings](ctx, s.db, bucketSettings, keyAccountability)
}

func (s *settingsStore) SaveAccountability(ctx context.Context, settings storage.AccountabilitySettings) error {
	return putValue(ctx, s.db, bucketSettings, keyAccountability, settings)
}

func (s *settingsStore) GetMotivational(ctx context.Context) (*storage.MotivationalSettings, error) {
	return getValue[storage.MotivationalSettings](ctx, s.db, bucketSettings, keyMotivational)
}

func (s *settingsStore) SaveMotivational(ctx context.Context, settings storage.MotivationalSettings) error {
	return putValue(ctx, s.db, bucketSettings, keyMotivational, settings)
}
