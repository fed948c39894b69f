package redis

import (
	"context"
	"errors"

	"github.com/goodtune/tabwarden/internal/domain"
	"github.com/goodtune/tabwarden/internal/storage"
	"github.com/redis/go-redis/v9"
)

type ruleStore struct {
	client *redis.Client
}

func (s *ruleStore) GetLimits(ctx context.Context) ([]domain.LimitRule, error) {
	rules, err := getJSON[[]domain.LimitRule](ctx, s.client, keyLimitedSites)
	if errors.Is(err, storage.ErrNotFound) {
		return []domain.LimitRule{}, nil
	}
	if err != nil {
		return nil, err
	}
	return *rules, nil
}

func (s *ruleStore) SaveLimits(ctx context.Context, rules []domain.LimitRule) error {
	return setJSON(ctx, s.client, keyLimitedSites, rules)
}

func (s *ruleStore) GetBlocks(ctx context.Context) ([]domain.BlockRule, error) {
	rules, err := getJSON[[]domain.BlockRule](ctx, s.client, keyBlockedSites)
	if errors.Is(err, storage.ErrNotFound) {
		return []domain.BlockRule{}, nil
	}
	if err != nil {
		return nil, err
	}
	return *rules, nil
}

func (s *ruleStore) SaveBlocks(ctx context.Context, rules []domain.BlockRule) error {
	return setJSON(ctx, s.client, keyBlockedSites, rules)
}

type usageStore struct {
	client *redis.Client
}

func (s *usageStore) GetUsage(ctx context.Context) (map[string]storage.UsageEntry, error) {
	entries, err := getJSON[map[string]storage.UsageEntry](ctx, s.client, keyLedger)
	if errors.Is(err, storage.ErrNotFound) {
		return map[string]storage.UsageEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return *entries, nil
}

func (s *usageStore) SaveUsage(ctx context.Context, entries map[string]storage.UsageEntry) error {
	return setJSON(ctx, s.client, keyLedger, entries)
}

type settingsStore struct {
	client *redis.Client
}

func (s *settingsStore) GetAccountability(ctx context.Context) (*storage.AccountabilitySettings, error) {
	return getJSON[storage.AccountabilitySettings](ctx, s.client, keyAccountability)
}

func (s *settingsStore) SaveAccountability(ctx context.Context, settings storage.AccountabilitySettings) error {
	return setJSON(ctx, s.client, keyAccountability, settings)
}

func (s *settingsStore) GetMotivational(ctx context.Context) (*storage.MotivationalSettings, error) {
	return getJSON[storage.MotivationalSettings](ctx, s.client, keyMotivational)
}

func (s *settingsStore) SaveMotivational(ctx context.Context, settings storage.MotivationalSettings) error {
	return setJSON(ctx, s.client, keyMotivational, settings)
}
