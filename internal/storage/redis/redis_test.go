package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/tabwarden/internal/config"
	"github.com/goodtune/tabwarden/internal/domain"
	"github.com/goodtune/tabwarden/internal/storage"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	mr := miniredis.RunT(t)

	cfg := config.RedisConfig{
		Host:         mr.Addr(), // full "host:port" address
		Port:         0,         // not used when host contains the port
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("open redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestRuleStoreRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	limits := []domain.LimitRule{{Domain: "youtube.com", LimitMinutes: 30}}
	if err := store.Rules().SaveLimits(ctx, limits); err != nil {
		t.Fatalf("save limits: %v", err)
	}

	got, err := store.Rules().GetLimits(ctx)
	if err != nil {
		t.Fatalf("get limits: %v", err)
	}
	if len(got) != 1 || got[0].Domain != "youtube.com" || got[0].LimitMinutes != 30 {
		t.Fatalf("unexpected limits: %+v", got)
	}

	blocks := []domain.BlockRule{{Domain: "reddit.com"}}
	if err := store.Rules().SaveBlocks(ctx, blocks); err != nil {
		t.Fatalf("save blocks: %v", err)
	}
	gotBlocks, err := store.Rules().GetBlocks(ctx)
	if err != nil {
		t.Fatalf("get blocks: %v", err)
	}
	if len(gotBlocks) != 1 || gotBlocks[0].Domain != "reddit.com" {
		t.Fatalf("unexpected blocks: %+v", gotBlocks)
	}
}

func TestRuleStoreEmptyByDefault(t *testing.T) {
	store := setupTestStore(t)

	limits, err := store.Rules().GetLimits(context.Background())
	if err != nil {
		t.Fatalf("get limits: %v", err)
	}
	if len(limits) != 0 {
		t.Fatalf("expected no limits, got %d", len(limits))
	}
}

func TestUsageStoreRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	entries := map[string]storage.UsageEntry{
		"youtube.com": {Date: "2025-03-10", UsedSeconds: 300},
		"twitter.com": {Date: "2025-03-10", UsedSeconds: 45},
	}
	if err := store.Usage().SaveUsage(ctx, entries); err != nil {
		t.Fatalf("save usage: %v", err)
	}

	got, err := store.Usage().GetUsage(ctx)
	if err != nil {
		t.Fatalf("get usage: %v", err)
	}
	if len(got) != 2 || got["youtube.com"].UsedSeconds != 300 {
		t.Fatalf("unexpected usage: %+v", got)
	}
}

func TestSettingsStore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.Settings().GetAccountability(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	settings := storage.DefaultAccountabilitySettings()
	settings.Email = "buddy@example.com"
	if err := store.Settings().SaveAccountability(ctx, settings); err != nil {
		t.Fatalf("save accountability: %v", err)
	}

	got, err := store.Settings().GetAccountability(ctx)
	if err != nil {
		t.Fatalf("get accountability: %v", err)
	}
	if got.Email != "buddy@example.com" {
		t.Fatalf("unexpected settings: %+v", got)
	}
}
