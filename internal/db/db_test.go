package db

import (
	"path/filepath"
	"testing"

	"fragcoach/internal/config"
	"fragcoach/internal/memory"
	"fragcoach/internal/operator"
)

// Dummy DSN for test (won't actually connect, just checks error path)
func TestInit_InvalidDSN(t *testing.T) {
	cfg := &config.Config{}
	cfg.Postgres.DSN = "invalid-dsn-for-testing"
	if err := Init(cfg); err == nil {
		t.Errorf("expected error for invalid DSN, got nil")
	}
}

func TestInit_SQLiteFallbackAndMigrates(t *testing.T) {
	cfg := &config.Config{}
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "coach-test.db")
	if err := Init(cfg); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if DB == nil {
		t.Fatalf("DB not set")
	}
	if err := DB.AutoMigrate(&operator.Operator{}, &memory.PlayerProfile{}, &memory.CoachingRecord{}, &memory.SnapshotRecord{}); err != nil {
		t.Errorf("AutoMigrate failed: %v", err)
	}
}
