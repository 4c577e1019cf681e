package reminders

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "reminders.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Reminder{}, &ArchivedReminder{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func mustNormalizer(t *testing.T, zone string) *Normalizer {
	t.Helper()
	normalizer, err := NewNormalizer(zone)
	if err != nil {
		t.Fatalf("unexpected normalizer error: %v", err)
	}
	return normalizer
}

func newTestStore(t *testing.T, clock func() time.Time) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{
		Database:   newTestDatabase(t),
		Normalizer: mustNormalizer(t, "Asia/Karachi"),
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	return store
}

func mustCreate(t *testing.T, store *Store, dueUTC time.Time, message string) int64 {
	t.Helper()
	id, err := store.Create(context.Background(), dueUTC, message,
		Identity{Name: "zara", ID: 101},
		Identity{Name: "orders", ID: 202})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	return id
}

func stringPtr(value string) *string {
	return &value
}
