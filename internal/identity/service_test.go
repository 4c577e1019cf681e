package identity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, clock func() time.Time) *Service {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "identity.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Requester{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return service
}

func TestTouchCreatesThenRefreshesDisplayName(t *testing.T) {
	now := time.Date(2024, time.March, 10, 8, 0, 0, 0, time.UTC)
	service := newTestService(t, func() time.Time { return now })

	if err := service.Touch(context.Background(), 101, "zara"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now = now.Add(time.Hour)
	if err := service.Touch(context.Background(), 101, "zara khan"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	known, err := service.Known(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(known) != 1 {
		t.Fatalf("expected 1 requester, got %d", len(known))
	}
	if known[0].DisplayName != "zara khan" {
		t.Fatalf("display name not refreshed: %q", known[0].DisplayName)
	}
	if !known[0].LastSeenAt.Equal(now) {
		t.Fatalf("last seen not refreshed: %v", known[0].LastSeenAt)
	}
}

func TestTouchRejectsZeroUserID(t *testing.T) {
	service := newTestService(t, time.Now)
	if err := service.Touch(context.Background(), 0, "nobody"); !errors.Is(err, ErrInvalidRequester) {
		t.Fatalf("got error %v, want ErrInvalidRequester", err)
	}
}
