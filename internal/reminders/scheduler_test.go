package reminders

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type recordedNotification struct {
	channelID   int64
	requesterID int64
	message     string
}

type fakeNotifier struct {
	sent       []recordedNotification
	failIfHas  string
	alwaysFail bool
}

func (f *fakeNotifier) Notify(_ context.Context, channelID, requesterID int64, message string) error {
	if f.alwaysFail || (f.failIfHas != "" && strings.Contains(message, f.failIfHas)) {
		return errors.New("notifier unavailable")
	}
	f.sent = append(f.sent, recordedNotification{
		channelID:   channelID,
		requesterID: requesterID,
		message:     message,
	})
	return nil
}

type recordedDelivery struct {
	archived ArchivedReminder
	missed   bool
}

type fakeObserver struct {
	deliveries []recordedDelivery
}

func (f *fakeObserver) ReminderDelivered(archived ArchivedReminder, _ time.Time, missed bool) {
	f.deliveries = append(f.deliveries, recordedDelivery{archived: archived, missed: missed})
}

func newTestScheduler(t *testing.T, store *Store, notifier Notifier, clock func() time.Time, observer DeliveryObserver) *Scheduler {
	t.Helper()
	scheduler, err := NewScheduler(SchedulerConfig{
		Store:    store,
		Notifier: notifier,
		Clock:    clock,
		Observer: observer,
	})
	if err != nil {
		t.Fatalf("unexpected scheduler error: %v", err)
	}
	return scheduler
}

func TestPassDeliversAndArchivesDueReminders(t *testing.T) {
	now := time.Date(2024, time.March, 15, 4, 30, 0, 0, time.UTC)
	store := newTestStore(t, func() time.Time { return now })
	mustCreate(t, store, now.Add(-30*time.Minute), "pack order #12")
	mustCreate(t, store, now.Add(time.Hour), "still pending")

	notifier := &fakeNotifier{}
	scheduler := newTestScheduler(t, store, notifier, func() time.Time { return now }, nil)

	scheduler.runPass(context.Background(), false)

	if len(notifier.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.sent))
	}
	if notifier.sent[0].channelID != 202 || notifier.sent[0].requesterID != 101 {
		t.Fatalf("notification targeted %+v", notifier.sent[0])
	}
	if notifier.sent[0].message != "Reminder: pack order #12" {
		t.Fatalf("unexpected message: %q", notifier.sent[0].message)
	}

	active, err := store.ListActive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 1 || active[0].Message != "still pending" {
		t.Fatalf("unexpected active set: %+v", active)
	}
	past, err := store.ListArchived(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(past) != 1 {
		t.Fatalf("expected 1 archived reminder, got %d", len(past))
	}
}

func TestPassIsolatesPerReminderFailures(t *testing.T) {
	now := time.Date(2024, time.March, 15, 4, 30, 0, 0, time.UTC)
	store := newTestStore(t, func() time.Time { return now })
	mustCreate(t, store, now.Add(-3*time.Minute), "first")
	mustCreate(t, store, now.Add(-2*time.Minute), "second poisoned")
	mustCreate(t, store, now.Add(-1*time.Minute), "third")

	notifier := &fakeNotifier{failIfHas: "poisoned"}
	scheduler := newTestScheduler(t, store, notifier, func() time.Time { return now }, nil)

	scheduler.runPass(context.Background(), false)

	if len(notifier.sent) != 2 {
		t.Fatalf("expected 2 delivered notifications, got %d", len(notifier.sent))
	}

	active, err := store.ListActive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 1 || active[0].Message != "second poisoned" {
		t.Fatalf("failed reminder must stay active, got %+v", active)
	}
	past, err := store.ListArchived(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(past) != 2 {
		t.Fatalf("expected 2 archived reminders, got %d", len(past))
	}
}

func TestFailedDeliveryRetriesOnNextPass(t *testing.T) {
	now := time.Date(2024, time.March, 15, 4, 30, 0, 0, time.UTC)
	store := newTestStore(t, func() time.Time { return now })
	mustCreate(t, store, now.Add(-time.Minute), "flaky target")

	notifier := &fakeNotifier{alwaysFail: true}
	scheduler := newTestScheduler(t, store, notifier, func() time.Time { return now }, nil)

	scheduler.runPass(context.Background(), false)
	if len(notifier.sent) != 0 {
		t.Fatalf("expected no deliveries while notifier is down")
	}

	notifier.alwaysFail = false
	scheduler.runPass(context.Background(), false)
	if len(notifier.sent) != 1 {
		t.Fatalf("expected delivery on retry, got %d", len(notifier.sent))
	}

	past, err := store.ListArchived(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(past) != 1 {
		t.Fatalf("expected exactly one archive record, got %d", len(past))
	}
}

func TestRecoveryPassFlagsMissedReminders(t *testing.T) {
	// The reminder matured while the process was down; the recovery pass
	// delivers it exactly once with the missed wording.
	dueLocal := time.Date(2024, time.March, 15, 9, 0, 0, 0, karachi(t))
	now := dueLocal.Add(26 * time.Hour)
	store := newTestStore(t, func() time.Time { return now })
	mustCreate(t, store, dueLocal.UTC(), "submit report")

	notifier := &fakeNotifier{}
	observer := &fakeObserver{}
	scheduler := newTestScheduler(t, store, notifier, func() time.Time { return now }, observer)

	scheduler.runPass(context.Background(), true)

	if len(notifier.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.sent))
	}
	wantPrefix := "Missed reminder: submit report (was due at 15 Mar 2024 09:00"
	if !strings.HasPrefix(notifier.sent[0].message, wantPrefix) {
		t.Fatalf("message %q, want prefix %q", notifier.sent[0].message, wantPrefix)
	}
	if len(observer.deliveries) != 1 || !observer.deliveries[0].missed {
		t.Fatalf("observer saw %+v", observer.deliveries)
	}

	// A follow-up tick finds nothing left to deliver.
	scheduler.runPass(context.Background(), false)
	if len(notifier.sent) != 1 {
		t.Fatalf("reminder delivered twice")
	}
}

func TestNewSchedulerRequiresCollaborators(t *testing.T) {
	store := newTestStore(t, time.Now)
	if _, err := NewScheduler(SchedulerConfig{Notifier: &fakeNotifier{}}); err == nil {
		t.Fatalf("expected error without store")
	}
	if _, err := NewScheduler(SchedulerConfig{Store: store}); err == nil {
		t.Fatalf("expected error without notifier")
	}
}
