package server

import (
	"context"
	"testing"
	"time"

	"github.com/orderdesk/remindbot/internal/reminders"
)

func TestDispatcherDeliversEventsToSubscribers(t *testing.T) {
	dispatcher := NewDeliveryDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx)
	defer cleanup()

	archived := reminders.ArchivedReminder{
		ID:          7,
		ChannelID:   202,
		RequesterID: 101,
		Message:     "call supplier",
	}
	deliveredAt := time.Date(2024, time.March, 15, 4, 30, 0, 0, time.UTC)
	dispatcher.ReminderDelivered(archived, deliveredAt, true)

	select {
	case event := <-stream:
		if event.ArchiveID != 7 || !event.Missed {
			t.Fatalf("unexpected event: %+v", event)
		}
		if event.EventID == "" {
			t.Fatalf("expected an event id")
		}
		if !event.DeliveredAt.Equal(deliveredAt) {
			t.Fatalf("unexpected delivery time: %v", event.DeliveredAt)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event received")
	}
}

func TestDispatcherDropsEventsForFullSubscribers(t *testing.T) {
	dispatcher := NewDeliveryDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx)
	defer cleanup()

	// Publishing must never block, even when nobody drains the stream.
	for i := 0; i < deliveryStreamBuffer*2; i++ {
		dispatcher.ReminderDelivered(reminders.ArchivedReminder{ID: int64(i)}, time.Now(), false)
	}

	drained := 0
	for {
		select {
		case <-stream:
			drained++
		default:
			if drained != deliveryStreamBuffer {
				t.Fatalf("expected %d buffered events, got %d", deliveryStreamBuffer, drained)
			}
			return
		}
	}
}
