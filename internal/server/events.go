package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orderdesk/remindbot/internal/reminders"
)

const deliveryStreamBuffer = 16

// DeliveryEvent is pushed to stream subscribers whenever the scheduler
// archives a delivered reminder.
type DeliveryEvent struct {
	EventID     string    `json:"event_id"`
	ArchiveID   int64     `json:"archive_id"`
	ChannelID   int64     `json:"channel_id"`
	RequesterID int64     `json:"requester_id"`
	Message     string    `json:"message"`
	DueAt       time.Time `json:"due_at"`
	DeliveredAt time.Time `json:"delivered_at"`
	Missed      bool      `json:"missed"`
}

// DeliveryDispatcher fans delivery events out to live stream subscribers.
// Slow subscribers lose events rather than blocking the scheduler.
type DeliveryDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]chan DeliveryEvent
	nextID      int64
}

// NewDeliveryDispatcher constructs an empty dispatcher.
func NewDeliveryDispatcher() *DeliveryDispatcher {
	return &DeliveryDispatcher{
		subscribers: make(map[int64]chan DeliveryEvent),
	}
}

// Subscribe registers a stream that receives future delivery events until
// ctx is cancelled.
func (d *DeliveryDispatcher) Subscribe(ctx context.Context) (<-chan DeliveryEvent, func()) {
	stream := make(chan DeliveryEvent, deliveryStreamBuffer)

	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.subscribers[id] = stream
	d.mu.Unlock()

	cleanup := func() {
		d.mu.Lock()
		if _, ok := d.subscribers[id]; ok {
			delete(d.subscribers, id)
			close(stream)
		}
		d.mu.Unlock()
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return stream, cleanup
}

// ReminderDelivered implements reminders.DeliveryObserver.
func (d *DeliveryDispatcher) ReminderDelivered(archived reminders.ArchivedReminder, deliveredAt time.Time, missed bool) {
	event := DeliveryEvent{
		EventID:     uuid.NewString(),
		ArchiveID:   archived.ID,
		ChannelID:   archived.ChannelID,
		RequesterID: archived.RequesterID,
		Message:     archived.Message,
		DueAt:       archived.Due(),
		DeliveredAt: deliveredAt,
		Missed:      missed,
	}

	// Sends stay under the read lock so a concurrent cleanup cannot close a
	// channel mid-send. The sends never block, so the lock is held briefly.
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, stream := range d.subscribers {
		select {
		case stream <- event:
		default:
		}
	}
}
