package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultPollInterval = 10 * time.Second

var (
	errMissingStore    = errors.New("reminder store is required")
	errMissingNotifier = errors.New("notifier is required")
)

// Notifier delivers a reminder message to its origin channel and requester.
// The scheduler only needs a success/failure outcome; rendering is the
// notifier's concern. Implementations should bound the call with a timeout.
type Notifier interface {
	Notify(ctx context.Context, channelID, requesterID int64, message string) error
}

// DeliveryObserver is notified after a reminder has been delivered and
// archived. Optional; used for live delivery feeds.
type DeliveryObserver interface {
	ReminderDelivered(archived ArchivedReminder, deliveredAt time.Time, missed bool)
}

// SchedulerConfig describes the scheduler's collaborators.
type SchedulerConfig struct {
	Store    *Store
	Notifier Notifier
	Clock    func() time.Time
	Interval time.Duration
	Observer DeliveryObserver
	Logger   *zap.Logger
}

// Scheduler drives the due-query/notify/archive cycle: one recovery pass at
// startup for reminders that matured while the process was down, then a
// fixed-interval poll. A single goroutine runs both, so ticks never overlap.
//
// Delivery is at-least-once: a reminder is archived only after its notifier
// call succeeds, so a notifier failure leaves it active for the next tick.
type Scheduler struct {
	store    *Store
	notifier Notifier
	clock    func() time.Time
	interval time.Duration
	observer DeliveryObserver
	logger   *zap.Logger
}

// NewScheduler validates the configuration and returns a Scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Notifier == nil {
		return nil, errMissingNotifier
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Scheduler{
		store:    cfg.Store,
		notifier: cfg.Notifier,
		clock:    clock,
		interval: interval,
		observer: cfg.Observer,
		logger:   logger,
	}, nil
}

// Run executes the recovery pass, then polls until ctx is cancelled. Pass
// failures are logged and never stop the loop.
func (s *Scheduler) Run(ctx context.Context) {
	s.runPass(ctx, true)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("reminder scheduler polling", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scheduler stopped")
			return
		case <-ticker.C:
			s.runPass(ctx, false)
		}
	}
}

// runPass performs one due-query/notify/archive cycle. The recovery pass and
// the poll tick share this path deliberately; only the message wording
// differs for reminders that were missed while the process was offline.
func (s *Scheduler) runPass(ctx context.Context, missed bool) {
	now := s.clock().UTC()
	due, err := s.store.DueBefore(ctx, now)
	if err != nil {
		s.logger.Error("due query failed", zap.Error(err))
		return
	}

	for _, reminder := range due {
		if err := s.deliver(ctx, reminder, now, missed); err != nil {
			// Leave the reminder active; the next tick retries it.
			s.logger.Warn("reminder delivery failed",
				zap.Int64("reminder_id", reminder.ID),
				zap.Time("due_at", reminder.Due()),
				zap.Error(err))
		}
	}
}

func (s *Scheduler) deliver(ctx context.Context, reminder Reminder, now time.Time, missed bool) error {
	text := fmt.Sprintf("Reminder: %s", reminder.Message)
	if missed {
		text = fmt.Sprintf("Missed reminder: %s (was due at %s)",
			reminder.Message, s.store.normalizer.FormatLocal(reminder.Due()))
	}

	if err := s.notifier.Notify(ctx, reminder.ChannelID, reminder.RequesterID, text); err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	archived, err := s.store.ArchiveAndRemove(ctx, reminder.ID)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	s.logger.Info("reminder delivered",
		zap.Int64("reminder_id", reminder.ID),
		zap.Int64("archive_id", archived.ID),
		zap.Bool("missed", missed))
	if s.observer != nil {
		s.observer.ReminderDelivered(archived, now, missed)
	}
	return nil
}
