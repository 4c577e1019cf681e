package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingNormalizer = errors.New("normalizer is required")
	noOpLogger           = zap.NewNop()
)

const (
	opStoreNew         = "reminders.store.new"
	opCreate           = "reminders.create"
	opSchedule         = "reminders.schedule"
	opDueBefore        = "reminders.due_before"
	opListActive       = "reminders.list_active"
	opListArchived     = "reminders.list_archived"
	opRemove           = "reminders.remove"
	opEdit             = "reminders.edit"
	opArchiveAndRemove = "reminders.archive_and_remove"
)

// PersistenceError wraps a storage failure with the operation and reason
// that produced it.
type PersistenceError struct {
	code string
	err  error
}

func (e *PersistenceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *PersistenceError) Unwrap() error {
	return e.err
}

// Code identifies the failing operation and reason, dot-separated.
func (e *PersistenceError) Code() string {
	return e.code
}

func newPersistenceError(operation, reason string, cause error) error {
	return &PersistenceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// StoreConfig describes the dependencies of the reminder store.
type StoreConfig struct {
	Database   *gorm.DB
	Normalizer *Normalizer
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Store owns the active_reminders and past_reminders tables. Every mutation
// runs inside a storage transaction; no other component holds authoritative
// reminder state.
type Store struct {
	db         *gorm.DB
	normalizer *Normalizer
	clock      func() time.Time
	logger     *zap.Logger
}

// NewStore validates the configuration and returns a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newPersistenceError(opStoreNew, "missing_database", errMissingDatabase)
	}
	if cfg.Normalizer == nil {
		return nil, newPersistenceError(opStoreNew, "missing_normalizer", errMissingNormalizer)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{
		db:         cfg.Database,
		normalizer: cfg.Normalizer,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Create inserts an active reminder due at the given UTC instant and returns
// its assigned id.
func (s *Store) Create(ctx context.Context, dueUTC time.Time, message string, requester, channel Identity) (int64, error) {
	text, err := normalizeMessage(message)
	if err != nil {
		return 0, err
	}
	reminder := Reminder{
		DueAtSeconds:  dueUTC.UTC().Unix(),
		Message:       text,
		RequesterName: requester.Name,
		RequesterID:   requester.ID,
		ChannelName:   channel.Name,
		ChannelID:     channel.ID,
	}
	if err := s.db.WithContext(ctx).Create(&reminder).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.Int64("requester_id", requester.ID))
		return 0, newPersistenceError(opCreate, "insert_failed", err)
	}
	return reminder.ID, nil
}

// Schedule is the parse-then-create path behind the reminder command: it
// resolves the local date/time input against local now, rejects instants in
// the past, and persists the UTC conversion. The returned instant is the
// resolved local time, for confirmation rendering.
func (s *Store) Schedule(ctx context.Context, dateText, timeText, message string, requester, channel Identity) (int64, time.Time, error) {
	localNow := s.normalizer.Now(s.clock)
	local, err := s.normalizer.ParseLocal(dateText, timeText, localNow)
	if err != nil {
		return 0, time.Time{}, err
	}
	if local.Before(localNow) {
		return 0, time.Time{}, fmt.Errorf("%w: %s", ErrPastSchedule, local.Format(displayLayout))
	}
	id, err := s.Create(ctx, s.normalizer.ToUTC(local), message, requester, channel)
	if err != nil {
		return 0, time.Time{}, err
	}
	s.logger.Info("reminder scheduled",
		zap.String("operation", opSchedule),
		zap.Int64("reminder_id", id),
		zap.Time("due_local", local))
	return id, local, nil
}

// DueBefore returns every active reminder whose due instant is at or before
// the cutoff, in id order. Read-only.
func (s *Store) DueBefore(ctx context.Context, cutoffUTC time.Time) ([]Reminder, error) {
	var due []Reminder
	err := s.db.WithContext(ctx).
		Where("due_at_s <= ?", cutoffUTC.UTC().Unix()).
		Order("id ASC").
		Find(&due).Error
	if err != nil {
		s.logError(opDueBefore, "query_failed", err)
		return nil, newPersistenceError(opDueBefore, "query_failed", err)
	}
	return due, nil
}

// ListActive returns all pending reminders in id order.
func (s *Store) ListActive(ctx context.Context) ([]Reminder, error) {
	var active []Reminder
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&active).Error; err != nil {
		s.logError(opListActive, "query_failed", err)
		return nil, newPersistenceError(opListActive, "query_failed", err)
	}
	return active, nil
}

// ListArchived returns all delivered reminders in archive id order.
func (s *Store) ListArchived(ctx context.Context) ([]ArchivedReminder, error) {
	var archived []ArchivedReminder
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&archived).Error; err != nil {
		s.logError(opListArchived, "query_failed", err)
		return nil, newPersistenceError(opListArchived, "query_failed", err)
	}
	return archived, nil
}

// Remove deletes the active reminder with the given id. A second removal of
// the same id reports ErrNotFound, not success.
func (s *Store) Remove(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Delete(&Reminder{}, id)
	if result.Error != nil {
		s.logError(opRemove, "delete_failed", result.Error, zap.Int64("reminder_id", id))
		return newPersistenceError(opRemove, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// EditRequest carries the optional fields of a partial reminder edit. Nil
// fields keep their stored value. Date and time text are resolved the same
// way Schedule resolves them, except that a field supplied alone inherits
// the other half from the stored due instant.
type EditRequest struct {
	DateText *string
	TimeText *string
	Message  *string
}

// Edit applies a partial update to an active reminder.
func (s *Store) Edit(ctx context.Context, id int64, req EditRequest) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current Reminder
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			Take(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			s.logError(opEdit, "select_failed", err, zap.Int64("reminder_id", id))
			return newPersistenceError(opEdit, "select_failed", err)
		}

		updates := map[string]interface{}{}
		if req.DateText != nil || req.TimeText != nil {
			storedLocal := s.normalizer.ToLocal(current.Due())
			dateText := storedLocal.Format("02 Jan 2006")
			timeText := storedLocal.Format("15:04")
			if req.DateText != nil {
				dateText = *req.DateText
			}
			if req.TimeText != nil {
				timeText = *req.TimeText
			}
			local, err := s.normalizer.ParseLocal(dateText, timeText, s.normalizer.Now(s.clock))
			if err != nil {
				return err
			}
			updates["due_at_s"] = s.normalizer.ToUTC(local).Unix()
		}
		if req.Message != nil {
			text, err := normalizeMessage(*req.Message)
			if err != nil {
				return err
			}
			updates["message"] = text
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&Reminder{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			s.logError(opEdit, "update_failed", err, zap.Int64("reminder_id", id))
			return newPersistenceError(opEdit, "update_failed", err)
		}
		return nil
	})
}

// ArchiveAndRemove moves an active reminder into past_reminders and deletes
// it from active_reminders as one transaction. A crash between the two
// writes leaves neither applied; the reminder stays active and is retried.
func (s *Store) ArchiveAndRemove(ctx context.Context, id int64) (ArchivedReminder, error) {
	var archived ArchivedReminder
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current Reminder
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			Take(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			s.logError(opArchiveAndRemove, "select_failed", err, zap.Int64("reminder_id", id))
			return newPersistenceError(opArchiveAndRemove, "select_failed", err)
		}

		archived = ArchivedReminder{
			DueAtSeconds:  current.DueAtSeconds,
			Message:       current.Message,
			RequesterName: current.RequesterName,
			RequesterID:   current.RequesterID,
			ChannelName:   current.ChannelName,
			ChannelID:     current.ChannelID,
		}
		if err := tx.Create(&archived).Error; err != nil {
			s.logError(opArchiveAndRemove, "archive_insert_failed", err, zap.Int64("reminder_id", id))
			return newPersistenceError(opArchiveAndRemove, "archive_insert_failed", err)
		}
		if err := tx.Delete(&Reminder{}, id).Error; err != nil {
			s.logError(opArchiveAndRemove, "active_delete_failed", err, zap.Int64("reminder_id", id))
			return newPersistenceError(opArchiveAndRemove, "active_delete_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return ArchivedReminder{}, txErr
	}
	return archived, nil
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}
	attrs = append(attrs, fields...)
	s.logger.Error("reminder store error", attrs...)
}
