package reminders

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates the referenced reminder id has no active row.
	ErrNotFound = errors.New("reminders: reminder not found")
	// ErrPastSchedule indicates the resolved local instant predates local now.
	ErrPastSchedule = errors.New("reminders: cannot schedule a reminder in the past")
	// ErrEmptyMessage indicates a reminder was submitted without message text.
	ErrEmptyMessage = errors.New("reminders: message text required")
)

// Identity is a chat principal: a stable numeric id plus the display name
// captured at the time of the interaction. Only the id is authoritative.
type Identity struct {
	Name string
	ID   int64
}

// Reminder is a scheduled notification awaiting delivery. Its presence in
// the active_reminders table is its status; delivery moves it to
// past_reminders as an ArchivedReminder.
type Reminder struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement"`
	DueAtSeconds  int64  `gorm:"column:due_at_s;not null;index:idx_active_due"`
	Message       string `gorm:"column:message;type:text;not null"`
	RequesterName string `gorm:"column:requester_name;size:190;not null"`
	RequesterID   int64  `gorm:"column:requester_id;not null"`
	ChannelName   string `gorm:"column:channel_name;size:190;not null"`
	ChannelID     int64  `gorm:"column:channel_id;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Reminder) TableName() string {
	return "active_reminders"
}

// Due returns the stored due instant as UTC.
func (r Reminder) Due() time.Time {
	return time.Unix(r.DueAtSeconds, 0).UTC()
}

// ArchivedReminder is the terminal record of a delivered reminder. Its id is
// assigned by the past_reminders table and is unrelated to the active id.
type ArchivedReminder struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement"`
	DueAtSeconds  int64  `gorm:"column:due_at_s;not null"`
	Message       string `gorm:"column:message;type:text;not null"`
	RequesterName string `gorm:"column:requester_name;size:190;not null"`
	RequesterID   int64  `gorm:"column:requester_id;not null"`
	ChannelName   string `gorm:"column:channel_name;size:190;not null"`
	ChannelID     int64  `gorm:"column:channel_id;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ArchivedReminder) TableName() string {
	return "past_reminders"
}

// Due returns the stored due instant as UTC.
func (r ArchivedReminder) Due() time.Time {
	return time.Unix(r.DueAtSeconds, 0).UTC()
}

func normalizeMessage(message string) (string, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return "", ErrEmptyMessage
	}
	return trimmed, nil
}
