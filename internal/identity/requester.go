package identity

import "time"

// Requester records the last known display name for a stable chat user id.
// Only the numeric id is authoritative; names drift as users rename
// themselves, and this table keeps the most recent one for rendering.
type Requester struct {
	UserID      int64     `gorm:"column:user_id;primaryKey"`
	DisplayName string    `gorm:"column:display_name;size:190;not null"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing known requesters.
func (Requester) TableName() string {
	return "requesters"
}
