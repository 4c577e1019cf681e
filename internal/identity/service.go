package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ErrInvalidRequester indicates the interaction did not carry a usable user id.
var ErrInvalidRequester = errors.New("identity: invalid requester")

// ServiceConfig describes the dependencies required for requester tracking.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service upserts requester identities observed on reminder interactions.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs the requester registry.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("identity: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// Touch records that the given chat user was seen now, keeping the freshest
// display name on record.
func (s *Service) Touch(ctx context.Context, userID int64, displayName string) error {
	if userID == 0 {
		return ErrInvalidRequester
	}
	name := strings.TrimSpace(displayName)

	var existing Requester
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.WithContext(ctx).Create(&Requester{
			UserID:      userID,
			DisplayName: name,
			LastSeenAt:  s.now().UTC(),
		}).Error
	}
	if err != nil {
		return err
	}

	updates := map[string]interface{}{"last_seen_at": s.now().UTC()}
	if name != "" && name != existing.DisplayName {
		updates["display_name"] = name
	}
	return s.db.WithContext(ctx).Model(&Requester{}).
		Where("user_id = ?", userID).
		Updates(updates).Error
}

// Known returns every recorded requester, most recently seen first.
func (s *Service) Known(ctx context.Context) ([]Requester, error) {
	var requesters []Requester
	err := s.db.WithContext(ctx).Order("last_seen_at DESC").Find(&requesters).Error
	if err != nil {
		return nil, err
	}
	return requesters, nil
}
