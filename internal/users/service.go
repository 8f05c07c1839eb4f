// Package users resolves external chat identities to internal user ids.
package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidExternalID indicates an external identifier of zero, which the
// chat platform never issues for a real account.
var ErrInvalidExternalID = errors.New("users: invalid external id")

// ServiceConfig describes the dependencies required for identity resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages the external-id to internal-id mapping. GetOrCreate is
// idempotent and called at the top of every non-noop action, so a vote or
// save can never reference a nonexistent user.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// GetOrCreate returns the internal id for the external identity, creating the
// row on first sight. Display fields are refreshed on change, best effort.
func (s *Service) GetOrCreate(ctx context.Context, externalID int64, username, firstName string) (int64, error) {
	if externalID == 0 {
		return 0, ErrInvalidExternalID
	}

	if cached, ok := s.cache.Load(externalID); ok {
		if internalID, ok := cached.(int64); ok {
			return internalID, nil
		}
	}

	var user User
	err := s.db.WithContext(ctx).
		Where("external_id = ?", externalID).
		First(&user).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = User{
			ExternalID: externalID,
			Username:   username,
			FirstName:  firstName,
			CreatedAt:  s.now().UTC(),
		}
		// Concurrent first interactions from the same account race on the
		// unique index; DoNothing plus re-read converges on the winner's row.
		createErr := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_id"}}, DoNothing: true}).
			Create(&user).
			Error
		if createErr != nil {
			return 0, createErr
		}
		if user.ID == 0 {
			if err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&user).Error; err != nil {
				return 0, err
			}
		}
	} else if err != nil {
		return 0, err
	} else {
		updates := map[string]interface{}{}
		if username != "" && username != user.Username {
			updates["username"] = username
		}
		if firstName != "" && firstName != user.FirstName {
			updates["first_name"] = firstName
		}
		if len(updates) > 0 {
			_ = s.db.WithContext(ctx).Model(&User{}).
				Where("external_id = ?", externalID).
				Updates(updates).
				Error
		}
	}

	s.cache.Store(externalID, user.ID)
	return user.ID, nil
}
