package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Clement3205902/Clement/internal/users"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type profileRecord struct {
	UserID           string `gorm:"column:user_id;primaryKey;size:190"`
	Email            string `gorm:"column:email;not null"`
	DisplayName      string `gorm:"column:display_name;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	LastLoginSeconds int64  `gorm:"column:last_login_s;not null"`
	IsEduAccount     bool   `gorm:"column:is_edu_account;not null"`
	ChatMessageCount int    `gorm:"column:chat_message_count;not null"`
}

func (profileRecord) TableName() string {
	return "user_profiles"
}

// ProfileStore keeps user profiles in SQLite.
type ProfileStore struct {
	db *gorm.DB
}

// NewProfileStore constructs a ProfileStore.
func NewProfileStore(db *gorm.DB) (*ProfileStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database: profile store requires a database")
	}
	return &ProfileStore{db: db}, nil
}

// GetProfile loads the profile for userID.
func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (users.Profile, bool, error) {
	var record profileRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return users.Profile{}, false, nil
	}
	if err != nil {
		return users.Profile{}, false, err
	}
	return users.Profile{
		UserID:           record.UserID,
		Email:            record.Email,
		DisplayName:      record.DisplayName,
		CreatedAt:        time.Unix(record.CreatedAtSeconds, 0).UTC(),
		LastLogin:        time.Unix(record.LastLoginSeconds, 0).UTC(),
		IsEduAccount:     record.IsEduAccount,
		ChatMessageCount: record.ChatMessageCount,
	}, true, nil
}

// PutProfile writes the whole profile, replacing an existing row.
func (s *ProfileStore) PutProfile(ctx context.Context, profile users.Profile) error {
	record := profileRecord{
		UserID:           profile.UserID,
		Email:            profile.Email,
		DisplayName:      profile.DisplayName,
		CreatedAtSeconds: profile.CreatedAt.UTC().Unix(),
		LastLoginSeconds: profile.LastLogin.UTC().Unix(),
		IsEduAccount:     profile.IsEduAccount,
		ChatMessageCount: profile.ChatMessageCount,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&record).Error
}

// MergeLastLogin updates last_login_s when the profile exists.
func (s *ProfileStore) MergeLastLogin(ctx context.Context, userID string, at time.Time) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&profileRecord{}).
		Where("user_id = ?", userID).
		Update("last_login_s", at.UTC().Unix())
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// IncrementChatMessages adds one to chat_message_count in a single statement.
func (s *ProfileStore) IncrementChatMessages(ctx context.Context, userID string) error {
	result := s.db.WithContext(ctx).
		Model(&profileRecord{}).
		Where("user_id = ?", userID).
		Update("chat_message_count", gorm.Expr("chat_message_count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return users.ErrProfileNotFound
	}
	return nil
}
