package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/coursebeat/coursebeat/internal/models"
)

// NotificationStore is CRUD over scheduled notifications. Lookups that find
// nothing return (nil, nil): "no active record" is a normal state-machine
// answer, not an error.
type NotificationStore struct {
	db *gorm.DB
}

func NewNotificationStore(db *gorm.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

func (s *NotificationStore) Create(ctx context.Context, n *models.StepNotification) error {
	return s.db.WithContext(ctx).Create(n).Error
}

// FindActive returns the timer record for the given key, if any.
func (s *NotificationStore) FindActive(ctx context.Context, userID string, day, stepIndex int) (*models.StepNotification, error) {
	var n models.StepNotification
	err := s.db.WithContext(ctx).
		Where("kind = ? AND user_id = ? AND day = ? AND step_index = ?",
			models.NotificationKindTimer, userID, day, stepIndex).
		First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *NotificationStore) FindByID(ctx context.Context, id string) (*models.StepNotification, error) {
	var n models.StepNotification
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *NotificationStore) Update(ctx context.Context, n *models.StepNotification) error {
	return s.db.WithContext(ctx).Save(n).Error
}

func (s *NotificationStore) Delete(ctx context.Context, n *models.StepNotification) error {
	return s.db.WithContext(ctx).Delete(n).Error
}

func (s *NotificationStore) DeleteByID(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.StepNotification{}).Error
}
