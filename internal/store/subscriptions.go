package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/coursebeat/coursebeat/internal/models"
)

// SubscriptionStore manages push delivery targets. A user may hold several
// subscriptions at once (browser plus mobile app), keyed by endpoint.
type SubscriptionStore struct {
	db *gorm.DB
}

func NewSubscriptionStore(db *gorm.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func (s *SubscriptionStore) ListByUser(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// Save upserts a subscription on (user, endpoint) so re-registering a device
// refreshes its keys instead of piling up duplicates.
func (s *SubscriptionStore) Save(ctx context.Context, sub *models.PushSubscription) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256_dh", "auth", "updated_at"}),
	}).Create(sub).Error
}

// DeleteByEndpoints bulk-removes subscriptions flagged as permanently invalid
// by a dispatch. Returns how many rows were actually deleted.
func (s *SubscriptionStore) DeleteByEndpoints(ctx context.Context, endpoints []string) (int64, error) {
	if len(endpoints) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("endpoint IN ?", endpoints).Delete(&models.PushSubscription{})
	return res.RowsAffected, res.Error
}

func (s *SubscriptionStore) DeleteByUserEndpoint(ctx context.Context, userID, endpoint string) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND endpoint = ?", userID, endpoint).
		Delete(&models.PushSubscription{})
	return res.RowsAffected, res.Error
}
