package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PushSubscription is a registered delivery target for one of a user's
// devices. Browser subscriptions carry real p256dh/auth keys; the mobile app
// registers its provider token as the endpoint and the sentinel value "expo"
// as the p256dh key, because token delivery does not use payload encryption.
type PushSubscription struct {
	ID       string `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID   string `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_push_subscriptions_user_endpoint" json:"user_id"`
	Endpoint string `gorm:"type:text;not null;uniqueIndex:idx_push_subscriptions_user_endpoint" json:"endpoint"`
	P256DH   string `gorm:"type:text;not null" json:"p256dh"`
	Auth     string `gorm:"type:text;not null" json:"auth"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *PushSubscription) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
