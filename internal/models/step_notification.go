package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// NotificationKindTimer is an armed step countdown. At most one active
	// timer may exist per (user, day, step) key; the partial unique index
	// below enforces that at the store level.
	NotificationKindTimer = "timer"
	// NotificationKindImmediate is a zero-delay push queued outside the
	// step-timer flow. Any number may coexist per user.
	NotificationKindImmediate = "immediate"
)

// StepNotification is one scheduled push delivery. The record exists from the
// moment the timer is armed until it is reset, deleted, or consumed by the
// fire-time worker (fire-once: the record never survives a dispatch attempt).
type StepNotification struct {
	ID        string `gorm:"type:varchar(36);primaryKey" json:"id"`
	Kind      string `gorm:"type:varchar(16);not null;default:timer" json:"kind"`
	UserID    string `gorm:"type:varchar(36);not null;uniqueIndex:idx_step_notifications_key,where:kind = 'timer'" json:"user_id"`
	Day       int    `gorm:"not null;uniqueIndex:idx_step_notifications_key,where:kind = 'timer'" json:"day"`
	StepIndex int    `gorm:"not null;uniqueIndex:idx_step_notifications_key,where:kind = 'timer'" json:"step_index"`

	StepTitle string `gorm:"type:text" json:"step_title,omitempty"`
	Body      string `gorm:"type:text" json:"body,omitempty"`
	URL       string `gorm:"type:text" json:"url,omitempty"`

	// SubscriptionSnapshot is the JSON-encoded endpoint set known at schedule
	// time. The worker re-reads live subscriptions at fire time and falls
	// back to this snapshot only when the live read comes up empty.
	SubscriptionSnapshot string `gorm:"type:text" json:"-"`

	// EndTs is the absolute due time in epoch seconds, set only while a job
	// is scheduled. RemainingSec holds the frozen countdown while paused.
	EndTs        int64  `json:"end_ts,omitempty"`
	RemainingSec int64  `json:"remaining_sec,omitempty"`
	Paused       bool   `gorm:"not null;default:false" json:"paused"`
	JobID        string `gorm:"type:varchar(64)" json:"job_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (n *StepNotification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Kind == "" {
		n.Kind = NotificationKindTimer
	}
	return nil
}
