package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coursebeat/coursebeat/internal/push"
)

type firePayload struct {
	NotificationID string `json:"notification_id"`
}

// Fire is the fire-time worker: invoked by the delayed job queue when a
// notification comes due. The payload carries only the record id; current
// state is re-read from the store, which makes the store the single source of
// truth for the cancel/fire race. A record deleted in the meantime means a
// clean no-op, and a completed run deletes the record so a duplicate delivery
// finds nothing (fire-once).
func (s *Scheduler) Fire(ctx context.Context, payload []byte) error {
	var p firePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode fire payload: %w", err)
	}

	n, err := s.notifications.FindByID(ctx, p.NotificationID)
	if err != nil {
		return err
	}
	if n == nil {
		s.logger.Info("notification gone before fire", "notification_id", p.NotificationID)
		return nil
	}

	// Prefer the live subscription set over the snapshot: devices registered
	// after the timer was armed should still receive the push.
	raw := s.liveOrSnapshot(ctx, n.UserID, n.SubscriptionSnapshot)

	result := s.dispatcher.Dispatch(ctx, raw, fireContent(n.StepTitle, n.Body, n.URL))
	s.logger.Info("notification fired",
		"notification_id", n.ID,
		"user_id", n.UserID,
		"success", result.SuccessCount,
		"failed", result.FailureCount,
		"deleted", result.DeletedCount,
	)

	// Fire-once: the record never survives a dispatch attempt, successful or
	// not.
	return s.notifications.Delete(ctx, n)
}

func (s *Scheduler) liveOrSnapshot(ctx context.Context, userID, snapshot string) []push.RawSubscription {
	subs, err := s.subscriptions.ListByUser(ctx, userID)
	if err == nil && len(subs) > 0 {
		return rawSubscriptions(subs)
	}
	if err != nil {
		s.logger.Warn("live subscription read failed, using snapshot", "user_id", userID, "error", err)
	}

	var raw []push.RawSubscription
	if snapshot != "" {
		if err := json.Unmarshal([]byte(snapshot), &raw); err != nil {
			s.logger.Warn("unreadable subscription snapshot", "user_id", userID, "error", err)
		}
	}
	return raw
}

func fireContent(title, body, url string) push.Content {
	if title == "" {
		title = "Step timer finished"
	}
	if body == "" {
		body = "Time is up. Open the app to continue your training."
	}
	return push.Content{Title: title, Body: body, URL: url}
}
