// Package scheduler owns the lifecycle of step-timer push notifications:
// arming a countdown when a user starts a timed training step, freezing and
// restoring the remaining time across pause/resume, and handing the due event
// to the delayed job queue. Delivery itself happens later, out-of-band, in
// the fire-time worker.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coursebeat/coursebeat/internal/curriculum"
	"github.com/coursebeat/coursebeat/internal/models"
	"github.com/coursebeat/coursebeat/internal/push"
	"github.com/coursebeat/coursebeat/internal/queue"
	"github.com/coursebeat/coursebeat/internal/store"
)

var (
	// ErrNoSubscriptions means the user has nothing to deliver to. Not worth
	// retrying until a subscription is registered.
	ErrNoSubscriptions = errors.New("user has no push subscriptions")

	// ErrNotFound means the mutation targeted a key with no active record.
	ErrNotFound = errors.New("no active notification for step")

	// ErrQueue means the delivery job could not be scheduled after the record
	// was persisted. The record is left inert for a caller-level retry.
	ErrQueue = errors.New("failed to schedule delivery job")

	// ErrDeletedOnPause rejects the resurrecting path of DeleteOnPause: once
	// a client confirms deletion the only way back is a fresh create.
	ErrDeletedOnPause = errors.New("cannot resume: notification was deleted on pause")
)

// StepResolver rebuilds display title and deep link when a notification must
// be recreated without the client's cached copy.
type StepResolver interface {
	ResolveStep(ctx context.Context, courseDayID string, stepIndex int) (*curriculum.StepInfo, error)
}

// Dispatcher is the fan-out surface consumed at fire time.
type Dispatcher interface {
	Dispatch(ctx context.Context, subs []push.RawSubscription, content push.Content) push.DeliveryResult
}

type Scheduler struct {
	notifications *store.NotificationStore
	subscriptions *store.SubscriptionStore
	queue         queue.Delayed
	curriculum    StepResolver
	dispatcher    Dispatcher
	logger        *slog.Logger

	now func() time.Time
}

func New(
	notifications *store.NotificationStore,
	subscriptions *store.SubscriptionStore,
	delayed queue.Delayed,
	resolver StepResolver,
	dispatcher Dispatcher,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		notifications: notifications,
		subscriptions: subscriptions,
		queue:         delayed,
		curriculum:    resolver,
		dispatcher:    dispatcher,
		logger:        logger.With("component", "scheduler"),
		now:           time.Now,
	}
}

// CreateParams arms a countdown for one training step.
type CreateParams struct {
	UserID    string
	Day       int
	StepIndex int
	Duration  time.Duration
	StepTitle string
	URL       string
}

// Create persists a new timer record and schedules its delivery job. Any
// existing record for the same key is replaced, so re-starting a step re-arms
// the timer instead of failing on the uniqueness constraint.
func (s *Scheduler) Create(ctx context.Context, p CreateParams) (*models.StepNotification, error) {
	subs, err := s.subscriptions.ListByUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, ErrNoSubscriptions
	}

	existing, err := s.notifications.FindActive(ctx, p.UserID, p.Day, p.StepIndex)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.cancelJob(ctx, existing.JobID)
		if err := s.notifications.Delete(ctx, existing); err != nil {
			return nil, err
		}
	}

	snapshot, err := snapshotSubscriptions(subs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	n := &models.StepNotification{
		Kind:                 models.NotificationKindTimer,
		UserID:               p.UserID,
		Day:                  p.Day,
		StepIndex:            p.StepIndex,
		StepTitle:            p.StepTitle,
		URL:                  p.URL,
		SubscriptionSnapshot: snapshot,
		EndTs:                now.Add(p.Duration).Unix(),
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		return nil, err
	}

	if err := s.scheduleFire(ctx, n, p.Duration); err != nil {
		return n, err
	}
	return n, nil
}

// ImmediateResult reports the outcome of CreateImmediate. NotificationID is
// set even on a queueing failure so the caller can inspect or clean up the
// orphaned record.
type ImmediateResult struct {
	Queued         bool   `json:"queued"`
	Reason         string `json:"reason,omitempty"`
	NotificationID string `json:"notification_id,omitempty"`
}

// CreateImmediate queues a zero-delay push outside the step-timer flow.
func (s *Scheduler) CreateImmediate(ctx context.Context, userID, title, body string) (ImmediateResult, error) {
	subs, err := s.subscriptions.ListByUser(ctx, userID)
	if err != nil {
		return ImmediateResult{}, err
	}
	if len(subs) == 0 {
		return ImmediateResult{Reason: "no_subscriptions"}, ErrNoSubscriptions
	}

	snapshot, err := snapshotSubscriptions(subs)
	if err != nil {
		return ImmediateResult{}, err
	}

	n := &models.StepNotification{
		Kind:                 models.NotificationKindImmediate,
		UserID:               userID,
		StepTitle:            title,
		Body:                 body,
		SubscriptionSnapshot: snapshot,
		EndTs:                s.now().Unix(),
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		return ImmediateResult{}, err
	}

	if err := s.scheduleFire(ctx, n, 0); err != nil {
		// The record stays behind deliberately; returning the id lets the
		// caller decide between retry and cleanup.
		return ImmediateResult{Reason: "queue_error", NotificationID: n.ID}, err
	}
	return ImmediateResult{Queued: true, NotificationID: n.ID}, nil
}

// Pause cancels the scheduled job and freezes the remaining duration. A
// missing record or an already-paused one is a harmless no-op: pause may lose
// the race against the job firing, and the worker then consumes the record.
func (s *Scheduler) Pause(ctx context.Context, userID string, day, stepIndex int, remainingOverride *int64) error {
	n, err := s.notifications.FindActive(ctx, userID, day, stepIndex)
	if err != nil {
		return err
	}
	if n == nil || n.JobID == "" {
		return nil
	}

	if err := s.queue.Cancel(ctx, n.JobID); err != nil {
		return err
	}

	remaining := n.EndTs - s.now().Unix()
	if remainingOverride != nil {
		remaining = *remainingOverride
	}
	if remaining < 0 {
		remaining = 0
	}

	n.Paused = true
	n.RemainingSec = remaining
	n.JobID = ""
	n.EndTs = 0
	return s.notifications.Update(ctx, n)
}

// Resume restores a paused timer from its frozen remainder. When no record
// exists and a course-day reference is supplied, the step is re-resolved from
// the curriculum and a fresh timer is created with the fallback duration. A
// remainder of zero means the timer elapsed while paused: the notification is
// discarded rather than fired late.
func (s *Scheduler) Resume(ctx context.Context, userID string, day, stepIndex int, fallback time.Duration, courseDayID string) (*models.StepNotification, error) {
	n, err := s.notifications.FindActive(ctx, userID, day, stepIndex)
	if err != nil {
		return nil, err
	}

	if n == nil {
		if courseDayID == "" {
			return nil, ErrNotFound
		}
		info, err := s.curriculum.ResolveStep(ctx, courseDayID, stepIndex)
		if err != nil {
			return nil, err
		}
		return s.Create(ctx, CreateParams{
			UserID:    userID,
			Day:       day,
			StepIndex: stepIndex,
			Duration:  fallback,
			StepTitle: info.Title,
			URL:       curriculum.StepURL(info.CourseType, info.DayOrder, stepIndex),
		})
	}

	if n.RemainingSec <= 0 {
		s.logger.Info("timer elapsed while paused, discarding",
			"user_id", userID, "day", day, "step_index", stepIndex)
		return nil, s.notifications.Delete(ctx, n)
	}

	delay := time.Duration(n.RemainingSec) * time.Second
	n.EndTs = s.now().Add(delay).Unix()
	n.RemainingSec = 0
	n.Paused = false
	if err := s.scheduleFire(ctx, n, delay); err != nil {
		return n, err
	}
	return n, nil
}

// Reset cancels any scheduled job and removes the record. Safe to call when
// nothing exists; the second call in a row touches neither store nor queue.
func (s *Scheduler) Reset(ctx context.Context, userID string, day, stepIndex int) error {
	n, err := s.notifications.FindActive(ctx, userID, day, stepIndex)
	if err != nil {
		return err
	}
	if n == nil {
		return nil
	}
	s.cancelJob(ctx, n.JobID)
	return s.notifications.Delete(ctx, n)
}

// ToggleLevelPause drives the record to a known end-state for callers that
// track the desired state rather than the transition. The pause direction
// fetches the live job handle instead of trusting the stored job id.
func (s *Scheduler) ToggleLevelPause(ctx context.Context, userID string, day, stepIndex int, pause bool) error {
	n, err := s.notifications.FindActive(ctx, userID, day, stepIndex)
	if err != nil {
		return err
	}
	if n == nil {
		return ErrNotFound
	}

	if pause {
		if n.JobID != "" {
			handle, err := s.queue.Handle(ctx, n.JobID)
			if err != nil {
				return err
			}
			if handle != nil {
				if err := s.queue.Cancel(ctx, handle.ID); err != nil {
					return err
				}
			}
		}
		remaining := n.EndTs - s.now().Unix()
		if remaining < 0 {
			remaining = 0
		}
		n.Paused = true
		n.RemainingSec = remaining
		n.JobID = ""
		n.EndTs = 0
		return s.notifications.Update(ctx, n)
	}

	delay := time.Duration(n.RemainingSec) * time.Second
	n.EndTs = s.now().Add(delay).Unix()
	n.RemainingSec = 0
	n.Paused = false
	return s.scheduleFire(ctx, n, delay)
}

// DeleteOnPause handles the client confirming deletion of a paused timer.
// The deleted=false direction is rejected by policy: there is no resurrecting
// path, only a fresh create or curriculum-backed resume.
func (s *Scheduler) DeleteOnPause(ctx context.Context, userID string, day, stepIndex int, deleted bool) error {
	if !deleted {
		return ErrDeletedOnPause
	}
	n, err := s.notifications.FindActive(ctx, userID, day, stepIndex)
	if err != nil {
		return err
	}
	if n == nil {
		return nil
	}
	s.cancelJob(ctx, n.JobID)
	return s.notifications.Delete(ctx, n)
}

// scheduleFire enqueues the delivery job and persists the returned job id.
func (s *Scheduler) scheduleFire(ctx context.Context, n *models.StepNotification, delay time.Duration) error {
	payload, err := json.Marshal(firePayload{NotificationID: n.ID})
	if err != nil {
		return err
	}

	jobID, err := s.queue.Schedule(ctx, queue.TaskTypeFire, payload, delay)
	if err != nil {
		s.logger.Error("failed to schedule delivery job",
			"notification_id", n.ID, "error", err)
		return fmt.Errorf("%w: %v", ErrQueue, err)
	}

	n.JobID = jobID
	return s.notifications.Update(ctx, n)
}

// cancelJob is best-effort: losing the cancel race just means the worker
// consumes the record first.
func (s *Scheduler) cancelJob(ctx context.Context, jobID string) {
	if jobID == "" {
		return
	}
	if err := s.queue.Cancel(ctx, jobID); err != nil {
		s.logger.Warn("failed to cancel delivery job", "job_id", jobID, "error", err)
	}
}

func snapshotSubscriptions(subs []models.PushSubscription) (string, error) {
	raw := rawSubscriptions(subs)
	data, err := json.Marshal(raw)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func rawSubscriptions(subs []models.PushSubscription) []push.RawSubscription {
	raw := make([]push.RawSubscription, 0, len(subs))
	for _, sub := range subs {
		keys, err := json.Marshal(map[string]string{
			"p256dh": sub.P256DH,
			"auth":   sub.Auth,
		})
		if err != nil {
			continue
		}
		raw = append(raw, push.RawSubscription{Endpoint: sub.Endpoint, Keys: keys})
	}
	return raw
}
