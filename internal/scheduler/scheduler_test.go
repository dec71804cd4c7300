package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/coursebeat/coursebeat/internal/curriculum"
	"github.com/coursebeat/coursebeat/internal/models"
	"github.com/coursebeat/coursebeat/internal/push"
	"github.com/coursebeat/coursebeat/internal/queue"
	"github.com/coursebeat/coursebeat/internal/store"
)

type scheduledJob struct {
	id       string
	taskType string
	payload  []byte
	delay    time.Duration
}

type fakeQueue struct {
	jobs         []scheduledJob
	cancels      []string
	handleCalls  []string
	failSchedule bool
	seq          int
}

func (q *fakeQueue) Schedule(_ context.Context, taskType string, payload []byte, delay time.Duration) (string, error) {
	if q.failSchedule {
		return "", errors.New("redis down")
	}
	q.seq++
	id := fmt.Sprintf("job-%d", q.seq)
	q.jobs = append(q.jobs, scheduledJob{id: id, taskType: taskType, payload: payload, delay: delay})
	return id, nil
}

func (q *fakeQueue) Cancel(_ context.Context, jobID string) error {
	q.cancels = append(q.cancels, jobID)
	return nil
}

func (q *fakeQueue) Handle(_ context.Context, jobID string) (*queue.JobHandle, error) {
	q.handleCalls = append(q.handleCalls, jobID)
	for _, canceled := range q.cancels {
		if canceled == jobID {
			return nil, nil
		}
	}
	for _, j := range q.jobs {
		if j.id == jobID {
			return &queue.JobHandle{ID: jobID, State: "scheduled"}, nil
		}
	}
	return nil, nil
}

func (q *fakeQueue) lastJob(t *testing.T) scheduledJob {
	t.Helper()
	require.NotEmpty(t, q.jobs)
	return q.jobs[len(q.jobs)-1]
}

type fakeDispatcher struct {
	calls [][]push.RawSubscription
}

func (d *fakeDispatcher) Dispatch(_ context.Context, subs []push.RawSubscription, _ push.Content) push.DeliveryResult {
	d.calls = append(d.calls, subs)
	return push.DeliveryResult{SuccessCount: len(subs)}
}

type testEnv struct {
	sched         *Scheduler
	queue         *fakeQueue
	dispatcher    *fakeDispatcher
	notifications *store.NotificationStore
	subscriptions *store.SubscriptionStore
	db            *gorm.DB
	now           time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := store.Open(":memory:")
	require.NoError(t, err)

	env := &testEnv{
		queue:         &fakeQueue{},
		dispatcher:    &fakeDispatcher{},
		notifications: store.NewNotificationStore(db),
		subscriptions: store.NewSubscriptionStore(db),
		db:            db,
		now:           time.Unix(1_700_000_000, 0),
	}
	env.sched = New(
		env.notifications,
		env.subscriptions,
		env.queue,
		curriculum.NewLookup(db),
		env.dispatcher,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	env.sched.now = func() time.Time { return env.now }
	return env
}

func (e *testEnv) advance(d time.Duration) { e.now = e.now.Add(d) }

func (e *testEnv) addSubscription(t *testing.T, userID, endpoint string) {
	t.Helper()
	err := e.subscriptions.Save(context.Background(), &models.PushSubscription{
		UserID:   userID,
		Endpoint: endpoint,
		P256DH:   "browser-key",
		Auth:     "browser-auth",
	})
	require.NoError(t, err)
}

func (e *testEnv) notificationCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.Model(&models.StepNotification{}).Count(&count).Error)
	return count
}

func TestCreateWithoutSubscriptions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.sched.Create(ctx, CreateParams{
		UserID: "user-1", Day: 1, StepIndex: 0, Duration: 100 * time.Second,
	})

	assert.ErrorIs(t, err, ErrNoSubscriptions)
	assert.Zero(t, env.notificationCount(t))
	assert.Empty(t, env.queue.jobs)
}

func TestCreateArmsTimer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addSubscription(t, "user-1", "https://push.example.com/a")

	n, err := env.sched.Create(ctx, CreateParams{
		UserID: "user-1", Day: 1, StepIndex: 2,
		Duration: 100 * time.Second, StepTitle: "Warmup",
	})
	require.NoError(t, err)

	job := env.queue.lastJob(t)
	assert.Equal(t, queue.TaskTypeFire, job.taskType)
	assert.Equal(t, 100*time.Second, job.delay)
	assert.Equal(t, job.id, n.JobID)
	assert.Equal(t, env.now.Unix()+100, n.EndTs)
	assert.False(t, n.Paused)

	stored, err := env.notifications.FindActive(ctx, "user-1", 1, 2)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, job.id, stored.JobID)
	assert.NotEmpty(t, stored.SubscriptionSnapshot)
}

func TestCreateReplacesExistingTimer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addSubscription(t, "user-1", "https://push.example.com/a")

	first, err := env.sched.Create(ctx, CreateParams{UserID: "user-1", Day: 1, StepIndex: 0, Duration: time.Minute})
	require.NoError(t, err)

	_, err = env.sched.Create(ctx, CreateParams{UserID: "user-1", Day: 1, StepIndex: 0, Duration: time.Minute})
	require.NoError(t, err)

	assert.Contains(t, env.queue.cancels, first.JobID)
	assert.EqualValues(t, 1, env.notificationCount(t))
}

func TestPauseResumeRoundTripPreservesRemaining(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addSubscription(t, "user-1", "https://push.example.com/a")

	created, err := env.sched.Create(ctx, CreateParams{
		UserID: "user-1", Day: 2, StepIndex: 1, Duration: 100 * time.Second,
	})
	require.NoError(t, err)

	env.advance(30 * time.Second)
	require.NoError(t, env.sched.Pause(ctx, "user-1", 2, 1, nil))

	assert.Contains(t, env.queue.cancels, created.JobID)
	paused, err := env.notifications.FindActive(ctx, "user-1", 2, 1)
	require.NoError(t, err)
	require.NotNil(t, paused)
	assert.True(t, paused.Paused)
	assert.EqualValues(t, 70, paused.RemainingSec)
	assert.Empty(t, paused.JobID)
	assert.Zero(t, paused.EndTs)

	env.advance(20 * time.Second)
	resumed, err := env.sched.Resume(ctx, "user-1", 2, 1, 0, "")
	require.NoError(t, err)
	require.NotNil(t, resumed)

	job := env.queue.lastJob(t)
	assert.Equal(t, 70*time.Second, job.delay)
	assert.Equal(t, env.now.Unix()+70, resumed.EndTs)
	assert.Zero(t, resumed.RemainingSec)
	assert.False(t, resumed.Paused)
}

func TestPauseWithOverrideFreezesClientValue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addSubscription(t, "user-1", "https://push.example.com/a")

	_, err := env.sched.Create(ctx, CreateParams{UserID: "user-1", Day: 2, StepIndex: 1, Duration: 100 * time.Second})
	require.NoError(t, err)

	override := int64(42)
	require.NoError(t, env.sched.Pause(ctx, "user-1", 2, 1, &override))

	paused, err := env.notifications.FindActive(ctx, "user-1", 2, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 42, paused.RemainingSec)
}

func TestPauseIsNoopWithoutRecordOrJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addSubscription(t, "user-1", "https://push.example.com/a")

	// No record at all.
	require.NoError(t, env.sched.Pause(ctx, "user-1", 9, 9, nil))
	assert.Empty(t, env.queue.cancels)

	// Already paused: second pause must not touch the queue again.
	_, err := env.sched.Create(ctx, CreateParams{UserID: "user-1", Day: 2, StepIndex: 1, Duration: time.Minute})
	require.NoError(t, err)
	require.NoError(t, env.sched.Pause(ctx, "user-1", 2, 1, nil))
	cancels := len(env.queue.cancels)
	require.NoError(t, env.sched.Pause(ctx, "user-1", 2, 1, nil))
	assert.Equal(t, cancels, len(env.queue.cancels))
}

func TestElapsedWhilePausedIsDiscarded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addSubscription(t, "user-1", "https://push.example.com/a")

	_, err := env.sched.Create(ctx, CreateParams{UserID: "user-1", Day: 3, StepIndex: 0, Duration: time.Minute})
	require.NoError(t, err)

	override := int64(0)
	require.NoError(t, env.sched.Pause(ctx, "user-1", 3, 0, &override))

	jobsBefore := len(env.queue.jobs)
	resumed, err := env.sched.Resume(ctx, "user-1", 3, 0, 0, "")
	require.NoError(t, err)

	assert.Nil(t, resumed)
	assert.Zero(t, env.notificationCount(t))
	assert.Equal(t, jobsBefore, len(env.queue.jobs))
}

func TestResumeWithoutRecordRequiresCourseReference(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.sched.Resume(context.Background(), "user-1", 1, 0, time.Minute, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResumeWithoutRecordRebuildsFromCurriculum(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addSubscription(t, "user-1", "https://push.example.com/a")

	course := &models.Course{Type: "yoga", Title: "Morning Yoga"}
	require.NoError(t, env.db.Create(course).Error)
	day := &models.CourseDay{CourseID: course.ID, Order: 3}
	require.NoError(t, env.db.Create(day).Error)
	step := &models.Step{CourseDayID: day.ID, Position: 2, Title: "Breathing", DurationSec: 300}
	require.NoError(t, env.db.Create(step).Error)

	n, err := env.sched.Resume(ctx, "user-1", 3, 2, 300*time.Second, day.ID)
	require.NoError(t, err)
	require.NotNil(t, n)

	assert.Equal(t, "Breathing", n.StepTitle)
	assert.Equal(t, "/courses/yoga/days/3?step=2", n.URL)
	assert.Equal(t, 300*time.Second, env.queue.lastJob(t).delay)
}

func TestResetIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addSubscription(t, "user-1", "https://push.example.com/a")

	_, err := env.sched.Create(ctx, CreateParams{UserID: "user-1", Day: 4, StepIndex: 0, Duration: time.Minute})
	require.NoError(t, err)

	require.NoError(t, env.sched.Reset(ctx, "user-1", 4, 0))
	assert.Zero(t, env.notificationCount(t))
	cancels := len(env.queue.cancels)

	// Second reset: same end state, no extra queue traffic.
	require.NoError(t, env.sched.Reset(ctx, "user-1", 4, 0))
	assert.Zero(t, env.notificationCount(t))
	assert.Equal(t, cancels, len(env.queue.cancels))
}

func TestToggleLevelPause(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addSubscription(t, "user-1", "https://push.example.com/a")

	assert.ErrorIs(t, env.sched.ToggleLevelPause(ctx, "user-1", 5, 0, true), ErrNotFound)

	created, err := env.sched.Create(ctx, CreateParams{UserID: "user-1", Day: 5, StepIndex: 0, Duration: 90 * time.Second})
	require.NoError(t, err)

	env.advance(10 * time.Second)
	require.NoError(t, env.sched.ToggleLevelPause(ctx, "user-1", 5, 0, true))

	// The pause direction looks the job up instead of trusting the stored id.
	assert.Contains(t, env.queue.handleCalls, created.JobID)
	assert.Contains(t, env.queue.cancels, created.JobID)

	paused, err := env.notifications.FindActive(ctx, "user-1", 5, 0)
	require.NoError(t, err)
	assert.True(t, paused.Paused)
	assert.EqualValues(t, 80, paused.RemainingSec)

	require.NoError(t, env.sched.ToggleLevelPause(ctx, "user-1", 5, 0, false))
	resumed, err := env.notifications.FindActive(ctx, "user-1", 5, 0)
	require.NoError(t, err)
	assert.False(t, resumed.Paused)
	assert.NotEmpty(t, resumed.JobID)
	assert.Equal(t, 80*time.Second, env.queue.lastJob(t).delay)
}

func TestDeleteOnPause(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addSubscription(t, "user-1", "https://push.example.com/a")

	assert.ErrorIs(t, env.sched.DeleteOnPause(ctx, "user-1", 6, 0, false), ErrDeletedOnPause)

	created, err := env.sched.Create(ctx, CreateParams{UserID: "user-1", Day: 6, StepIndex: 0, Duration: time.Minute})
	require.NoError(t, err)

	require.NoError(t, env.sched.DeleteOnPause(ctx, "user-1", 6, 0, true))
	assert.Contains(t, env.queue.cancels, created.JobID)
	assert.Zero(t, env.notificationCount(t))

	// Gone already: still fine.
	require.NoError(t, env.sched.DeleteOnPause(ctx, "user-1", 6, 0, true))
}

func TestCreateImmediate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addSubscription(t, "user-1", "https://push.example.com/a")

	result, err := env.sched.CreateImmediate(ctx, "user-1", "Welcome", "Your course starts today")
	require.NoError(t, err)

	assert.True(t, result.Queued)
	assert.NotEmpty(t, result.NotificationID)
	assert.Equal(t, time.Duration(0), env.queue.lastJob(t).delay)

	// Two immediates for the same user may coexist; only timers are unique.
	_, err = env.sched.CreateImmediate(ctx, "user-1", "Second", "Also fine")
	require.NoError(t, err)
	assert.EqualValues(t, 2, env.notificationCount(t))
}

func TestCreateImmediateQueueErrorKeepsRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addSubscription(t, "user-1", "https://push.example.com/a")
	env.queue.failSchedule = true

	result, err := env.sched.CreateImmediate(ctx, "user-1", "Welcome", "body")

	assert.ErrorIs(t, err, ErrQueue)
	assert.False(t, result.Queued)
	assert.Equal(t, "queue_error", result.Reason)
	require.NotEmpty(t, result.NotificationID)

	// The orphaned-but-inert record is left for the caller to reconcile.
	stored, lookupErr := env.notifications.FindByID(ctx, result.NotificationID)
	require.NoError(t, lookupErr)
	require.NotNil(t, stored)
	assert.Empty(t, stored.JobID)
}
