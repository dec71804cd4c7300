package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// TaskTypeFire is the single task type this service schedules: "deliver
	// the notification whose id is in the payload".
	TaskTypeFire = "notification:fire"

	// Name of the asynq queue all delivery jobs go through.
	QueueName = "notifications"
)

// JobHandle is a point-in-time view of a still-known job.
type JobHandle struct {
	ID            string
	State         string
	NextProcessAt time.Time
}

// Delayed is the scheduled-callback primitive the state machine talks to.
// Jobs fire at most once; Cancel on an already-fired or unknown job is a
// no-op because the cancel/fire race is resolved by the notification store,
// not by the queue.
type Delayed interface {
	Schedule(ctx context.Context, taskType string, payload []byte, delay time.Duration) (string, error)
	Cancel(ctx context.Context, jobID string) error
	Handle(ctx context.Context, jobID string) (*JobHandle, error)
}

// Asynq implements Delayed on a Redis-backed asynq queue.
type Asynq struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func NewAsynq(opt asynq.RedisClientOpt) *Asynq {
	return &Asynq{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
	}
}

func (q *Asynq) Schedule(ctx context.Context, taskType string, payload []byte, delay time.Duration) (string, error) {
	jobID, err := gonanoid.New(16)
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(taskType, payload)
	info, err := q.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueName),
		asynq.TaskID(jobID),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(0),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return info.ID, nil
}

func (q *Asynq) Cancel(ctx context.Context, jobID string) error {
	err := q.inspector.DeleteTask(QueueName, jobID)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		// Already fired or never existed; the caller re-checks the store.
		return nil
	}
	return err
}

func (q *Asynq) Handle(ctx context.Context, jobID string) (*JobHandle, error) {
	info, err := q.inspector.GetTaskInfo(QueueName, jobID)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &JobHandle{
		ID:            info.ID,
		State:         info.State.String(),
		NextProcessAt: info.NextProcessAt,
	}, nil
}

func (q *Asynq) Close() error {
	return q.client.Close()
}
