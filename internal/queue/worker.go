package queue

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Worker runs the fire-time side of the queue: it owns the asynq server and
// invokes registered handlers when a delayed job comes due.
type Worker struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

func NewWorker(opt asynq.RedisClientOpt, concurrency int, logger *slog.Logger) *Worker {
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueName: 1},
		LogLevel:    asynq.ErrorLevel,
	})
	return &Worker{
		srv:    srv,
		mux:    asynq.NewServeMux(),
		logger: logger.With("component", "queue-worker"),
	}
}

func (w *Worker) HandleFunc(taskType string, h func(ctx context.Context, payload []byte) error) {
	w.mux.HandleFunc(taskType, func(ctx context.Context, t *asynq.Task) error {
		return h(ctx, t.Payload())
	})
}

// Start runs the worker loop in the background.
func (w *Worker) Start() error {
	if err := w.srv.Start(w.mux); err != nil {
		return err
	}
	w.logger.Info("delayed job worker started", "queue", QueueName)
	return nil
}

func (w *Worker) Shutdown() {
	w.srv.Shutdown()
	w.logger.Info("delayed job worker stopped")
}
