package handlers

import (
	"log/slog"

	"github.com/coursebeat/coursebeat/internal/config"
	"github.com/coursebeat/coursebeat/internal/scheduler"
	"github.com/coursebeat/coursebeat/internal/store"
)

type Handlers struct {
	config        *config.Config
	scheduler     *scheduler.Scheduler
	subscriptions *store.SubscriptionStore
	logger        *slog.Logger
}

func New(
	cfg *config.Config,
	sched *scheduler.Scheduler,
	subscriptions *store.SubscriptionStore,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		config:        cfg,
		scheduler:     sched,
		subscriptions: subscriptions,
		logger:        logger.With("component", "handlers"),
	}
}
