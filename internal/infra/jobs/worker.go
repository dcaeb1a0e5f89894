package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/epilink/epilink/internal/metrics"
	"github.com/epilink/epilink/pkg/logger"
)

// RoleResyncProcessor performs the actual resync. Implemented by the role
// service.
type RoleResyncProcessor interface {
	InvalidateAllRoles(ctx context.Context, discordID string, notifyOnFailure bool) error
}

// WorkerConfig holds the configuration for the job worker.
type WorkerConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
}

// Worker processes background jobs.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor RoleResyncProcessor
	logger    *logger.Logger
}

// NewWorker creates a new background job worker.
func NewWorker(cfg WorkerConfig, processor RoleResyncProcessor, log *logger.Logger) (*Worker, error) {
	if processor == nil {
		return nil, fmt.Errorf("resync processor is required")
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueRoles: 10,
				"default":  1,
			},
		},
	)

	w := &Worker{
		server:    server,
		mux:       asynq.NewServeMux(),
		processor: processor,
		logger:    log.With("component", "job_worker"),
	}
	w.mux.HandleFunc(TypeRoleResync, w.handleRoleResync)

	return w, nil
}

// handleRoleResync processes one resync task. Returning an error lets asynq
// retry with backoff.
func (w *Worker) handleRoleResync(ctx context.Context, t *asynq.Task) error {
	var payload RoleResyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		// Malformed payloads never succeed; skip retries.
		return fmt.Errorf("unmarshal resync payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := w.processor.InvalidateAllRoles(ctx, payload.DiscordID, payload.NotifyOnFailure); err != nil {
		metrics.ResyncTasksTotal.WithLabelValues(metrics.StatusFailure).Inc()
		w.logger.Error("role resync task failed",
			"discord_id", payload.DiscordID,
			"error", err,
		)
		return err
	}

	metrics.ResyncTasksTotal.WithLabelValues(metrics.StatusSuccess).Inc()
	w.logger.Info("role resync completed", "discord_id", payload.DiscordID)
	return nil
}

// Start starts the worker.
func (w *Worker) Start() error {
	w.logger.Info("starting job worker")
	return w.server.Start(w.mux)
}

// Stop stops the worker gracefully.
func (w *Worker) Stop() {
	w.logger.Info("stopping job worker")
	w.server.Shutdown()
}
