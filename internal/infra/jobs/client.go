package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/epilink/epilink/pkg/logger"
)

// Client enqueues background jobs.
type Client struct {
	client *asynq.Client
	logger *logger.Logger
}

// ClientConfig contains configuration for the job client.
type ClientConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// NewClient creates a new job client for enqueueing tasks.
func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return &Client{
		client: client,
		logger: log.With("component", "job_client"),
	}
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueRoleResync enqueues a role resync for a user.
func (c *Client) EnqueueRoleResync(ctx context.Context, payload RoleResyncPayload) error {
	task, err := NewRoleResyncTask(payload)
	if err != nil {
		return fmt.Errorf("create resync task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error("failed to enqueue role resync",
			"discord_id", payload.DiscordID,
			"error", err,
		)
		return fmt.Errorf("enqueue resync task: %w", err)
	}

	c.logger.Info("role resync queued",
		"task_id", info.ID,
		"discord_id", payload.DiscordID,
		"queue", info.Queue,
	)
	return nil
}
