// Package jobs provides durable background role resynchronization using
// Asynq. Enqueueing works from any process sharing the Redis instance; the
// worker runs alongside the role engine.
package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task types.
const (
	// TypeRoleResync invalidates a user's cached rule results and
	// recomputes their roles on every monitored guild.
	TypeRoleResync = "roles:resync"
)

// QueueRoles is the queue carrying role resync tasks.
const QueueRoles = "roles"

// RoleResyncPayload contains data for a role resync task.
type RoleResyncPayload struct {
	DiscordID       string `json:"discord_id"`
	NotifyOnFailure bool   `json:"notify_on_failure"`
}

// NewRoleResyncTask builds an asynq task for a role resync.
func NewRoleResyncTask(payload RoleResyncPayload) (*asynq.Task, error) {
	if payload.DiscordID == "" {
		return nil, fmt.Errorf("discord id is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal resync payload: %w", err)
	}
	return asynq.NewTask(TypeRoleResync, data,
		asynq.Queue(QueueRoles),
		asynq.MaxRetry(3),
	), nil
}
