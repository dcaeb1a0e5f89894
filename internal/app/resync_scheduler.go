package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/epilink/epilink/pkg/logger"
)

// UserLister enumerates the linked users known to the system. Implemented by
// the persistent store outside this module.
type UserLister interface {
	ListLinkedUsers(ctx context.Context) ([]string, error)
}

const resyncCycleBudget = 30 * time.Minute

// ResyncScheduler periodically invalidates and recomputes the roles of every
// linked user, so guilds converge even when no event triggered an update
// (e.g. a rule's external data source changed).
type ResyncScheduler struct {
	roleService *RoleService
	users       UserLister
	cron        *cron.Cron
	schedule    string
	concurrency int
	logger      *logger.Logger
}

// NewResyncScheduler creates the scheduler. schedule is a cron expression;
// concurrency caps how many users are resynced in parallel.
func NewResyncScheduler(roleService *RoleService, users UserLister, schedule string, concurrency int, log *logger.Logger) (*ResyncScheduler, error) {
	if roleService == nil {
		return nil, errors.New("role service is required")
	}
	if users == nil {
		return nil, errors.New("user lister is required")
	}
	if schedule == "" {
		return nil, errors.New("cron schedule is required")
	}
	if concurrency <= 0 {
		return nil, errors.New("concurrency must be positive")
	}

	return &ResyncScheduler{
		roleService: roleService,
		users:       users,
		cron:        cron.New(),
		schedule:    schedule,
		concurrency: concurrency,
		logger:      log.With("component", "resync_scheduler"),
	}, nil
}

// Start registers the cron entry and begins scheduling.
func (s *ResyncScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.runCycle); err != nil {
		return fmt.Errorf("invalid resync schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info("resync scheduler started",
		"schedule", s.schedule,
		"concurrency", s.concurrency,
	)
	return nil
}

// Stop stops scheduling and waits for a running cycle to finish.
func (s *ResyncScheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("resync scheduler stopped")
}

func (s *ResyncScheduler) runCycle() {
	ctx, cancel := context.WithTimeout(context.Background(), resyncCycleBudget)
	defer cancel()

	start := time.Now()
	users, err := s.users.ListLinkedUsers(ctx)
	if err != nil {
		s.logger.Error("failed to list linked users", "error", err)
		return
	}

	// Per-user failures are already logged and counted by the role
	// service; the group only bounds parallelism.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	var failed atomic.Int64
	for _, discordID := range users {
		discordID := discordID
		g.Go(func() error {
			if err := s.roleService.InvalidateAllRoles(gctx, discordID, false); err != nil {
				failed.Add(1)
				s.logger.Error("scheduled resync failed for user",
					"discord_id", discordID,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("resync cycle finished",
		"users", len(users),
		"failed", failed.Load(),
		"duration", time.Since(start),
	)
}
