package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/liamcoop/formsync/internal/logger"
	"github.com/robfig/cron/v3"
)

// RefreshJob refreshes access tokens that expire within Window, on a cron
// schedule, so form submissions rarely wait on a refresh.
type RefreshJob struct {
	tokens   *TokenManager
	store    UserStore
	schedule string
	window   time.Duration

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
	logger  *slog.Logger
}

// NewRefreshJob creates a job. schedule is a standard five-field cron spec.
func NewRefreshJob(tokens *TokenManager, store UserStore, schedule string, window time.Duration) *RefreshJob {
	return &RefreshJob{
		tokens:   tokens,
		store:    store,
		schedule: schedule,
		window:   window,
		cron:     cron.New(),
		logger:   logger.With("component", "accounts.refresh"),
	}
}

// Start schedules the job. An empty schedule disables it.
func (j *RefreshJob) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.schedule == "" {
		j.logger.Info("token refresh schedule not configured, skipping")
		return nil
	}

	if _, err := cron.ParseStandard(j.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", j.schedule, err)
	}

	if _, err := j.cron.AddFunc(j.schedule, func() {
		if _, err := j.RunOnce(ctx); err != nil {
			j.logger.Error("scheduled token refresh failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule token refresh: %w", err)
	}

	j.cron.Start()
	j.running = true
	j.logger.Info("token refresh scheduled", "schedule", j.schedule, "window", j.window)

	go func() {
		<-ctx.Done()
		j.Stop()
	}()

	return nil
}

// RunOnce refreshes every token expiring within the window and returns how
// many were refreshed. Individual failures are logged and skipped.
func (j *RefreshJob) RunOnce(ctx context.Context) (int, error) {
	deadline := j.tokens.now().Add(j.window)
	users, err := j.store.ListExpiringBefore(deadline)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, user := range users {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		done, err := j.tokens.Refresh(ctx, user, deadline)
		if err != nil {
			j.logger.Warn("could not refresh token", "user_id", user.ID, "error", err)
			continue
		}
		if done {
			refreshed++
		}
	}

	if refreshed > 0 {
		j.logger.Info("token refresh completed", "refreshed", refreshed, "candidates", len(users))
	}
	return refreshed, nil
}

// Stop stops the scheduler and waits for a running refresh to finish
func (j *RefreshJob) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		<-j.cron.Stop().Done()
		j.running = false
		j.logger.Info("token refresh stopped")
	}
}
