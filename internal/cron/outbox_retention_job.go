package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultPublishedRetentionDays = 30
	defaultTerminalRetentionDays  = 90
)

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxRetentionRepo
	// Published and Terminal are retention windows in days; zero means default.
	Published int
	Terminal  int
	Now       func() time.Time
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewOutboxRetentionJob prunes delivered outbox rows, and parked rows after a
// longer window so they can still be inspected.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &outboxRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		published: daysOr(params.Published, defaultPublishedRetentionDays),
		terminal:  daysOr(params.Terminal, defaultTerminalRetentionDays),
		now:       now,
	}, nil
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	repo      outboxRetentionRepo
	published time.Duration
	terminal  time.Duration
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	published, err := j.repo.DeletePublishedBefore(ctx, now.Add(-j.published))
	if err != nil {
		return fmt.Errorf("prune published outbox rows: %w", err)
	}
	terminal, err := j.repo.DeleteTerminalBefore(ctx, now.Add(-j.terminal))
	if err != nil {
		return fmt.Errorf("prune terminal outbox rows: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"published_deleted": published,
		"terminal_deleted":  terminal,
		"published_window":  j.published.String(),
		"terminal_window":   j.terminal.String(),
	}), "outbox retention cleanup complete")
	return nil
}

func daysOr(days, fallback int) time.Duration {
	if days <= 0 {
		days = fallback
	}
	return time.Duration(days) * 24 * time.Hour
}
