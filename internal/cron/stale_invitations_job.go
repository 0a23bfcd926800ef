package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultInvitationTTL        = 7 * 24 * time.Hour
	defaultStaleInvitationGrace = 24 * time.Hour
)

// StaleInvitationsJobParams configure the pending-invitation sweep.
type StaleInvitationsJobParams struct {
	Logger        *logger.Logger
	Repository    staleInvitationRepo
	InvitationTTL time.Duration
	Grace         time.Duration
	Now           func() time.Time
}

type staleInvitationRepo interface {
	DeletePendingCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewStaleInvitationsJob removes pending memberships whose invitation token
// expired more than Grace ago. Active and inactive rows are never touched.
func NewStaleInvitationsJob(params StaleInvitationsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("membership repository required")
	}
	ttl := params.InvitationTTL
	if ttl <= 0 {
		ttl = defaultInvitationTTL
	}
	grace := params.Grace
	if grace < 0 {
		grace = defaultStaleInvitationGrace
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &staleInvitationsJob{
		logg:  params.Logger,
		repo:  params.Repository,
		ttl:   ttl,
		grace: grace,
		now:   now,
	}, nil
}

type staleInvitationsJob struct {
	logg  *logger.Logger
	repo  staleInvitationRepo
	ttl   time.Duration
	grace time.Duration
	now   func() time.Time
}

func (j *staleInvitationsJob) Name() string { return "stale-invitations" }

func (j *staleInvitationsJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-(j.ttl + j.grace))
	deleted, err := j.repo.DeletePendingCreatedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete stale invitations: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "stale invitation cleanup complete")
	return nil
}
