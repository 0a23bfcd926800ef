package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/internal/memberships"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	auditCheckNoOwner         = "organization_without_owner"
	auditCheckMissingIdentity = "active_without_identity"
	auditCheckDuplicateEmail  = "duplicate_email_pair"

	// findings beyond this are counted but not logged individually
	auditLogSampleLimit = 20
)

type MembershipAuditJobParams struct {
	Logger     *logger.Logger
	Repository membershipAuditRepo
	Metrics    *metrics.AuditMetrics
}

type membershipAuditRepo interface {
	OrganizationsWithoutActiveOwner(ctx context.Context) ([]string, error)
	CountActiveWithoutIdentity(ctx context.Context) (int64, error)
	DuplicateEmailPairs(ctx context.Context) ([]memberships.DuplicatePair, error)
}

// NewMembershipAuditJob reports membership rows that break the ownership,
// identity or uniqueness rules. It only reads.
func NewMembershipAuditJob(params MembershipAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("membership repository required")
	}
	return &membershipAuditJob{
		logg:    params.Logger,
		repo:    params.Repository,
		metrics: params.Metrics,
	}, nil
}

type membershipAuditJob struct {
	logg    *logger.Logger
	repo    membershipAuditRepo
	metrics *metrics.AuditMetrics
}

func (j *membershipAuditJob) Name() string { return "membership-audit" }

func (j *membershipAuditJob) Run(ctx context.Context) error {
	var errs error
	total := 0

	orgs, err := j.repo.OrganizationsWithoutActiveOwner(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", auditCheckNoOwner, err))
	} else {
		total += len(orgs)
		j.metrics.SetFindings(auditCheckNoOwner, len(orgs))
		for i, orgID := range orgs {
			if i == auditLogSampleLimit {
				break
			}
			j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
				"check":           auditCheckNoOwner,
				"organization_id": orgID,
			}), "membership audit finding")
		}
	}

	missing, err := j.repo.CountActiveWithoutIdentity(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", auditCheckMissingIdentity, err))
	} else {
		total += int(missing)
		j.metrics.SetFindings(auditCheckMissingIdentity, int(missing))
		if missing > 0 {
			j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
				"check": auditCheckMissingIdentity,
				"rows":  missing,
			}), "membership audit finding")
		}
	}

	pairs, err := j.repo.DuplicateEmailPairs(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", auditCheckDuplicateEmail, err))
	} else {
		total += len(pairs)
		j.metrics.SetFindings(auditCheckDuplicateEmail, len(pairs))
		for i, pair := range pairs {
			if i == auditLogSampleLimit {
				break
			}
			j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
				"check":           auditCheckDuplicateEmail,
				"organization_id": pair.OrganizationID,
				"email":           pair.Email,
				"rows":            pair.Rows,
			}), "membership audit finding")
		}
	}

	if errs != nil {
		return fmt.Errorf("membership audit: %w", errs)
	}
	j.logg.Info(j.logg.WithField(ctx, "findings", total), "membership audit complete")
	return nil
}
