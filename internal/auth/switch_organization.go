package auth

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/memberships"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// SwitchOrganization re-issues a session scoped to another organization the
// caller belongs to. The membership is matched by external id first and by
// email second; an email match on an active row adopts the caller's external id.
func (s *service) SwitchOrganization(ctx context.Context, current *models.Membership, organizationID string) (*SessionResponse, error) {
	if current == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organizationId is required")
	}

	var (
		target  *models.Membership
		orgName string
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := memberships.NewRepository(tx)
		m, err := s.resolveSwitchTarget(ctx, repo, current, organizationID)
		if err != nil {
			return err
		}
		if m.Status != enums.MembershipStatusActive {
			if m.Status == enums.MembershipStatusPending {
				return pkgerrors.New(pkgerrors.CodeForbidden, "invitation must be accepted first")
			}
			return pkgerrors.New(pkgerrors.CodeForbidden, "membership is not active")
		}

		if m.ExternalID != current.ExternalID {
			m.ExternalID = current.ExternalID
			if err := repo.Update(ctx, m); err != nil {
				if errors.Is(err, memberships.ErrDuplicateMembership) {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "membership already linked")
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "relink membership")
			}
		}

		orgName, err = s.organizationName(ctx, tx, organizationID)
		if err != nil {
			return err
		}
		target = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"from_organization_id": current.OrganizationID,
			"organization_id":      target.OrganizationID,
			"membership_id":        target.ID.String(),
		})
		s.logg.Info(logCtx, "auth.organization_switched")
	}
	return s.issue(target, orgName)
}

func (s *service) resolveSwitchTarget(ctx context.Context, repo *memberships.Repository, current *models.Membership, organizationID string) (*models.Membership, error) {
	m, err := repo.FindByExternalIDAndOrg(ctx, current.ExternalID, organizationID)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup membership")
	}

	m, err = repo.FindByEmailAndOrg(ctx, current.Email, organizationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotAMember, "not a member of this organization")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup membership")
	}
	return m, nil
}
