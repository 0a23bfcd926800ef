package team

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/memberships"
	"github.com/angelmondragon/storefront-backend/internal/organizations"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// Service manages an organization's team: invitations, direct adds, role and
// status changes, and removal.
type Service interface {
	ListMembers(ctx context.Context, actor *models.Membership) ([]memberships.MembershipDTO, error)
	Invite(ctx context.Context, actor *models.Membership, input InviteInput) (*InviteResult, error)
	VerifyInvitation(ctx context.Context, token string) (*InvitationPreview, error)
	AcceptInvitation(ctx context.Context, token string, caller Identity) (*models.Membership, error)
	CreateMember(ctx context.Context, actor *models.Membership, input CreateMemberInput) (*memberships.MembershipDTO, error)
	ChangeRole(ctx context.Context, actor *models.Membership, membershipID uuid.UUID, role string) (*memberships.MembershipDTO, error)
	SetStatus(ctx context.Context, actor *models.Membership, membershipID uuid.UUID, status string) (*memberships.MembershipDTO, error)
	Remove(ctx context.Context, actor *models.Membership, membershipID uuid.UUID) error
}

type dbClient interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams packages the team service dependencies.
type ServiceParams struct {
	DB     dbClient
	JWT    config.JWTConfig
	Outbox outbox.Emitter
	Logger *logger.Logger
	Now    func() time.Time
}

type service struct {
	db     dbClient
	jwt    config.JWTConfig
	outbox outbox.Emitter
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds the team service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		db:     params.DB,
		jwt:    params.JWT,
		outbox: params.Outbox,
		logg:   params.Logger,
		now:    now,
	}, nil
}

func (s *service) ListMembers(ctx context.Context, actor *models.Membership) ([]memberships.MembershipDTO, error) {
	if actor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	rows, err := memberships.NewRepository(s.db.DB()).ListByOrganization(ctx, actor.OrganizationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list members")
	}
	return memberships.ToDTOs(rows), nil
}

func (s *service) Invite(ctx context.Context, actor *models.Membership, input InviteInput) (*InviteResult, error) {
	role, email, err := s.checkGrant(actor, input.Role, input.Email)
	if err != nil {
		return nil, err
	}

	var result *InviteResult
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := memberships.NewRepository(tx)
		org, err := loadOrganization(ctx, tx, actor.OrganizationID)
		if err != nil {
			return err
		}

		if err := ensureNoMember(ctx, repo, email, actor.OrganizationID); err != nil {
			return err
		}
		if _, err := repo.DeletePendingByEmailOrg(ctx, email, actor.OrganizationID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear stale invitations")
		}

		inviterID := actor.ID
		pending := &models.Membership{
			ExternalID:     memberships.InvitePlaceholderExternalID(),
			Email:          email,
			OrganizationID: actor.OrganizationID,
			Role:           role,
			FirstName:      strings.TrimSpace(input.FirstName),
			LastName:       strings.TrimSpace(input.LastName),
			InvitedBy:      &inviterID,
		}
		pending.SetStatus(enums.MembershipStatusPending)
		if err := repo.Create(ctx, pending); err != nil {
			return classifyWrite(err, "create invitation")
		}

		token, expiresAt, err := auth.MintInvitationToken(s.jwt, s.now(), auth.InvitationPayload{
			MembershipID:   pending.ID,
			Email:          pending.Email,
			OrganizationID: pending.OrganizationID,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint invitation token")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInvitationCreated,
			AggregateType: enums.AggregateMembership,
			AggregateID:   pending.ID,
			Actor:         actorRef(actor),
			Data: payloads.InvitationCreatedEvent{
				MembershipID:     pending.ID,
				OrganizationID:   org.ID,
				OrganizationName: org.Name,
				Email:            pending.Email,
				Role:             pending.Role,
				InvitedBy:        &inviterID,
				Token:            token,
				ExpiresAt:        expiresAt,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue invitation email")
		}

		result = &InviteResult{
			Membership:      memberships.ToDTO(pending),
			InvitationToken: token,
			ExpiresAt:       expiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.info(ctx, actor, "team.invitation_created", result.Membership.ID)
	return result, nil
}

func (s *service) VerifyInvitation(ctx context.Context, token string) (*InvitationPreview, error) {
	claims, err := s.parseInvitation(token)
	if err != nil {
		return nil, err
	}

	conn := s.db.DB()
	pending, err := loadInvitation(ctx, memberships.NewRepository(conn), claims)
	if err != nil {
		return nil, err
	}
	org, err := loadOrganization(ctx, conn, pending.OrganizationID)
	if err != nil {
		return nil, err
	}

	preview := &InvitationPreview{
		MembershipID:     pending.ID,
		Email:            pending.Email,
		Role:             pending.Role,
		OrganizationID:   org.ID,
		OrganizationName: org.Name,
	}
	if claims.ExpiresAt != nil {
		preview.ExpiresAt = claims.ExpiresAt.Time
	}
	return preview, nil
}

func (s *service) AcceptInvitation(ctx context.Context, token string, caller Identity) (*models.Membership, error) {
	claims, err := s.parseInvitation(token)
	if err != nil {
		return nil, err
	}
	callerEmail := memberships.NormalizeEmail(caller.Email)
	if callerEmail == "" || callerEmail != memberships.NormalizeEmail(claims.Email) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "invitation was issued to a different email")
	}
	externalID := strings.TrimSpace(caller.ExternalID)
	if externalID == "" || memberships.IsPlaceholderExternalID(externalID) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated identity required")
	}

	var accepted *models.Membership
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := memberships.NewRepository(tx)
		pending, err := loadInvitation(ctx, repo, claims)
		if err != nil {
			return err
		}
		if pending.Email != callerEmail {
			return pkgerrors.New(pkgerrors.CodeForbidden, "invitation was issued to a different email")
		}

		now := s.now()
		pending.ExternalID = externalID
		pending.SetStatus(enums.MembershipStatusActive)
		pending.LastLoginAt = &now
		if err := repo.Update(ctx, pending); err != nil {
			return classifyWrite(err, "accept invitation")
		}
		accepted = pending
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.info(ctx, accepted, "team.invitation_accepted", accepted.ID)
	return accepted, nil
}

func (s *service) CreateMember(ctx context.Context, actor *models.Membership, input CreateMemberInput) (*memberships.MembershipDTO, error) {
	role, email, err := s.checkGrant(actor, input.Role, input.Email)
	if err != nil {
		return nil, err
	}

	var created *models.Membership
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := memberships.NewRepository(tx)
		org, err := loadOrganization(ctx, tx, actor.OrganizationID)
		if err != nil {
			return err
		}
		if err := ensureNoMember(ctx, repo, email, actor.OrganizationID); err != nil {
			return err
		}
		if _, err := repo.DeletePendingByEmailOrg(ctx, email, actor.OrganizationID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear stale invitations")
		}

		addedBy := actor.ID
		member := &models.Membership{
			ExternalID:     memberships.DirectPlaceholderExternalID(),
			Email:          email,
			OrganizationID: actor.OrganizationID,
			Role:           role,
			FirstName:      strings.TrimSpace(input.FirstName),
			LastName:       strings.TrimSpace(input.LastName),
			InvitedBy:      &addedBy,
		}
		member.SetStatus(enums.MembershipStatusActive)
		if err := repo.Create(ctx, member); err != nil {
			return classifyWrite(err, "create member")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTeamMemberAdded,
			AggregateType: enums.AggregateMembership,
			AggregateID:   member.ID,
			Actor:         actorRef(actor),
			Data: payloads.TeamMemberAddedEvent{
				MembershipID:     member.ID,
				OrganizationID:   org.ID,
				OrganizationName: org.Name,
				Email:            member.Email,
				Role:             member.Role,
				AddedBy:          &addedBy,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue member added event")
		}
		created = member
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.info(ctx, actor, "team.member_added", created.ID)
	return memberships.ToDTO(created), nil
}

func (s *service) ChangeRole(ctx context.Context, actor *models.Membership, membershipID uuid.UUID, rawRole string) (*memberships.MembershipDTO, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	role, err := enums.ParseMemberRole(rawRole)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	if role == enums.MemberRoleOwner && actor.Role != enums.MemberRoleOwner {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only owners can grant the owner role")
	}

	var updated *models.Membership
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := memberships.NewRepository(tx)
		target, err := loadTarget(ctx, repo, actor, membershipID)
		if err != nil {
			return err
		}
		if err := guardOwnerTarget(actor, target); err != nil {
			return err
		}
		if target.Role == role {
			updated = target
			return nil
		}
		if err := ensureOwnerRemains(ctx, repo, target); err != nil {
			return err
		}

		target.Role = role
		if err := repo.Update(ctx, target); err != nil {
			return classifyWrite(err, "update role")
		}
		updated = target
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.info(ctx, actor, "team.role_changed", updated.ID)
	return memberships.ToDTO(updated), nil
}

func (s *service) SetStatus(ctx context.Context, actor *models.Membership, membershipID uuid.UUID, rawStatus string) (*memberships.MembershipDTO, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	status, err := enums.ParseMembershipStatus(rawStatus)
	if err != nil || status == enums.MembershipStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be active or inactive")
	}
	if membershipID == actor.ID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "you cannot change your own status")
	}

	var updated *models.Membership
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := memberships.NewRepository(tx)
		target, err := loadTarget(ctx, repo, actor, membershipID)
		if err != nil {
			return err
		}
		if target.Status == enums.MembershipStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "invitation has not been accepted")
		}
		if err := guardOwnerTarget(actor, target); err != nil {
			return err
		}
		if target.Status == status {
			updated = target
			return nil
		}
		if status == enums.MembershipStatusInactive {
			if err := ensureOwnerRemains(ctx, repo, target); err != nil {
				return err
			}
		}

		target.SetStatus(status)
		if err := repo.Update(ctx, target); err != nil {
			return classifyWrite(err, "update status")
		}
		updated = target
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.info(ctx, actor, "team.status_changed", updated.ID)
	return memberships.ToDTO(updated), nil
}

func (s *service) Remove(ctx context.Context, actor *models.Membership, membershipID uuid.UUID) error {
	if err := requireManager(actor); err != nil {
		return err
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := memberships.NewRepository(tx)
		target, err := loadTarget(ctx, repo, actor, membershipID)
		if err != nil {
			return err
		}
		if err := guardOwnerTarget(actor, target); err != nil {
			return err
		}
		// the last-owner rule is checked before the self-removal rule
		if err := ensureOwnerRemains(ctx, repo, target); err != nil {
			return err
		}
		if target.ID == actor.ID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "you cannot remove yourself")
		}
		if _, err := repo.DeleteByID(ctx, target.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete membership")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.info(ctx, actor, "team.member_removed", membershipID)
	return nil
}

// checkGrant validates the actor may hand out role to email.
func (s *service) checkGrant(actor *models.Membership, rawRole, rawEmail string) (enums.MemberRole, string, error) {
	if err := requireManager(actor); err != nil {
		return "", "", err
	}
	role, err := enums.ParseMemberRole(rawRole)
	if err != nil {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	if role == enums.MemberRoleOwner && actor.Role != enums.MemberRoleOwner {
		return "", "", pkgerrors.New(pkgerrors.CodeForbidden, "only owners can grant the owner role")
	}
	email := memberships.NormalizeEmail(rawEmail)
	if err := memberships.ValidateEmail(email); err != nil {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "invalid email")
	}
	return role, email, nil
}

func (s *service) parseInvitation(token string) (*auth.InvitationClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invitation token is required")
	}
	claims, err := auth.ParseInvitationToken(s.jwt, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invitation token is invalid or expired")
	}
	return claims, nil
}

func (s *service) info(ctx context.Context, actor *models.Membership, msg string, targetID uuid.UUID) {
	if s.logg == nil || actor == nil {
		return
	}
	ctx = s.logg.WithOrganizationID(ctx, actor.OrganizationID)
	ctx = s.logg.WithMembershipID(ctx, actor.ID.String())
	ctx = s.logg.WithField(ctx, "target_membership_id", targetID.String())
	s.logg.Info(ctx, msg)
}

func requireManager(actor *models.Membership) error {
	if actor == nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !actor.Role.CanManageTeam() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "insufficient role")
	}
	return nil
}

// guardOwnerTarget stops managers from touching owners.
func guardOwnerTarget(actor, target *models.Membership) error {
	if target.Role == enums.MemberRoleOwner && actor.Role != enums.MemberRoleOwner {
		return pkgerrors.New(pkgerrors.CodeForbidden, "managers cannot modify owners")
	}
	return nil
}

// ensureOwnerRemains rejects a change that would take away the organization's
// last active owner. Owner rows are locked until the transaction ends.
func ensureOwnerRemains(ctx context.Context, repo *memberships.Repository, target *models.Membership) error {
	if target.Role != enums.MemberRoleOwner || target.Status != enums.MembershipStatusActive {
		return nil
	}
	owners, err := repo.LockActiveOwners(ctx, target.OrganizationID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count owners")
	}
	if owners <= 1 {
		return pkgerrors.New(pkgerrors.CodeLastOwner, "organization must keep at least one owner")
	}
	return nil
}

func ensureNoMember(ctx context.Context, repo *memberships.Repository, email, organizationID string) error {
	existing, err := repo.FindByEmailAndOrg(ctx, email, organizationID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup membership")
	case existing.Status != enums.MembershipStatusPending:
		return pkgerrors.New(pkgerrors.CodeDuplicateMembership, "email already belongs to a member of this organization")
	}
	return nil
}

func loadTarget(ctx context.Context, repo *memberships.Repository, actor *models.Membership, id uuid.UUID) (*models.Membership, error) {
	target, err := repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load membership")
	}
	// other tenants' rows are reported as missing
	if target.OrganizationID != actor.OrganizationID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
	}
	return target, nil
}

func loadInvitation(ctx context.Context, repo *memberships.Repository, claims *auth.InvitationClaims) (*models.Membership, error) {
	pending, err := repo.FindByID(ctx, claims.MembershipID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invitation not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invitation")
	}
	if pending.OrganizationID != claims.OrganizationID || pending.Email != memberships.NormalizeEmail(claims.Email) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invitation not found")
	}
	if pending.Status != enums.MembershipStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "invitation is no longer pending")
	}
	return pending, nil
}

func loadOrganization(ctx context.Context, conn *gorm.DB, id string) (*models.Organization, error) {
	org, err := organizations.NewRepository(conn).FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load organization")
	}
	return org, nil
}

func classifyWrite(err error, action string) error {
	if errors.Is(err, memberships.ErrDuplicateMembership) {
		return pkgerrors.Wrap(pkgerrors.CodeDuplicateMembership, err, "membership already exists")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, action)
}

func actorRef(actor *models.Membership) *outbox.ActorRef {
	return &outbox.ActorRef{
		MembershipID:   actor.ID,
		OrganizationID: actor.OrganizationID,
		Role:           string(actor.Role),
	}
}
