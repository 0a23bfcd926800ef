package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/identity"
	"github.com/angelmondragon/storefront-backend/internal/memberships"
	"github.com/angelmondragon/storefront-backend/internal/organizations"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const invalidSessionMessage = "invalid or expired session"

// Service defines the session-facing operations used by the auth controllers
// and the request authenticator.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*SessionResponse, error)
	Authenticate(ctx context.Context, token string) (*models.Membership, error)
	IssueSession(ctx context.Context, membership *models.Membership) (*SessionResponse, error)
	Me(ctx context.Context, membership *models.Membership) (*UserSummary, error)
	ListOrganizations(ctx context.Context, membership *models.Membership) ([]OrganizationMembership, error)
	SwitchOrganization(ctx context.Context, current *models.Membership, organizationID string) (*SessionResponse, error)
}

type dbClient interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	DB         dbClient
	Reconciler identity.Reconciler
	JWTConfig  config.JWTConfig
	Logger     *logger.Logger
	Now        func() time.Time
}

type service struct {
	db         dbClient
	reconciler identity.Reconciler
	jwtCfg     config.JWTConfig
	logg       *logger.Logger
	now        func() time.Time
}

// NewService constructs the auth service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Reconciler == nil {
		return nil, errors.New("identity reconciler is required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		db:         params.DB,
		reconciler: params.Reconciler,
		jwtCfg:     params.JWTConfig,
		logg:       params.Logger,
		now:        now,
	}, nil
}

// Register completes an external login: the verified identity is reconciled
// into exactly one membership and a session scoped to it is returned.
func (s *service) Register(ctx context.Context, req RegisterRequest) (*SessionResponse, error) {
	res, err := s.reconciler.Reconcile(ctx, identity.Login{
		ExternalID:       req.ExternalID,
		Email:            req.Email,
		OrganizationID:   req.OrganizationID,
		OrganizationName: req.OrganizationName,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
	})
	if err != nil {
		return nil, err
	}
	if res.Membership.Status != enums.MembershipStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "membership is not active")
	}
	return s.issue(res.Membership, res.Organization.Name)
}

// Authenticate verifies a session token and resolves the membership it names.
// Lookups go by (subject, organization) when the claim carries one and by
// subject alone otherwise.
func (s *service) Authenticate(ctx context.Context, token string) (*models.Membership, error) {
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	claims, err := pkgAuth.ParseSessionToken(s.jwtCfg, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, invalidSessionMessage)
	}

	repo := memberships.NewRepository(s.db.DB())
	membership, err := s.lookupSessionMembership(ctx, repo, claims)
	if err != nil {
		return nil, err
	}
	if membership != nil {
		return membership, nil
	}

	s.diagnoseMissingMembership(ctx, repo, claims)
	return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidSessionMessage)
}

func (s *service) lookupSessionMembership(ctx context.Context, repo *memberships.Repository, claims *pkgAuth.SessionClaims) (*models.Membership, error) {
	if claims.OrganizationID != "" {
		m, err := repo.FindByExternalIDAndOrg(ctx, claims.ExternalID(), claims.OrganizationID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup membership")
		}
		return m, nil
	}

	rows, err := repo.FindByExternalID(ctx, claims.ExternalID())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup membership")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// diagnoseMissingMembership looks for rows sharing the token's email so that
// a rotated provider id shows up in the logs. It never authenticates.
func (s *service) diagnoseMissingMembership(ctx context.Context, repo *memberships.Repository, claims *pkgAuth.SessionClaims) {
	if s.logg == nil || claims.Email == "" {
		return
	}
	rows, err := repo.FindAllByEmail(ctx, claims.Email)
	if err != nil {
		s.logg.Error(ctx, "auth.email_fallback_failed", err)
		return
	}
	if len(rows) == 0 {
		return
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID.String())
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"external_id":     claims.ExternalID(),
		"organization_id": claims.OrganizationID,
		"email_matches":   ids,
	})
	s.logg.Warn(logCtx, "auth.session_subject_unknown")
}

func (s *service) IssueSession(ctx context.Context, membership *models.Membership) (*SessionResponse, error) {
	if membership == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if membership.Status != enums.MembershipStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "membership is not active")
	}
	name, err := s.organizationName(ctx, s.db.DB(), membership.OrganizationID)
	if err != nil {
		return nil, err
	}
	return s.issue(membership, name)
}

func (s *service) Me(ctx context.Context, membership *models.Membership) (*UserSummary, error) {
	if membership == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	name, err := s.organizationName(ctx, s.db.DB(), membership.OrganizationID)
	if err != nil {
		return nil, err
	}
	return summarize(membership, name), nil
}

func (s *service) ListOrganizations(ctx context.Context, membership *models.Membership) ([]OrganizationMembership, error) {
	if membership == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	rows, err := memberships.NewRepository(s.db.DB()).ListByEmailWithOrganization(ctx, membership.Email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list organizations")
	}
	out := make([]OrganizationMembership, 0, len(rows))
	for _, row := range rows {
		out = append(out, OrganizationMembership{
			MembershipWithOrganization: row,
			IsCurrent:                  row.MembershipID == membership.ID,
		})
	}
	return out, nil
}

func (s *service) issue(membership *models.Membership, organizationName string) (*SessionResponse, error) {
	if memberships.IsPlaceholderExternalID(membership.ExternalID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "membership has not completed sign-in")
	}
	token, expiresAt, err := pkgAuth.MintSessionToken(s.jwtCfg, s.now(), pkgAuth.SessionPayload{
		ExternalID:     membership.ExternalID,
		Email:          membership.Email,
		Role:           membership.Role,
		OrganizationID: membership.OrganizationID,
		JTI:            uuid.NewString(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint session")
	}
	return &SessionResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      summarize(membership, organizationName),
	}, nil
}

func (s *service) organizationName(ctx context.Context, conn *gorm.DB, organizationID string) (string, error) {
	org, err := organizations.NewRepository(conn).FindByID(ctx, organizationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
	}
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load organization")
	}
	return org.Name, nil
}
