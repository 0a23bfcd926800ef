package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/memberships"
	"github.com/angelmondragon/storefront-backend/internal/organizations"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

// maxAttempts bounds the retry after a uniqueness race to one extra pass.
const maxAttempts = 2

// Login is a verified external login as delivered by the identity provider.
type Login struct {
	ExternalID       string
	Email            string
	OrganizationID   string
	OrganizationName string
	FirstName        string
	LastName         string
}

// Result is the reconciled membership and the organization it belongs to.
type Result struct {
	Membership   *models.Membership
	Organization *models.Organization
	Decision     DecisionKind
}

type membershipStore interface {
	FindByExternalIDAndOrg(ctx context.Context, externalID, organizationID string) (*models.Membership, error)
	FindByEmailAndOrg(ctx context.Context, email, organizationID string) (*models.Membership, error)
	CountByOrganization(ctx context.Context, organizationID string) (int64, error)
	Create(ctx context.Context, membership *models.Membership) error
	Update(ctx context.Context, membership *models.Membership) error
}

type organizationStore interface {
	Upsert(ctx context.Context, id, name string) (*models.Organization, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Reconciler maps external logins onto memberships.
type Reconciler interface {
	Reconcile(ctx context.Context, login Login) (*Result, error)
}

// ReconcilerParams packages the reconciler dependencies.
type ReconcilerParams struct {
	DB      txRunner
	Logger  *logger.Logger
	Metrics *metrics.ReconcileMetrics
	Now     func() time.Time

	// Memberships and Organizations bind stores to a transaction. They default
	// to the gorm repositories.
	Memberships   func(tx *gorm.DB) membershipStore
	Organizations func(tx *gorm.DB) organizationStore
}

type reconciler struct {
	db            txRunner
	logg          *logger.Logger
	metrics       *metrics.ReconcileMetrics
	now           func() time.Time
	memberships   func(tx *gorm.DB) membershipStore
	organizations func(tx *gorm.DB) organizationStore
}

// NewReconciler builds a Reconciler.
func NewReconciler(params ReconcilerParams) (Reconciler, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	r := &reconciler{
		db:            params.DB,
		logg:          params.Logger,
		metrics:       params.Metrics,
		now:           params.Now,
		memberships:   params.Memberships,
		organizations: params.Organizations,
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	if r.memberships == nil {
		r.memberships = func(tx *gorm.DB) membershipStore { return memberships.NewRepository(tx) }
	}
	if r.organizations == nil {
		r.organizations = func(tx *gorm.DB) organizationStore { return organizations.NewRepository(tx) }
	}
	return r, nil
}

func (r *reconciler) Reconcile(ctx context.Context, login Login) (*Result, error) {
	started := time.Now()
	login, err := normalizeLogin(login)
	if err != nil {
		r.metrics.ObserveFailure(string(pkgerrors.CodeValidation), time.Since(started))
		return nil, err
	}

	var result *Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err = r.attempt(ctx, login)
		if err == nil || !errors.Is(err, memberships.ErrDuplicateMembership) {
			break
		}
		if attempt < maxAttempts {
			r.metrics.IncRetry()
			r.warn(ctx, login, "reconcile.duplicate_retry")
		}
	}

	if err != nil {
		if errors.Is(err, memberships.ErrDuplicateMembership) {
			err = pkgerrors.Wrap(pkgerrors.CodeConflict, err, "membership changed concurrently, retry login")
		} else if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reconcile login")
		}
		r.metrics.ObserveFailure(string(pkgerrors.As(err).Code()), time.Since(started))
		return nil, err
	}

	r.metrics.ObserveDecision(string(result.Decision), time.Since(started))
	if r.logg != nil {
		logCtx := r.logg.WithOrganizationID(ctx, result.Membership.OrganizationID)
		logCtx = r.logg.WithMembershipID(logCtx, result.Membership.ID.String())
		logCtx = r.logg.WithField(logCtx, "decision", string(result.Decision))
		r.logg.Info(logCtx, "reconcile.resolved")
	}
	return result, nil
}

func (r *reconciler) attempt(ctx context.Context, login Login) (*Result, error) {
	var result *Result
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		org, err := r.organizations(tx).Upsert(ctx, login.OrganizationID, login.OrganizationName)
		if err != nil {
			return err
		}

		store := r.memberships(tx)
		byExternal, err := findOptional(store.FindByExternalIDAndOrg(ctx, login.ExternalID, login.OrganizationID))
		if err != nil {
			return err
		}
		byEmail, err := findOptional(store.FindByEmailAndOrg(ctx, login.Email, login.OrganizationID))
		if err != nil {
			return err
		}

		decision := Decide(byExternal, byEmail)
		membership, err := r.apply(ctx, store, decision, login)
		if err != nil {
			return err
		}
		result = &Result{Membership: membership, Organization: org, Decision: decision.Kind}
		return nil
	})
	return result, err
}

func (r *reconciler) apply(ctx context.Context, store membershipStore, decision Decision, login Login) (*models.Membership, error) {
	now := r.now()

	switch decision.Kind {
	case DecisionReturning:
		m := decision.Target
		if decision.EmailHeldBy == nil {
			m.Email = login.Email
		} else {
			r.warn(ctx, login, "reconcile.email_held_by_other_membership")
		}
		refreshProfile(m, login, now)
		return m, store.Update(ctx, m)

	case DecisionRedeemInvite:
		m := decision.Target
		m.ExternalID = login.ExternalID
		m.SetStatus(enums.MembershipStatusActive)
		refreshProfile(m, login, now)
		return m, store.Update(ctx, m)

	case DecisionRelink:
		m := decision.Target
		m.ExternalID = login.ExternalID
		refreshProfile(m, login, now)
		return m, store.Update(ctx, m)

	default:
		existing, err := store.CountByOrganization(ctx, login.OrganizationID)
		if err != nil {
			return nil, err
		}
		m := &models.Membership{
			ExternalID:     login.ExternalID,
			Email:          login.Email,
			OrganizationID: login.OrganizationID,
			Role:           InitialRole(existing),
		}
		m.SetStatus(enums.MembershipStatusActive)
		refreshProfile(m, login, now)
		return m, store.Create(ctx, m)
	}
}

// refreshProfile copies non-empty display fields and advances lastLogin. The
// timestamp never moves backwards.
func refreshProfile(m *models.Membership, login Login, now time.Time) {
	if login.FirstName != "" {
		m.FirstName = login.FirstName
	}
	if login.LastName != "" {
		m.LastName = login.LastName
	}
	if m.LastLoginAt == nil || now.After(*m.LastLoginAt) {
		ts := now
		m.LastLoginAt = &ts
	}
}

func normalizeLogin(login Login) (Login, error) {
	login.ExternalID = strings.TrimSpace(login.ExternalID)
	login.Email = memberships.NormalizeEmail(login.Email)
	login.OrganizationID = strings.TrimSpace(login.OrganizationID)
	login.OrganizationName = strings.TrimSpace(login.OrganizationName)
	login.FirstName = strings.TrimSpace(login.FirstName)
	login.LastName = strings.TrimSpace(login.LastName)

	switch {
	case login.ExternalID == "":
		return login, pkgerrors.New(pkgerrors.CodeValidation, "externalId is required")
	case memberships.IsPlaceholderExternalID(login.ExternalID):
		return login, pkgerrors.New(pkgerrors.CodeValidation, "externalId is reserved")
	case login.OrganizationID == "":
		return login, pkgerrors.New(pkgerrors.CodeValidation, "organizationId is required")
	}
	if err := memberships.ValidateEmail(login.Email); err != nil {
		return login, pkgerrors.New(pkgerrors.CodeValidation, "invalid email")
	}
	return login, nil
}

func findOptional(m *models.Membership, err error) (*models.Membership, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return m, err
}

func (r *reconciler) warn(ctx context.Context, login Login, msg string) {
	if r.logg == nil {
		return
	}
	ctx = r.logg.WithOrganizationID(ctx, login.OrganizationID)
	ctx = r.logg.WithField(ctx, "external_id", login.ExternalID)
	r.logg.Warn(ctx, msg)
}
