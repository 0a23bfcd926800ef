package memberships

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

const (
	ConstraintEmailOrg    = "ux_memberships_email_org"
	ConstraintExternalOrg = "ux_memberships_external_org"
)

// ErrDuplicateMembership is returned when a write would leave two memberships
// sharing (email, organization) or (external id, organization).
var ErrDuplicateMembership = errors.New("duplicate membership")

// Repository exposes membership persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repo to the provided GORM connection or transaction.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByID returns gorm.ErrRecordNotFound when the membership does not exist.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Membership, error) {
	var membership models.Membership
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&membership).Error; err != nil {
		return nil, err
	}
	return &membership, nil
}

// FindByExternalIDAndOrg looks a membership up by identity provider subject.
func (r *Repository) FindByExternalIDAndOrg(ctx context.Context, externalID, organizationID string) (*models.Membership, error) {
	var membership models.Membership
	err := r.db.WithContext(ctx).
		Where("external_id = ? AND organization_id = ?", externalID, organizationID).
		First(&membership).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// FindByEmailAndOrg looks a membership up by normalized email.
func (r *Repository) FindByEmailAndOrg(ctx context.Context, email, organizationID string) (*models.Membership, error) {
	var membership models.Membership
	err := r.db.WithContext(ctx).
		Where("email = ? AND organization_id = ?", NormalizeEmail(email), organizationID).
		First(&membership).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// FindByExternalID returns every membership held by the subject, most recently
// used first. Rows that never logged in sort last on every dialect.
func (r *Repository) FindByExternalID(ctx context.Context, externalID string) ([]models.Membership, error) {
	var rows []models.Membership
	err := r.db.WithContext(ctx).
		Where("external_id = ?", externalID).
		Order("last_login_at IS NULL").
		Order("last_login_at DESC").
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// FindAllByEmail returns the memberships sharing an email across organizations.
func (r *Repository) FindAllByEmail(ctx context.Context, email string) ([]models.Membership, error) {
	var rows []models.Membership
	err := r.db.WithContext(ctx).
		Where("email = ?", NormalizeEmail(email)).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// ListByEmailWithOrganization joins each membership sharing the email with its
// organization name.
func (r *Repository) ListByEmailWithOrganization(ctx context.Context, email string) ([]MembershipWithOrganization, error) {
	var rows []membershipWithOrganizationRow
	err := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Select("memberships.*, organizations.name AS organization_name").
		Joins("JOIN organizations ON organizations.id = memberships.organization_id").
		Where("memberships.email = ?", NormalizeEmail(email)).
		Order("organizations.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return membershipRowsToDTO(rows), nil
}

// ListByOrganization returns every membership in the organization.
func (r *Repository) ListByOrganization(ctx context.Context, organizationID string) ([]models.Membership, error) {
	var rows []models.Membership
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// CountByOrganization counts memberships of any status.
func (r *Repository) CountByOrganization(ctx context.Context, organizationID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("organization_id = ?", organizationID).
		Count(&count).Error
	return count, err
}

// LockActiveOwners row-locks the organization's active owners and returns how
// many there are. Callers must be inside a transaction so concurrent demotions
// serialize on the same rows.
func (r *Repository) LockActiveOwners(ctx context.Context, organizationID string) (int, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("organization_id = ? AND role = ? AND status = ?", organizationID, enums.MemberRoleOwner, enums.MembershipStatusActive).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Create inserts a membership. Unique violations surface as ErrDuplicateMembership.
func (r *Repository) Create(ctx context.Context, membership *models.Membership) error {
	if err := validateRow(membership); err != nil {
		return err
	}
	membership.Email = NormalizeEmail(membership.Email)
	return classifyWriteError(r.db.WithContext(ctx).Create(membership).Error)
}

// Update writes every mutable column of the membership.
func (r *Repository) Update(ctx context.Context, membership *models.Membership) error {
	if err := validateRow(membership); err != nil {
		return err
	}
	membership.Email = NormalizeEmail(membership.Email)
	membership.UpdatedAt = db.NowUTC()

	res := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("id = ?", membership.ID).
		Updates(map[string]any{
			"external_id":   membership.ExternalID,
			"email":         membership.Email,
			"role":          membership.Role,
			"status":        membership.Status,
			"is_active":     membership.IsActive,
			"first_name":    membership.FirstName,
			"last_name":     membership.LastName,
			"invited_by":    membership.InvitedBy,
			"last_login_at": membership.LastLoginAt,
			"updated_at":    membership.UpdatedAt,
		})
	if res.Error != nil {
		return classifyWriteError(res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpsertByEmailOrg updates the membership holding (email, organization) with
// the incoming identity and profile fields, or inserts it when absent.
func (r *Repository) UpsertByEmailOrg(ctx context.Context, incoming *models.Membership) (*models.Membership, bool, error) {
	existing, err := r.FindByEmailAndOrg(ctx, incoming.Email, incoming.OrganizationID)
	return r.upsert(ctx, existing, err, incoming)
}

// UpsertByExternalIDOrg updates the membership holding (external id,
// organization), or inserts it when absent.
func (r *Repository) UpsertByExternalIDOrg(ctx context.Context, incoming *models.Membership) (*models.Membership, bool, error) {
	existing, err := r.FindByExternalIDAndOrg(ctx, incoming.ExternalID, incoming.OrganizationID)
	return r.upsert(ctx, existing, err, incoming)
}

func (r *Repository) upsert(ctx context.Context, existing *models.Membership, findErr error, incoming *models.Membership) (*models.Membership, bool, error) {
	if findErr != nil {
		if !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return nil, false, findErr
		}
		if err := r.Create(ctx, incoming); err != nil {
			return nil, false, err
		}
		return incoming, true, nil
	}

	existing.ExternalID = incoming.ExternalID
	existing.Email = incoming.Email
	if incoming.Role != "" {
		existing.Role = incoming.Role
	}
	if incoming.Status != "" {
		existing.SetStatus(incoming.Status)
	}
	if incoming.FirstName != "" {
		existing.FirstName = incoming.FirstName
	}
	if incoming.LastName != "" {
		existing.LastName = incoming.LastName
	}
	if incoming.LastLoginAt != nil {
		existing.LastLoginAt = incoming.LastLoginAt
	}
	if err := r.Update(ctx, existing); err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// DeleteByID removes a membership. It reports whether a row was deleted.
func (r *Repository) DeleteByID(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Membership{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeletePendingByEmailOrg clears stale invitations for the pair.
func (r *Repository) DeletePendingByEmailOrg(ctx context.Context, email, organizationID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("email = ? AND organization_id = ? AND status = ?", NormalizeEmail(email), organizationID, enums.MembershipStatusPending).
		Delete(&models.Membership{})
	return res.RowsAffected, res.Error
}

// DeletePendingCreatedBefore removes invitations whose token can no longer be redeemed.
func (r *Repository) DeletePendingCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.MembershipStatusPending, cutoff).
		Delete(&models.Membership{})
	return res.RowsAffected, res.Error
}

func validateRow(m *models.Membership) error {
	if m == nil {
		return errors.New("membership is required")
	}
	if !m.Role.IsValid() {
		return fmt.Errorf("invalid member role %q", m.Role)
	}
	if !m.Status.IsValid() {
		return fmt.Errorf("invalid membership status %q", m.Status)
	}
	if m.OrganizationID == "" {
		return errors.New("organization id is required")
	}
	if m.Status == enums.MembershipStatusActive && m.ExternalID == "" {
		return errors.New("active membership requires an external id")
	}
	m.IsActive = m.Status == enums.MembershipStatusActive
	return nil
}

func classifyWriteError(err error) error {
	if err == nil || !db.IsUniqueViolation(err, "") {
		return err
	}
	constraint := "unknown"
	switch {
	case db.IsUniqueViolation(err, ConstraintEmailOrg), db.IsUniqueViolation(err, "memberships.email"):
		constraint = ConstraintEmailOrg
	case db.IsUniqueViolation(err, ConstraintExternalOrg), db.IsUniqueViolation(err, "memberships.external_id"):
		constraint = ConstraintExternalOrg
	}
	return &DuplicateError{Constraint: constraint, cause: err}
}

// DuplicateError carries which uniqueness rule a write violated.
type DuplicateError struct {
	Constraint string
	cause      error
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s on %s", ErrDuplicateMembership.Error(), e.Constraint)
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicateMembership
}

func (e *DuplicateError) Unwrap() error {
	return e.cause
}
