package memberships

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// DuplicatePair is an (email, organization) pair held by more than one row
// once emails are compared case-insensitively.
type DuplicatePair struct {
	Email          string `gorm:"column:email"`
	OrganizationID string `gorm:"column:organization_id"`
	Rows           int64  `gorm:"column:row_count"`
}

// OrganizationsWithoutActiveOwner lists organizations that have at least one
// non-pending member but no active owner.
func (r *Repository) OrganizationsWithoutActiveOwner(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("status <> ?", enums.MembershipStatusPending).
		Group("organization_id").
		Having("SUM(CASE WHEN role = ? AND status = ? THEN 1 ELSE 0 END) = 0", enums.MemberRoleOwner, enums.MembershipStatusActive).
		Order("organization_id").
		Pluck("organization_id", &ids).Error
	return ids, err
}

// CountActiveWithoutIdentity counts active rows whose external id is blank or
// still the invitation placeholder.
func (r *Repository) CountActiveWithoutIdentity(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("status = ?", enums.MembershipStatusActive).
		Where("TRIM(external_id) = '' OR external_id LIKE ?", invitePlaceholderPrefix+"%").
		Count(&count).Error
	return count, err
}

// DuplicateEmailPairs reports (email, organization) pairs that collide after
// normalization. The unique index only guards the exact stored value.
func (r *Repository) DuplicateEmailPairs(ctx context.Context) ([]DuplicatePair, error) {
	var pairs []DuplicatePair
	err := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Select("LOWER(TRIM(email)) AS email, organization_id, COUNT(*) AS row_count").
		Group("LOWER(TRIM(email)), organization_id").
		Having("COUNT(*) > 1").
		Order("organization_id").
		Scan(&pairs).Error
	return pairs, err
}
