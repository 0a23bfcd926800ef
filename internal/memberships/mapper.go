package memberships

import (
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

type membershipWithOrganizationRow struct {
	models.Membership
	OrganizationName string `gorm:"column:organization_name"`
}

func membershipWithOrganizationFromRow(row membershipWithOrganizationRow) MembershipWithOrganization {
	return MembershipWithOrganization{
		MembershipID:     row.ID,
		OrganizationID:   row.OrganizationID,
		OrganizationName: row.OrganizationName,
		ExternalID:       PublicExternalID(row.ExternalID),
		Email:            row.Email,
		Role:             row.Role,
		Status:           row.Status,
		LastLogin:        copyTimePointer(row.LastLoginAt),
	}
}

func membershipRowsToDTO(rows []membershipWithOrganizationRow) []MembershipWithOrganization {
	out := make([]MembershipWithOrganization, 0, len(rows))
	for _, row := range rows {
		out = append(out, membershipWithOrganizationFromRow(row))
	}
	return out
}
