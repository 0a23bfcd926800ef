package memberships

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// MembershipDTO is the transport shape for a membership record.
type MembershipDTO struct {
	ID             uuid.UUID              `json:"id"`
	ExternalID     string                 `json:"externalId"`
	Email          string                 `json:"email"`
	OrganizationID string                 `json:"organizationId"`
	Role           enums.MemberRole       `json:"role"`
	Status         enums.MembershipStatus `json:"status"`
	IsActive       bool                   `json:"isActive"`
	FirstName      string                 `json:"firstName"`
	LastName       string                 `json:"lastName"`
	InvitedBy      *uuid.UUID             `json:"invitedBy,omitempty"`
	LastLogin      *time.Time             `json:"lastLogin,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

// MembershipWithOrganization pairs a membership with its organization's name.
type MembershipWithOrganization struct {
	MembershipID     uuid.UUID              `json:"membershipId"`
	OrganizationID   string                 `json:"organizationId"`
	OrganizationName string                 `json:"organizationName"`
	ExternalID       string                 `json:"externalId"`
	Email            string                 `json:"email"`
	Role             enums.MemberRole       `json:"role"`
	Status           enums.MembershipStatus `json:"status"`
	LastLogin        *time.Time             `json:"lastLogin,omitempty"`
}

// ToDTO converts a model to the external DTO.
func ToDTO(m *models.Membership) *MembershipDTO {
	if m == nil {
		return nil
	}

	return &MembershipDTO{
		ID:             m.ID,
		ExternalID:     PublicExternalID(m.ExternalID),
		Email:          m.Email,
		OrganizationID: m.OrganizationID,
		Role:           m.Role,
		Status:         m.Status,
		IsActive:       m.IsActive,
		FirstName:      m.FirstName,
		LastName:       m.LastName,
		InvitedBy:      copyUUIDPointer(m.InvitedBy),
		LastLogin:      copyTimePointer(m.LastLoginAt),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// ToDTOs converts a slice of models.
func ToDTOs(rows []models.Membership) []MembershipDTO {
	out := make([]MembershipDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *ToDTO(&rows[i]))
	}
	return out
}

func copyUUIDPointer(src *uuid.UUID) *uuid.UUID {
	if src == nil {
		return nil
	}
	dst := *src
	return &dst
}

func copyTimePointer(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	dst := *src
	return &dst
}
