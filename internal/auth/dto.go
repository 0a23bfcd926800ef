package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/memberships"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// RegisterRequest is the verified login tuple forwarded by the frontend after
// the identity provider completes sign-in.
type RegisterRequest struct {
	ExternalID       string `json:"externalId" validate:"required,max=255"`
	Email            string `json:"email" validate:"required,email,max=320"`
	FirstName        string `json:"firstName" validate:"omitempty,max=255"`
	LastName         string `json:"lastName" validate:"omitempty,max=255"`
	OrganizationID   string `json:"organizationId" validate:"required,max=255"`
	OrganizationName string `json:"organizationName" validate:"omitempty,max=255"`
}

// SwitchOrganizationRequest selects the organization the next session is scoped to.
type SwitchOrganizationRequest struct {
	OrganizationID string `json:"organizationId" validate:"required,max=255"`
}

// UserSummary is the current-membership view returned by register, me and switch.
type UserSummary struct {
	MembershipID     uuid.UUID              `json:"membershipId"`
	ExternalID       string                 `json:"externalId"`
	Email            string                 `json:"email"`
	FirstName        string                 `json:"firstName"`
	LastName         string                 `json:"lastName"`
	Role             enums.MemberRole       `json:"role"`
	Status           enums.MembershipStatus `json:"status"`
	OrganizationID   string                 `json:"organizationId"`
	OrganizationName string                 `json:"organizationName"`
	LastLogin        *time.Time             `json:"lastLogin,omitempty"`
}

// SessionResponse carries a freshly minted session token.
type SessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *UserSummary `json:"user"`
}

// OrganizationMembership is one entry of the "my organizations" list.
type OrganizationMembership struct {
	memberships.MembershipWithOrganization
	IsCurrent bool `json:"isCurrent"`
}

func summarize(m *models.Membership, organizationName string) *UserSummary {
	return &UserSummary{
		MembershipID:     m.ID,
		ExternalID:       memberships.PublicExternalID(m.ExternalID),
		Email:            m.Email,
		FirstName:        m.FirstName,
		LastName:         m.LastName,
		Role:             m.Role,
		Status:           m.Status,
		OrganizationID:   m.OrganizationID,
		OrganizationName: organizationName,
		LastLogin:        m.LastLoginAt,
	}
}
