package team

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/memberships"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// InviteInput is the payload for POST /auth/invite.
type InviteInput struct {
	Email     string `json:"email" validate:"required,email,max=320"`
	Role      string `json:"role" validate:"required,member_role"`
	FirstName string `json:"firstName" validate:"omitempty,max=255"`
	LastName  string `json:"lastName" validate:"omitempty,max=255"`
}

// CreateMemberInput is the payload for the direct-add path.
type CreateMemberInput struct {
	Email     string `json:"email" validate:"required,email,max=320"`
	Role      string `json:"role" validate:"required,member_role"`
	FirstName string `json:"firstName" validate:"omitempty,max=255"`
	LastName  string `json:"lastName" validate:"omitempty,max=255"`
}

// InviteResult is returned to the inviting admin.
type InviteResult struct {
	Membership      *memberships.MembershipDTO `json:"membership"`
	InvitationToken string                     `json:"invitationToken"`
	ExpiresAt       time.Time                  `json:"expiresAt"`
}

// InvitationPreview is what an invitee sees before accepting.
type InvitationPreview struct {
	MembershipID     uuid.UUID        `json:"membershipId"`
	Email            string           `json:"email"`
	Role             enums.MemberRole `json:"role"`
	OrganizationID   string           `json:"organizationId"`
	OrganizationName string           `json:"organizationName"`
	ExpiresAt        time.Time        `json:"expiresAt"`
}

// Identity is the authenticated caller redeeming an invitation.
type Identity struct {
	ExternalID string
	Email      string
}
