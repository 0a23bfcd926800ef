package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

const (
	audienceSession    = "storefront-session"
	audienceInvitation = "storefront-invitation"
)

// SessionPayload captures the data available when minting a session token.
type SessionPayload struct {
	ExternalID     string
	Email          string
	Role           enums.MemberRole
	OrganizationID string
	JTI            string
}

// SessionClaims is the typed session JWT. The subject is the identity
// provider's external id.
type SessionClaims struct {
	Email          string           `json:"email"`
	Role           enums.MemberRole `json:"role"`
	OrganizationID string           `json:"organizationId,omitempty"`
	jwt.RegisteredClaims
}

// ExternalID returns the subject claim.
func (c SessionClaims) ExternalID() string {
	return c.Subject
}

// InvitationPayload identifies the pending membership an invitation redeems.
type InvitationPayload struct {
	MembershipID   uuid.UUID
	Email          string
	OrganizationID string
}

// InvitationClaims is the typed invitation JWT.
type InvitationClaims struct {
	MembershipID   uuid.UUID `json:"membershipId"`
	Email          string    `json:"email"`
	OrganizationID string    `json:"organizationId"`
	jwt.RegisteredClaims
}
