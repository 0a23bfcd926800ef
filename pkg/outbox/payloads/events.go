package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// InvitationCreatedEvent asks the mailer to deliver an invitation link.
type InvitationCreatedEvent struct {
	MembershipID     uuid.UUID        `json:"membershipId"`
	OrganizationID   string           `json:"organizationId"`
	OrganizationName string           `json:"organizationName"`
	Email            string           `json:"email"`
	Role             enums.MemberRole `json:"role"`
	InvitedBy        *uuid.UUID       `json:"invitedBy,omitempty"`
	Token            string           `json:"token"`
	ExpiresAt        time.Time        `json:"expiresAt"`
}

// TeamMemberAddedEvent announces a member added directly by an admin.
type TeamMemberAddedEvent struct {
	MembershipID     uuid.UUID        `json:"membershipId"`
	OrganizationID   string           `json:"organizationId"`
	OrganizationName string           `json:"organizationName"`
	Email            string           `json:"email"`
	Role             enums.MemberRole `json:"role"`
	AddedBy          *uuid.UUID       `json:"addedBy,omitempty"`
}
