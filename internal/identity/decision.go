package identity

import (
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// DecisionKind names the branch a login took.
type DecisionKind string

const (
	// DecisionReturning: the (externalId, organization) pair is already on file.
	DecisionReturning DecisionKind = "returning"
	// DecisionRedeemInvite: a pending invitation for the email becomes active.
	DecisionRedeemInvite DecisionKind = "redeem_invite"
	// DecisionRelink: the provider issued a new subject for a known email.
	DecisionRelink DecisionKind = "relink"
	// DecisionCreate: no membership exists for the pair yet.
	DecisionCreate DecisionKind = "create"
)

// Decision is the outcome of comparing an incoming login with stored rows.
type Decision struct {
	Kind   DecisionKind
	Target *models.Membership
	// EmailHeldBy is set on a returning login whose email now belongs to a
	// different row in the same organization. The stored email is kept.
	EmailHeldBy *models.Membership
}

// Decide picks the reconciliation branch. byExternal is the row matching
// (externalId, organization) and byEmail the row matching (email,
// organization); either may be nil.
func Decide(byExternal, byEmail *models.Membership) Decision {
	if byExternal != nil {
		d := Decision{Kind: DecisionReturning, Target: byExternal}
		if byEmail != nil && byEmail.ID != byExternal.ID {
			d.EmailHeldBy = byEmail
		}
		return d
	}
	if byEmail != nil {
		if byEmail.Status == enums.MembershipStatusPending {
			return Decision{Kind: DecisionRedeemInvite, Target: byEmail}
		}
		return Decision{Kind: DecisionRelink, Target: byEmail}
	}
	return Decision{Kind: DecisionCreate}
}

// InitialRole is the role given to a brand-new membership. The first member of
// an organization owns it so the organization is never left without an owner.
func InitialRole(existingMembers int64) enums.MemberRole {
	if existingMembers == 0 {
		return enums.MemberRoleOwner
	}
	return enums.MemberRoleCustomer
}
