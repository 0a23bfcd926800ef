package enums

import "slices"

// MemberRole is the tenant-level business role of a membership.
type MemberRole string

const (
	MemberRoleOwner    MemberRole = "owner"
	MemberRoleManager  MemberRole = "manager"
	MemberRoleCustomer MemberRole = "customer"
)

var memberRoles = []MemberRole{MemberRoleOwner, MemberRoleManager, MemberRoleCustomer}

func (m MemberRole) String() string { return string(m) }

func (m MemberRole) IsValid() bool { return slices.Contains(memberRoles, m) }

// CanManageTeam reports whether the role may invite, add, re-role or remove members.
func (m MemberRole) CanManageTeam() bool {
	return m == MemberRoleOwner || m == MemberRoleManager
}

// ParseMemberRole accepts any casing and surrounding whitespace.
func ParseMemberRole(value string) (MemberRole, error) {
	return parse("member role", value, memberRoles)
}

// MembershipStatus is the lifecycle state of a membership row. Pending rows
// are invitations that have not been accepted.
type MembershipStatus string

const (
	MembershipStatusActive   MembershipStatus = "active"
	MembershipStatusPending  MembershipStatus = "pending"
	MembershipStatusInactive MembershipStatus = "inactive"
)

var membershipStatuses = []MembershipStatus{MembershipStatusActive, MembershipStatusPending, MembershipStatusInactive}

func (s MembershipStatus) String() string { return string(s) }

func (s MembershipStatus) IsValid() bool { return slices.Contains(membershipStatuses, s) }

func ParseMembershipStatus(value string) (MembershipStatus, error) {
	return parse("membership status", value, membershipStatuses)
}
