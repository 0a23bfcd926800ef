package identity

import (
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func TestDecide(t *testing.T) {
	active := &models.Membership{ID: uuid.New(), Status: enums.MembershipStatusActive}
	pending := &models.Membership{ID: uuid.New(), Status: enums.MembershipStatusPending}
	inactive := &models.Membership{ID: uuid.New(), Status: enums.MembershipStatusInactive}

	cases := []struct {
		name       string
		byExternal *models.Membership
		byEmail    *models.Membership
		want       DecisionKind
		target     *models.Membership
		heldBy     *models.Membership
	}{
		{name: "new pair", want: DecisionCreate},
		{name: "returning", byExternal: active, byEmail: active, want: DecisionReturning, target: active},
		{name: "returning with email moved", byExternal: active, byEmail: inactive, want: DecisionReturning, target: active, heldBy: inactive},
		{name: "pending invite", byEmail: pending, want: DecisionRedeemInvite, target: pending},
		{name: "rotated subject", byEmail: active, want: DecisionRelink, target: active},
		{name: "rotated subject on inactive row", byEmail: inactive, want: DecisionRelink, target: inactive},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Decide(tc.byExternal, tc.byEmail)
			if got.Kind != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got.Kind)
			}
			if got.Target != tc.target {
				t.Fatalf("unexpected target %+v", got.Target)
			}
			if got.EmailHeldBy != tc.heldBy {
				t.Fatalf("unexpected email holder %+v", got.EmailHeldBy)
			}
		})
	}
}

func TestInitialRole(t *testing.T) {
	if InitialRole(0) != enums.MemberRoleOwner {
		t.Fatalf("first member should own the organization")
	}
	if InitialRole(3) != enums.MemberRoleCustomer {
		t.Fatalf("later members should default to customer")
	}
}
