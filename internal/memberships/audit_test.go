package memberships

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func TestOrganizationsWithoutActiveOwner(t *testing.T) {
	repo, _ := newRepo(t, "org-1", "org-2", "org-3", "org-4")
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, activeMember("ext-1", "owner@example.com", "org-1", enums.MemberRoleOwner)))

	require.NoError(t, repo.Create(ctx, activeMember("ext-2", "mgr@example.com", "org-2", enums.MemberRoleManager)))

	dormant := activeMember("ext-3", "owner@example.com", "org-3", enums.MemberRoleOwner)
	dormant.SetStatus(enums.MembershipStatusInactive)
	require.NoError(t, repo.Create(ctx, dormant))

	// only an invitation, not counted as membership yet
	invite := &models.Membership{
		ExternalID:     InvitePlaceholderExternalID(),
		Email:          "new@example.com",
		OrganizationID: "org-4",
		Role:           enums.MemberRoleCustomer,
	}
	invite.SetStatus(enums.MembershipStatusPending)
	require.NoError(t, repo.Create(ctx, invite))

	ids, err := repo.OrganizationsWithoutActiveOwner(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"org-2", "org-3"}, ids)
}

func TestCountActiveWithoutIdentity(t *testing.T) {
	repo, _ := newRepo(t, "org-1")
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, activeMember("ext-1", "a@example.com", "org-1", enums.MemberRoleOwner)))
	require.NoError(t, repo.Create(ctx, activeMember(DirectPlaceholderExternalID(), "b@example.com", "org-1", enums.MemberRoleCustomer)))

	count, err := repo.CountActiveWithoutIdentity(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, repo.Create(ctx, activeMember(InvitePlaceholderExternalID(), "c@example.com", "org-1", enums.MemberRoleCustomer)))

	count, err = repo.CountActiveWithoutIdentity(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestDuplicateEmailPairs(t *testing.T) {
	repo, conn := newRepo(t, "org-1", "org-2")
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, activeMember("ext-1", "bob@example.com", "org-1", enums.MemberRoleOwner)))
	require.NoError(t, repo.Create(ctx, activeMember("ext-2", "bob@example.com", "org-2", enums.MemberRoleOwner)))

	pairs, err := repo.DuplicateEmailPairs(ctx)
	require.NoError(t, err)
	assert.Empty(t, pairs)

	// legacy import path that skipped normalization
	require.NoError(t, conn.Exec(
		"INSERT INTO memberships (id, external_id, email, organization_id, role, status, is_active) VALUES (?, ?, ?, ?, ?, ?, ?)",
		uuid.NewString(), "ext-3", "Bob@Example.com", "org-1", "customer", "active", true,
	).Error)

	pairs, err = repo.DuplicateEmailPairs(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "bob@example.com", pairs[0].Email)
	assert.Equal(t, "org-1", pairs[0].OrganizationID)
	assert.EqualValues(t, 2, pairs[0].Rows)
}
