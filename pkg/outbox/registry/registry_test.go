package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/storefront-backend/pkg/db/types"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

func TestResolveDecodesInvitation(t *testing.T) {
	reg := newTestEventRegistry(t)
	membershipID := uuid.New()
	data, err := json.Marshal(payloads.InvitationCreatedEvent{
		MembershipID:   membershipID,
		OrganizationID: "org-1",
		Email:          "carol@x.com",
		Role:           enums.MemberRoleManager,
		Token:          "signed",
		ExpiresAt:      time.Now().Add(time.Hour).UTC(),
	})
	require.NoError(t, err)

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventInvitationCreated,
		AggregateType: enums.AggregateMembership,
		AggregateID:   membershipID,
		Payload:       envelopeJSON(t, 1, data),
	})
	require.NoError(t, err)

	assert.Equal(t, "team-topic", resolved.Descriptor.Topic)
	payload, ok := resolved.Payload.(*payloads.InvitationCreatedEvent)
	require.True(t, ok, "unexpected payload type %T", resolved.Payload)
	assert.Equal(t, membershipID, payload.MembershipID)
	assert.Equal(t, "carol@x.com", payload.Email)
	assert.NotEmpty(t, resolved.Envelope.EventID)
	assert.False(t, resolved.Envelope.OccurredAt.IsZero())
}

func TestResolveTreatsMissingVersionAsCurrent(t *testing.T) {
	reg := newTestEventRegistry(t)
	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventTeamMemberAdded,
		AggregateType: enums.AggregateMembership,
		AggregateID:   uuid.New(),
		Payload:       envelopeJSON(t, 0, []byte(`{"email":"bob@x.com"}`)),
	})
	require.NoError(t, err)
	assert.Equal(t, outbox.CurrentVersion, resolved.Envelope.Version)
}

func TestResolveRejectsBadRows(t *testing.T) {
	reg := newTestEventRegistry(t)
	valid := envelopeJSON(t, 1, []byte(`{"email":"bob@x.com"}`))

	cases := map[string]models.OutboxEvent{
		"unknown event": {
			EventType:     enums.OutboxEventType("order_created"),
			AggregateType: enums.AggregateMembership,
			AggregateID:   uuid.New(),
			Payload:       valid,
		},
		"aggregate mismatch": {
			EventType:     enums.EventTeamMemberAdded,
			AggregateType: enums.AggregateOrganization,
			AggregateID:   uuid.New(),
			Payload:       valid,
		},
		"missing aggregate id": {
			EventType:     enums.EventTeamMemberAdded,
			AggregateType: enums.AggregateMembership,
			Payload:       valid,
		},
		"null payload": {
			EventType:     enums.EventTeamMemberAdded,
			AggregateType: enums.AggregateMembership,
			AggregateID:   uuid.New(),
			Payload:       envelopeJSON(t, 1, []byte("null")),
		},
		"unknown schema version": {
			EventType:     enums.EventTeamMemberAdded,
			AggregateType: enums.AggregateMembership,
			AggregateID:   uuid.New(),
			Payload:       envelopeJSON(t, 7, []byte(`{"email":"bob@x.com"}`)),
		},
		"broken envelope": {
			EventType:     enums.EventTeamMemberAdded,
			AggregateType: enums.AggregateMembership,
			AggregateID:   uuid.New(),
			Payload:       dbtypes.JSON(`{"data":`),
		},
	}

	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			var nonRetry NonRetryableError
			assert.True(t, errors.As(err, &nonRetry), "expected non-retryable error, got %v", err)
		})
	}
}

func TestEventRegistryTopics(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{})
	assert.Error(t, err)

	assert.Equal(t, []string{"team-topic"}, newTestEventRegistry(t).Topics())
}

func TestDecoderRegistryVersions(t *testing.T) {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventTeamMemberAdded, 2, func(data json.RawMessage) (any, error) {
		var decoded map[string]string
		err := json.Unmarshal(data, &decoded)
		return decoded, err
	})

	out, err := reg.Decode(enums.EventTeamMemberAdded, 2, json.RawMessage(`{"email":"bob@x.com"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"email": "bob@x.com"}, out)

	_, err = reg.Decode(enums.EventTeamMemberAdded, 1, json.RawMessage(`{}`))
	assert.EqualError(t, err, "no decoder for team_member_added@v1")
	assert.True(t, reg.Supports(enums.EventTeamMemberAdded))
	assert.False(t, reg.Supports(enums.EventInvitationCreated))
}

func TestTeamDecoderRegistryRejectsMalformedJSON(t *testing.T) {
	_, err := NewTeamDecoderRegistry().Decode(enums.EventTeamMemberAdded, 1, json.RawMessage(`{not json`))
	assert.Error(t, err)
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{TeamTopic: "team-topic"})
	require.NoError(t, err)
	return reg
}

func envelopeJSON(t *testing.T, version int, data []byte) dbtypes.JSON {
	t.Helper()
	raw, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	require.NoError(t, err)
	return dbtypes.JSON(raw)
}
