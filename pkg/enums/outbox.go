package enums

import "slices"

// OutboxAggregateType is stored in outbox_events.aggregate_type.
type OutboxAggregateType string

const (
	AggregateMembership   OutboxAggregateType = "membership"
	AggregateOrganization OutboxAggregateType = "organization"
)

// OutboxEventType is stored in outbox_events.event_type and selects the topic.
type OutboxEventType string

const (
	EventInvitationCreated OutboxEventType = "invitation_created"
	EventTeamMemberAdded   OutboxEventType = "team_member_added"
)

func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains([]OutboxAggregateType{AggregateMembership, AggregateOrganization}, a)
}

func (e OutboxEventType) IsValid() bool {
	return slices.Contains([]OutboxEventType{EventInvitationCreated, EventTeamMemberAdded}, e)
}
