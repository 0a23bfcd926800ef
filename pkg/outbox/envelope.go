package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ActorRef identifies the membership that caused the event.
type ActorRef struct {
	MembershipID   uuid.UUID `json:"membershipId"`
	OrganizationID string    `json:"organizationId,omitempty"`
	Role           string    `json:"role,omitempty"`
}

// PayloadEnvelope is stored in outbox_events.payload and published verbatim.
// EventType repeats the column so subscribers can route on the body alone.
type PayloadEnvelope struct {
	Version    int                   `json:"version"`
	EventID    string                `json:"eventId"`
	EventType  enums.OutboxEventType `json:"eventType"`
	OccurredAt time.Time             `json:"occurredAt"`
	Actor      *ActorRef             `json:"actor,omitempty"`
	Data       json.RawMessage       `json:"data"`
}
