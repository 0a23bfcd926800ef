package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// Decoder turns the data section of an envelope into a typed payload.
type Decoder func(data json.RawMessage) (any, error)

type schemaKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry holds one decoder per (event type, schema version). The
// publisher uses it to reject rows its subscribers could not read, and
// subscribers of the team topic can share it.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[schemaKey]Decoder
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: make(map[schemaKey]Decoder)}
}

// NewTeamDecoderRegistry knows schema v1 of every team event.
func NewTeamDecoderRegistry() *DecoderRegistry {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventInvitationCreated, 1, into[payloads.InvitationCreatedEvent])
	reg.Register(enums.EventTeamMemberAdded, 1, into[payloads.TeamMemberAddedEvent])
	return reg
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decode Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[schemaKey{eventType, version}] = decode
}

// Supports reports whether any version of the event type is registered.
func (r *DecoderRegistry) Supports(eventType enums.OutboxEventType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for key := range r.decoders {
		if key.eventType == eventType {
			return true
		}
	}
	return false
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	r.mu.RLock()
	decode, ok := r.decoders[schemaKey{eventType, version}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no decoder for %s@v%d", eventType, version)
	}
	return decode(data)
}

func into[T any](data json.RawMessage) (any, error) {
	target := new(T)
	if err := json.Unmarshal(data, target); err != nil {
		return nil, err
	}
	return target, nil
}
