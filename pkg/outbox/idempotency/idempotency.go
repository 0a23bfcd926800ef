// Package idempotency guards outbox deliveries against double publishing when a
// publisher crashes between sending an event and recording it as published.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// Manager claims event ids per delivery channel. A claim is a Redis key
// `sf:idempotency:evt:delivered:<channel>:<event_id>` holding the owner token
// of the publisher that set it, so Release never drops another publisher's claim.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	owner string
}

// NewManager builds a guard whose claims expire after ttl. An empty owner gets
// a random token.
func NewManager(store redis.IdempotencyStore, ttl time.Duration, owner string) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl <= 0:
		return nil, errors.New("claim ttl must be positive")
	}
	if owner == "" {
		owner = uuid.NewString()
	}
	return &Manager{store: store, ttl: ttl, owner: owner}, nil
}

// Claim reports whether the event was already delivered on channel and
// otherwise records this manager as its deliverer.
func (m *Manager) Claim(ctx context.Context, channel string, eventID uuid.UUID) (alreadyDelivered bool, err error) {
	key, err := m.key(channel, eventID)
	if err != nil {
		return false, err
	}
	acquired, err := m.store.SetNX(ctx, key, m.owner, m.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return !acquired, nil
}

// Release drops this manager's claim so a failed delivery can be retried.
func (m *Manager) Release(ctx context.Context, channel string, eventID uuid.UUID) error {
	key, err := m.key(channel, eventID)
	if err != nil {
		return err
	}
	if _, err := m.store.CompareAndDelete(ctx, key, m.owner); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

func (m *Manager) key(channel string, eventID uuid.UUID) (string, error) {
	if channel == "" {
		return "", errors.New("channel name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:delivered:"+channel, eventID.String()), nil
}
