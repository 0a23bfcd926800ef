package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

// delivery is the decision reached for one outbox row.
type delivery struct {
	outcome string
	reason  string
	err     error
	topic   string
	fields  map[string]any
}

// processBatch claims one batch and settles every row in it. It reports
// whether any rows were claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		claimed = true
		s.metrics.ObserveBatch(len(events))

		for _, event := range events {
			if err := s.settle(ctx, tx, event, s.deliver(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (s *Service) deliver(ctx context.Context, event models.OutboxEvent) delivery {
	fields := rowFields(event)
	fields["batch_size"] = s.batchSize

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return delivery{outcome: metrics.DeliveryTerminal, reason: "non_retryable", err: err, fields: fields}
	}
	topic := resolved.Descriptor.Topic
	fields["topic"] = topic
	if resolved.Envelope.EventID != "" {
		fields["event_id"] = resolved.Envelope.EventID
		fields["occurred_at"] = resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
	}

	duplicate, err := s.publish(ctx, event, resolved)
	switch {
	case err == nil && duplicate:
		return delivery{outcome: metrics.DeliveryDuplicate, topic: topic, fields: fields}
	case err == nil:
		return delivery{outcome: metrics.DeliveryPublished, topic: topic, fields: fields}
	}

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return delivery{outcome: metrics.DeliveryTerminal, reason: "non_retryable", err: err, topic: topic, fields: fields}
	}

	attempt := event.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= s.maxAttempts {
		return delivery{
			outcome: metrics.DeliveryTerminal,
			reason:  "max_attempts",
			err:     fmt.Errorf("max publish attempts reached: %w", err),
			topic:   topic,
			fields:  fields,
		}
	}
	return delivery{outcome: metrics.DeliveryRetry, err: err, topic: topic, fields: fields}
}

// settle writes the row's outcome inside the batch transaction.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, d delivery) error {
	s.metrics.ObserveDelivery(d.outcome, string(event.EventType))
	logCtx := s.logg.WithFields(ctx, d.fields)

	switch d.outcome {
	case metrics.DeliveryPublished, metrics.DeliveryDuplicate:
		if err := s.repo.MarkPublishedTx(tx, event.ID, s.now()); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		if d.outcome == metrics.DeliveryDuplicate {
			s.logg.Info(logCtx, "outbox event already delivered, skipping publish")
			return nil
		}
		s.logg.Info(logCtx, "outbox event published")
	case metrics.DeliveryRetry:
		s.logg.Warn(s.logg.WithField(logCtx, "error", d.err.Error()), "outbox publish failed")
		if err := s.repo.MarkFailedTx(tx, event.ID, d.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
	default:
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"terminal_reason": d.reason,
			"error":           d.err.Error(),
		})
		s.logg.Warn(logCtx, "outbox event will not be retried")
		if err := s.repo.MarkTerminalTx(tx, event.ID, d.err, s.now()); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
	}
	return nil
}

// publish sends the stored envelope to the resolved topic. It reports true
// when the delivery guard shows the event already reached that topic.
func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) (bool, error) {
	topic := resolved.Descriptor.Topic
	pub := s.publishers(topic)
	if pub == nil {
		return false, registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	claim := s.claim(ctx, topic, resolved.Envelope.EventID)
	if claim.duplicate {
		return true, nil
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, message(event, resolved))
	if result == nil {
		return false, registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		if claim.owned {
			if relErr := s.guard.Release(ctx, topic, claim.eventID); relErr != nil {
				s.logg.Error(ctx, "release delivery claim", relErr)
			}
		}
		return false, err
	}
	return false, nil
}

type deliveryClaim struct {
	eventID   uuid.UUID
	owned     bool
	duplicate bool
}

// claim asks the guard for exclusive delivery of the event. A missing or
// failing guard never blocks publishing.
func (s *Service) claim(ctx context.Context, topic, rawEventID string) deliveryClaim {
	if s.guard == nil {
		return deliveryClaim{}
	}
	eventID, err := uuid.Parse(rawEventID)
	if err != nil {
		return deliveryClaim{}
	}
	already, err := s.guard.Claim(ctx, topic, eventID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "delivery guard unavailable")
		return deliveryClaim{}
	}
	return deliveryClaim{eventID: eventID, owned: !already, duplicate: already}
}

func message(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"schema_version": strconv.Itoa(resolved.Envelope.Version),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
	}
	if actor := resolved.Envelope.Actor; actor != nil && actor.OrganizationID != "" {
		attrs["organization_id"] = actor.OrganizationID
	}
	return &gcppubsub.Message{Data: []byte(event.Payload), Attributes: attrs}
}

func rowFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
