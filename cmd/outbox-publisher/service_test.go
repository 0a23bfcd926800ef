package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/storefront-backend/pkg/db/types"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

func invitationEvent(t *testing.T, attempts int) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventInvitationCreated,
		AggregateType: enums.AggregateMembership,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, uuid.NewString()),
		AttemptCount:  attempts,
	}
}

func teamResolved() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "team-topic",
			AggregateType: enums.AggregateMembership,
		},
		Envelope: outbox.PayloadEnvelope{OccurredAt: time.Now()},
		Payload:  &payloads.InvitationCreatedEvent{},
	}
}

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{invitationEvent(t, 0), invitationEvent(t, 0)}}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{},
		},
	}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: teamResolved()}, nil, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(repo.failed); got != 1 {
		t.Fatalf("unexpected number of failed rows: %d", got)
	}
	if got := len(repo.published); got != 1 {
		t.Fatalf("unexpected number of published rows: %d", got)
	}
	if repo.failed[0] != repo.events[0].ID {
		t.Fatalf("failed row recorded wrong ID")
	}
	if repo.published[0] != repo.events[1].ID {
		t.Fatalf("published row recorded wrong ID")
	}
}

func TestPublishAttachesAttributes(t *testing.T) {
	event := invitationEvent(t, 0)
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: teamResolved()}, nil, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.messages))
	}
	msg := pub.messages[0]
	if msg.Attributes["event_type"] != string(enums.EventInvitationCreated) {
		t.Fatalf("unexpected event_type attribute %q", msg.Attributes["event_type"])
	}
	if msg.Attributes["aggregate_id"] != event.AggregateID.String() {
		t.Fatalf("unexpected aggregate_id attribute %q", msg.Attributes["aggregate_id"])
	}
	if string(msg.Data) != string(event.Payload) {
		t.Fatalf("message data should be the stored envelope")
	}
}

func TestServiceProcessBatchMarksTerminalOnNonRetryable(t *testing.T) {
	event := invitationEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	service := newTestService(t, repo, &fakePublisher{}, reg, nil, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("expected terminal row %s, got %v", event.ID, repo.terminal)
	}
	if len(repo.published) != 0 || len(repo.failed) != 0 {
		t.Fatalf("terminal row must not be marked published or failed")
	}
}

func TestServiceProcessBatchMarksTerminalOnMaxAttempts(t *testing.T) {
	event := invitationEvent(t, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: teamResolved()}, nil, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("expected terminal row after max attempts, got %v", repo.terminal)
	}
}

func TestServiceSkipsAlreadyDeliveredEvents(t *testing.T) {
	event := invitationEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{}
	guard := &fakeGuard{delivered: map[uuid.UUID]bool{event.ID: true}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: teamResolved()}, guard, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(pub.messages) != 0 {
		t.Fatalf("duplicate must not be republished")
	}
	if len(repo.published) != 1 {
		t.Fatalf("duplicate should still be marked published")
	}
}

func TestServiceReleasesClaimOnPublishFailure(t *testing.T) {
	event := invitationEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}}}
	guard := &fakeGuard{delivered: map[uuid.UUID]bool{}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: teamResolved()}, guard, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if guard.delivered[event.ID] {
		t.Fatalf("claim should be released after a failed publish")
	}
	if len(guard.released) != 1 {
		t.Fatalf("expected one release, got %d", len(guard.released))
	}
}

func TestPublishTagsOrganization(t *testing.T) {
	event := invitationEvent(t, 0)
	resolved := teamResolved()
	resolved.Envelope.Version = 1
	resolved.Envelope.Actor = &outbox.ActorRef{MembershipID: uuid.New(), OrganizationID: "org-9"}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, &fakeRepo{events: []models.OutboxEvent{event}}, pub, &fakeRegistry{resolved: resolved}, nil, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	attrs := pub.messages[0].Attributes
	if attrs["organization_id"] != "org-9" {
		t.Fatalf("unexpected organization_id attribute %q", attrs["organization_id"])
	}
	if attrs["schema_version"] != "1" {
		t.Fatalf("unexpected schema_version attribute %q", attrs["schema_version"])
	}
}

func TestProcessBatchRecordsOutcomes(t *testing.T) {
	events := []models.OutboxEvent{invitationEvent(t, 0), invitationEvent(t, 0)}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{},
		fakePublishResult{err: errors.New("transient")},
	}}
	service := newTestService(t, &fakeRepo{events: events}, pub, &fakeRegistry{resolved: teamResolved()}, nil, nil)
	reg := prometheus.NewRegistry()
	service.metrics = metrics.NewOutboxMetrics(reg)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}

	expected := `
# HELP storefront_outbox_deliveries_total Outbox rows handled by the publisher, by outcome and event type.
# TYPE storefront_outbox_deliveries_total counter
storefront_outbox_deliveries_total{event_type="invitation_created",outcome="published"} 1
storefront_outbox_deliveries_total{event_type="invitation_created",outcome="retry"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "storefront_outbox_deliveries_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestProcessBatchReportsEmpty(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{resolved: teamResolved()}, nil, nil)
	claimed, err := service.processBatch(context.Background())
	if err != nil || claimed {
		t.Fatalf("expected empty batch, got claimed=%v err=%v", claimed, err)
	}
}

func TestPacerBacksOffAndResets(t *testing.T) {
	p := newPacer(time.Second)
	if got := p.failure(); got < 2*time.Second || got >= 2*time.Second+jitterWindow {
		t.Fatalf("first failure wait out of range: %v", got)
	}
	if got := p.failure(); got < 4*time.Second {
		t.Fatalf("second failure should double: %v", got)
	}
	if got := p.idle(); got >= time.Second+jitterWindow {
		t.Fatalf("idle wait should drop back to the poll interval: %v", got)
	}
	if p.current != time.Second {
		t.Fatalf("idle should reset backoff, got %v", p.current)
	}
}

func TestNextBackoffCaps(t *testing.T) {
	if got := nextBackoff(0, time.Second, 10*time.Second); got != 2*time.Second {
		t.Fatalf("unexpected backoff %v", got)
	}
	if got := nextBackoff(8*time.Second, time.Second, 10*time.Second); got != 10*time.Second {
		t.Fatalf("expected cap, got %v", got)
	}
	if got := withJitter(time.Second); got < time.Second || got >= time.Second+jitterWindow {
		t.Fatalf("jitter out of range: %v", got)
	}
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, reg registryResolver, guard deliveryGuard, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	cfg := &config.Config{Outbox: outboxCfg}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	params := ServiceParams{
		Config:           cfg,
		Logger:           logg,
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         reg,
		PublisherFactory: func(_ string) publisher { return pub },
	}
	if guard != nil {
		params.Guard = guard
	}
	service, err := NewService(params)
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func mustEnvelopePayload(tb testing.TB, eventID string) dbtypes.JSON {
	tb.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return dbtypes.JSON(payload)
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID, _ time.Time) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, _ time.Time) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error {
	return nil
}

func (f *fakePubSubClient) Publisher(name string) *gcppubsub.Publisher {
	return nil
}

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, f.err
}

type fakeGuard struct {
	delivered map[uuid.UUID]bool
	released  []uuid.UUID
}

func (f *fakeGuard) Claim(_ context.Context, _ string, eventID uuid.UUID) (bool, error) {
	if f.delivered[eventID] {
		return true, nil
	}
	f.delivered[eventID] = true
	return false, nil
}

func (f *fakeGuard) Release(_ context.Context, _ string, eventID uuid.UUID) error {
	delete(f.delivered, eventID)
	f.released = append(f.released, eventID)
	return nil
}
