package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/pkg/config"
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
	"github.com/angelmondragon/relivv-escrow/pkg/metrics"
	"github.com/angelmondragon/relivv-escrow/pkg/outbox"
	"github.com/angelmondragon/relivv-escrow/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 10 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond

	resultPublished  = "published"
	resultRetry      = "retry"
	resultDeadLetter = "dead_letter"
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	Stop()
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxMetrics
	PublisherFactory publisherFactory
	Now              func() time.Time
}

// Service drains outbox_events to Pub/Sub. Each batch runs in one database
// transaction holding row locks, so parallel publishers never double send.
type Service struct {
	logg     *logger.Logger
	db       dbClient
	repo     outboxRepository
	pubsub   pubSubClient
	registry registryResolver
	dlq      dlqRepository
	metrics  *metrics.OutboxMetrics
	now      func() time.Time

	newPublisher publisherFactory
	mu           sync.Mutex
	publishers   map[string]publisher

	batchSize      int
	maxAttempts    int
	pollInterval   time.Duration
	publishTimeout time.Duration
	ordered        bool
	jitter         *rand.Rand
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Config == nil:
		return nil, errors.New("config is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case p.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	case p.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	factory := p.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			return newGCPPublisher(p.PubSub.Publisher(topic))
		}
	}

	s := &Service{
		logg:           p.Logger,
		db:             p.DB,
		repo:           p.Repository,
		pubsub:         p.PubSub,
		registry:       p.Registry,
		dlq:            p.DLQRepository,
		metrics:        p.Metrics,
		now:            p.Now,
		newPublisher:   factory,
		publishers:     map[string]publisher{},
		batchSize:      p.Config.Outbox.BatchSize,
		maxAttempts:    p.Config.Outbox.MaxAttempts,
		pollInterval:   time.Duration(p.Config.Outbox.PollIntervalMS) * time.Millisecond,
		publishTimeout: p.Config.Eventing.PublishTimeout,
		ordered:        p.Config.PubSub.OrderByAggregate,
		jitter:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	if s.publishTimeout <= 0 {
		s.publishTimeout = defaultPublishTimeout
	}
	return s, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": s.db.Ping,
		"pubsub":   s.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	return nil
}

// Run polls until ctx is cancelled. Empty batches sleep for the poll
// interval; failing batches back off exponentially.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	backoff := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		processed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxBackoff)
			if err := s.sleep(ctx, s.withJitter(backoff)); err != nil {
				return err
			}
		case processed:
			backoff = s.pollInterval
		default:
			backoff = s.pollInterval
			if err := s.sleep(ctx, s.withJitter(s.pollInterval)); err != nil {
				return err
			}
		}
	}
}

// Close flushes and stops every topic publisher opened so far.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pub := range s.publishers {
		pub.Stop()
	}
	s.publishers = map[string]publisher{}
}

func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		processed = len(events) > 0
		for _, event := range events {
			if err := s.dispatch(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

// dispatch publishes one row and records the outcome on it. Only bookkeeping
// failures are returned; publish failures are absorbed into the row.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, s.eventFields(event, nil))
	}

	fields := s.eventFields(event, resolved)
	err = s.publish(ctx, event, resolved)
	if err == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.ObservePublish(string(event.EventType), resultPublished)
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")
		return nil
	}

	if registry.IsNonRetryable(err) {
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
	}

	attempt := event.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= s.maxAttempts {
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("max publish attempts reached: %w", err), fields)
	}

	s.metrics.ObservePublish(string(event.EventType), resultRetry)
	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", err.Error()), "outbox publish failed, will retry")
	if err := s.repo.MarkFailedTx(tx, event.ID, err); err != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", cause.Error()), "outbox event dead-lettered")

	entry := event.DeadLetter(reason, cause, s.now())
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.ObservePublish(string(event.EventType), resultDeadLetter)
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFor(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	msg := &gcppubsub.Message{
		Data:       event.Payload,
		Attributes: messageAttributes(event, resolved.Envelope),
	}
	if s.ordered {
		msg.OrderingKey = event.AggregateID.String()
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned no result for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func (s *Service) publisherFor(topic string) publisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pub, ok := s.publishers[topic]; ok {
		return pub
	}
	pub := s.newPublisher(topic)
	if pub != nil {
		s.publishers[topic] = pub
	}
	return pub
}

// messageAttributes lets subscribers filter without decoding the payload.
func messageAttributes(event models.OutboxEvent, envelope outbox.PayloadEnvelope) map[string]string {
	attrs := map[string]string{
		"event_id":       envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"schema_version": fmt.Sprintf("%d", envelope.Version),
		"occurred_at":    envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if event.AggregateType == enums.AggregateTransaction {
		attrs["transaction_id"] = event.AggregateID.String()
	}
	return attrs
}

func (s *Service) eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if resolved != nil {
		fields["topic"] = resolved.Descriptor.Topic
		fields["event_id"] = resolved.Envelope.EventID
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	if next := current * 2; next < max {
		return next
	}
	return max
}

func (s *Service) withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return d + time.Duration(s.jitter.Int63n(int64(jitterWindow)))
}

type gcpPublisher struct {
	pub *gcppubsub.Publisher
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{pub: p}
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	res := p.pub.Publish(ctx, msg)
	if msg.OrderingKey == "" {
		return res
	}
	return resumingResult{PublishResult: res, pub: p.pub, key: msg.OrderingKey}
}

// resumingResult unpauses an ordering key after a failed publish so the retry
// on the next poll is not rejected outright.
type resumingResult struct {
	*gcppubsub.PublishResult
	pub *gcppubsub.Publisher
	key string
}

func (r resumingResult) Get(ctx context.Context) (string, error) {
	id, err := r.PublishResult.Get(ctx)
	if err != nil {
		r.pub.ResumePublish(r.key)
	}
	return id, err
}

func (p *gcpPublisher) Stop() {
	p.pub.Stop()
}
