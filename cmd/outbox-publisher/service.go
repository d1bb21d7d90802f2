package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsreserve-backend/pkg/config"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
	"github.com/angelmondragon/partsreserve-backend/pkg/metrics"
	"github.com/angelmondragon/partsreserve-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

// Subscribers route on these attributes without decoding the payload.
var aggregateAttribute = map[enums.OutboxAggregateType]string{
	enums.AggregateTransferRequest: "request_id",
	enums.AggregateReservation:     "reservation_id",
	enums.AggregateStock:           "stock_id",
}

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
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxMetrics
}

// Service relays committed engine events from outbox_events to Pub/Sub.
// Each row ends a batch either published, scheduled for retry, or parked in
// the DLQ; the row updates commit with the batch transaction.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	pubsub           pubSubClient
	registry         registryResolver
	dlq              dlqRepository
	metrics          *metrics.OutboxMetrics
	publisherFactory publisherFactory
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
	publishTimeout   time.Duration
	now              func() time.Time

	mu         sync.Mutex
	publishers map[string]publisher
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			return newOrderedPublisher(params.PubSub.Publisher(topic))
		}
	}

	cfg := params.Config.Outbox
	return &Service{
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		pubsub:           params.PubSub,
		registry:         params.Registry,
		dlq:              params.DLQRepository,
		metrics:          params.Metrics,
		publisherFactory: factory,
		batchSize:        positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts:      positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		pollInterval:     durationOr(time.Duration(cfg.PollIntervalMS)*time.Millisecond, defaultPollInterval),
		publishTimeout:   durationOr(cfg.PublishTimeout, defaultPublishTimeout),
		now:              time.Now,
		publishers:       map[string]publisher{},
	}, nil
}

// Ping checks the database and Pub/Sub, reporting both failures.
func (s *Service) Ping(ctx context.Context) error {
	var errs error
	if err := s.db.Ping(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("database ping failed: %w", err))
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("pubsub ping failed: %w", err))
	}
	return errs
}

// Run polls the outbox until ctx is cancelled. A failed batch backs off
// exponentially; a full batch polls again immediately.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Ping(ctx); err != nil {
		s.logg.Error(ctx, "outbox dependencies unavailable", err)
		return err
	}
	defer s.stopPublishers()

	wait := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox relay context canceled")
			return err
		}

		processed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox relay batch error", err)
			wait = nextBackoff(wait, s.pollInterval, maxBackoff)
		case processed:
			wait = s.pollInterval
			continue
		default:
			wait = s.pollInterval
		}
		if err := sleep(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
}

type batchTally struct {
	published    int
	retried      int
	deadLettered int
	failures     error
}

func (t *batchTally) fields(size int) map[string]any {
	fields := map[string]any{
		"batch_size":    size,
		"published":     t.published,
		"retried":       t.retried,
		"dead_lettered": t.deadLettered,
	}
	if t.failures != nil {
		fields["errors"] = t.failures.Error()
	}
	return fields
}

// processBatch reports whether any rows were fetched. Only bookkeeping
// failures abort the batch; publish failures are recorded on their rows.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		if len(events) == 0 {
			return nil
		}
		processed = true

		var tally batchTally
		defer func() {
			s.logg.Debug(s.logg.WithFields(ctx, tally.fields(len(events))), "outbox batch finished")
		}()
		for _, event := range events {
			if err := s.deliver(ctx, tx, event, &tally); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

// deliver publishes one row and records its outcome inside tx.
func (s *Service) deliver(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, tally *batchTally) error {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		tally.failures = multierr.Append(tally.failures, fmt.Errorf("%s: %w", event.ID, err))
		return s.deadLetter(ctx, tx, event, "", enums.OutboxDLQReasonNonRetryable, err, tally)
	}
	topic := resolved.Descriptor.Topic

	pubErr := s.publish(ctx, event, resolved)
	if pubErr == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		tally.published++
		s.metrics.ObserveDelivery(topic, metrics.DeliveryPublished, s.now().Sub(event.CreatedAt))
		s.logg.Info(s.eventContext(ctx, event, topic), "outbox event published")
		return nil
	}

	tally.failures = multierr.Append(tally.failures, fmt.Errorf("%s: %w", event.ID, pubErr))
	var nonRetry registry.NonRetryableError
	if errors.As(pubErr, &nonRetry) {
		return s.deadLetter(ctx, tx, event, topic, enums.OutboxDLQReasonNonRetryable, pubErr, tally)
	}
	if event.LastAttempt(s.maxAttempts) {
		return s.deadLetter(ctx, tx, event, topic, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("max publish attempts reached: %w", pubErr), tally)
	}

	if err := s.repo.MarkFailedTx(tx, event.ID, pubErr); err != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	tally.retried++
	s.metrics.ObserveDelivery(topic, metrics.DeliveryRetry, 0)
	retryCtx := s.logg.WithFields(s.eventContext(ctx, event, topic), map[string]any{
		"attempt_count": event.AttemptCount + 1,
		"error":         pubErr.Error(),
	})
	s.logg.Warn(retryCtx, "outbox publish failed; will retry")
	return nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, topic string, reason enums.OutboxDLQErrorReason, cause error, tally *batchTally) error {
	entry := event.DeadLetter(reason, cause, s.now().UTC())
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	tally.deadLettered++
	s.metrics.ObserveDelivery(topic, metrics.DeliveryDeadLettered, 0)
	dlqCtx := s.logg.WithFields(s.eventContext(ctx, event, topic), map[string]any{
		"error_reason": reason,
		"error":        cause.Error(),
	})
	s.logg.Warn(dlqCtx, "outbox event moved to dlq")
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFor(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, buildMessage(event, resolved))
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

// buildMessage orders messages per aggregate so a reservation's transitions
// reach subscribers in commit order.
func buildMessage(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"schema_version": fmt.Sprint(resolved.Envelope.Version),
		"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if key, ok := aggregateAttribute[event.AggregateType]; ok {
		attrs[key] = event.AggregateID.String()
	}
	if actor := resolved.Envelope.Actor; actor != nil && actor.UserID != uuid.Nil {
		attrs["actor_user_id"] = actor.UserID.String()
	}
	return &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: event.AggregateID.String(),
		Attributes:  attrs,
	}
}

func (s *Service) eventContext(ctx context.Context, event models.OutboxEvent, topic string) context.Context {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
	}
	if topic != "" {
		fields["topic"] = topic
	}
	return s.logg.WithFields(ctx, fields)
}

// publisherFor caches one publisher per topic; each publisher owns a
// background bundler.
func (s *Service) publisherFor(topic string) publisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pub, ok := s.publishers[topic]; ok {
		return pub
	}
	pub := s.publisherFactory(topic)
	if pub != nil {
		s.publishers[topic] = pub
	}
	return pub
}

func (s *Service) stopPublishers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, pub := range s.publishers {
		pub.Stop()
		delete(s.publishers, topic)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
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
	return min(current*2, max)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

func newOrderedPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	p.EnableMessageOrdering = true
	return &orderedPublisher{Publisher: p}
}

type orderedPublisher struct {
	*gcppubsub.Publisher
}

func (p *orderedPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return &orderedResult{
		PublishResult: p.Publisher.Publish(ctx, msg),
		publisher:     p.Publisher,
		orderingKey:   msg.OrderingKey,
	}
}

type orderedResult struct {
	*gcppubsub.PublishResult
	publisher   *gcppubsub.Publisher
	orderingKey string
}

// Get waits for the broker ack. A failed ordered publish pauses its key, so
// the key is resumed before the row is retried.
func (r *orderedResult) Get(ctx context.Context) (string, error) {
	id, err := r.PublishResult.Get(ctx)
	if err != nil && r.orderingKey != "" {
		r.publisher.ResumePublish(r.orderingKey)
	}
	return id, err
}
