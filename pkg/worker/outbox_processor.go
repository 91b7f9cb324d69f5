package worker

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/messaging"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// RetryAttempts is the number of publish attempts within one poll.
	RetryAttempts int
	RetryDelay    time.Duration
	// MaxRetries is the number of polls an event may fail before it is
	// marked failed for good.
	MaxRetries int
	Channel    string
}

// OutboxProcessor relays committed outbox rows to the message broker.
// Delivery is at least once: an event may be published again if marking
// it processed fails.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		return nil, fmt.Errorf("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		return nil, fmt.Errorf("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		return nil, fmt.Errorf("RetryDelay must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		return nil, fmt.Errorf("MaxRetries must be greater than 0")
	}
	if config.Channel == "" {
		return nil, fmt.Errorf("Channel must not be empty")
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor", "channel", p.config.Channel)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch claims and relays one batch, returning how many events
// were published.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.ClaimPending(ctx, p.config.BatchSize)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("claim_pending_events", "error").Inc()
		return 0, fmt.Errorf("failed to claim pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("claim_pending_events", "success").Inc()

	published := 0
	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error(err, "Failed to process event",
				"event_id", event.ID.String(),
				"event_type", event.EventType)
			continue
		}
		published++
	}

	return published, nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	msg := messaging.Message{
		ID:      event.ID.String(),
		Type:    event.EventType,
		Payload: event.Payload,
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.config.RetryDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.config.RetryAttempts-1)), ctx)

	err := backoff.RetryNotify(func() error {
		return p.broker.Publish(ctx, p.config.Channel, msg)
	}, policy, func(err error, wait time.Duration) {
		p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
	})

	if err != nil {
		return p.handleFailure(ctx, event, err)
	}

	p.metrics.OutboxEventsProcessed.Inc()
	if err := p.repo.MarkProcessed(ctx, event.ID); err != nil {
		p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
		return err
	}
	return nil
}

// handleFailure schedules the event for a later poll with exponential
// delay, or gives up once MaxRetries polls have failed.
func (p *OutboxProcessor) handleFailure(ctx context.Context, event *model.OutboxEvent, cause error) error {
	errStr := cause.Error()

	if event.RetryCount+1 >= p.config.MaxRetries {
		p.metrics.OutboxEventsFailed.Inc()
		if err := p.repo.MarkFailed(ctx, event.ID, errStr); err != nil {
			p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
		}
		return fmt.Errorf("giving up after %d attempts: %w", event.RetryCount+1, cause)
	}

	delay := time.Duration(float64(p.config.RetryDelay) * math.Pow(2, float64(event.RetryCount)))
	if err := p.repo.MarkRetry(ctx, event.ID, errStr, p.now().Add(delay)); err != nil {
		p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
	}
	return cause
}
