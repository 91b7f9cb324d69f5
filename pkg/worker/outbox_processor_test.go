package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/messaging"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

type fakeOutbox struct {
	mu        sync.Mutex
	pending   []*model.OutboxEvent
	processed []uuid.UUID
	retried   map[uuid.UUID]time.Time
	failed    []uuid.UUID
	deleted   time.Time
}

func newFakeOutbox(events ...*model.OutboxEvent) *fakeOutbox {
	return &fakeOutbox{pending: events, retried: make(map[uuid.UUID]time.Time)}
}

func (f *fakeOutbox) ClaimPending(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.pending) {
		limit = len(f.pending)
	}
	claimed := f.pending[:limit]
	f.pending = f.pending[limit:]
	return claimed, nil
}

func (f *fakeOutbox) MarkProcessed(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, id)
	return nil
}

func (f *fakeOutbox) MarkRetry(_ context.Context, id uuid.UUID, _ string, retryAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retried[id] = retryAt
	return nil
}

func (f *fakeOutbox) MarkFailed(_ context.Context, id uuid.UUID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeOutbox) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	f.deleted = before
	return 3, nil
}

type fakeBroker struct {
	mu        sync.Mutex
	failures  int
	err       error
	calls     int
	published []messaging.Message
	channels  []string
}

func (b *fakeBroker) Publish(_ context.Context, channel string, message interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.failures > 0 {
		b.failures--
		if b.err != nil {
			return b.err
		}
		return errors.New("redis unavailable")
	}
	b.published = append(b.published, message.(messaging.Message))
	b.channels = append(b.channels, channel)
	return nil
}

func (b *fakeBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *fakeBroker) Close() error { return nil }

func testConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
		MaxRetries:    3,
		Channel:       "appointments",
	}
}

func bookedEvent(t *testing.T) *model.OutboxEvent {
	t.Helper()
	evt, err := model.NewAppointmentEvent(model.EventAppointmentBooked, &model.Appointment{ID: uuid.New(), DoctorID: 7}, "p@example.com")
	require.NoError(t, err)
	return evt
}

func newProcessor(t *testing.T, repo *fakeOutbox, broker *fakeBroker) *OutboxProcessor {
	t.Helper()
	p, err := NewOutboxProcessor(repo, broker, testConfig(), logger.NewNop(), metrics.NewNop())
	require.NoError(t, err)
	return p
}

func TestProcessBatchPublishesAndMarksProcessed(t *testing.T) {
	evt := bookedEvent(t)
	repo := newFakeOutbox(evt)
	broker := &fakeBroker{}

	n, err := newProcessor(t, repo, broker).ProcessBatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uuid.UUID{evt.ID}, repo.processed)
	require.Len(t, broker.published, 1)
	assert.Equal(t, "appointments", broker.channels[0])
	assert.Equal(t, model.EventAppointmentBooked, broker.published[0].Type)
	assert.Equal(t, evt.ID.String(), broker.published[0].ID)

	var payload model.AppointmentEvent
	require.NoError(t, json.Unmarshal(broker.published[0].Payload, &payload))
	assert.Equal(t, int64(7), payload.Appointment.DoctorID)
}

func TestProcessBatchRetriesWithinPoll(t *testing.T) {
	repo := newFakeOutbox(bookedEvent(t))
	broker := &fakeBroker{failures: 1}

	n, err := newProcessor(t, repo, broker).ProcessBatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, broker.calls)
	assert.Len(t, repo.processed, 1)
}

func TestProcessBatchSchedulesRetry(t *testing.T) {
	evt := bookedEvent(t)
	evt.RetryCount = 1
	repo := newFakeOutbox(evt)
	broker := &fakeBroker{failures: 10}
	p := newProcessor(t, repo, broker)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	n, err := p.ProcessBatch(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, repo.processed)
	// second failure doubles the base delay
	assert.Equal(t, now.Add(2*time.Millisecond), repo.retried[evt.ID])
}

func TestProcessBatchRetriesWhenNobodyListens(t *testing.T) {
	evt := bookedEvent(t)
	repo := newFakeOutbox(evt)
	broker := &fakeBroker{failures: 10, err: messaging.ErrNoSubscribers}

	n, err := newProcessor(t, repo, broker).ProcessBatch(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, repo.processed)
	assert.Contains(t, repo.retried, evt.ID)
	assert.Empty(t, broker.published)
}

func TestProcessBatchGivesUpAfterMaxRetries(t *testing.T) {
	evt := bookedEvent(t)
	evt.RetryCount = 2
	repo := newFakeOutbox(evt)
	broker := &fakeBroker{failures: 10}

	_, err := newProcessor(t, repo, broker).ProcessBatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{evt.ID}, repo.failed)
	assert.Empty(t, repo.retried)
}

func TestNewOutboxProcessorValidatesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Channel = ""
	_, err := NewOutboxProcessor(newFakeOutbox(), &fakeBroker{}, cfg, logger.NewNop(), metrics.NewNop())
	assert.Error(t, err)

	cfg = testConfig()
	cfg.BatchSize = 0
	_, err = NewOutboxProcessor(newFakeOutbox(), &fakeBroker{}, cfg, logger.NewNop(), metrics.NewNop())
	assert.Error(t, err)
}

func TestOutboxCleanup(t *testing.T) {
	repo := newFakeOutbox()
	w := NewOutboxCleanupWorker(repo, 7, time.Hour, logger.NewNop())

	require.NoError(t, w.cleanup(context.Background()))
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -7), repo.deleted, time.Minute)
}
