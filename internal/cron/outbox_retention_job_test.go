package cron

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/partsreserve-backend/pkg/db/dbtest"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
	"github.com/angelmondragon/partsreserve-backend/pkg/outbox"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestOutboxRetentionJobUsesCutoff(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{}
	job := newOutboxRetentionJob(t, repo, 48*time.Hour)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, repo.called)
	assert.True(t, repo.lastCutoff.Equal(now.Add(-48*time.Hour)))
}

func TestOutboxRetentionJobDeletesInBatches(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{batches: []int64{3, 3, 1}}
	job := newOutboxRetentionJob(t, repo, time.Hour)
	job.batch = 3

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 3, repo.called)
	assert.Equal(t, 3, repo.lastLimit)
}

func TestOutboxRetentionJobStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := &fakeOutboxRetentionRepo{}
	job := newOutboxRetentionJob(t, repo, time.Hour)

	require.ErrorIs(t, job.Run(ctx), context.Canceled)
	assert.Zero(t, repo.called)
}

func TestOutboxRetentionJobDefaultsRetention(t *testing.T) {
	job := newOutboxRetentionJob(t, &fakeOutboxRetentionRepo{}, 0)
	assert.Equal(t, defaultOutboxRetention, job.retention)
	assert.Equal(t, defaultRetentionBatch, job.batch)
	assert.Equal(t, "outbox_retention", job.Name())
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	job := newOutboxRetentionJob(t, &fakeOutboxRetentionRepo{err: errors.New("boom")}, time.Hour)
	assert.Error(t, job.Run(context.Background()))
}

func TestOutboxRetentionJobKeepsUnpublishedRows(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Now().UTC()
	old := now.Add(-10 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	insert := func(publishedAt *time.Time) uuid.UUID {
		event := models.OutboxEvent{
			EventType:     enums.EventStockAdjusted,
			AggregateType: enums.AggregateStock,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			PublishedAt:   publishedAt,
		}
		require.NoError(t, conn.Create(&event).Error)
		return event.ID
	}
	stale := insert(&old)
	fresh := insert(&recent)
	pending := insert(nil)

	job := newOutboxRetentionJob(t, outbox.NewRepository(conn), 7*24*time.Hour)
	job.batch = 1
	require.NoError(t, job.Run(context.Background()))

	var remaining []uuid.UUID
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Pluck("id", &remaining).Error)
	assert.ElementsMatch(t, []uuid.UUID{fresh, pending}, remaining)
	assert.NotContains(t, remaining, stale)
}

func newOutboxRetentionJob(t *testing.T, repo outboxRetentionRepo, retention time.Duration) *outboxRetentionJob {
	t.Helper()
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		Repository: repo,
		Retention:  retention,
	})
	require.NoError(t, err)
	job, ok := jobIface.(*outboxRetentionJob)
	require.True(t, ok, "expected outboxRetentionJob, got %T", jobIface)
	return job
}

type fakeOutboxRetentionRepo struct {
	lastCutoff time.Time
	lastLimit  int
	called     int
	batches    []int64
	err        error
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	f.called++
	f.lastCutoff, f.lastLimit = cutoff, limit
	if f.err != nil {
		return 0, f.err
	}
	if len(f.batches) == 0 {
		return 0, nil
	}
	next := f.batches[0]
	f.batches = f.batches[1:]
	return next, nil
}
