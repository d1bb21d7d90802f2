package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 7 * 24 * time.Hour
	defaultRetentionBatch  = 500
)

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxRetentionRepo
	Retention  time.Duration
	// BatchSize bounds each DELETE so the table is never locked for long.
	BatchSize int
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: positive(params.Retention, defaultOutboxRetention),
		batch:     params.BatchSize,
		now:       time.Now,
	}
	if job.batch <= 0 {
		job.batch = defaultRetentionBatch
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	repo      outboxRetentionRepo
	retention time.Duration
	batch     int
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox_retention" }

// Run deletes published rows older than the retention window in batches
// until a short batch comes back. Pending rows are never touched.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var total int64
	batches := 0
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("outbox retention stopped after %d rows: %w", total, err)
		}
		deleted, err := j.repo.DeletePublishedBefore(ctx, cutoff, j.batch)
		if err != nil {
			return fmt.Errorf("outbox retention: %w", err)
		}
		total += deleted
		batches++
		if deleted < int64(j.batch) {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": total,
		"batches":      batches,
	})
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return nil
}
