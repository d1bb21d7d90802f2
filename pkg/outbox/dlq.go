package outbox

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
	"github.com/angelmondragon/partsreserve-backend/pkg/pagination"
)

const maxDLQErrorLen = 1024

type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := clip(*entry.ErrorMessage, maxDLQErrorLen)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// List pages through entries newest failure first, resuming strictly after
// the cursor when one is given.
func (r *DLQRepository) List(ctx context.Context, after *pagination.Cursor, limit int) ([]models.OutboxDLQ, error) {
	q := r.db.WithContext(ctx)
	if after != nil {
		q = q.Where("(failed_at < ?) OR (failed_at = ? AND id < ?)", after.CreatedAt, after.CreatedAt, after.ID)
	}
	var rows []models.OutboxDLQ
	err := q.Order("failed_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// FindByEventIDTx returns nil when the event was never dead-lettered.
func (r *DLQRepository) FindByEventIDTx(tx *gorm.DB, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var rows []models.OutboxDLQ
	if err := tx.Where("event_id = ?", eventID).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *DLQRepository) DeleteByEventIDTx(tx *gorm.DB, eventID uuid.UUID) error {
	return tx.Where("event_id = ?", eventID).Delete(&models.OutboxDLQ{}).Error
}

// clip truncates s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
