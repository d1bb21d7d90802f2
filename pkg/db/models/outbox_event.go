package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
)

// OutboxEvent is a domain event written in the same transaction as the
// state change it describes. The publisher stamps PublishedAt once Pub/Sub
// acknowledges it.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:event_type_enum;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
}

func (e *OutboxEvent) BeforeCreate(tx *gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

// LastAttempt reports whether one more failure exhausts maxAttempts.
func (e OutboxEvent) LastAttempt(maxAttempts int) bool {
	return e.AttemptCount+1 >= maxAttempts
}

// DeadLetter builds the DLQ entry recording why the event was given up on.
func (e OutboxEvent) DeadLetter(reason enums.OutboxDLQErrorReason, cause error, failedAt time.Time) OutboxDLQ {
	entry := OutboxDLQ{
		EventID:       e.ID,
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Payload:       e.Payload,
		ErrorReason:   reason,
		AttemptCount:  e.AttemptCount,
		FailedAt:      failedAt,
	}
	if cause != nil {
		msg := cause.Error()
		entry.ErrorMessage = &msg
	}
	return entry
}
