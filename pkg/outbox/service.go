package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/partsreserve-backend/pkg/errors"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
	"github.com/angelmondragon/partsreserve-backend/pkg/pagination"
)

// Emitter is the narrow surface engine services depend on.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

// Service queues events and lets operators inspect and requeue the ones the
// publisher gave up on.
type Service struct {
	repo *Repository
	dlq  *DLQRepository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, dlq: NewDLQRepository(repo.db), logg: logg, now: time.Now}
}

// Emit stores the event inside tx so it commits or rolls back with the state
// change that produced it.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if err := event.validate(); err != nil {
		return err
	}
	id := uuid.New()
	env, err := event.envelope(id, s.now())
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx.WithContext(ctx), models.OutboxEvent{
		ID:            id,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}); err != nil {
		return err
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":       env.EventID,
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

// DeadLetterPage is one page of dead-lettered events, newest failure first.
type DeadLetterPage struct {
	Items      []models.OutboxDLQ
	NextCursor string
}

func (s *Service) DeadLetters(ctx context.Context, page pagination.Params) (*DeadLetterPage, error) {
	cursor, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(page.Limit)
	rows, err := s.dlq.List(ctx, cursor, pagination.LimitWithBuffer(limit))
	if err != nil {
		return nil, pkgerrors.FromStore(err, "list dead letters")
	}
	items, next := pagination.Trim(rows, limit, func(row models.OutboxDLQ) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.FailedAt, ID: row.ID}
	})
	return &DeadLetterPage{Items: items, NextCursor: next}, nil
}

// Requeue hands a dead-lettered event back to the publisher with a fresh
// attempt budget and drops its dead-letter entry.
func (s *Service) Requeue(ctx context.Context, eventID uuid.UUID) error {
	err := s.repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.dlq.FindByEventIDTx(tx, eventID)
		if err != nil {
			return pkgerrors.FromStore(err, "load dead letter")
		}
		if entry == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found").
				WithDetails(map[string]any{"event_id": eventID.String()})
		}
		reset, err := s.repo.ResetTx(tx, eventID)
		if err != nil {
			return pkgerrors.FromStore(err, "reset outbox event")
		}
		if reset == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "event was already published or purged").
				WithDetails(map[string]any{"event_id": eventID.String()})
		}
		if err := s.dlq.DeleteByEventIDTx(tx, eventID); err != nil {
			return pkgerrors.FromStore(err, "drop dead letter")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "event_id", eventID.String()), "dead letter requeued")
	}
	return nil
}
