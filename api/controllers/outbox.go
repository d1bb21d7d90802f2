package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/partsreserve-backend/api/responses"
	"github.com/angelmondragon/partsreserve-backend/api/validators"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
	"github.com/angelmondragon/partsreserve-backend/pkg/outbox"
	"github.com/angelmondragon/partsreserve-backend/pkg/pagination"
)

// DeadLetterService is the slice of the outbox service operators reach.
type DeadLetterService interface {
	DeadLetters(ctx context.Context, page pagination.Params) (*outbox.DeadLetterPage, error)
	Requeue(ctx context.Context, eventID uuid.UUID) error
}

type DeadLetterDTO struct {
	EventID       uuid.UUID                  `json:"event_id"`
	EventType     enums.OutboxEventType      `json:"event_type"`
	AggregateType enums.OutboxAggregateType  `json:"aggregate_type"`
	AggregateID   uuid.UUID                  `json:"aggregate_id"`
	Reason        enums.OutboxDLQErrorReason `json:"reason"`
	Error         string                     `json:"error,omitempty"`
	Attempts      int                        `json:"attempts"`
	Payload       json.RawMessage            `json:"payload"`
	FailedAt      time.Time                  `json:"failed_at"`
}

type DeadLetterPageDTO struct {
	Items      []DeadLetterDTO `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func toDeadLetterDTO(row models.OutboxDLQ) DeadLetterDTO {
	dto := DeadLetterDTO{
		EventID:       row.EventID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Reason:        row.ErrorReason,
		Attempts:      row.AttemptCount,
		Payload:       row.Payload,
		FailedAt:      row.FailedAt,
	}
	if row.ErrorMessage != nil {
		dto.Error = *row.ErrorMessage
	}
	return dto
}

func ListDeadLetters(svc DeadLetterService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.DeadLetters(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]DeadLetterDTO, 0, len(page.Items))
		for _, row := range page.Items {
			items = append(items, toDeadLetterDTO(row))
		}
		responses.WriteSuccess(w, DeadLetterPageDTO{Items: items, NextCursor: page.NextCursor})
	}
}

// RequeueDeadLetter returns 202 since publication happens on the relay's
// next poll.
func RequeueDeadLetter(svc DeadLetterService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Requeue(r.Context(), eventID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]any{"event_id": eventID, "requeued": true})
	}
}
