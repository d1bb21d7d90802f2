package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
)

// EnvelopeVersion is stamped on events that do not pick their own.
const EnvelopeVersion = 1

var ErrEmptyPayload = errors.New("envelope carries no data")

// ActorRef identifies who caused the event.
type ActorRef struct {
	UserID      uuid.UUID  `json:"userId"`
	WarehouseID *uuid.UUID `json:"warehouseId,omitempty"`
	Role        string     `json:"role,omitempty"`
}

// Envelope is what outbox_events.payload holds and what subscribers receive.
// EventID equals the outbox row id.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DomainEvent is a state change queued for publication.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	switch {
	case !e.EventType.IsValid():
		return fmt.Errorf("unknown event type %q", e.EventType)
	case !e.AggregateType.IsValid():
		return fmt.Errorf("unknown aggregate type %q", e.AggregateType)
	case e.AggregateID == uuid.Nil:
		return fmt.Errorf("%s event without aggregate id", e.EventType)
	case e.Data == nil:
		return fmt.Errorf("%s event without data", e.EventType)
	}
	return nil
}

func (e DomainEvent) envelope(eventID uuid.UUID, now time.Time) (Envelope, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s data: %w", e.EventType, err)
	}
	env := Envelope{
		Version:    e.Version,
		EventID:    eventID.String(),
		OccurredAt: e.OccurredAt.UTC(),
		Actor:      e.Actor,
		Data:       data,
	}
	if env.Version == 0 {
		env.Version = EnvelopeVersion
	}
	if e.OccurredAt.IsZero() {
		env.OccurredAt = now.UTC()
	}
	return env, nil
}

// DecodeEnvelope parses a stored payload. A missing or null data field is
// reported as ErrEmptyPayload.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Envelope{}, ErrEmptyPayload
	}
	return env, nil
}
