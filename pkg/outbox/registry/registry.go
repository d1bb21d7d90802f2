// Package registry maps outbox rows to their Pub/Sub topic and typed payload.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/partsreserve-backend/pkg/config"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
	"github.com/angelmondragon/partsreserve-backend/pkg/outbox"
	"github.com/angelmondragon/partsreserve-backend/pkg/outbox/payloads"
)

func transferPayload() any    { return &payloads.TransferRequestEvent{} }
func reservationPayload() any { return &payloads.ReservationEvent{} }

// catalog is every event the engine emits.
var catalog = []struct {
	event     enums.OutboxEventType
	aggregate enums.OutboxAggregateType
	payload   func() any
}{
	{enums.EventTransferRequestCreated, enums.AggregateTransferRequest, transferPayload},
	{enums.EventTransferRequestApproved, enums.AggregateTransferRequest, transferPayload},
	{enums.EventTransferRequestRejected, enums.AggregateTransferRequest, transferPayload},
	{enums.EventTransferRequestCancelled, enums.AggregateTransferRequest, transferPayload},
	{enums.EventTransferRequestShipped, enums.AggregateTransferRequest, transferPayload},
	{enums.EventTransferRequestReceived, enums.AggregateTransferRequest, transferPayload},
	{enums.EventReservationCreated, enums.AggregateReservation, reservationPayload},
	{enums.EventReservationCancelled, enums.AggregateReservation, reservationPayload},
	{enums.EventReservationBound, enums.AggregateReservation, func() any { return &payloads.ReservationBoundEvent{} }},
	{enums.EventReservationPickedUp, enums.AggregateReservation, reservationPayload},
	{enums.EventReservationInstalled, enums.AggregateReservation, reservationPayload},
	{enums.EventReservationReturned, enums.AggregateReservation, reservationPayload},
	{enums.EventStockAdjusted, enums.AggregateStock, func() any { return &payloads.StockAdjustedEvent{} }},
}

// EventDescriptor ties an event type to its aggregate, topic and payload.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is a decoded outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.Envelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will never publish as stored.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

// NewEventRegistry routes each aggregate to its configured topic. Every
// missing topic is reported.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topics := map[enums.OutboxAggregateType]string{
		enums.AggregateTransferRequest: cfg.TransfersTopic,
		enums.AggregateReservation:     cfg.ReservationsTopic,
		enums.AggregateStock:           cfg.StockTopic,
	}
	var missing []error
	for aggregate, topic := range topics {
		if topic == "" {
			missing = append(missing, fmt.Errorf("topic for %s events is required", aggregate))
		}
	}
	if len(missing) > 0 {
		return nil, errors.Join(missing...)
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(catalog))}
	for _, c := range catalog {
		reg.entries[c.event] = EventDescriptor{
			EventType:      c.event,
			AggregateType:  c.aggregate,
			Topic:          topics[c.aggregate],
			PayloadFactory: c.payload,
		}
	}
	return reg, nil
}

// Resolve checks the row against its descriptor and decodes the typed
// payload. Every failure is non-retryable since the row will not change.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("%s belongs to %s, row says %s", event.EventType, desc.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(fmt.Errorf("%s row has no aggregate id", event.EventType))
	}

	env, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: payload}, nil
}
