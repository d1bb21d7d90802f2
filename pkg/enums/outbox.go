package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateTransferRequest OutboxAggregateType = "transfer_request"
	AggregateReservation     OutboxAggregateType = "reservation"
	AggregateStock           OutboxAggregateType = "stock"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateTransferRequest,
	AggregateReservation,
	AggregateStock,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventTransferRequestCreated   OutboxEventType = "transfer_request_created"
	EventTransferRequestApproved  OutboxEventType = "transfer_request_approved"
	EventTransferRequestRejected  OutboxEventType = "transfer_request_rejected"
	EventTransferRequestCancelled OutboxEventType = "transfer_request_cancelled"
	EventTransferRequestShipped   OutboxEventType = "transfer_request_shipped"
	EventTransferRequestReceived  OutboxEventType = "transfer_request_received"
	EventReservationCreated       OutboxEventType = "reservation_created"
	EventReservationCancelled     OutboxEventType = "reservation_cancelled"
	EventReservationBound         OutboxEventType = "reservation_bound"
	EventReservationPickedUp      OutboxEventType = "reservation_picked_up"
	EventReservationInstalled     OutboxEventType = "reservation_installed"
	EventReservationReturned      OutboxEventType = "reservation_returned"
	EventStockAdjusted            OutboxEventType = "stock_adjusted"
)

var validOutboxEventTypes = []OutboxEventType{
	EventTransferRequestCreated,
	EventTransferRequestApproved,
	EventTransferRequestRejected,
	EventTransferRequestCancelled,
	EventTransferRequestShipped,
	EventTransferRequestReceived,
	EventReservationCreated,
	EventReservationCancelled,
	EventReservationBound,
	EventReservationPickedUp,
	EventReservationInstalled,
	EventReservationReturned,
	EventStockAdjusted,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason records why the relay gave up on an event.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts means every publish attempt failed transiently.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable means the event could not be resolved or
	// routed, so retrying would fail the same way.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	_, err := ParseOutboxDLQErrorReason(string(r))
	return err == nil
}

func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	switch reason := OutboxDLQErrorReason(value); reason {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable:
		return reason, nil
	}
	return "", fmt.Errorf("invalid dlq error reason %q", value)
}
