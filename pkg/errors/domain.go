package errors

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

func IllegalTransition(from, attempted string) *Error {
	return New(CodeIllegalTransition, fmt.Sprintf("cannot %s from %s", attempted, from)).
		WithDetails(map[string]any{
			"from":      from,
			"attempted": attempted,
		})
}

func InsufficientStock(stockID uuid.UUID, requested, available int) *Error {
	return New(CodeInsufficientStock, fmt.Sprintf("insufficient stock: available %d, requested %d", available, requested)).
		WithDetails(map[string]any{
			"stock_id":  stockID.String(),
			"requested": requested,
			"available": available,
		})
}

func InvariantViolation(message string) *Error {
	return New(CodeInvariantViolation, message)
}

func IncompleteSelection(reservationIDs []uuid.UUID) *Error {
	return New(CodeIncompleteSelection, "selection does not cover every reservation exactly").
		WithDetails(map[string]any{"reservation_ids": uuidStrings(reservationIDs)})
}

func PartialShipment(failedReservationIDs []uuid.UUID) *Error {
	return New(CodePartialShipment, "retry only the failed reservations").
		WithDetails(map[string]any{"failed_reservation_ids": uuidStrings(failedReservationIDs)})
}

func MixedTechnician(technicianIDs []string) *Error {
	return New(CodeMixedTechnician, "pickup batch must belong to one technician: "+strings.Join(technicianIDs, ", ")).
		WithDetails(map[string]any{"technician_ids": technicianIDs})
}

func NotBound(reservationIDs []uuid.UUID) *Error {
	return New(CodeNotBound, "reservations must be bound by a shipment before pickup").
		WithDetails(map[string]any{"reservation_ids": uuidStrings(reservationIDs)})
}

// ReservationIDs extracts the reservation ids carried in the details of a
// selection, shipment or pickup error.
func ReservationIDs(err error) []string {
	typed := As(err)
	if typed == nil {
		return nil
	}
	details, ok := typed.details.(map[string]any)
	if !ok {
		return nil
	}
	for _, key := range []string{"reservation_ids", "failed_reservation_ids"} {
		if ids, ok := details[key].([]string); ok {
			return ids
		}
	}
	return nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
