package enums

import "fmt"

// ReservationStatus tracks a reservation from stock claim to installation.
type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "RESERVED"
	ReservationStatusPickedUp  ReservationStatus = "PICKED_UP"
	ReservationStatusInstalled ReservationStatus = "INSTALLED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
	ReservationStatusReturned  ReservationStatus = "RETURNED"
)

var validReservationStatuses = []ReservationStatus{
	ReservationStatusReserved,
	ReservationStatusPickedUp,
	ReservationStatusInstalled,
	ReservationStatusCancelled,
	ReservationStatusReturned,
}

// String implements fmt.Stringer.
func (r ReservationStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReservationStatus.
func (r ReservationStatus) IsValid() bool {
	for _, candidate := range validReservationStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReservationStatus converts raw input into a ReservationStatus.
func ParseReservationStatus(value string) (ReservationStatus, error) {
	for _, candidate := range validReservationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reservation status %q", value)
}

// IsTerminal reports whether the reservation no longer holds stock.
func (r ReservationStatus) IsTerminal() bool {
	switch r {
	case ReservationStatusInstalled, ReservationStatusCancelled, ReservationStatusReturned:
		return true
	}
	return false
}
