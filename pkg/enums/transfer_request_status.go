package enums

import "fmt"

// TransferRequestStatus is the single authoritative status of a stock transfer request.
type TransferRequestStatus string

const (
	TransferRequestStatusPendingApproval TransferRequestStatus = "PENDING_APPROVAL"
	TransferRequestStatusApproved        TransferRequestStatus = "APPROVED"
	TransferRequestStatusShipped         TransferRequestStatus = "SHIPPED"
	TransferRequestStatusReceived        TransferRequestStatus = "RECEIVED"
	TransferRequestStatusRejected        TransferRequestStatus = "REJECTED"
	TransferRequestStatusCancelled       TransferRequestStatus = "CANCELLED"
)

var validTransferRequestStatuses = []TransferRequestStatus{
	TransferRequestStatusPendingApproval,
	TransferRequestStatusApproved,
	TransferRequestStatusShipped,
	TransferRequestStatusReceived,
	TransferRequestStatusRejected,
	TransferRequestStatusCancelled,
}

// String implements fmt.Stringer.
func (t TransferRequestStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransferRequestStatus.
func (t TransferRequestStatus) IsValid() bool {
	for _, candidate := range validTransferRequestStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransferRequestStatus converts raw input into a TransferRequestStatus.
func ParseTransferRequestStatus(value string) (TransferRequestStatus, error) {
	for _, candidate := range validTransferRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transfer request status %q", value)
}

// IsTerminal reports whether no further transition is possible.
func (t TransferRequestStatus) IsTerminal() bool {
	switch t {
	case TransferRequestStatusReceived, TransferRequestStatusRejected, TransferRequestStatusCancelled:
		return true
	}
	return false
}
