package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReservationStatus(t *testing.T) {
	status, err := ParseReservationStatus("PICKED_UP")
	require.NoError(t, err)
	assert.Equal(t, ReservationStatusPickedUp, status)

	_, err = ParseReservationStatus("picked_up")
	require.Error(t, err)
}

func TestTransferRequestStatusIsTerminal(t *testing.T) {
	terminal := map[TransferRequestStatus]bool{
		TransferRequestStatusPendingApproval: false,
		TransferRequestStatusApproved:        false,
		TransferRequestStatusShipped:         false,
		TransferRequestStatusReceived:        true,
		TransferRequestStatusRejected:        true,
		TransferRequestStatusCancelled:       true,
	}
	for status, want := range terminal {
		assert.Equal(t, want, status.IsTerminal(), status.String())
	}
}

func TestAdjustmentReasonValidity(t *testing.T) {
	assert.True(t, AdjustmentReasonSupplierDelivery.IsValid())
	assert.False(t, AdjustmentReason("LOST").IsValid())

	reason, err := ParseAdjustmentReason("MANUAL_COUNT")
	require.NoError(t, err)
	assert.Equal(t, AdjustmentReasonManualCount, reason)
}

func TestOutboxEventTypeParse(t *testing.T) {
	eventType, err := ParseOutboxEventType("transfer_request_shipped")
	require.NoError(t, err)
	assert.Equal(t, EventTransferRequestShipped, eventType)

	_, err = ParseOutboxAggregateType("vendor_order")
	require.Error(t, err)
}

func TestOutboxDLQErrorReasonParse(t *testing.T) {
	reason, err := ParseOutboxDLQErrorReason("max_attempts")
	require.NoError(t, err)
	assert.Equal(t, OutboxDLQReasonMaxAttempts, reason)
	assert.True(t, OutboxDLQReasonNonRetryable.IsValid())
	assert.False(t, OutboxDLQErrorReason("timeout").IsValid())
}
