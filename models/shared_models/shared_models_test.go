package shared_models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionBooking(t *testing.T) {
	tests := []struct {
		from    BookingStatus
		to      BookingStatus
		allowed bool
	}{
		{BookingStatusPending, BookingStatusConfirmed, true},
		{BookingStatusPending, BookingStatusCancelled, true},
		{BookingStatusConfirmed, BookingStatusCompleted, true},
		{BookingStatusConfirmed, BookingStatusCancelled, true},

		{BookingStatusPending, BookingStatusCompleted, false},
		{BookingStatusConfirmed, BookingStatusPending, false},
		{BookingStatusCancelled, BookingStatusConfirmed, false},
		{BookingStatusCancelled, BookingStatusPending, false},
		{BookingStatusCompleted, BookingStatusCancelled, false},
		{BookingStatusPending, BookingStatusPending, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, CanTransitionBooking(tt.from, tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestIsTerminalRefundStatus(t *testing.T) {
	assert.True(t, IsTerminalRefundStatus(RefundStatusCompleted))
	assert.True(t, IsTerminalRefundStatus(RefundStatusRealtorRejected))

	assert.False(t, IsTerminalRefundStatus(RefundStatusPendingRealtorApproval))
	assert.False(t, IsTerminalRefundStatus(RefundStatusRealtorApproved))
	assert.False(t, IsTerminalRefundStatus(RefundStatusAdminProcessing))
}
