package shared_models

// BookingStatus is the lifecycle state of a reservation.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
)

// PayoutStatus tracks the realtor's share of a booking's proceeds, independent
// of the booking status itself.
type PayoutStatus string

const (
	PayoutStatusPending  PayoutStatus = "PENDING"
	PayoutStatusReleased PayoutStatus = "RELEASED"
	PayoutStatusFailed   PayoutStatus = "FAILED"
)

// PaymentStatus is the lifecycle state of the monetary transaction tied to a booking.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// RefundStatus is the two-stage approval state of a guest refund claim.
type RefundStatus string

const (
	RefundStatusPendingRealtorApproval RefundStatus = "PENDING_REALTOR_APPROVAL"
	RefundStatusRealtorApproved        RefundStatus = "REALTOR_APPROVED"
	RefundStatusRealtorRejected        RefundStatus = "REALTOR_REJECTED"
	RefundStatusAdminProcessing        RefundStatus = "ADMIN_PROCESSING"
	RefundStatusCompleted              RefundStatus = "COMPLETED"
)

// Gateway identifiers used on payment and realtor records.
const (
	GatewayStripe   = "stripe"
	GatewayPaystack = "paystack"
)

// bookingTransitions is the single source of truth for legal booking status
// moves. CANCELLED and COMPLETED are terminal.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCompleted, BookingStatusCancelled},
}

// CanTransitionBooking reports whether moving a booking from one status to
// another is legal.
func CanTransitionBooking(from, to BookingStatus) bool {
	for _, next := range bookingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalRefundStatus reports whether a refund request can no longer advance.
func IsTerminalRefundStatus(s RefundStatus) bool {
	return s == RefundStatusCompleted || s == RefundStatusRealtorRejected
}
