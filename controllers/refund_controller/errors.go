package refund_controller

import "errors"

var (
	ErrInvalidAmount        = errors.New("refund amount must be greater than zero")
	ErrExceedsBalance       = errors.New("refund amount exceeds the refundable balance")
	ErrPaymentNotRefundable = errors.New("payment is not in a refundable state")
)
