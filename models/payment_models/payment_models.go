package payment_models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wanderstay/platform/logger"
	"github.com/wanderstay/platform/models/shared_models"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrRefundExceedsBalance = errors.New("refund amount exceeds refundable balance")
)

// RefundAuditEntry is one step of a refund request's audit trail, kept inside
// the payment metadata so the full money history lives with the payment row.
type RefundAuditEntry struct {
	RefundRequestID uuid.UUID `json:"refund_request_id"`
	Actor           string    `json:"actor"`
	Action          string    `json:"action"`
	Amount          float64   `json:"amount"`
	Note            string    `json:"note,omitempty"`
	At              time.Time `json:"at"`
}

// Metadata is the payment's structured side-channel: the append-only set of
// applied gateway event ids and the refund audit trail.
type Metadata struct {
	ProcessedEvents []string           `json:"processed_events"`
	RefundAudit     []RefundAuditEntry `json:"refund_audit,omitempty"`
}

// Payment represents the monetary transaction tied 1:1 to a booking.
type Payment struct {
	ID                   uuid.UUID                   `json:"id"`
	BookingID            uuid.UUID                   `json:"booking_id"`
	Amount               float64                     `json:"amount"`
	Currency             string                      `json:"currency"`
	Status               shared_models.PaymentStatus `json:"status"`
	RefundAmount         float64                     `json:"refund_amount"`
	GatewayProvider      string                      `json:"gateway_provider"`
	GatewayTransactionID string                      `json:"gateway_transaction_id"`
	GatewayTransferID    string                      `json:"gateway_transfer_id"`
	GatewayFee           float64                     `json:"gateway_fee"`
	PlatformNet          float64                     `json:"platform_net"`
	ServiceFeeAmount     float64                     `json:"service_fee_amount"`
	PlatformCommission   float64                     `json:"platform_commission"`
	PayoutReleased       bool                        `json:"payout_released"`
	PayoutReleasedAt     *time.Time                  `json:"payout_released_at"`
	Metadata             Metadata                    `json:"metadata"`
	CreatedAt            time.Time                   `json:"created_at"`
	UpdatedAt            time.Time                   `json:"updated_at"`
}

const paymentColumns = `id, booking_id, amount, currency, status, refund_amount,
	gateway_provider, gateway_transaction_id, gateway_transfer_id, gateway_fee,
	platform_net, service_fee_amount, platform_commission, payout_released,
	payout_released_at, metadata, created_at, updated_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	p := &Payment{}
	var meta []byte
	err := row.Scan(
		&p.ID, &p.BookingID, &p.Amount, &p.Currency, &p.Status, &p.RefundAmount,
		&p.GatewayProvider, &p.GatewayTransactionID, &p.GatewayTransferID, &p.GatewayFee,
		&p.PlatformNet, &p.ServiceFeeAmount, &p.PlatformCommission, &p.PayoutReleased,
		&p.PayoutReleasedAt, &meta, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &p.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode payment metadata: %w", err)
		}
	}
	return p, nil
}

// GetPaymentByBookingID fetches the payment record for a booking.
func GetPaymentByBookingID(ctx context.Context, db *pgxpool.Pool, bookingID uuid.UUID) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = $1`

	p, err := scanPayment(db.QueryRow(ctx, query, bookingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		logger.ErrorLogger.Errorf("Failed to fetch payment for booking %s: %v", bookingID, err)
		return nil, fmt.Errorf("database error fetching payment: %w", err)
	}
	return p, nil
}

// GetPaymentByTransactionID fetches a payment by its gateway transaction reference.
func GetPaymentByTransactionID(ctx context.Context, db *pgxpool.Pool, provider, txnID string) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE gateway_provider = $1 AND gateway_transaction_id = $2`

	p, err := scanPayment(db.QueryRow(ctx, query, provider, txnID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		logger.ErrorLogger.Errorf("Failed to fetch payment by transaction %s/%s: %v", provider, txnID, err)
		return nil, fmt.Errorf("database error fetching payment: %w", err)
	}
	return p, nil
}

// HasProcessedEvent reports whether a gateway event id was already applied to
// the booking's payment.
func HasProcessedEvent(ctx context.Context, db *pgxpool.Pool, bookingID uuid.UUID, eventID string) (bool, error) {
	var processed bool
	err := db.QueryRow(ctx,
		`SELECT jsonb_exists(COALESCE(metadata->'processed_events', '[]'::jsonb), $2)
		 FROM payments WHERE booking_id = $1`,
		bookingID, eventID).Scan(&processed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrPaymentNotFound
		}
		return false, fmt.Errorf("failed to check processed events: %w", err)
	}
	return processed, nil
}

// MarkEventProcessed appends a gateway event id to the payment's processed-event
/// set as a single conditional statement: membership test and insert happen in
// one UPDATE, so two concurrent deliveries of the same event cannot both claim
// it. Returns false when the event was already recorded.
func MarkEventProcessed(ctx context.Context, db *pgxpool.Pool, bookingID uuid.UUID, eventID string) (bool, error) {
	cmdTag, err := db.Exec(ctx,
		`UPDATE payments
		 SET metadata = jsonb_set(
		         COALESCE(metadata, '{}'::jsonb),
		         '{processed_events}',
		         COALESCE(metadata->'processed_events', '[]'::jsonb) || to_jsonb($2::text)),
		     updated_at = NOW()
		 WHERE booking_id = $1
		   AND NOT jsonb_exists(COALESCE(metadata->'processed_events', '[]'::jsonb), $2)`,
		bookingID, eventID)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to mark event %s processed for booking %s: %v", eventID, bookingID, err)
		return false, fmt.Errorf("failed to mark event processed: %w", err)
	}
	if cmdTag.RowsAffected() > 0 {
		return true, nil
	}

	// Zero rows: the event is a duplicate, unless the payment row is missing.
	var exists bool
	if err := db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM payments WHERE booking_id = $1)`, bookingID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to verify payment existence: %w", err)
	}
	if !exists {
		return false, ErrPaymentNotFound
	}
	return false, nil
}

// UpdateStatusAndReference sets the payment status and gateway identifiers.
// The write is idempotent by value: replaying it with the same inputs leaves
// the row unchanged.
func UpdateStatusAndReference(ctx context.Context, db *pgxpool.Pool, bookingID uuid.UUID,
	status shared_models.PaymentStatus, provider, txnID string) error {

	cmdTag, err := db.Exec(ctx,
		`UPDATE payments
		 SET status = $2, gateway_provider = $3,
		     gateway_transaction_id = CASE WHEN $4 = '' THEN gateway_transaction_id ELSE $4 END,
		     updated_at = NOW()
		 WHERE booking_id = $1`,
		bookingID, status, provider, txnID)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to update payment for booking %s: %v", bookingID, err)
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	logger.InfoLogger.Infof("Payment for booking %s updated to %s (%s)", bookingID, status, provider)
	return nil
}

// SetTransferID stores the gateway transfer reference on the payment.
func SetTransferID(ctx context.Context, db *pgxpool.Pool, bookingID uuid.UUID, transferID string) error {
	cmdTag, err := db.Exec(ctx,
		`UPDATE payments SET gateway_transfer_id = $2, updated_at = NOW() WHERE booking_id = $1`,
		bookingID, transferID)
	if err != nil {
		return fmt.Errorf("failed to set transfer id: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// SetFees persists the gateway fee and derived platform net.
func SetFees(ctx context.Context, db *pgxpool.Pool, bookingID uuid.UUID, gatewayFee, platformNet float64) error {
	cmdTag, err := db.Exec(ctx,
		`UPDATE payments SET gateway_fee = $2, platform_net = $3, updated_at = NOW() WHERE booking_id = $1`,
		bookingID, gatewayFee, platformNet)
	if err != nil {
		return fmt.Errorf("failed to set fees: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	logger.InfoLogger.Infof("Payment for booking %s fees recorded: gateway %.2f, net %.2f", bookingID, gatewayFee, platformNet)
	return nil
}

// MarkPayoutReleased flags the payment's payout as released at the given time.
func MarkPayoutReleased(ctx context.Context, db *pgxpool.Pool, bookingID uuid.UUID, at time.Time) error {
	cmdTag, err := db.Exec(ctx,
		`UPDATE payments SET payout_released = TRUE, payout_released_at = $2, updated_at = NOW() WHERE booking_id = $1`,
		bookingID, at)
	if err != nil {
		return fmt.Errorf("failed to mark payout released: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// IncrementRefundAmount adds to the payment's running refund total, flipping
// the status to REFUNDED when the payment is fully refunded. The ceiling check
// is part of the statement, so a concurrent refund can never push the total
// past the original amount.
func IncrementRefundAmount(ctx context.Context, db *pgxpool.Pool, bookingID uuid.UUID, amount float64) error {
	cmdTag, err := db.Exec(ctx,
		`UPDATE payments
		 SET refund_amount = refund_amount + $2,
		     status = CASE WHEN refund_amount + $2 >= amount THEN 'REFUNDED' ELSE status END,
		     updated_at = NOW()
		 WHERE booking_id = $1 AND refund_amount + $2 <= amount`,
		bookingID, amount)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to increment refund amount for booking %s: %v", bookingID, err)
		return fmt.Errorf("failed to increment refund amount: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrRefundExceedsBalance
	}
	return nil
}

// RevertRefundAmount releases a refund reservation after a failed gateway
// call, restoring COMPLETED if the payment is no longer fully refunded.
func RevertRefundAmount(ctx context.Context, db *pgxpool.Pool, bookingID uuid.UUID, amount float64) error {
	cmdTag, err := db.Exec(ctx,
		`UPDATE payments
		 SET refund_amount = GREATEST(refund_amount - $2, 0),
		     status = CASE WHEN status = 'REFUNDED' AND refund_amount - $2 < amount THEN 'COMPLETED' ELSE status END,
		     updated_at = NOW()
		 WHERE booking_id = $1`,
		bookingID, amount)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to revert refund amount for booking %s: %v", bookingID, err)
		return fmt.Errorf("failed to revert refund amount: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// AppendRefundAudit appends one entry to the payment's refund audit trail.
func AppendRefundAudit(ctx context.Context, db *pgxpool.Pool, bookingID uuid.UUID, entry RefundAuditEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode refund audit entry: %w", err)
	}
	cmdTag, err := db.Exec(ctx,
		`UPDATE payments
		 SET metadata = jsonb_set(
		         COALESCE(metadata, '{}'::jsonb),
		         '{refund_audit}',
		         COALESCE(metadata->'refund_audit', '[]'::jsonb) || $2::jsonb),
		     updated_at = NOW()
		 WHERE booking_id = $1`,
		bookingID, raw)
	if err != nil {
		return fmt.Errorf("failed to append refund audit entry: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}
