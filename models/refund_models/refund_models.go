package refund_models

import (
	"context"
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
	ErrRefundRequestNotFound = errors.New("refund request not found")
	ErrRefundAlreadyOpen     = errors.New("an open refund request already exists for this booking")
	ErrRefundStateConflict   = errors.New("refund request is not in the expected state")
)

// RefundRequest represents a guest-initiated refund claim requiring realtor
// approval followed by admin processing.
type RefundRequest struct {
	ID                 uuid.UUID                  `json:"id"`
	BookingID          uuid.UUID                  `json:"booking_id"`
	PaymentID          uuid.UUID                  `json:"payment_id"`
	RequesterID        uuid.UUID                  `json:"requester_id"`
	Amount             float64                    `json:"amount"`
	Currency           string                     `json:"currency"`
	Reason             string                     `json:"reason"`
	Status             shared_models.RefundStatus `json:"status"`
	RealtorNote        *string                    `json:"realtor_note"`
	RealtorDecidedAt   *time.Time                 `json:"realtor_decided_at"`
	AdminID            *uuid.UUID                 `json:"admin_id"`
	AdminNote          *string                    `json:"admin_note"`
	ActualRefundAmount *float64                   `json:"actual_refund_amount"`
	ProviderRefundID   *string                    `json:"provider_refund_id"`
	ProcessedAt        *time.Time                 `json:"processed_at"`
	CreatedAt          time.Time                  `json:"created_at"`
	UpdatedAt          time.Time                  `json:"updated_at"`
}

// NewRefundRequest builds a pending refund request for a booking.
func NewRefundRequest(bookingID, paymentID, requesterID uuid.UUID, amount float64, currency, reason string) (*RefundRequest, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate UUID for refund request: %w", err)
	}
	now := time.Now()
	return &RefundRequest{
		ID:          id,
		BookingID:   bookingID,
		PaymentID:   paymentID,
		RequesterID: requesterID,
		Amount:      amount,
		Currency:    currency,
		Reason:      reason,
		Status:      shared_models.RefundStatusPendingRealtorApproval,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

const refundColumns = `id, booking_id, payment_id, requester_id, amount, currency, reason,
	status, realtor_note, realtor_decided_at, admin_id, admin_note,
	actual_refund_amount, provider_refund_id, processed_at, created_at, updated_at`

func scanRefundRequest(row pgx.Row) (*RefundRequest, error) {
	rr := &RefundRequest{}
	err := row.Scan(
		&rr.ID, &rr.BookingID, &rr.PaymentID, &rr.RequesterID, &rr.Amount, &rr.Currency,
		&rr.Reason, &rr.Status, &rr.RealtorNote, &rr.RealtorDecidedAt, &rr.AdminID,
		&rr.AdminNote, &rr.ActualRefundAmount, &rr.ProviderRefundID, &rr.ProcessedAt,
		&rr.CreatedAt, &rr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rr, nil
}

// CreateRefundRequest inserts a refund request, enforcing at most one
// non-terminal request per booking inside the same statement.
func CreateRefundRequest(ctx context.Context, db *pgxpool.Pool, rr *RefundRequest) error {
	cmdTag, err := db.Exec(ctx,
		`INSERT INTO refund_requests (id, booking_id, payment_id, requester_id, amount, currency, reason, status, created_at, updated_at)
		 SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $9
		 WHERE NOT EXISTS (
		     SELECT 1 FROM refund_requests
		     WHERE booking_id = $2 AND status NOT IN ('COMPLETED', 'REALTOR_REJECTED'))`,
		rr.ID, rr.BookingID, rr.PaymentID, rr.RequesterID, rr.Amount, rr.Currency,
		rr.Reason, rr.Status, rr.CreatedAt)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to create refund request for booking %s: %v", rr.BookingID, err)
		return fmt.Errorf("failed to create refund request: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrRefundAlreadyOpen
	}
	logger.InfoLogger.Infof("Refund request %s created for booking %s (%.2f %s)", rr.ID, rr.BookingID, rr.Amount, rr.Currency)
	return nil
}

// GetRefundRequestByID fetches a refund request.
func GetRefundRequestByID(ctx context.Context, db *pgxpool.Pool, id uuid.UUID) (*RefundRequest, error) {
	rr, err := scanRefundRequest(db.QueryRow(ctx, `SELECT `+refundColumns+` FROM refund_requests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRefundRequestNotFound
		}
		logger.ErrorLogger.Errorf("Failed to fetch refund request %s: %v", id, err)
		return nil, fmt.Errorf("database error fetching refund request: %w", err)
	}
	return rr, nil
}

// ListRefundRequestsByBooking returns a booking's refund requests, newest first.
func ListRefundRequestsByBooking(ctx context.Context, db *pgxpool.Pool, bookingID uuid.UUID) ([]*RefundRequest, error) {
	rows, err := db.Query(ctx,
		`SELECT `+refundColumns+` FROM refund_requests WHERE booking_id = $1 ORDER BY created_at DESC`,
		bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list refund requests: %w", err)
	}
	defer rows.Close()

	var requests []*RefundRequest
	for rows.Next() {
		rr, err := scanRefundRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan refund request: %w", err)
		}
		requests = append(requests, rr)
	}
	return requests, rows.Err()
}

// ApplyRealtorDecision moves a pending request to approved or rejected. The
// update is conditional on the request still awaiting the realtor.
func ApplyRealtorDecision(ctx context.Context, db *pgxpool.Pool, id uuid.UUID, approved bool, note string) (*RefundRequest, error) {
	next := shared_models.RefundStatusRealtorRejected
	if approved {
		next = shared_models.RefundStatusRealtorApproved
	}

	rr, err := scanRefundRequest(db.QueryRow(ctx,
		`UPDATE refund_requests
		 SET status = $2, realtor_note = NULLIF($3, ''), realtor_decided_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = 'PENDING_REALTOR_APPROVAL'
		 RETURNING `+refundColumns,
		id, next, note))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRefundStateConflict
		}
		logger.ErrorLogger.Errorf("Failed to apply realtor decision on refund %s: %v", id, err)
		return nil, fmt.Errorf("failed to apply realtor decision: %w", err)
	}
	logger.InfoLogger.Infof("Refund request %s moved to %s", id, next)
	return rr, nil
}

// ClaimForProcessing moves an approved request into ADMIN_PROCESSING so that
// two admins cannot process it concurrently.
func ClaimForProcessing(ctx context.Context, db *pgxpool.Pool, id, adminID uuid.UUID) (*RefundRequest, error) {
	rr, err := scanRefundRequest(db.QueryRow(ctx,
		`UPDATE refund_requests
		 SET status = 'ADMIN_PROCESSING', admin_id = $2, updated_at = NOW()
		 WHERE id = $1 AND status = 'REALTOR_APPROVED'
		 RETURNING `+refundColumns,
		id, adminID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRefundStateConflict
		}
		logger.ErrorLogger.Errorf("Failed to claim refund %s for processing: %v", id, err)
		return nil, fmt.Errorf("failed to claim refund request: %w", err)
	}
	return rr, nil
}

// CompleteProcessing records the gateway outcome and closes the request.
func CompleteProcessing(ctx context.Context, db *pgxpool.Pool, id uuid.UUID,
	actualAmount float64, providerRefundID, note string) (*RefundRequest, error) {

	rr, err := scanRefundRequest(db.QueryRow(ctx,
		`UPDATE refund_requests
		 SET status = 'COMPLETED', actual_refund_amount = $2, provider_refund_id = $3,
		     admin_note = NULLIF($4, ''), processed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = 'ADMIN_PROCESSING'
		 RETURNING `+refundColumns,
		id, actualAmount, providerRefundID, note))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRefundStateConflict
		}
		logger.ErrorLogger.Errorf("Failed to complete refund %s: %v", id, err)
		return nil, fmt.Errorf("failed to complete refund request: %w", err)
	}
	logger.InfoLogger.Infof("Refund request %s completed (%.2f, provider ref %s)", id, actualAmount, providerRefundID)
	return rr, nil
}

// ReopenAfterFailure returns a request stuck in ADMIN_PROCESSING to
// REALTOR_APPROVED when the gateway call failed, so it can be retried.
func ReopenAfterFailure(ctx context.Context, db *pgxpool.Pool, id uuid.UUID) error {
	_, err := db.Exec(ctx,
		`UPDATE refund_requests SET status = 'REALTOR_APPROVED', updated_at = NOW()
		 WHERE id = $1 AND status = 'ADMIN_PROCESSING'`,
		id)
	if err != nil {
		return fmt.Errorf("failed to reopen refund request: %w", err)
	}
	return nil
}
