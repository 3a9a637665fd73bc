package payment_models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wanderstay/platform/models/shared_models"
)

// Store is a thin method-set over the package query functions so consumers can
// depend on an interface and tests can substitute in-memory doubles.
type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*Payment, error) {
	return GetPaymentByBookingID(ctx, s.DB, bookingID)
}

func (s *Store) GetByTransactionID(ctx context.Context, provider, txnID string) (*Payment, error) {
	return GetPaymentByTransactionID(ctx, s.DB, provider, txnID)
}

func (s *Store) HasProcessedEvent(ctx context.Context, bookingID uuid.UUID, eventID string) (bool, error) {
	return HasProcessedEvent(ctx, s.DB, bookingID, eventID)
}

func (s *Store) MarkEventProcessed(ctx context.Context, bookingID uuid.UUID, eventID string) (bool, error) {
	return MarkEventProcessed(ctx, s.DB, bookingID, eventID)
}

func (s *Store) UpdateStatusAndReference(ctx context.Context, bookingID uuid.UUID,
	status shared_models.PaymentStatus, provider, txnID string) error {
	return UpdateStatusAndReference(ctx, s.DB, bookingID, status, provider, txnID)
}

func (s *Store) SetTransferID(ctx context.Context, bookingID uuid.UUID, transferID string) error {
	return SetTransferID(ctx, s.DB, bookingID, transferID)
}

func (s *Store) SetFees(ctx context.Context, bookingID uuid.UUID, gatewayFee, platformNet float64) error {
	return SetFees(ctx, s.DB, bookingID, gatewayFee, platformNet)
}

func (s *Store) MarkPayoutReleased(ctx context.Context, bookingID uuid.UUID, at time.Time) error {
	return MarkPayoutReleased(ctx, s.DB, bookingID, at)
}
