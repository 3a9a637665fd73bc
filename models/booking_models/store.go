package booking_models

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

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return GetBookingByID(ctx, s.DB, id)
}

func (s *Store) Transition(ctx context.Context, id uuid.UUID,
	expected, next shared_models.BookingStatus, extra TransitionExtra) (*Booking, error) {
	return TransitionStatus(ctx, s.DB, id, expected, next, extra)
}

func (s *Store) SetPayoutStatus(ctx context.Context, id uuid.UUID,
	expected, next shared_models.PayoutStatus) error {
	return SetPayoutStatus(ctx, s.DB, id, expected, next)
}

func (s *Store) ListPayoutDue(ctx context.Context, now time.Time, limit int) ([]*Booking, error) {
	return ListPayoutDue(ctx, s.DB, now, limit)
}
