package booking_models

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
	ErrBookingNotFound   = errors.New("booking not found")
	ErrStatusConflict    = errors.New("booking status conflict: current status does not match expected")
	ErrIllegalTransition = errors.New("illegal booking status transition")
)

// Booking represents a reservation of a property for a date range by a guest.
type Booking struct {
	ID                  uuid.UUID                   `json:"id"`
	PropertyID          uuid.UUID                   `json:"property_id"`
	GuestID             uuid.UUID                   `json:"guest_id"`
	RealtorID           uuid.UUID                   `json:"realtor_id"`
	CheckIn             time.Time                   `json:"check_in"`
	CheckOut            time.Time                   `json:"check_out"`
	Status              shared_models.BookingStatus `json:"status"`
	PayoutStatus        shared_models.PayoutStatus  `json:"payout_status"`
	PayoutReleaseDate   *time.Time                  `json:"payout_release_date"`
	RealtorPayoutAmount float64                     `json:"realtor_payout_amount"`
	Currency            string                      `json:"currency"`
	CreatedAt           time.Time                   `json:"created_at"`
	UpdatedAt           time.Time                   `json:"updated_at"`
}

// TransitionExtra carries auxiliary fields applied atomically with a status
// transition. Nil fields are left untouched.
type TransitionExtra struct {
	PayoutReleaseDate *time.Time
	PayoutStatus      *shared_models.PayoutStatus
}

const bookingColumns = `id, property_id, guest_id, realtor_id, check_in, check_out,
	status, payout_status, payout_release_date, realtor_payout_amount, currency,
	created_at, updated_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	b := &Booking{}
	err := row.Scan(
		&b.ID, &b.PropertyID, &b.GuestID, &b.RealtorID, &b.CheckIn, &b.CheckOut,
		&b.Status, &b.PayoutStatus, &b.PayoutReleaseDate, &b.RealtorPayoutAmount,
		&b.Currency, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetBookingByID fetches a single booking.
func GetBookingByID(ctx context.Context, db *pgxpool.Pool, id uuid.UUID) (*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	b, err := scanBooking(db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		logger.ErrorLogger.Errorf("Failed to fetch booking %s: %v", id, err)
		return nil, fmt.Errorf("database error fetching booking: %w", err)
	}
	return b, nil
}

// TransitionStatus performs an optimistic conditional status transition: the
// update only applies when the persisted status still equals expected. A lost
// race surfaces as ErrStatusConflict so callers can treat it as "already
// handled" instead of a fatal error.
func TransitionStatus(ctx context.Context, db *pgxpool.Pool, id uuid.UUID,
	expected, next shared_models.BookingStatus, extra TransitionExtra) (*Booking, error) {

	if !shared_models.CanTransitionBooking(expected, next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, expected, next)
	}

	query := `
		UPDATE bookings
		SET status = $3,
		    payout_release_date = COALESCE($4, payout_release_date),
		    payout_status = COALESCE($5, payout_status),
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + bookingColumns

	b, err := scanBooking(db.QueryRow(ctx, query, id, expected, next, extra.PayoutReleaseDate, extra.PayoutStatus))
	if err == nil {
		logger.InfoLogger.Infof("Booking %s transitioned %s -> %s", id, expected, next)
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		logger.ErrorLogger.Errorf("Failed to transition booking %s to %s: %v", id, next, err)
		return nil, fmt.Errorf("failed to transition booking status: %w", err)
	}

	// Zero rows: either the booking is gone or another writer moved it first.
	var current shared_models.BookingStatus
	err = db.QueryRow(ctx, `SELECT status FROM bookings WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to read booking status after conflict: %w", err)
	}
	logger.WarnLogger.Warnf("Booking %s transition %s -> %s lost race, current status %s", id, expected, next, current)
	return nil, fmt.Errorf("%w (wanted %s, found %s)", ErrStatusConflict, expected, current)
}

// SetPayoutStatus conditionally moves the payout status of a booking. Returns
// ErrStatusConflict when the payout status no longer matches expected.
func SetPayoutStatus(ctx context.Context, db *pgxpool.Pool, id uuid.UUID,
	expected, next shared_models.PayoutStatus) error {

	cmdTag, err := db.Exec(ctx,
		`UPDATE bookings SET payout_status = $3, updated_at = NOW() WHERE id = $1 AND payout_status = $2`,
		id, expected, next)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to set payout status for booking %s: %v", id, err)
		return fmt.Errorf("failed to set payout status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w (payout status, wanted %s)", ErrStatusConflict, expected)
	}
	logger.InfoLogger.Infof("Booking %s payout status %s -> %s", id, expected, next)
	return nil
}

// ListPayoutDue returns confirmed bookings whose escrow window has elapsed and
// whose payout is still pending. FAILED payouts are never re-selected; they
// need an explicit administrative requeue.
func ListPayoutDue(ctx context.Context, db *pgxpool.Pool, now time.Time, limit int) ([]*Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = $1 AND payout_status = $2 AND payout_release_date <= $3
		ORDER BY payout_release_date
		LIMIT $4`

	rows, err := db.Query(ctx, query,
		shared_models.BookingStatusConfirmed, shared_models.PayoutStatusPending, now, limit)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to list payout-due bookings: %v", err)
		return nil, fmt.Errorf("failed to list payout-due bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout-due booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
