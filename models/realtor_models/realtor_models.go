package realtor_models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wanderstay/platform/logger"
)

var ErrRealtorNotFound = errors.New("realtor not found")

// Realtor represents a host who receives payouts for confirmed bookings.
type Realtor struct {
	ID                     uuid.UUID `json:"id"`
	Email                  string    `json:"email"`
	Name                   string    `json:"name"`
	Gateway                string    `json:"gateway"` // payout gateway: "stripe" or "paystack"
	StripeAccountID        *string   `json:"stripe_account_id"`
	PayoutsEnabled         bool      `json:"payouts_enabled"`
	PaystackSubaccountCode *string   `json:"paystack_subaccount_code"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

const realtorColumns = `id, email, name, gateway, stripe_account_id, payouts_enabled,
	paystack_subaccount_code, created_at, updated_at`

func scanRealtor(row pgx.Row) (*Realtor, error) {
	r := &Realtor{}
	err := row.Scan(
		&r.ID, &r.Email, &r.Name, &r.Gateway, &r.StripeAccountID, &r.PayoutsEnabled,
		&r.PaystackSubaccountCode, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetRealtorByID fetches a realtor record.
func GetRealtorByID(ctx context.Context, db *pgxpool.Pool, id uuid.UUID) (*Realtor, error) {
	p, err := scanRealtor(db.QueryRow(ctx, `SELECT `+realtorColumns+` FROM realtors WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRealtorNotFound
		}
		logger.ErrorLogger.Errorf("Failed to fetch realtor %s: %v", id, err)
		return nil, fmt.Errorf("database error fetching realtor: %w", err)
	}
	return p, nil
}

// SetStripeAccountID stores the connected account id created during onboarding.
func SetStripeAccountID(ctx context.Context, db *pgxpool.Pool, realtorID uuid.UUID, accountID string) error {
	cmdTag, err := db.Exec(ctx,
		`UPDATE realtors SET stripe_account_id = $2, gateway = 'stripe', updated_at = NOW() WHERE id = $1`,
		realtorID, accountID)
	if err != nil {
		return fmt.Errorf("failed to set stripe account id: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrRealtorNotFound
	}
	return nil
}

// UpdateAccountStatusByStripeID applies an account.updated webhook to the
// realtor owning the connected account. Unknown accounts are not an error;
// onboarding may still be in flight.
func UpdateAccountStatusByStripeID(ctx context.Context, db *pgxpool.Pool, accountID string, payoutsEnabled bool) (bool, error) {
	cmdTag, err := db.Exec(ctx,
		`UPDATE realtors SET payouts_enabled = $2, updated_at = NOW() WHERE stripe_account_id = $1`,
		accountID, payoutsEnabled)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to update account status for %s: %v", accountID, err)
		return false, fmt.Errorf("failed to update realtor account status: %w", err)
	}
	return cmdTag.RowsAffected() > 0, nil
}
