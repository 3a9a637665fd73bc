package realtor_models

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store mirrors the package query functions behind a method set for injection.
type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Realtor, error) {
	return GetRealtorByID(ctx, s.DB, id)
}

func (s *Store) SetStripeAccountID(ctx context.Context, realtorID uuid.UUID, accountID string) error {
	return SetStripeAccountID(ctx, s.DB, realtorID, accountID)
}

func (s *Store) UpdateAccountStatusByStripeID(ctx context.Context, accountID string, payoutsEnabled bool) (bool, error) {
	return UpdateAccountStatusByStripeID(ctx, s.DB, accountID, payoutsEnabled)
}
