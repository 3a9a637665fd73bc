package clients

import (
	"context"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeClientWrapper is the narrow surface of Stripe this service consumes.
// The interface exists so webhook and payout flows can be exercised with test
// doubles instead of live gateway calls.
type StripeClientWrapper interface {
	// ConstructEvent verifies the webhook signature over the raw,
	// untransformed payload bytes and returns the parsed event.
	ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error)

	// GetChargeBalanceTransaction returns the settled balance transaction for
	// a charge, carrying the gateway's fee breakdown.
	GetChargeBalanceTransaction(ctx context.Context, chargeID string) (*stripe.BalanceTransaction, error)

	// CreateTransfer moves funds to a connected account. amountMinor is in the
	// currency's smallest unit.
	CreateTransfer(ctx context.Context, amountMinor int64, currency, destination, transferGroup string) (*stripe.Transfer, error)

	// CreateAccount provisions an Express connected account for a realtor.
	CreateAccount(ctx context.Context, email string) (*stripe.Account, error)

	// GetAccount fetches a connected account's current state.
	GetAccount(ctx context.Context, accountID string) (*stripe.Account, error)

	// CreateAccountLink returns a hosted onboarding URL for a connected account.
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)

	// CreateLoginLink returns a dashboard login URL for a connected account.
	CreateLoginLink(ctx context.Context, accountID string) (string, error)

	// CreateRefund refunds part or all of a payment intent.
	CreateRefund(ctx context.Context, paymentIntentID string, amountMinor int64) (*stripe.Refund, error)
}

// StripeClient implements StripeClientWrapper using the official SDK.
type StripeClient struct {
	api           *client.API
	webhookSecret string
}

// NewStripeClient creates a Stripe client bound to the given secret key and
// webhook signing secret.
func NewStripeClient(secretKey, webhookSecret string) *StripeClient {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeClient{
		api:           api,
		webhookSecret: webhookSecret,
	}
}

func (s *StripeClient) ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, s.webhookSecret)
}

func (s *StripeClient) GetChargeBalanceTransaction(ctx context.Context, chargeID string) (*stripe.BalanceTransaction, error) {
	params := &stripe.ChargeParams{
		Params: stripe.Params{Context: ctx},
	}
	params.AddExpand("balance_transaction")

	ch, err := s.api.Charges.Get(chargeID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve charge %s: %w", chargeID, err)
	}
	if ch.BalanceTransaction == nil {
		return nil, fmt.Errorf("charge %s has no settled balance transaction", chargeID)
	}
	return ch.BalanceTransaction, nil
}

func (s *StripeClient) CreateTransfer(ctx context.Context, amountMinor int64, currency, destination, transferGroup string) (*stripe.Transfer, error) {
	params := &stripe.TransferParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(amountMinor),
		Currency:      stripe.String(currency),
		Destination:   stripe.String(destination),
		TransferGroup: stripe.String(transferGroup),
	}
	params.AddMetadata("booking_id", transferGroup)

	tr, err := s.api.Transfers.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer to %s: %w", destination, err)
	}
	return tr, nil
}

func (s *StripeClient) CreateAccount(ctx context.Context, email string) (*stripe.Account, error) {
	params := &stripe.AccountParams{
		Params: stripe.Params{Context: ctx},
		Type:   stripe.String("express"),
		Email:  stripe.String(email),
	}
	acct, err := s.api.Accounts.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create connected account for %s: %w", email, err)
	}
	return acct, nil
}

func (s *StripeClient) GetAccount(ctx context.Context, accountID string) (*stripe.Account, error) {
	params := &stripe.AccountParams{Params: stripe.Params{Context: ctx}}
	acct, err := s.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve account %s: %w", accountID, err)
	}
	return acct, nil
}

func (s *StripeClient) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Params:     stripe.Params{Context: ctx},
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	link, err := s.api.AccountLinks.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create account link for %s: %w", accountID, err)
	}
	return link.URL, nil
}

func (s *StripeClient) CreateLoginLink(ctx context.Context, accountID string) (string, error) {
	params := &stripe.LoginLinkParams{
		Params:  stripe.Params{Context: ctx},
		Account: stripe.String(accountID),
	}
	link, err := s.api.LoginLinks.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create login link for %s: %w", accountID, err)
	}
	return link.URL, nil
}

func (s *StripeClient) CreateRefund(ctx context.Context, paymentIntentID string, amountMinor int64) (*stripe.Refund, error) {
	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(paymentIntentID),
		Amount:        stripe.Int64(amountMinor),
	}
	ref, err := s.api.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create refund for %s: %w", paymentIntentID, err)
	}
	return ref, nil
}
