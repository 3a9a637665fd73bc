package webhook_controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderstay/platform/clients"
	"github.com/wanderstay/platform/models/booking_models"
	"github.com/wanderstay/platform/models/payment_models"
	"github.com/wanderstay/platform/models/realtor_models"
	"github.com/wanderstay/platform/models/shared_models"
	"github.com/wanderstay/platform/models/user_models"
)

// ---- in-memory fakes ----

type fakeBookingStore struct {
	bookings map[uuid.UUID]*booking_models.Booking
}

func (f *fakeBookingStore) GetByID(_ context.Context, id uuid.UUID) (*booking_models.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, booking_models.ErrBookingNotFound
	}
	return b, nil
}

func (f *fakeBookingStore) Transition(_ context.Context, id uuid.UUID,
	expected, next shared_models.BookingStatus, extra booking_models.TransitionExtra) (*booking_models.Booking, error) {
	if !shared_models.CanTransitionBooking(expected, next) {
		return nil, booking_models.ErrIllegalTransition
	}
	b, ok := f.bookings[id]
	if !ok {
		return nil, booking_models.ErrBookingNotFound
	}
	if b.Status != expected {
		return nil, fmt.Errorf("%w (wanted %s, found %s)", booking_models.ErrStatusConflict, expected, b.Status)
	}
	b.Status = next
	if extra.PayoutReleaseDate != nil {
		b.PayoutReleaseDate = extra.PayoutReleaseDate
	}
	if extra.PayoutStatus != nil {
		b.PayoutStatus = *extra.PayoutStatus
	}
	return b, nil
}

func (f *fakeBookingStore) SetPayoutStatus(_ context.Context, id uuid.UUID,
	expected, next shared_models.PayoutStatus) error {
	b, ok := f.bookings[id]
	if !ok || b.PayoutStatus != expected {
		return booking_models.ErrStatusConflict
	}
	b.PayoutStatus = next
	return nil
}

type fakePaymentStore struct {
	payments map[uuid.UUID]*payment_models.Payment

	// statusUpdateFailures makes the next N UpdateStatusAndReference calls
	// fail, to exercise the gateway-redelivery path.
	statusUpdateFailures int
}

func (f *fakePaymentStore) GetByBookingID(_ context.Context, bookingID uuid.UUID) (*payment_models.Payment, error) {
	p, ok := f.payments[bookingID]
	if !ok {
		return nil, payment_models.ErrPaymentNotFound
	}
	return p, nil
}

func (f *fakePaymentStore) GetByTransactionID(_ context.Context, provider, txnID string) (*payment_models.Payment, error) {
	for _, p := range f.payments {
		if p.GatewayProvider == provider && p.GatewayTransactionID == txnID {
			return p, nil
		}
	}
	return nil, payment_models.ErrPaymentNotFound
}

func (f *fakePaymentStore) HasProcessedEvent(_ context.Context, bookingID uuid.UUID, eventID string) (bool, error) {
	p, ok := f.payments[bookingID]
	if !ok {
		return false, payment_models.ErrPaymentNotFound
	}
	for _, seen := range p.Metadata.ProcessedEvents {
		if seen == eventID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePaymentStore) MarkEventProcessed(_ context.Context, bookingID uuid.UUID, eventID string) (bool, error) {
	p, ok := f.payments[bookingID]
	if !ok {
		return false, payment_models.ErrPaymentNotFound
	}
	for _, seen := range p.Metadata.ProcessedEvents {
		if seen == eventID {
			return false, nil
		}
	}
	p.Metadata.ProcessedEvents = append(p.Metadata.ProcessedEvents, eventID)
	return true, nil
}

func (f *fakePaymentStore) UpdateStatusAndReference(_ context.Context, bookingID uuid.UUID,
	status shared_models.PaymentStatus, provider, txnID string) error {
	if f.statusUpdateFailures > 0 {
		f.statusUpdateFailures--
		return errors.New("connection reset by peer")
	}
	p, ok := f.payments[bookingID]
	if !ok {
		return payment_models.ErrPaymentNotFound
	}
	p.Status = status
	p.GatewayProvider = provider
	if txnID != "" {
		p.GatewayTransactionID = txnID
	}
	return nil
}

func (f *fakePaymentStore) SetTransferID(_ context.Context, bookingID uuid.UUID, transferID string) error {
	p, ok := f.payments[bookingID]
	if !ok {
		return payment_models.ErrPaymentNotFound
	}
	p.GatewayTransferID = transferID
	return nil
}

func (f *fakePaymentStore) SetFees(_ context.Context, bookingID uuid.UUID, gatewayFee, platformNet float64) error {
	p, ok := f.payments[bookingID]
	if !ok {
		return payment_models.ErrPaymentNotFound
	}
	p.GatewayFee = gatewayFee
	p.PlatformNet = platformNet
	return nil
}

func (f *fakePaymentStore) MarkPayoutReleased(_ context.Context, bookingID uuid.UUID, at time.Time) error {
	p, ok := f.payments[bookingID]
	if !ok {
		return payment_models.ErrPaymentNotFound
	}
	p.PayoutReleased = true
	p.PayoutReleasedAt = &at
	return nil
}

type fakeRealtorStore struct {
	realtors map[uuid.UUID]*realtor_models.Realtor
}

func (f *fakeRealtorStore) GetByID(_ context.Context, id uuid.UUID) (*realtor_models.Realtor, error) {
	r, ok := f.realtors[id]
	if !ok {
		return nil, realtor_models.ErrRealtorNotFound
	}
	return r, nil
}

func (f *fakeRealtorStore) UpdateAccountStatusByStripeID(_ context.Context, accountID string, payoutsEnabled bool) (bool, error) {
	for _, r := range f.realtors {
		if r.StripeAccountID != nil && *r.StripeAccountID == accountID {
			r.PayoutsEnabled = payoutsEnabled
			return true, nil
		}
	}
	return false, nil
}

type fakeUserStore struct {
	users map[uuid.UUID]*user_models.User
}

func (f *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*user_models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, user_models.ErrUserNotFound
	}
	return u, nil
}

type fakeStripeClient struct {
	balanceFee int64
	balanceErr error
}

func (f *fakeStripeClient) ConstructEvent([]byte, string) (stripe.Event, error) {
	return stripe.Event{}, nil
}

func (f *fakeStripeClient) GetChargeBalanceTransaction(_ context.Context, chargeID string) (*stripe.BalanceTransaction, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return &stripe.BalanceTransaction{Fee: f.balanceFee}, nil
}

func (f *fakeStripeClient) CreateTransfer(_ context.Context, amountMinor int64, currency, destination, transferGroup string) (*stripe.Transfer, error) {
	return &stripe.Transfer{ID: "tr_fake"}, nil
}

func (f *fakeStripeClient) CreateAccount(_ context.Context, email string) (*stripe.Account, error) {
	return &stripe.Account{ID: "acct_new"}, nil
}

func (f *fakeStripeClient) GetAccount(_ context.Context, accountID string) (*stripe.Account, error) {
	return &stripe.Account{ID: accountID}, nil
}

func (f *fakeStripeClient) CreateAccountLink(_ context.Context, accountID, refreshURL, returnURL string) (string, error) {
	return "https://connect.stripe.test/onboard", nil
}

func (f *fakeStripeClient) CreateLoginLink(_ context.Context, accountID string) (string, error) {
	return "https://connect.stripe.test/login", nil
}

func (f *fakeStripeClient) CreateRefund(_ context.Context, paymentIntentID string, amountMinor int64) (*stripe.Refund, error) {
	return &stripe.Refund{ID: "re_fake"}, nil
}

type fakePaystackClient struct {
	txn *clients.PaystackTransaction
}

func (f *fakePaystackClient) VerifyWebhookSignature(string, []byte) bool { return true }

func (f *fakePaystackClient) VerifyTransaction(_ context.Context, reference string) (*clients.PaystackTransaction, error) {
	return f.txn, nil
}

func (f *fakePaystackClient) CreateRefund(_ context.Context, transactionID string, amountMinor int64) (*clients.PaystackRefund, error) {
	return &clients.PaystackRefund{ID: 1, Status: "processed", Amount: amountMinor}, nil
}

type fakeAudit struct {
	actions []string
}

func (f *fakeAudit) Record(_ context.Context, action, entityType, entityID string, details map[string]interface{}) {
	f.actions = append(f.actions, action)
}

type fakeMailer struct {
	receipts []string
	notices  []string
}

func (f *fakeMailer) SendPaymentReceipt(to string, bookingID uuid.UUID, amount float64, currency string) error {
	f.receipts = append(f.receipts, to)
	return nil
}

func (f *fakeMailer) SendPayoutNotice(to string, bookingID uuid.UUID, amount float64, currency string) error {
	f.notices = append(f.notices, to)
	return nil
}

// ---- fixtures ----

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type reconcilerFixture struct {
	rec      *Reconciler
	bookings *fakeBookingStore
	payments *fakePaymentStore
	realtors *fakeRealtorStore
	audit    *fakeAudit
	mailer   *fakeMailer

	bookingID uuid.UUID
	guestID   uuid.UUID
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()

	bookingID := uuid.New()
	guestID := uuid.New()
	realtorID := uuid.New()

	bookings := &fakeBookingStore{bookings: map[uuid.UUID]*booking_models.Booking{
		bookingID: {
			ID:                  bookingID,
			GuestID:             guestID,
			RealtorID:           realtorID,
			Status:              shared_models.BookingStatusPending,
			PayoutStatus:        shared_models.PayoutStatusPending,
			RealtorPayoutAmount: 85.00,
			Currency:            "USD",
		},
	}}
	payments := &fakePaymentStore{payments: map[uuid.UUID]*payment_models.Payment{
		bookingID: {
			ID:                 uuid.New(),
			BookingID:          bookingID,
			Amount:             100.00,
			Currency:           "USD",
			Status:             shared_models.PaymentStatusPending,
			ServiceFeeAmount:   5.00,
			PlatformCommission: 10.00,
		},
	}}
	acct := "acct_r1"
	realtors := &fakeRealtorStore{realtors: map[uuid.UUID]*realtor_models.Realtor{
		realtorID: {ID: realtorID, Email: "host@example.com", StripeAccountID: &acct},
	}}
	users := &fakeUserStore{users: map[uuid.UUID]*user_models.User{
		guestID: {ID: guestID, Email: "guest@example.com"},
	}}
	audit := &fakeAudit{}
	mailer := &fakeMailer{}

	rec := &Reconciler{
		Bookings:     bookings,
		Payments:     payments,
		Realtors:     realtors,
		Users:        users,
		Stripe:       &fakeStripeClient{balanceFee: 150},
		Paystack:     &fakePaystackClient{},
		Mailer:       mailer,
		Audit:        audit,
		EscrowOffset: 24 * time.Hour,
		Now:          func() time.Time { return testNow },
	}
	return &reconcilerFixture{
		rec:      rec,
		bookings: bookings,
		payments: payments,
		realtors: realtors,
		audit:    audit,
		mailer:   mailer,

		bookingID: bookingID,
		guestID:   guestID,
	}
}

func stripeEvent(t *testing.T, id, eventType string, obj interface{}) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(obj)
	require.NoError(t, err)
	return stripe.Event{
		ID:   id,
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: raw},
	}
}

// ---- tests ----

func TestHandlePaymentIntentSucceeded(t *testing.T) {
	fx := newReconcilerFixture(t)
	event := stripeEvent(t, "evt_1", "payment_intent.succeeded", map[string]interface{}{
		"id":            "pi_1",
		"metadata":      map[string]string{"booking_id": fx.bookingID.String()},
		"latest_charge": map[string]string{"id": "ch_1"},
	})

	require.NoError(t, fx.rec.HandleStripeEvent(context.Background(), event))

	b := fx.bookings.bookings[fx.bookingID]
	assert.Equal(t, shared_models.BookingStatusConfirmed, b.Status)
	require.NotNil(t, b.PayoutReleaseDate)
	assert.Equal(t, testNow.Add(24*time.Hour), *b.PayoutReleaseDate)
	assert.Equal(t, shared_models.PayoutStatusPending, b.PayoutStatus)

	p := fx.payments.payments[fx.bookingID]
	assert.Equal(t, shared_models.PaymentStatusCompleted, p.Status)
	assert.Equal(t, "pi_1", p.GatewayTransactionID)
	assert.Equal(t, shared_models.GatewayStripe, p.GatewayProvider)

	// 150 minor units is 1.50; net = 5.00 + 10.00 - 1.50.
	assert.Equal(t, 1.50, p.GatewayFee)
	assert.Equal(t, 13.50, p.PlatformNet)

	assert.Contains(t, fx.audit.actions, "payment.confirmed")
	assert.Equal(t, []string{"guest@example.com"}, fx.mailer.receipts)
}

func TestHandlePaymentIntentSucceededReplay(t *testing.T) {
	fx := newReconcilerFixture(t)
	event := stripeEvent(t, "evt_1", "payment_intent.succeeded", map[string]interface{}{
		"id":       "pi_1",
		"metadata": map[string]string{"booking_id": fx.bookingID.String()},
	})

	require.NoError(t, fx.rec.HandleStripeEvent(context.Background(), event))

	// Poison the fee fields, then replay; a dedup skip must not touch them.
	fx.payments.payments[fx.bookingID].GatewayFee = 99
	require.NoError(t, fx.rec.HandleStripeEvent(context.Background(), event))

	assert.Equal(t, float64(99), fx.payments.payments[fx.bookingID].GatewayFee)
	assert.Equal(t, shared_models.BookingStatusConfirmed, fx.bookings.bookings[fx.bookingID].Status)
	assert.Len(t, fx.payments.payments[fx.bookingID].Metadata.ProcessedEvents, 1)
}

func TestHandlePaymentIntentSucceededRetriesAfterWriteFailure(t *testing.T) {
	fx := newReconcilerFixture(t)
	fx.payments.statusUpdateFailures = 1
	event := stripeEvent(t, "evt_retry", "payment_intent.succeeded", map[string]interface{}{
		"id":       "pi_1",
		"metadata": map[string]string{"booking_id": fx.bookingID.String()},
	})

	// The payment write fails, so the handler must error out and leave the
	// event unclaimed for the gateway's redelivery.
	require.Error(t, fx.rec.HandleStripeEvent(context.Background(), event))
	assert.Equal(t, shared_models.PaymentStatusPending, fx.payments.payments[fx.bookingID].Status)
	assert.Empty(t, fx.payments.payments[fx.bookingID].Metadata.ProcessedEvents)

	// Redelivery completes the reconciliation.
	require.NoError(t, fx.rec.HandleStripeEvent(context.Background(), event))
	assert.Equal(t, shared_models.BookingStatusConfirmed, fx.bookings.bookings[fx.bookingID].Status)
	assert.Equal(t, shared_models.PaymentStatusCompleted, fx.payments.payments[fx.bookingID].Status)
	assert.Equal(t, []string{"evt_retry"}, fx.payments.payments[fx.bookingID].Metadata.ProcessedEvents)
}

func TestHandlePaymentIntentSucceededAfterManualConfirm(t *testing.T) {
	fx := newReconcilerFixture(t)
	fx.bookings.bookings[fx.bookingID].Status = shared_models.BookingStatusConfirmed

	event := stripeEvent(t, "evt_2", "payment_intent.succeeded", map[string]interface{}{
		"id":       "pi_1",
		"metadata": map[string]string{"booking_id": fx.bookingID.String()},
	})

	// Status conflict is tolerated; the payment record still reconciles.
	require.NoError(t, fx.rec.HandleStripeEvent(context.Background(), event))
	assert.Equal(t, shared_models.PaymentStatusCompleted, fx.payments.payments[fx.bookingID].Status)
}

func TestHandlePaymentIntentSucceededUnknownBooking(t *testing.T) {
	fx := newReconcilerFixture(t)
	event := stripeEvent(t, "evt_3", "payment_intent.succeeded", map[string]interface{}{
		"id":       "pi_9",
		"metadata": map[string]string{"booking_id": uuid.New().String()},
	})

	// Unknown bookings are acknowledged, not retried forever.
	assert.NoError(t, fx.rec.HandleStripeEvent(context.Background(), event))
}

func TestHandlePaymentIntentSucceededMissingMetadata(t *testing.T) {
	fx := newReconcilerFixture(t)
	event := stripeEvent(t, "evt_4", "payment_intent.succeeded", map[string]interface{}{
		"id": "pi_9",
	})
	assert.NoError(t, fx.rec.HandleStripeEvent(context.Background(), event))
}

func TestHandlePaymentIntentFailed(t *testing.T) {
	fx := newReconcilerFixture(t)
	event := stripeEvent(t, "evt_5", "payment_intent.payment_failed", map[string]interface{}{
		"id":       "pi_1",
		"metadata": map[string]string{"booking_id": fx.bookingID.String()},
	})

	require.NoError(t, fx.rec.HandleStripeEvent(context.Background(), event))
	assert.Equal(t, shared_models.BookingStatusCancelled, fx.bookings.bookings[fx.bookingID].Status)
	assert.Equal(t, shared_models.PaymentStatusFailed, fx.payments.payments[fx.bookingID].Status)
}

func TestHandlePaymentIntentFailedAfterConfirmation(t *testing.T) {
	fx := newReconcilerFixture(t)
	fx.bookings.bookings[fx.bookingID].Status = shared_models.BookingStatusConfirmed
	fx.payments.payments[fx.bookingID].Status = shared_models.PaymentStatusCompleted
	fx.payments.payments[fx.bookingID].GatewayProvider = shared_models.GatewayStripe
	fx.payments.payments[fx.bookingID].GatewayTransactionID = "pi_1"

	// A late failure event for an earlier attempt must not unwind a booking
	// that already reconciled to CONFIRMED.
	event := stripeEvent(t, "evt_late_fail", "payment_intent.payment_failed", map[string]interface{}{
		"id":       "pi_0",
		"metadata": map[string]string{"booking_id": fx.bookingID.String()},
	})

	require.NoError(t, fx.rec.HandleStripeEvent(context.Background(), event))

	assert.Equal(t, shared_models.BookingStatusConfirmed, fx.bookings.bookings[fx.bookingID].Status)
	assert.Equal(t, shared_models.PaymentStatusCompleted, fx.payments.payments[fx.bookingID].Status)
	assert.Contains(t, fx.payments.payments[fx.bookingID].Metadata.ProcessedEvents, "evt_late_fail")
}

func TestHandlePaystackChargeFailedAfterConfirmation(t *testing.T) {
	fx := newReconcilerFixture(t)
	fx.bookings.bookings[fx.bookingID].Status = shared_models.BookingStatusConfirmed
	fx.payments.payments[fx.bookingID].Status = shared_models.PaymentStatusCompleted

	err := fx.rec.handlePaystackChargeFailed(context.Background(), "paystack:charge.failed:ref_0", fx.bookingID, "ref_0")
	require.NoError(t, err)

	assert.Equal(t, shared_models.BookingStatusConfirmed, fx.bookings.bookings[fx.bookingID].Status)
	assert.Equal(t, shared_models.PaymentStatusCompleted, fx.payments.payments[fx.bookingID].Status)
}

func TestHandleDisputeCreated(t *testing.T) {
	fx := newReconcilerFixture(t)
	fx.bookings.bookings[fx.bookingID].Status = shared_models.BookingStatusConfirmed
	fx.payments.payments[fx.bookingID].GatewayProvider = shared_models.GatewayStripe
	fx.payments.payments[fx.bookingID].GatewayTransactionID = "pi_1"

	event := stripeEvent(t, "evt_6", "charge.dispute.created", map[string]interface{}{
		"id":             "dp_1",
		"payment_intent": map[string]string{"id": "pi_1"},
	})

	require.NoError(t, fx.rec.HandleStripeEvent(context.Background(), event))

	b := fx.bookings.bookings[fx.bookingID]
	assert.Equal(t, shared_models.BookingStatusCancelled, b.Status)
	assert.Equal(t, shared_models.PayoutStatusFailed, b.PayoutStatus)
	assert.Contains(t, fx.audit.actions, "payment.disputed")
}

func TestHandleTransferPaid(t *testing.T) {
	fx := newReconcilerFixture(t)
	fx.bookings.bookings[fx.bookingID].Status = shared_models.BookingStatusConfirmed

	event := stripeEvent(t, "evt_7", "transfer.paid", map[string]interface{}{
		"id":             "tr_1",
		"transfer_group": fx.bookingID.String(),
	})

	require.NoError(t, fx.rec.HandleStripeEvent(context.Background(), event))

	assert.Equal(t, shared_models.PayoutStatusReleased, fx.bookings.bookings[fx.bookingID].PayoutStatus)
	assert.True(t, fx.payments.payments[fx.bookingID].PayoutReleased)
	assert.Contains(t, fx.audit.actions, "payout.released")

	// Replaying the same event acknowledges without error.
	require.NoError(t, fx.rec.HandleStripeEvent(context.Background(), event))
}

func TestHandleTransferFailed(t *testing.T) {
	fx := newReconcilerFixture(t)
	fx.bookings.bookings[fx.bookingID].Status = shared_models.BookingStatusConfirmed

	event := stripeEvent(t, "evt_8", "transfer.failed", map[string]interface{}{
		"id":       "tr_1",
		"metadata": map[string]string{"booking_id": fx.bookingID.String()},
	})

	require.NoError(t, fx.rec.HandleStripeEvent(context.Background(), event))
	assert.Equal(t, shared_models.PayoutStatusFailed, fx.bookings.bookings[fx.bookingID].PayoutStatus)
	assert.Contains(t, fx.audit.actions, "payout.failed")
}

func TestHandleAccountUpdated(t *testing.T) {
	fx := newReconcilerFixture(t)
	event := stripeEvent(t, "evt_9", "account.updated", map[string]interface{}{
		"id":              "acct_r1",
		"payouts_enabled": true,
	})

	require.NoError(t, fx.rec.HandleStripeEvent(context.Background(), event))

	for _, r := range fx.realtors.realtors {
		assert.True(t, r.PayoutsEnabled)
	}
}

func TestHandlePaystackChargeSuccess(t *testing.T) {
	fx := newReconcilerFixture(t)
	fx.rec.Paystack = &fakePaystackClient{txn: &clients.PaystackTransaction{
		Status:    "success",
		Reference: "ref_1",
		Amount:    10000,
		Fees:      150,
		Currency:  "NGN",
	}}

	err := fx.rec.handlePaystackChargeSuccess(context.Background(), "paystack:charge.success:ref_1", fx.bookingID, "ref_1")
	require.NoError(t, err)

	b := fx.bookings.bookings[fx.bookingID]
	assert.Equal(t, shared_models.BookingStatusConfirmed, b.Status)

	p := fx.payments.payments[fx.bookingID]
	assert.Equal(t, shared_models.PaymentStatusCompleted, p.Status)
	assert.Equal(t, shared_models.GatewayPaystack, p.GatewayProvider)
	assert.Equal(t, "ref_1", p.GatewayTransactionID)
	assert.Equal(t, 1.50, p.GatewayFee)
	assert.Equal(t, 13.50, p.PlatformNet)
}

func TestHandlePaystackChargeFailed(t *testing.T) {
	fx := newReconcilerFixture(t)

	err := fx.rec.handlePaystackChargeFailed(context.Background(), "paystack:charge.failed:ref_1", fx.bookingID, "ref_1")
	require.NoError(t, err)

	assert.Equal(t, shared_models.BookingStatusCancelled, fx.bookings.bookings[fx.bookingID].Status)
	p := fx.payments.payments[fx.bookingID]
	assert.Equal(t, shared_models.PaymentStatusFailed, p.Status)
	assert.Equal(t, shared_models.GatewayPaystack, p.GatewayProvider)
	assert.Contains(t, fx.audit.actions, "payment.failed")
}

func TestHandlePaystackTransferSuccess(t *testing.T) {
	fx := newReconcilerFixture(t)
	fx.bookings.bookings[fx.bookingID].Status = shared_models.BookingStatusConfirmed

	err := fx.rec.handlePaystackTransferEvent(context.Background(),
		"paystack:transfer.success:trf_1", "transfer.success", fx.bookingID, "trf_1")
	require.NoError(t, err)

	assert.Equal(t, shared_models.PayoutStatusReleased, fx.bookings.bookings[fx.bookingID].PayoutStatus)
	assert.True(t, fx.payments.payments[fx.bookingID].PayoutReleased)
	assert.Contains(t, fx.audit.actions, "payout.released")

	// Replay acknowledges without error.
	err = fx.rec.handlePaystackTransferEvent(context.Background(),
		"paystack:transfer.success:trf_1", "transfer.success", fx.bookingID, "trf_1")
	require.NoError(t, err)
}

func TestHandlePaystackTransferFailed(t *testing.T) {
	fx := newReconcilerFixture(t)
	fx.bookings.bookings[fx.bookingID].Status = shared_models.BookingStatusConfirmed

	err := fx.rec.handlePaystackTransferEvent(context.Background(),
		"paystack:transfer.failed:trf_1", "transfer.failed", fx.bookingID, "trf_1")
	require.NoError(t, err)

	assert.Equal(t, shared_models.PayoutStatusFailed, fx.bookings.bookings[fx.bookingID].PayoutStatus)
	assert.Contains(t, fx.audit.actions, "payout.failed")
}

func TestUnhandledEventTypeIsAcknowledged(t *testing.T) {
	fx := newReconcilerFixture(t)
	event := stripeEvent(t, "evt_10", "customer.created", map[string]interface{}{"id": "cus_1"})
	assert.NoError(t, fx.rec.HandleStripeEvent(context.Background(), event))
}
