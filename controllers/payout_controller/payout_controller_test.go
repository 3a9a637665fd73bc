package payout_controller

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderstay/platform/models/booking_models"
	"github.com/wanderstay/platform/models/realtor_models"
	"github.com/wanderstay/platform/models/shared_models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

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

func (f *fakeBookingStore) SetPayoutStatus(_ context.Context, id uuid.UUID,
	expected, next shared_models.PayoutStatus) error {
	b, ok := f.bookings[id]
	if !ok || b.PayoutStatus != expected {
		return booking_models.ErrStatusConflict
	}
	b.PayoutStatus = next
	return nil
}

func (f *fakeBookingStore) ListPayoutDue(_ context.Context, now time.Time, limit int) ([]*booking_models.Booking, error) {
	var due []*booking_models.Booking
	for _, b := range f.bookings {
		if b.Status == shared_models.BookingStatusConfirmed &&
			b.PayoutStatus == shared_models.PayoutStatusPending &&
			b.PayoutReleaseDate != nil && !b.PayoutReleaseDate.After(now) {
			due = append(due, b)
		}
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

type fakePaymentStore struct {
	transferIDs map[uuid.UUID]string
	released    map[uuid.UUID]time.Time
}

func (f *fakePaymentStore) SetTransferID(_ context.Context, bookingID uuid.UUID, transferID string) error {
	f.transferIDs[bookingID] = transferID
	return nil
}

func (f *fakePaymentStore) MarkPayoutReleased(_ context.Context, bookingID uuid.UUID, at time.Time) error {
	f.released[bookingID] = at
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

func (f *fakeRealtorStore) SetStripeAccountID(_ context.Context, realtorID uuid.UUID, accountID string) error {
	r, ok := f.realtors[realtorID]
	if !ok {
		return realtor_models.ErrRealtorNotFound
	}
	r.StripeAccountID = &accountID
	return nil
}

type fakeStripe struct {
	failDestinations map[string]bool
	transfers        []string
}

func (f *fakeStripe) ConstructEvent([]byte, string) (stripe.Event, error) {
	return stripe.Event{}, nil
}

func (f *fakeStripe) GetChargeBalanceTransaction(_ context.Context, chargeID string) (*stripe.BalanceTransaction, error) {
	return &stripe.BalanceTransaction{}, nil
}

func (f *fakeStripe) CreateTransfer(_ context.Context, amountMinor int64, currency, destination, transferGroup string) (*stripe.Transfer, error) {
	if f.failDestinations[destination] {
		return nil, fmt.Errorf("insufficient platform balance")
	}
	id := fmt.Sprintf("tr_%d", len(f.transfers)+1)
	f.transfers = append(f.transfers, id)
	return &stripe.Transfer{ID: id}, nil
}

func (f *fakeStripe) CreateAccount(_ context.Context, email string) (*stripe.Account, error) {
	return &stripe.Account{ID: "acct_new"}, nil
}

func (f *fakeStripe) GetAccount(_ context.Context, accountID string) (*stripe.Account, error) {
	return &stripe.Account{ID: accountID, PayoutsEnabled: true}, nil
}

func (f *fakeStripe) CreateAccountLink(_ context.Context, accountID, refreshURL, returnURL string) (string, error) {
	return "https://connect.stripe.test/onboard", nil
}

func (f *fakeStripe) CreateLoginLink(_ context.Context, accountID string) (string, error) {
	return "https://connect.stripe.test/login", nil
}

func (f *fakeStripe) CreateRefund(_ context.Context, paymentIntentID string, amountMinor int64) (*stripe.Refund, error) {
	return &stripe.Refund{ID: "re_1"}, nil
}

type fakeNotifier struct {
	notices []string
}

func (f *fakeNotifier) SendPayoutNotice(to string, bookingID uuid.UUID, amount float64, currency string) error {
	f.notices = append(f.notices, to)
	return nil
}

type fakeAudit struct {
	actions []string
}

func (f *fakeAudit) Record(_ context.Context, action, entityType, entityID string, details map[string]interface{}) {
	f.actions = append(f.actions, action)
}

var sweepNow = time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)

func dueBooking(realtorID uuid.UUID, amount float64) *booking_models.Booking {
	release := sweepNow.Add(-time.Hour)
	return &booking_models.Booking{
		ID:                  uuid.New(),
		RealtorID:           realtorID,
		Status:              shared_models.BookingStatusConfirmed,
		PayoutStatus:        shared_models.PayoutStatusPending,
		PayoutReleaseDate:   &release,
		RealtorPayoutAmount: amount,
		Currency:            "USD",
	}
}

func stripeRealtor(email, acct string, enabled bool) *realtor_models.Realtor {
	return &realtor_models.Realtor{
		ID:              uuid.New(),
		Email:           email,
		Gateway:         shared_models.GatewayStripe,
		StripeAccountID: &acct,
		PayoutsEnabled:  enabled,
	}
}

func newService(bookings *fakeBookingStore, realtors *fakeRealtorStore, st *fakeStripe) (*PayoutService, *fakePaymentStore, *fakeNotifier, *fakeAudit) {
	payments := &fakePaymentStore{transferIDs: map[uuid.UUID]string{}, released: map[uuid.UUID]time.Time{}}
	notifier := &fakeNotifier{}
	audit := &fakeAudit{}
	svc := &PayoutService{
		Bookings: bookings,
		Payments: payments,
		Realtors: realtors,
		Stripe:   st,
		Mailer:   notifier,
		Audit:    audit,
		Now:      func() time.Time { return sweepNow },
	}
	return svc, payments, notifier, audit
}

func TestReleaseDuePayoutsIsolatesFailures(t *testing.T) {
	r1 := stripeRealtor("a@example.com", "acct_1", true)
	r2 := stripeRealtor("b@example.com", "acct_2", true)
	r3 := stripeRealtor("c@example.com", "acct_3", true)
	realtors := &fakeRealtorStore{realtors: map[uuid.UUID]*realtor_models.Realtor{
		r1.ID: r1, r2.ID: r2, r3.ID: r3,
	}}

	b1 := dueBooking(r1.ID, 80)
	b2 := dueBooking(r2.ID, 120)
	b3 := dueBooking(r3.ID, 65.50)
	bookings := &fakeBookingStore{bookings: map[uuid.UUID]*booking_models.Booking{
		b1.ID: b1, b2.ID: b2, b3.ID: b3,
	}}

	st := &fakeStripe{failDestinations: map[string]bool{"acct_2": true}}
	svc, payments, notifier, _ := newService(bookings, realtors, st)

	summary, err := svc.ReleaseDuePayouts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Scanned)
	assert.Equal(t, 2, summary.Released)
	assert.Equal(t, 1, summary.Failed)

	assert.Equal(t, shared_models.PayoutStatusReleased, b1.PayoutStatus)
	assert.Equal(t, shared_models.PayoutStatusFailed, b2.PayoutStatus)
	assert.Equal(t, shared_models.PayoutStatusReleased, b3.PayoutStatus)

	assert.NotEmpty(t, payments.transferIDs[b1.ID])
	assert.Empty(t, payments.transferIDs[b2.ID])
	assert.Len(t, notifier.notices, 2)
}

func TestReleaseDuePayoutsPaystackIsBookkeepingOnly(t *testing.T) {
	code := "SUB_abc"
	r := &realtor_models.Realtor{
		ID:                     uuid.New(),
		Email:                  "split@example.com",
		Gateway:                shared_models.GatewayPaystack,
		PaystackSubaccountCode: &code,
	}
	realtors := &fakeRealtorStore{realtors: map[uuid.UUID]*realtor_models.Realtor{r.ID: r}}

	b := dueBooking(r.ID, 50)
	bookings := &fakeBookingStore{bookings: map[uuid.UUID]*booking_models.Booking{b.ID: b}}

	st := &fakeStripe{}
	svc, payments, _, audit := newService(bookings, realtors, st)

	summary, err := svc.ReleaseDuePayouts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Released)
	assert.Equal(t, shared_models.PayoutStatusReleased, b.PayoutStatus)
	assert.Empty(t, st.transfers)
	assert.Equal(t, sweepNow, payments.released[b.ID])
	assert.Contains(t, audit.actions, "payout.released")
}

func TestReleaseDuePayoutsRequiresEnabledAccount(t *testing.T) {
	r := stripeRealtor("pending@example.com", "acct_x", false)
	realtors := &fakeRealtorStore{realtors: map[uuid.UUID]*realtor_models.Realtor{r.ID: r}}

	b := dueBooking(r.ID, 40)
	bookings := &fakeBookingStore{bookings: map[uuid.UUID]*booking_models.Booking{b.ID: b}}

	svc, _, _, audit := newService(bookings, realtors, &fakeStripe{})

	summary, err := svc.ReleaseDuePayouts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, shared_models.PayoutStatusFailed, b.PayoutStatus)
	assert.Contains(t, audit.actions, "payout.failed")
}

func TestRequeuePayout(t *testing.T) {
	r := stripeRealtor("a@example.com", "acct_1", true)
	realtors := &fakeRealtorStore{realtors: map[uuid.UUID]*realtor_models.Realtor{r.ID: r}}

	b := dueBooking(r.ID, 80)
	b.PayoutStatus = shared_models.PayoutStatusFailed
	bookings := &fakeBookingStore{bookings: map[uuid.UUID]*booking_models.Booking{b.ID: b}}

	svc, _, _, _ := newService(bookings, realtors, &fakeStripe{})
	pc := NewPayoutController(svc)

	router := gin.New()
	router.POST("/admin/payouts/:booking_id/requeue", pc.RequeuePayout)

	req := httptest.NewRequest(http.MethodPost, "/admin/payouts/"+b.ID.String()+"/requeue", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, shared_models.PayoutStatusPending, b.PayoutStatus)

	// A second requeue conflicts: the payout is no longer FAILED.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/payouts/"+b.ID.String()+"/requeue", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}
