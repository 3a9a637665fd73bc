package webhook_controller

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderstay/platform/clients"
	"github.com/wanderstay/platform/models/shared_models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubStripeConstruct returns a canned event from ConstructEvent so routing
// can be exercised without real signatures.
type stubStripeConstruct struct {
	fakeStripeClient
	event stripe.Event
	err   error
}

func (s *stubStripeConstruct) ConstructEvent([]byte, string) (stripe.Event, error) {
	return s.event, s.err
}

// paystackSigClient keeps real HMAC verification but stubs the API surface.
type paystackSigClient struct {
	real *clients.PaystackClient
	txn  *clients.PaystackTransaction
}

func (p *paystackSigClient) VerifyWebhookSignature(sig string, body []byte) bool {
	return p.real.VerifyWebhookSignature(sig, body)
}

func (p *paystackSigClient) VerifyTransaction(_ context.Context, reference string) (*clients.PaystackTransaction, error) {
	return p.txn, nil
}

func (p *paystackSigClient) CreateRefund(_ context.Context, transactionID string, amountMinor int64) (*clients.PaystackRefund, error) {
	return &clients.PaystackRefund{}, nil
}

func newWebhookRouter(fx *reconcilerFixture) *gin.Engine {
	router := gin.New()
	wc := NewWebhookController(fx.rec)
	router.POST("/webhooks/stripe", wc.StripeWebhook)
	router.POST("/webhooks/paystack", wc.PaystackWebhook)
	return router
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	fx := newReconcilerFixture(t)
	fx.rec.Stripe = &stubStripeConstruct{err: fmt.Errorf("signature mismatch")}
	router := newWebhookRouter(fx)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewBufferString(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bogus")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, shared_models.BookingStatusPending, fx.bookings.bookings[fx.bookingID].Status)
}

func TestStripeWebhookProcessesVerifiedEvent(t *testing.T) {
	fx := newReconcilerFixture(t)
	event := stripeEvent(t, "evt_http_1", "payment_intent.succeeded", map[string]interface{}{
		"id":       "pi_1",
		"metadata": map[string]string{"booking_id": fx.bookingID.String()},
	})
	fx.rec.Stripe = &stubStripeConstruct{fakeStripeClient: fakeStripeClient{balanceFee: 150}, event: event}
	router := newWebhookRouter(fx)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewBufferString(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=valid")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body["received"])
	assert.Equal(t, shared_models.BookingStatusConfirmed, fx.bookings.bookings[fx.bookingID].Status)
}

func TestPaystackWebhookRejectsBadSignature(t *testing.T) {
	fx := newReconcilerFixture(t)
	fx.rec.Paystack = &paystackSigClient{real: clients.NewPaystackClient("sk_test_secret")}
	router := newWebhookRouter(fx)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack",
		bytes.NewBufferString(`{"event":"charge.success"}`))
	req.Header.Set("x-paystack-signature", "deadbeef")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaystackWebhookProcessesVerifiedEvent(t *testing.T) {
	fx := newReconcilerFixture(t)
	fx.rec.Paystack = &paystackSigClient{
		real: clients.NewPaystackClient("sk_test_secret"),
		txn: &clients.PaystackTransaction{
			Status:    "success",
			Reference: "ref_http_1",
			Fees:      200,
			Currency:  "NGN",
		},
	}
	router := newWebhookRouter(fx)

	payload, err := json.Marshal(map[string]interface{}{
		"event": "charge.success",
		"data": map[string]interface{}{
			"reference": "ref_http_1",
			"status":    "success",
			"metadata":  map[string]string{"booking_id": fx.bookingID.String()},
		},
	})
	require.NoError(t, err)

	mac := hmac.New(sha512.New, []byte("sk_test_secret"))
	mac.Write(payload)
	sig := hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", bytes.NewBuffer(payload))
	req.Header.Set("x-paystack-signature", sig)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, shared_models.BookingStatusConfirmed, fx.bookings.bookings[fx.bookingID].Status)
	assert.Equal(t, 2.00, fx.payments.payments[fx.bookingID].GatewayFee)
}
