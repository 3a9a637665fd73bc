package webhook_controller

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wanderstay/platform/logger"
)

// WebhookController terminates gateway webhook deliveries: it verifies the
// signature over the raw body, then hands the parsed event to the reconciler.
// A 2xx acknowledges the delivery; a 5xx asks the gateway to redeliver.
type WebhookController struct {
	Reconciler *Reconciler
}

func NewWebhookController(rec *Reconciler) *WebhookController {
	return &WebhookController{Reconciler: rec}
}

// StripeWebhook handles POST /webhooks/stripe.
func (wc *WebhookController) StripeWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to read Stripe webhook body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	event, err := wc.Reconciler.Stripe.ConstructEvent(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		logger.WarnLogger.Warnf("Rejected Stripe webhook with bad signature: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	logger.InfoLogger.Infof("Received Stripe event %s (%s)", event.ID, event.Type)

	if err := wc.Reconciler.HandleStripeEvent(c.Request.Context(), event); err != nil {
		logger.ErrorLogger.Errorf("Failed to process Stripe event %s: %v", event.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// paystackEnvelope is the outer shape of every Paystack webhook delivery.
type paystackEnvelope struct {
	Event string `json:"event"`
	Data  struct {
		ID        int64  `json:"id"`
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		Metadata  struct {
			BookingID string `json:"booking_id"`
		} `json:"metadata"`
	} `json:"data"`
}

// PaystackWebhook handles POST /webhooks/paystack.
func (wc *WebhookController) PaystackWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to read Paystack webhook body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if !wc.Reconciler.Paystack.VerifyWebhookSignature(c.GetHeader("x-paystack-signature"), payload) {
		logger.WarnLogger.Warnf("Rejected Paystack webhook with bad signature from %s", c.ClientIP())
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	var envelope paystackEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		logger.ErrorLogger.Errorf("Failed to parse Paystack webhook body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	logger.InfoLogger.Infof("Received Paystack event %s (ref %s)", envelope.Event, envelope.Data.Reference)

	if err := wc.handlePaystackEvent(c, envelope); err != nil {
		logger.ErrorLogger.Errorf("Failed to process Paystack event %s (ref %s): %v",
			envelope.Event, envelope.Data.Reference, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": true})
}

func (wc *WebhookController) handlePaystackEvent(c *gin.Context, envelope paystackEnvelope) error {
	switch envelope.Event {
	case "charge.success":
		bookingID, err := uuid.Parse(envelope.Data.Metadata.BookingID)
		if err != nil {
			logger.WarnLogger.Warnf("Paystack charge %s carries no usable booking_id metadata, acknowledging", envelope.Data.Reference)
			return nil
		}
		// Paystack sends no event id, so dedup keys on event type plus reference.
		eventID := fmt.Sprintf("paystack:%s:%s", envelope.Event, envelope.Data.Reference)
		return wc.Reconciler.handlePaystackChargeSuccess(c.Request.Context(), eventID, bookingID, envelope.Data.Reference)

	case "charge.failed":
		bookingID, err := uuid.Parse(envelope.Data.Metadata.BookingID)
		if err != nil {
			logger.WarnLogger.Warnf("Paystack charge %s carries no usable booking_id metadata, acknowledging", envelope.Data.Reference)
			return nil
		}
		eventID := fmt.Sprintf("paystack:%s:%s", envelope.Event, envelope.Data.Reference)
		return wc.Reconciler.handlePaystackChargeFailed(c.Request.Context(), eventID, bookingID, envelope.Data.Reference)

	case "transfer.success", "transfer.failed":
		bookingID, err := uuid.Parse(envelope.Data.Metadata.BookingID)
		if err != nil {
			logger.WarnLogger.Warnf("Paystack transfer %s carries no usable booking_id metadata, acknowledging", envelope.Data.Reference)
			return nil
		}
		eventID := fmt.Sprintf("paystack:%s:%s", envelope.Event, envelope.Data.Reference)
		return wc.Reconciler.handlePaystackTransferEvent(c.Request.Context(), eventID, envelope.Event, bookingID, envelope.Data.Reference)

	case "refund.processed":
		logger.InfoLogger.Infof("Paystack refund processed for reference %s", envelope.Data.Reference)
		return nil

	default:
		logger.InfoLogger.Infof("Ignoring unhandled Paystack event type %s", envelope.Event)
		return nil
	}
}
