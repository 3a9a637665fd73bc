package refund_controller

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wanderstay/platform/clients"
	"github.com/wanderstay/platform/logger"
	"github.com/wanderstay/platform/models/booking_models"
	"github.com/wanderstay/platform/models/payment_models"
	"github.com/wanderstay/platform/models/refund_models"
	"github.com/wanderstay/platform/models/shared_models"
	"github.com/wanderstay/platform/models/user_models"
	"github.com/wanderstay/platform/utils"
)

// Notifier sends refund decision emails. Best effort.
type Notifier interface {
	SendRefundDecision(to string, bookingID uuid.UUID, approved bool, note string, amount float64, currency string) error
}

// AuditRecorder records domain events for the admin audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, action, entityType, entityID string, details map[string]interface{})
}

// RefundController runs the two-stage refund flow: the guest requests, the
// realtor approves or rejects, an admin executes against the gateway.
type RefundController struct {
	DB       *pgxpool.Pool
	Stripe   clients.StripeClientWrapper
	Paystack clients.PaystackClientWrapper
	Mailer   Notifier
	Audit    AuditRecorder
}

func NewRefundController(db *pgxpool.Pool, stripe clients.StripeClientWrapper,
	paystack clients.PaystackClientWrapper, mailer Notifier, audit AuditRecorder) *RefundController {
	return &RefundController{DB: db, Stripe: stripe, Paystack: paystack, Mailer: mailer, Audit: audit}
}

// validateRefundAmount enforces the refund ceiling: a request can never push
// the cumulative refund total past what was actually paid.
func validateRefundAmount(amount, paid, alreadyRefunded float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > paid-alreadyRefunded {
		return ErrExceedsBalance
	}
	return nil
}

// RequestRefund handles POST /bookings/:booking_id/refunds.
func (rc *RefundController) RequestRefund(c *gin.Context) {
	userID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	bookingID, err := uuid.Parse(c.Param("booking_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	var request struct {
		Amount float64 `json:"amount" binding:"required,gt=0"`
		Reason string  `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	booking, err := booking_models.GetBookingByID(c.Request.Context(), rc.DB, bookingID)
	if err != nil {
		if errors.Is(err, booking_models.ErrBookingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load booking"})
		return
	}
	if booking.GuestID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the booking guest can request a refund"})
		return
	}

	payment, err := payment_models.GetPaymentByBookingID(c.Request.Context(), rc.DB, bookingID)
	if err != nil {
		if errors.Is(err, payment_models.ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no payment found for booking"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load payment"})
		return
	}
	if payment.Status != shared_models.PaymentStatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": ErrPaymentNotRefundable.Error()})
		return
	}
	if err := validateRefundAmount(request.Amount, payment.Amount, payment.RefundAmount); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rr, err := refund_models.NewRefundRequest(bookingID, payment.ID, userID, request.Amount, payment.Currency, request.Reason)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create refund request"})
		return
	}
	if err := refund_models.CreateRefundRequest(c.Request.Context(), rc.DB, rr); err != nil {
		if errors.Is(err, refund_models.ErrRefundAlreadyOpen) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create refund request"})
		return
	}

	rc.appendAudit(c.Request.Context(), bookingID, payment_models.RefundAuditEntry{
		RefundRequestID: rr.ID,
		Actor:           "guest",
		Action:          "requested",
		Amount:          request.Amount,
		Note:            request.Reason,
		At:              rr.CreatedAt,
	})
	if rc.Audit != nil {
		rc.Audit.Record(c.Request.Context(), "refund.requested", "refund_request", rr.ID.String(),
			map[string]interface{}{"booking_id": bookingID.String(), "amount": request.Amount})
	}

	c.JSON(http.StatusCreated, rr)
}

// RealtorDecision handles POST /refunds/:id/decision.
func (rc *RefundController) RealtorDecision(c *gin.Context) {
	userID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	refundID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid refund request id"})
		return
	}

	var request struct {
		Approve bool   `json:"approve"`
		Note    string `json:"note"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rr, err := refund_models.GetRefundRequestByID(c.Request.Context(), rc.DB, refundID)
	if err != nil {
		if errors.Is(err, refund_models.ErrRefundRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "refund request not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load refund request"})
		return
	}

	booking, err := booking_models.GetBookingByID(c.Request.Context(), rc.DB, rr.BookingID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load booking"})
		return
	}
	if booking.RealtorID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the booking realtor can decide this refund"})
		return
	}

	updated, err := refund_models.ApplyRealtorDecision(c.Request.Context(), rc.DB, refundID, request.Approve, request.Note)
	if err != nil {
		if errors.Is(err, refund_models.ErrRefundStateConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "refund request already decided"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply decision"})
		return
	}

	action := "realtor_rejected"
	if request.Approve {
		action = "realtor_approved"
	}
	rc.appendAudit(c.Request.Context(), rr.BookingID, payment_models.RefundAuditEntry{
		RefundRequestID: rr.ID,
		Actor:           "realtor",
		Action:          action,
		Amount:          rr.Amount,
		Note:            request.Note,
		At:              updated.UpdatedAt,
	})
	if rc.Audit != nil {
		rc.Audit.Record(c.Request.Context(), "refund."+action, "refund_request", rr.ID.String(), nil)
	}
	rc.notifyDecision(c.Request.Context(), updated, request.Approve, request.Note)

	c.JSON(http.StatusOK, updated)
}

// ProcessRefund handles POST /refunds/:id/process. Admin only. The refundable
// balance is reserved before the gateway call and released again if it fails,
// so the ledger can never understate refunded money.
func (rc *RefundController) ProcessRefund(c *gin.Context) {
	adminID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	refundID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid refund request id"})
		return
	}

	var request struct {
		Note string `json:"note"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	ctx := c.Request.Context()
	rr, err := refund_models.ClaimForProcessing(ctx, rc.DB, refundID, adminID)
	if err != nil {
		if errors.Is(err, refund_models.ErrRefundStateConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "refund request is not approved or is already being processed"})
			return
		}
		if errors.Is(err, refund_models.ErrRefundRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "refund request not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to claim refund request"})
		return
	}

	payment, err := payment_models.GetPaymentByBookingID(ctx, rc.DB, rr.BookingID)
	if err != nil {
		rc.reopen(ctx, refundID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load payment"})
		return
	}

	// Reserve the amount; the in-statement ceiling rejects over-refunds.
	if err := payment_models.IncrementRefundAmount(ctx, rc.DB, rr.BookingID, rr.Amount); err != nil {
		rc.reopen(ctx, refundID)
		if errors.Is(err, payment_models.ErrRefundExceedsBalance) {
			c.JSON(http.StatusConflict, gin.H{"error": ErrExceedsBalance.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reserve refund"})
		return
	}

	providerRefundID, err := rc.executeGatewayRefund(ctx, payment, rr.Amount)
	if err != nil {
		logger.ErrorLogger.Errorf("Gateway refund failed for request %s (booking %s): %v", rr.ID, rr.BookingID, err)
		if revertErr := payment_models.RevertRefundAmount(ctx, rc.DB, rr.BookingID, rr.Amount); revertErr != nil {
			logger.ErrorLogger.Errorf("Failed to release refund reservation for booking %s: %v", rr.BookingID, revertErr)
		}
		rc.reopen(ctx, refundID)
		c.JSON(http.StatusBadGateway, gin.H{"error": "gateway refund failed"})
		return
	}

	completed, err := refund_models.CompleteProcessing(ctx, rc.DB, refundID, rr.Amount, providerRefundID, request.Note)
	if err != nil {
		logger.ErrorLogger.Errorf("Refund %s executed at gateway but not closed: %v", refundID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refund executed but not recorded, manual review required"})
		return
	}

	rc.appendAudit(ctx, rr.BookingID, payment_models.RefundAuditEntry{
		RefundRequestID: rr.ID,
		Actor:           "admin",
		Action:          "processed",
		Amount:          rr.Amount,
		Note:            request.Note,
		At:              *completed.ProcessedAt,
	})
	if rc.Audit != nil {
		rc.Audit.Record(ctx, "refund.processed", "refund_request", rr.ID.String(),
			map[string]interface{}{"booking_id": rr.BookingID.String(), "amount": rr.Amount, "provider_refund_id": providerRefundID})
	}

	c.JSON(http.StatusOK, completed)
}

func (rc *RefundController) executeGatewayRefund(ctx context.Context, payment *payment_models.Payment, amount float64) (string, error) {
	amountMinor := int64(math.Round(amount * 100))
	switch payment.GatewayProvider {
	case shared_models.GatewayStripe:
		refund, err := rc.Stripe.CreateRefund(ctx, payment.GatewayTransactionID, amountMinor)
		if err != nil {
			return "", err
		}
		return refund.ID, nil
	case shared_models.GatewayPaystack:
		refund, err := rc.Paystack.CreateRefund(ctx, payment.GatewayTransactionID, amountMinor)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(refund.ID, 10), nil
	default:
		return "", errors.New("payment has no gateway provider")
	}
}

func (rc *RefundController) reopen(ctx context.Context, refundID uuid.UUID) {
	if err := refund_models.ReopenAfterFailure(ctx, rc.DB, refundID); err != nil {
		logger.ErrorLogger.Errorf("Failed to reopen refund request %s: %v", refundID, err)
	}
}

func (rc *RefundController) appendAudit(ctx context.Context, bookingID uuid.UUID, entry payment_models.RefundAuditEntry) {
	if err := payment_models.AppendRefundAudit(ctx, rc.DB, bookingID, entry); err != nil {
		logger.WarnLogger.Warnf("Failed to append refund audit for booking %s: %v", bookingID, err)
	}
}

func (rc *RefundController) notifyDecision(ctx context.Context, rr *refund_models.RefundRequest, approved bool, note string) {
	if rc.Mailer == nil {
		return
	}
	guest, err := user_models.GetUserByID(ctx, rc.DB, rr.RequesterID)
	if err != nil {
		logger.WarnLogger.Warnf("Cannot resolve requester %s for refund decision email: %v", rr.RequesterID, err)
		return
	}
	if err := rc.Mailer.SendRefundDecision(guest.Email, rr.BookingID, approved, note, rr.Amount, rr.Currency); err != nil {
		logger.WarnLogger.Warnf("Failed to send refund decision email for request %s: %v", rr.ID, err)
	}
}

// GetRefundRequest handles GET /refunds/:id.
func (rc *RefundController) GetRefundRequest(c *gin.Context) {
	userID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	refundID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid refund request id"})
		return
	}

	rr, err := refund_models.GetRefundRequestByID(c.Request.Context(), rc.DB, refundID)
	if err != nil {
		if errors.Is(err, refund_models.ErrRefundRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "refund request not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load refund request"})
		return
	}

	if !rc.canView(c, userID, rr) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to view this refund request"})
		return
	}
	c.JSON(http.StatusOK, rr)
}

// ListBookingRefunds handles GET /bookings/:booking_id/refunds.
func (rc *RefundController) ListBookingRefunds(c *gin.Context) {
	userID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	bookingID, err := uuid.Parse(c.Param("booking_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	booking, err := booking_models.GetBookingByID(c.Request.Context(), rc.DB, bookingID)
	if err != nil {
		if errors.Is(err, booking_models.ErrBookingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load booking"})
		return
	}
	if booking.GuestID != userID && booking.RealtorID != userID && utils.GetUserRoleFromContext(c) != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to view this booking's refunds"})
		return
	}

	requests, err := refund_models.ListRefundRequestsByBooking(c.Request.Context(), rc.DB, bookingID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list refund requests"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"refund_requests": requests})
}

func (rc *RefundController) canView(c *gin.Context, userID uuid.UUID, rr *refund_models.RefundRequest) bool {
	if rr.RequesterID == userID {
		return true
	}
	if utils.GetUserRoleFromContext(c) == "admin" {
		return true
	}
	booking, err := booking_models.GetBookingByID(c.Request.Context(), rc.DB, rr.BookingID)
	if err != nil {
		return false
	}
	return booking.RealtorID == userID
}
