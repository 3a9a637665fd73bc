package payout_controller

import (
	"context"
	"errors"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wanderstay/platform/clients"
	"github.com/wanderstay/platform/logger"
	"github.com/wanderstay/platform/models/booking_models"
	"github.com/wanderstay/platform/models/realtor_models"
	"github.com/wanderstay/platform/models/shared_models"
	"github.com/wanderstay/platform/utils"
)

// BookingStore is the booking persistence surface the payout sweep needs.
type BookingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*booking_models.Booking, error)
	SetPayoutStatus(ctx context.Context, id uuid.UUID,
		expected, next shared_models.PayoutStatus) error
	ListPayoutDue(ctx context.Context, now time.Time, limit int) ([]*booking_models.Booking, error)
}

// PaymentStore is the payment persistence surface the payout sweep needs.
type PaymentStore interface {
	SetTransferID(ctx context.Context, bookingID uuid.UUID, transferID string) error
	MarkPayoutReleased(ctx context.Context, bookingID uuid.UUID, at time.Time) error
}

// RealtorStore resolves payout destinations.
type RealtorStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*realtor_models.Realtor, error)
	SetStripeAccountID(ctx context.Context, realtorID uuid.UUID, accountID string) error
}

// Notifier sends payout notifications. Best effort.
type Notifier interface {
	SendPayoutNotice(to string, bookingID uuid.UUID, amount float64, currency string) error
}

// AuditRecorder records domain events for the admin audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, action, entityType, entityID string, details map[string]interface{})
}

// SweepSummary reports one escrow release pass.
type SweepSummary struct {
	Scanned  int `json:"scanned"`
	Released int `json:"released"`
	Failed   int `json:"failed"`
}

// PayoutService releases realtor payouts whose escrow window has elapsed. One
// booking failing never stops the rest of the batch; its payout is parked as
// FAILED for an explicit administrative requeue.
type PayoutService struct {
	Bookings BookingStore
	Payments PaymentStore
	Realtors RealtorStore
	Stripe   clients.StripeClientWrapper
	Mailer   Notifier
	Audit    AuditRecorder

	// BatchLimit caps how many bookings one sweep picks up.
	BatchLimit int

	// Now is overridable in tests. Defaults to time.Now.
	Now func() time.Time
}

func (s *PayoutService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *PayoutService) batchLimit() int {
	if s.BatchLimit > 0 {
		return s.BatchLimit
	}
	return 100
}

// ReleaseDuePayouts runs one sweep over due bookings.
func (s *PayoutService) ReleaseDuePayouts(ctx context.Context) (SweepSummary, error) {
	due, err := s.Bookings.ListPayoutDue(ctx, s.now(), s.batchLimit())
	if err != nil {
		return SweepSummary{}, err
	}

	summary := SweepSummary{Scanned: len(due)}
	for _, b := range due {
		if err := s.releaseOne(ctx, b); err != nil {
			logger.ErrorLogger.Errorf("Payout for booking %s failed: %v", b.ID, err)
			s.markFailed(ctx, b.ID, err)
			summary.Failed++
			continue
		}
		summary.Released++
	}

	logger.InfoLogger.Infof("Payout sweep done: %d scanned, %d released, %d failed",
		summary.Scanned, summary.Released, summary.Failed)
	return summary, nil
}

func (s *PayoutService) releaseOne(ctx context.Context, b *booking_models.Booking) error {
	if b.RealtorPayoutAmount <= 0 {
		return errors.New("booking has no payout amount")
	}

	realtor, err := s.Realtors.GetByID(ctx, b.RealtorID)
	if err != nil {
		return err
	}

	switch realtor.Gateway {
	case shared_models.GatewayStripe:
		if realtor.StripeAccountID == nil || *realtor.StripeAccountID == "" {
			return errors.New("realtor has no connected account")
		}
		if !realtor.PayoutsEnabled {
			return errors.New("realtor payouts are disabled on the connected account")
		}

		amountMinor := int64(math.Round(b.RealtorPayoutAmount * 100))
		tr, err := s.Stripe.CreateTransfer(ctx, amountMinor, b.Currency, *realtor.StripeAccountID, b.ID.String())
		if err != nil {
			return err
		}
		if err := s.Payments.SetTransferID(ctx, b.ID, tr.ID); err != nil {
			logger.WarnLogger.Warnf("Transfer %s created but not recorded for booking %s: %v", tr.ID, b.ID, err)
		}

	case shared_models.GatewayPaystack:
		// Paystack splits route the realtor's share at charge time, so release
		// here is bookkeeping only.

	default:
		return errors.New("realtor has no payout gateway configured")
	}

	if err := s.Bookings.SetPayoutStatus(ctx, b.ID,
		shared_models.PayoutStatusPending, shared_models.PayoutStatusReleased); err != nil {
		if errors.Is(err, booking_models.ErrStatusConflict) {
			logger.WarnLogger.Warnf("Booking %s payout already settled during sweep", b.ID)
			return nil
		}
		return err
	}
	if err := s.Payments.MarkPayoutReleased(ctx, b.ID, s.now()); err != nil {
		logger.WarnLogger.Warnf("Failed to flag payout released for booking %s: %v", b.ID, err)
	}

	if s.Audit != nil {
		s.Audit.Record(ctx, "payout.released", "booking", b.ID.String(),
			map[string]interface{}{"amount": b.RealtorPayoutAmount, "currency": b.Currency, "gateway": realtor.Gateway})
	}
	if s.Mailer != nil {
		if err := s.Mailer.SendPayoutNotice(realtor.Email, b.ID, b.RealtorPayoutAmount, b.Currency); err != nil {
			logger.WarnLogger.Warnf("Failed to send payout notice for booking %s: %v", b.ID, err)
		}
	}
	return nil
}

func (s *PayoutService) markFailed(ctx context.Context, bookingID uuid.UUID, cause error) {
	if err := s.Bookings.SetPayoutStatus(ctx, bookingID,
		shared_models.PayoutStatusPending, shared_models.PayoutStatusFailed); err != nil {
		logger.ErrorLogger.Errorf("Failed to park payout FAILED for booking %s: %v", bookingID, err)
		return
	}
	if s.Audit != nil {
		s.Audit.Record(ctx, "payout.failed", "booking", bookingID.String(),
			map[string]interface{}{"cause": cause.Error()})
	}
}

// RunScheduler drives periodic sweeps until the context is cancelled.
func (s *PayoutService) RunScheduler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.InfoLogger.Infof("Payout scheduler started, sweeping every %s", interval)
	for {
		select {
		case <-ctx.Done():
			logger.InfoLogger.Info("Payout scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.ReleaseDuePayouts(ctx); err != nil {
				logger.ErrorLogger.Errorf("Payout sweep failed: %v", err)
			}
		}
	}
}

// PayoutController exposes the payout sweep and realtor onboarding over HTTP.
type PayoutController struct {
	Service *PayoutService
}

func NewPayoutController(svc *PayoutService) *PayoutController {
	return &PayoutController{Service: svc}
}

// RunPayouts handles POST /admin/payouts/run.
func (pc *PayoutController) RunPayouts(c *gin.Context) {
	summary, err := pc.Service.ReleaseDuePayouts(c.Request.Context())
	if err != nil {
		logger.ErrorLogger.Errorf("Manual payout sweep failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "payout sweep failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// RequeuePayout handles POST /admin/payouts/:booking_id/requeue. Only FAILED
// payouts can be requeued; the next sweep picks them up again.
func (pc *PayoutController) RequeuePayout(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("booking_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	err = pc.Service.Bookings.SetPayoutStatus(c.Request.Context(), bookingID,
		shared_models.PayoutStatusFailed, shared_models.PayoutStatusPending)
	if err != nil {
		if errors.Is(err, booking_models.ErrStatusConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "payout is not in FAILED state"})
			return
		}
		logger.ErrorLogger.Errorf("Failed to requeue payout for booking %s: %v", bookingID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to requeue payout"})
		return
	}

	if pc.Service.Audit != nil {
		pc.Service.Audit.Record(c.Request.Context(), "payout.requeued", "booking", bookingID.String(), nil)
	}
	c.JSON(http.StatusOK, gin.H{"message": "payout requeued"})
}

// OnboardingLink handles POST /realtors/payout-account/link. Creates the
// connected account on first use, then returns a hosted onboarding URL.
func (pc *PayoutController) OnboardingLink(c *gin.Context) {
	realtorID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	realtor, err := pc.Service.Realtors.GetByID(c.Request.Context(), realtorID)
	if err != nil {
		if errors.Is(err, realtor_models.ErrRealtorNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "realtor not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load realtor"})
		return
	}

	accountID := ""
	if realtor.StripeAccountID != nil {
		accountID = *realtor.StripeAccountID
	}
	if accountID == "" {
		acct, err := pc.Service.Stripe.CreateAccount(c.Request.Context(), realtor.Email)
		if err != nil {
			logger.ErrorLogger.Errorf("Failed to create connected account for realtor %s: %v", realtorID, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to create payout account"})
			return
		}
		if err := pc.Service.Realtors.SetStripeAccountID(c.Request.Context(), realtorID, acct.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save payout account"})
			return
		}
		accountID = acct.ID
	}

	frontend := os.Getenv("FRONTEND_URL")
	url, err := pc.Service.Stripe.CreateAccountLink(c.Request.Context(), accountID,
		frontend+"/payouts/onboarding/refresh", frontend+"/payouts/onboarding/return")
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to create account link for realtor %s: %v", realtorID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to create onboarding link"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

// AccountStatus handles GET /realtors/payout-account/status.
func (pc *PayoutController) AccountStatus(c *gin.Context) {
	realtorID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	realtor, err := pc.Service.Realtors.GetByID(c.Request.Context(), realtorID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "realtor not found"})
		return
	}
	if realtor.StripeAccountID == nil || *realtor.StripeAccountID == "" {
		c.JSON(http.StatusOK, gin.H{"onboarded": false, "payouts_enabled": false})
		return
	}

	acct, err := pc.Service.Stripe.GetAccount(c.Request.Context(), *realtor.StripeAccountID)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to fetch connected account for realtor %s: %v", realtorID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch account status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"onboarded":       true,
		"payouts_enabled": acct.PayoutsEnabled,
	})
}

// DashboardLink handles GET /realtors/payout-account/dashboard.
func (pc *PayoutController) DashboardLink(c *gin.Context) {
	realtorID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	realtor, err := pc.Service.Realtors.GetByID(c.Request.Context(), realtorID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "realtor not found"})
		return
	}
	if realtor.StripeAccountID == nil || *realtor.StripeAccountID == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "payout account not onboarded"})
		return
	}

	url, err := pc.Service.Stripe.CreateLoginLink(c.Request.Context(), *realtor.StripeAccountID)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to create dashboard link for realtor %s: %v", realtorID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to create dashboard link"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}
