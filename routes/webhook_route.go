package routes

import (
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wanderstay/platform/clients"
	"github.com/wanderstay/platform/config/db"
	"github.com/wanderstay/platform/controllers/webhook_controller"
	middleware "github.com/wanderstay/platform/middlewares"
	"github.com/wanderstay/platform/models/booking_models"
	"github.com/wanderstay/platform/models/payment_models"
	"github.com/wanderstay/platform/models/realtor_models"
	"github.com/wanderstay/platform/models/user_models"
	"github.com/wanderstay/platform/utils/audit"
	"github.com/wanderstay/platform/utils/mail"
)

// EscrowOffsetFromEnv reads ESCROW_RELEASE_OFFSET_HOURS, defaulting to 24.
func EscrowOffsetFromEnv() time.Duration {
	hours := 24
	if raw := os.Getenv("ESCROW_RELEASE_OFFSET_HOURS"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			hours = parsed
		}
	}
	return time.Duration(hours) * time.Hour
}

// RegisterWebhookRoutes registers the gateway webhook endpoints and the admin
// webhook health view.
func RegisterWebhookRoutes(router *gin.Engine) {
	stripeClient := clients.NewStripeClient(os.Getenv("STRIPE_SECRET_KEY"), os.Getenv("STRIPE_WEBHOOK_SECRET"))
	paystackClient := clients.NewPaystackClient(os.Getenv("PAYSTACK_SECRET_KEY"))

	rec := &webhook_controller.Reconciler{
		Bookings:     booking_models.NewStore(db.DB),
		Payments:     payment_models.NewStore(db.DB),
		Realtors:     realtor_models.NewStore(db.DB),
		Users:        user_models.NewStore(db.DB),
		Stripe:       stripeClient,
		Paystack:     paystackClient,
		Mailer:       mail.NewMailer(),
		Audit:        audit.NewRecorder(db.DB),
		EscrowOffset: EscrowOffsetFromEnv(),
	}
	webhookController := webhook_controller.NewWebhookController(rec)

	hooks := router.Group("/webhooks")
	hooks.Use(middleware.NewRateLimiter("300-1m", "webhooks"))
	{
		hooks.POST("/stripe", webhookController.StripeWebhook)
		hooks.POST("/paystack", webhookController.PaystackWebhook)
	}
}
