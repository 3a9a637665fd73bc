package routes

import (
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wanderstay/platform/clients"
	"github.com/wanderstay/platform/config/db"
	"github.com/wanderstay/platform/controllers/payout_controller"
	"github.com/wanderstay/platform/controllers/webhook_controller"
	"github.com/wanderstay/platform/middlewares/auth"
	"github.com/wanderstay/platform/models/booking_models"
	"github.com/wanderstay/platform/models/payment_models"
	"github.com/wanderstay/platform/models/realtor_models"
	"github.com/wanderstay/platform/utils/audit"
	"github.com/wanderstay/platform/utils/mail"
)

// NewPayoutService wires the escrow release service from the environment. The
// scheduler in main shares this construction with the admin routes.
func NewPayoutService() *payout_controller.PayoutService {
	batch := 100
	if raw := os.Getenv("PAYOUT_BATCH_LIMIT"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			batch = parsed
		}
	}

	return &payout_controller.PayoutService{
		Bookings:   booking_models.NewStore(db.DB),
		Payments:   payment_models.NewStore(db.DB),
		Realtors:   realtor_models.NewStore(db.DB),
		Stripe:     clients.NewStripeClient(os.Getenv("STRIPE_SECRET_KEY"), os.Getenv("STRIPE_WEBHOOK_SECRET")),
		Mailer:     mail.NewMailer(),
		Audit:      audit.NewRecorder(db.DB),
		BatchLimit: batch,
	}
}

// RegisterPayoutRoutes registers realtor payout onboarding and the admin
// payout surface.
func RegisterPayoutRoutes(router *gin.Engine, svc *payout_controller.PayoutService) {
	payoutController := payout_controller.NewPayoutController(svc)
	healthController := webhook_controller.NewHealthController(audit.NewRecorder(db.DB))

	realtors := router.Group("/realtors/payout-account")
	realtors.Use(auth.ParseJWTToken())
	{
		realtors.POST("/link", payoutController.OnboardingLink)
		realtors.GET("/status", payoutController.AccountStatus)
		realtors.GET("/dashboard", payoutController.DashboardLink)
	}

	admin := router.Group("/admin")
	admin.Use(auth.ParseJWTToken(), auth.RequireRole("admin"))
	{
		admin.POST("/payouts/run", payoutController.RunPayouts)
		admin.POST("/payouts/:booking_id/requeue", payoutController.RequeuePayout)
		admin.GET("/webhooks/health", healthController.WebhookHealth)
	}
}
