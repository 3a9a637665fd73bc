package routes

import (
	"os"

	"github.com/gin-gonic/gin"

	"github.com/wanderstay/platform/clients"
	"github.com/wanderstay/platform/config/db"
	"github.com/wanderstay/platform/controllers/refund_controller"
	middleware "github.com/wanderstay/platform/middlewares"
	"github.com/wanderstay/platform/middlewares/auth"
	"github.com/wanderstay/platform/utils/audit"
	"github.com/wanderstay/platform/utils/mail"
)

// RegisterRefundRoutes registers the two-stage refund flow.
func RegisterRefundRoutes(router *gin.Engine) {
	refundController := refund_controller.NewRefundController(
		db.DB,
		clients.NewStripeClient(os.Getenv("STRIPE_SECRET_KEY"), os.Getenv("STRIPE_WEBHOOK_SECRET")),
		clients.NewPaystackClient(os.Getenv("PAYSTACK_SECRET_KEY")),
		mail.NewMailer(),
		audit.NewRecorder(db.DB),
	)

	protected := router.Group("/")
	protected.Use(auth.ParseJWTToken(), middleware.NewRateLimiter("30-1m", "refunds"))
	{
		protected.POST("/bookings/:booking_id/refunds", refundController.RequestRefund)
		protected.GET("/bookings/:booking_id/refunds", refundController.ListBookingRefunds)
		protected.GET("/refunds/:id", refundController.GetRefundRequest)
		protected.POST("/refunds/:id/decision", refundController.RealtorDecision)
	}

	admin := router.Group("/refunds")
	admin.Use(auth.ParseJWTToken(), auth.RequireRole("admin"))
	{
		admin.POST("/:id/process", refundController.ProcessRefund)
	}
}
