package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/joy095/roomslot/controllers/payment_controller"
	middleware "github.com/joy095/roomslot/middlewares"
	ginmiddleware "github.com/ulule/limiter/v3/drivers/middleware/gin"
)

// RegisterPaymentRoutes mounts the provider endpoints. They authenticate with the
// provider's own credentials, not the bearer token. Throttled calls still get a
// protocol envelope, and a limiter store outage never blocks a payment.
func RegisterPaymentRoutes(r *gin.Engine, d Deps) {
	if d.Payments == nil {
		return
	}
	pc := d.Payments

	rate := d.PaymentRate
	if rate == "" {
		rate = "600-1m"
	}
	paymeLimit := middleware.NewRateLimiter(d.Redis, rate, "payme",
		ginmiddleware.WithLimitReachedHandler(payment_controller.PaymeThrottled),
		ginmiddleware.WithErrorHandler(middleware.FailOpen),
	)
	clickLimit := middleware.NewRateLimiter(d.Redis, rate, "click",
		ginmiddleware.WithLimitReachedHandler(payment_controller.ClickThrottled),
		ginmiddleware.WithErrorHandler(middleware.FailOpen),
	)

	payments := r.Group("/payments")
	{
		payments.POST("/payme", paymeLimit, pc.Payme)
		payments.POST("/click", clickLimit, pc.Click)
		payments.POST("/click/prepare", clickLimit, pc.Click)
		payments.POST("/click/complete", clickLimit, pc.Click)
	}
}
