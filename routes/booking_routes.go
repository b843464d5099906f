package routes

import (
	"github.com/gin-gonic/gin"
	middleware "github.com/joy095/roomslot/middlewares"
	"github.com/joy095/roomslot/middlewares/auth"
	"github.com/joy095/roomslot/models/shared_models"
)

func RegisterBookingRoutes(r *gin.Engine, d Deps) {
	if d.Bookings == nil {
		return
	}
	bc := d.Bookings

	protected := r.Group("/")
	protected.Use(auth.AuthMiddleware(d.JWTSecret))
	{
		protected.POST("/bookings",
			auth.RequireRole(shared_models.RoleClient),
			middleware.NewRateLimiter(d.Redis, d.BookingRate, "create_booking"),
			bc.Create)
		protected.GET("/bookings/:id", bc.Get)
		protected.POST("/bookings/:id/select", bc.Select)
		protected.POST("/bookings/:id/approve", bc.Approve)
		protected.POST("/bookings/:id/reject", bc.Reject)
		protected.POST("/bookings/:id/cancel", bc.Cancel)
		protected.POST("/bookings/:id/confirm", bc.Confirm)
		protected.GET("/rooms/:id/availability", bc.Availability)
	}
}
