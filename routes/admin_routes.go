package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/joy095/roomslot/middlewares/auth"
	"github.com/joy095/roomslot/models/shared_models"
)

func RegisterAdminRoutes(r *gin.Engine, d Deps) {
	if d.Admin == nil {
		return
	}
	ac := d.Admin

	admin := r.Group("/admin")
	admin.Use(auth.AuthMiddleware(d.JWTSecret), auth.RequireRole(shared_models.RoleAgent))
	{
		admin.POST("/bookings/sweep", ac.SweepExpired)
		admin.GET("/contention", ac.Contention)
		admin.POST("/bookings/:id/refund-settled", ac.RefundSettled)
		admin.POST("/payments/reconcile", ac.Reconcile)
	}
}
