package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joy095/roomslot/controllers/admin_controller"
	"github.com/joy095/roomslot/controllers/booking_controller"
	"github.com/joy095/roomslot/controllers/payment_controller"
	"github.com/joy095/roomslot/middlewares/cors"
	logger_middleware "github.com/joy095/roomslot/middlewares/logger"
	"github.com/redis/go-redis/v9"
)

// Deps are the constructed controllers and settings the router wires together.
type Deps struct {
	Bookings  *booking_controller.BookingController
	Payments  *payment_controller.PaymentController
	Admin     *admin_controller.AdminController
	JWTSecret []byte
	Origins   []string
	Redis     *redis.Client
	// BookingRate is the limiter rate for booking creation, e.g. "10-1m".
	BookingRate string
	// PaymentRate applies per provider endpoint; empty means "600-1m".
	PaymentRate string
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.CorsMiddleware(d.Origins))
	r.Use(logger_middleware.GinLogger())

	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok from roomslot service", "time": time.Now().UTC()})
	}
	r.GET("/health", health)
	r.HEAD("/health", health)

	RegisterBookingRoutes(r, d)
	RegisterPaymentRoutes(r, d)
	RegisterAdminRoutes(r, d)
	return r
}
