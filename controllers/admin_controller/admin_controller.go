package admin_controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joy095/roomslot/controllers/booking_controller"
	"github.com/joy095/roomslot/logger"
	ptm "github.com/joy095/roomslot/models/payment_transaction_models"
	"github.com/joy095/roomslot/repository"
	"github.com/joy095/roomslot/services/booking"
	"github.com/joy095/roomslot/services/events"
	"github.com/joy095/roomslot/services/reconciliation"
	"github.com/joy095/roomslot/utils"
)

const (
	maxContentionWindow = 24 * time.Hour
	defaultRepairWindow = 24 * time.Hour
)

type AdminController struct {
	bookings      *booking.Service
	recon         *reconciliation.Service
	store         repository.Store
	publisher     events.Publisher
	defaultWindow time.Duration
}

func NewAdminController(bookings *booking.Service, recon *reconciliation.Service, store repository.Store, publisher events.Publisher, defaultWindow time.Duration) *AdminController {
	if defaultWindow <= 0 {
		defaultWindow = 15 * time.Minute
	}
	return &AdminController{
		bookings:      bookings,
		recon:         recon,
		store:         store,
		publisher:     publisher,
		defaultWindow: defaultWindow,
	}
}

// SweepExpired cancels lapsed pending bookings on demand.
func (ac *AdminController) SweepExpired(c *gin.Context) {
	n, err := ac.bookings.SweepExpired(c.Request.Context())
	if err != nil {
		logger.ErrorLogger.Errorf("Manual sweep failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Sweep failed", "swept": n})
		return
	}
	c.JSON(http.StatusOK, gin.H{"swept": n})
}

// Contention reports admission conflicts over ?window= (default from config).
func (ac *AdminController) Contention(c *gin.Context) {
	window := ac.defaultWindow
	if raw := c.Query("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > maxContentionWindow {
			c.JSON(http.StatusBadRequest, gin.H{"error": "window must be a positive duration of at most 24h"})
			return
		}
		window = d
	}

	report, err := ac.bookings.ContentionReport(c.Request.Context(), window)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to build contention report: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build contention report"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report, "top_rooms": report.TopRooms(10)})
}

// RefundSettled records that an owed refund has been paid out.
func (ac *AdminController) RefundSettled(c *gin.Context) {
	actor, err := utils.GetActorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking id"})
		return
	}
	b, err := ac.bookings.SettleRefund(c.Request.Context(), actor, id)
	if err != nil {
		booking_controller.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}

// Reconcile re-applies performed transactions that were never credited.
// Query: provider=payme|click, from and to as RFC 3339 (default: the last 24h).
func (ac *AdminController) Reconcile(c *gin.Context) {
	provider := ptm.Provider(c.Query("provider"))
	if provider != ptm.ProviderPayme && provider != ptm.ProviderClick {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider must be payme or click"})
		return
	}
	to := time.Now()
	from := to.Add(-defaultRepairWindow)
	var err error
	if raw := c.Query("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
			return
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
			return
		}
	}

	n, err := ac.recon.Repair(c.Request.Context(), ac.store, ac.publisher, provider, from, to)
	if err != nil {
		logger.ErrorLogger.Errorf("Reconciliation repair failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Reconciliation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reconciled": n})
}
