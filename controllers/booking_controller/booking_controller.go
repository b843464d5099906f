package booking_controller

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joy095/roomslot/logger"
	"github.com/joy095/roomslot/models/booking_models"
	"github.com/joy095/roomslot/models/shared_models"
	"github.com/joy095/roomslot/services/booking"
	"github.com/joy095/roomslot/utils"
)

type BookingController struct {
	service *booking.Service
}

func NewBookingController(service *booking.Service) *BookingController {
	return &BookingController{service: service}
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (bc *BookingController) Create(c *gin.Context) {
	actor, err := utils.GetActorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var req booking.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.InfoLogger.Infof("Invalid booking request body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	b, err := bc.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Booking requested successfully", "booking": b})
}

func (bc *BookingController) Get(c *gin.Context) {
	bc.withBooking(c, func(ctx context.Context, actor shared_models.Actor, id uuid.UUID) (*booking_models.Booking, error) {
		return bc.service.Get(ctx, actor, id)
	})
}

func (bc *BookingController) Select(c *gin.Context) {
	bc.withBooking(c, bc.service.Select)
}

func (bc *BookingController) Approve(c *gin.Context) {
	bc.withBooking(c, bc.service.Approve)
}

func (bc *BookingController) Reject(c *gin.Context) {
	var req rejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
	}
	bc.withBooking(c, func(ctx context.Context, actor shared_models.Actor, id uuid.UUID) (*booking_models.Booking, error) {
		return bc.service.Reject(ctx, actor, id, req.Reason)
	})
}

func (bc *BookingController) Cancel(c *gin.Context) {
	bc.withBooking(c, bc.service.Cancel)
}

func (bc *BookingController) Confirm(c *gin.Context) {
	bc.withBooking(c, bc.service.Confirm)
}

// Availability returns the free/busy map of a room for ?date=YYYY-MM-DD.
func (bc *BookingController) Availability(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room id"})
		return
	}
	date := c.Query("date")
	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date query parameter is required"})
		return
	}

	day, err := bc.service.FreeBusy(c.Request.Context(), roomID, date)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, day)
}

type bookingOp func(ctx context.Context, actor shared_models.Actor, id uuid.UUID) (*booking_models.Booking, error)

func (bc *BookingController) withBooking(c *gin.Context, op bookingOp) {
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

	b, err := op(c.Request.Context(), actor, id)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}
