package booking_controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joy095/roomslot/logger"
	"github.com/joy095/roomslot/models/schedule_models"
	"github.com/joy095/roomslot/services/booking"
)

// RespondError maps booking service errors onto HTTP responses.
func RespondError(c *gin.Context, err error) {
	var conflict *booking.ConflictError
	var transition *booking.TransitionError

	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":      conflict.Decision.Reason.Message(),
			"reason":     conflict.Decision.Reason,
			"slot_index": conflict.Decision.SlotIndex,
		})
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, gin.H{
			"error":  transition.Error(),
			"reason": "invalid_transition",
			"status": transition.From,
		})
	case errors.Is(err, booking.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "You are not allowed to perform this action"})
	case errors.Is(err, booking.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
	case errors.Is(err, schedule_models.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
	case errors.Is(err, booking.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.ErrorLogger.Errorf("Booking request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
