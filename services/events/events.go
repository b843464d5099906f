// Package events carries the booking "transitioned" signal to external consumers.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/roomslot/logger"
	"github.com/joy095/roomslot/models/booking_models"
)

const (
	TypeBookingTransitioned   = "booking.transitioned"
	TypeBookingReviewRequired = "booking.review_required"
	TypePaymentRefundRequired = "payment.refund_required"
)

// Event is what the notification collaborator consumes.
type Event struct {
	Type       string                `json:"type"`
	Action     string                `json:"action"`
	BookingID  uuid.UUID             `json:"booking_id"`
	RequestRef string                `json:"request_ref"`
	RoomID     uuid.UUID             `json:"room_id"`
	ClientID   uuid.UUID             `json:"client_id"`
	HostID     uuid.UUID             `json:"host_id"`
	From       booking_models.Status `json:"from,omitempty"`
	To         booking_models.Status `json:"to"`
	OccurredAt time.Time             `json:"occurred_at"`
	Data       map[string]string     `json:"data,omitempty"`
}

// ForBooking builds an event describing b after an action moved it from from.
func ForBooking(eventType, action string, b *booking_models.Booking, from booking_models.Status, at time.Time) Event {
	return Event{
		Type:       eventType,
		Action:     action,
		BookingID:  b.ID,
		RequestRef: b.RequestRef,
		RoomID:     b.RoomID,
		ClientID:   b.ClientID,
		HostID:     b.HostID,
		From:       from,
		To:         b.Status,
		OccurredAt: at,
	}
}

type Publisher interface {
	Publish(ctx context.Context, evs ...Event) error
}

// PublishAfterCommit hands events to the publisher. Failures are logged and never
// reach the caller: the transition has already been committed.
func PublishAfterCommit(ctx context.Context, p Publisher, evs []Event) {
	if p == nil || len(evs) == 0 {
		return
	}
	if err := p.Publish(ctx, evs...); err != nil {
		logger.ErrorLogger.Errorf("Failed to publish %d booking event(s): %v", len(evs), err)
	}
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(ctx context.Context, evs ...Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evs...)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// LogPublisher writes events to the debug log; used when no queue is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, evs ...Event) error {
	for _, e := range evs {
		logger.DebugLogger.Debugf("Event %s %s booking=%s %s->%s", e.Type, e.Action, e.BookingID, e.From, e.To)
	}
	return nil
}
