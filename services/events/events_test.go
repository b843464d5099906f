package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/roomslot/models/booking_models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(ctx context.Context, evs ...Event) error {
	f.calls++
	return errors.New("queue down")
}

func TestNewTask(t *testing.T) {
	b := &booking_models.Booking{ID: uuid.New(), RequestRef: "BK-1", Status: booking_models.StatusApproved}
	at := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	e := ForBooking(TypeBookingTransitioned, "approve", b, booking_models.StatusPending, at)

	task, err := NewTask(e)
	require.NoError(t, err)
	assert.Equal(t, "booking:transitioned", task.Type())

	var got Event
	require.NoError(t, json.Unmarshal(task.Payload(), &got))
	assert.Equal(t, e, got)
	assert.Equal(t, "payment:refund_required", TaskType(TypePaymentRefundRequired))
}

func TestPublishAfterCommit(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder()
	PublishAfterCommit(ctx, rec, []Event{{Type: TypeBookingTransitioned}, {Type: TypeBookingReviewRequired}})
	assert.Len(t, rec.Events(), 2)
	assert.Len(t, rec.OfType(TypeBookingReviewRequired), 1)

	f := &failingPublisher{}
	PublishAfterCommit(ctx, f, nil)
	assert.Zero(t, f.calls)
	PublishAfterCommit(ctx, f, []Event{{Type: TypeBookingTransitioned}})
	assert.Equal(t, 1, f.calls)

	PublishAfterCommit(ctx, nil, []Event{{Type: TypeBookingTransitioned}})
}
