package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/joy095/roomslot/logger"
)

const NotificationsQueue = "notifications"

// TaskType maps an event type to its queue task name, e.g. booking:transitioned.
func TaskType(eventType string) string {
	return strings.ReplaceAll(eventType, ".", ":")
}

// AsynqPublisher enqueues every event as a task on the notifications queue.
type AsynqPublisher struct {
	client *asynq.Client
}

func NewAsynqPublisher(client *asynq.Client) *AsynqPublisher {
	return &AsynqPublisher{client: client}
}

// NewTask encodes an event as an asynq task.
func NewTask(e Event) (*asynq.Task, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return asynq.NewTask(TaskType(e.Type), payload), nil
}

func (p *AsynqPublisher) Publish(ctx context.Context, evs ...Event) error {
	var errs []error
	for _, e := range evs {
		task, err := NewTask(e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		info, err := p.client.EnqueueContext(ctx, task, asynq.Queue(NotificationsQueue), asynq.MaxRetry(5))
		if err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s for booking %s: %w", task.Type(), e.BookingID, err))
			continue
		}
		logger.DebugLogger.Debugf("Enqueued %s task %s for booking %s", task.Type(), info.ID, e.BookingID)
	}
	return errors.Join(errs...)
}

func (p *AsynqPublisher) Close() error {
	return p.client.Close()
}
