// Package worker runs the scheduled expiry sweep on asynq.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joy095/roomslot/logger"
)

const (
	TypeSweepExpired = "booking:sweep_expired"
	MaintenanceQueue = "maintenance"
)

type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TypeSweepExpired, nil)
}

// HandleSweep runs one sweep per task. Overlapping runs are harmless: each batch
// is claimed with row locks.
func HandleSweep(s Sweeper) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		n, err := s.SweepExpired(ctx)
		if err != nil {
			logger.ErrorLogger.Errorf("[SWEEP_FAIL] %v", err)
			return err
		}
		if n > 0 {
			logger.InfoLogger.Infof("Scheduled sweep released %d booking(s)", n)
		}
		return nil
	}
}

func NewMux(s Sweeper) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSweepExpired, HandleSweep(s))
	return mux
}

// Run starts the task server and the scheduler and blocks until ctx is done.
func Run(ctx context.Context, redisURL string, s Sweeper, interval time.Duration) error {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}
	if interval <= 0 {
		interval = time.Minute
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 2,
		Queues:      map[string]int{MaintenanceQueue: 1},
	})
	if err := srv.Start(NewMux(s)); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	defer srv.Shutdown()

	scheduler := asynq.NewScheduler(redisOpt, nil)
	spec := fmt.Sprintf("@every %s", interval)
	entryID, err := scheduler.Register(spec, NewSweepTask(),
		asynq.Queue(MaintenanceQueue),
		asynq.MaxRetry(0),
		asynq.Timeout(interval),
		asynq.Unique(interval),
	)
	if err != nil {
		return fmt.Errorf("failed to register sweep: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer scheduler.Shutdown()

	logger.InfoLogger.Infof("Worker started: sweep %s every %s", entryID, interval)
	<-ctx.Done()
	logger.InfoLogger.Info("Worker shutting down...")
	return nil
}
