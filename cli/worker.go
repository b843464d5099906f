package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/joy095/roomslot/worker"
	"github.com/spf13/cobra"
)

func NewWorkerCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the scheduled expiry sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.Config
			if cfg.RedisURL == "" {
				return fmt.Errorf("REDIS_URL is required for the worker")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			return worker.Run(ctx, cfg.RedisURL, app.Bookings, cfg.SweepInterval)
		},
	}
}
