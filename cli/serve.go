package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joy095/roomslot/logger"
	"github.com/spf13/cobra"
)

func NewServeCommand(opts *RootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and provider endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.Config
			if port != "" {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil && cfg.IsProduction() {
				return err
			} else if err != nil {
				logger.WarnLogger.Warnf("Configuration incomplete: %v", err)
			}
			if cfg.IsProduction() {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           app.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.InfoLogger.Infof("Server listening on :%s", cfg.Port)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}

			logger.InfoLogger.Info("Shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.ErrorLogger.Errorf("Server forced to shutdown: %v", err)
				return err
			}
			logger.InfoLogger.Info("Server exited gracefully.")
			return nil
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "port to listen on (default from PORT)")
	return cmd
}
