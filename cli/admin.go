package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/joy095/roomslot/config/db"
	ptm "github.com/joy095/roomslot/models/payment_transaction_models"
	"github.com/spf13/cobra"
)

func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Config.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			pool, err := db.Connect(cmd.Context(), opts.Config.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close(pool)
			if err := db.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}

func NewSweepCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Cancel pending bookings whose hold has expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), opts.Config)
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := app.Bookings.SweepExpired(cmd.Context())
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.Format, map[string]int{"swept": n}, func(w io.Writer) {
				fmt.Fprintf(w, "swept %d expired booking(s)\n", n)
			})
		},
	}
}

func NewContentionCommand(opts *RootOptions) *cobra.Command {
	var window time.Duration
	var top int

	cmd := &cobra.Command{
		Use:   "contention",
		Short: "Show recent admission conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), opts.Config)
			if err != nil {
				return err
			}
			defer app.Close()

			if window <= 0 {
				window = opts.Config.ContentionWindow
			}
			report, err := app.Bookings.ContentionReport(cmd.Context(), window)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.Format, report, func(w io.Writer) {
				fmt.Fprintf(w, "conflicts in the last %s: %d\n", report.Window, report.Total)
				for reason, n := range report.ByReason {
					fmt.Fprintf(w, "  %-20s %d\n", reason, n)
				}
				for _, room := range report.TopRooms(top) {
					fmt.Fprintf(w, "  room %s  %d\n", room, report.ByRoom[room])
				}
			})
		},
	}

	cmd.Flags().DurationVar(&window, "window", 0, "look-back window (default CONTENTION_WINDOW)")
	cmd.Flags().IntVar(&top, "top", 10, "number of rooms to list")
	return cmd
}

func NewReconcileCommand(opts *RootOptions) *cobra.Command {
	var provider string
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Apply performed transactions that were never credited to their booking",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := ptm.Provider(provider)
			if p != ptm.ProviderPayme && p != ptm.ProviderClick {
				return fmt.Errorf("--provider must be payme or click")
			}
			app, err := NewApp(cmd.Context(), opts.Config)
			if err != nil {
				return err
			}
			defer app.Close()

			to := time.Now()
			n, err := app.Recon.Repair(cmd.Context(), app.Store, app.Publisher, p, to.Add(-since), to)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.Format, map[string]int{"reconciled": n}, func(w io.Writer) {
				fmt.Fprintf(w, "reconciled %d %s transaction(s)\n", n, p)
			})
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "payme or click")
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "how far back to look")
	return cmd
}
