package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joy095/roomslot/config"
	"github.com/joy095/roomslot/config/db"
	redisconn "github.com/joy095/roomslot/config/redis"
	"github.com/joy095/roomslot/controllers/admin_controller"
	"github.com/joy095/roomslot/controllers/booking_controller"
	"github.com/joy095/roomslot/controllers/payment_controller"
	"github.com/joy095/roomslot/logger"
	"github.com/joy095/roomslot/repository"
	"github.com/joy095/roomslot/repository/memory"
	"github.com/joy095/roomslot/repository/postgres"
	"github.com/joy095/roomslot/routes"
	"github.com/joy095/roomslot/services/booking"
	"github.com/joy095/roomslot/services/click"
	"github.com/joy095/roomslot/services/events"
	"github.com/joy095/roomslot/services/ledger"
	"github.com/joy095/roomslot/services/monitor"
	"github.com/joy095/roomslot/services/payme"
	"github.com/joy095/roomslot/services/reconciliation"
	"github.com/redis/go-redis/v9"
)

// App holds the wired services for one process.
type App struct {
	Config    config.Config
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Store     repository.Store
	Publisher events.Publisher
	Monitor   monitor.Monitor
	Ledger    *ledger.Ledger
	Recon     *reconciliation.Service
	Bookings  *booking.Service

	closers []func()
}

// NewApp connects to Postgres and Redis when they are configured. Without a
// database URL it falls back to the in-memory store, outside production only.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Config: cfg}

	switch {
	case cfg.DatabaseURL != "":
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.Pool = pool
		a.Store = postgres.NewStore(pool)
		a.closers = append(a.closers, func() { db.Close(pool) })
	case cfg.IsProduction():
		return nil, fmt.Errorf("DATABASE_URL is required in production")
	default:
		logger.WarnLogger.Warn("DATABASE_URL not set: using the in-memory store")
		a.Store = memory.NewStore()
	}

	a.Publisher = events.LogPublisher{}
	a.Monitor = monitor.NewMemory(time.Now)
	if cfg.RedisURL != "" {
		client, err := redisconn.Connect(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = client
		a.Monitor = monitor.NewRedis(client, time.Now)
		a.closers = append(a.closers, func() { redisconn.Close(client) })

		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		publisher := events.NewAsynqPublisher(asynq.NewClient(redisOpt))
		a.Publisher = publisher
		a.closers = append(a.closers, func() {
			if err := publisher.Close(); err != nil {
				logger.ErrorLogger.Errorf("Failed to close task queue client: %v", err)
			}
		})
	} else {
		logger.WarnLogger.Warn("REDIS_URL not set: events go to the log and contention stays in memory")
	}

	a.Ledger = ledger.New(time.Now)
	a.Recon = reconciliation.NewService(a.Ledger)
	a.Bookings = booking.NewService(a.Store, a.Publisher, a.Monitor, booking.Options{
		PendingTTL: cfg.PendingBookingTTL,
		SweepBatch: cfg.SweepBatch,
	})
	return a, nil
}

// Router builds the HTTP surface on top of the wired services.
func (a *App) Router() *gin.Engine {
	paymeAdapter := payme.NewAdapter(a.Store, a.Ledger, a.Recon, a.Publisher, payme.Options{TxTimeout: a.Config.PaymeTxTimeout})
	clickAdapter := click.NewAdapter(a.Store, a.Ledger, a.Recon, a.Publisher, click.Options{
		ServiceID: a.Config.ClickServiceID,
		SecretKey: a.Config.ClickSecretKey,
	})

	return routes.NewRouter(routes.Deps{
		Bookings:    booking_controller.NewBookingController(a.Bookings),
		Payments:    payment_controller.NewPaymentController(payme.NewServer(paymeAdapter, a.Config.PaymeLogin, a.Config.PaymeKey), clickAdapter),
		Admin:       admin_controller.NewAdminController(a.Bookings, a.Recon, a.Store, a.Publisher, a.Config.ContentionWindow),
		JWTSecret:   []byte(a.Config.JWTSecret),
		Origins:     a.Config.Origins(),
		Redis:       a.Redis,
		BookingRate: a.Config.BookingRateLimit,
		PaymentRate: a.Config.PaymentRateLimit,
	})
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
