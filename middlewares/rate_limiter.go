package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joy095/roomslot/logger"
	"github.com/joy095/roomslot/utils"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	ginmiddleware "github.com/ulule/limiter/v3/drivers/middleware/gin"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

// rateKey prefers the authenticated actor and falls back to the client address.
func rateKey(c *gin.Context) string {
	if actor, ok := utils.ActorFromContext(c); ok {
		return "actor:" + actor.ID.String()
	}
	return "ip:" + c.ClientIP()
}

func limitReached(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, gin.H{"code": "RATE_LIMITED", "error": "Too many requests, please retry later"})
}

func storeFailed(c *gin.Context, err error) {
	logger.ErrorLogger.Errorf("Rate limiter store failed for %s: %v", c.FullPath(), err)
	c.JSON(http.StatusServiceUnavailable, gin.H{"code": "RATE_LIMIT_UNAVAILABLE", "error": "Service temporarily unavailable"})
}

// FailOpen lets the request through when the limiter store is unreachable.
func FailOpen(c *gin.Context, err error) {
	logger.WarnLogger.Warnf("Rate limiter store failed for %s, serving unlimited: %v", c.FullPath(), err)
	c.Next()
}

// NewStore creates a Redis-backed limiter store with a route-specific prefix, or an
// in-process store when rdb is nil.
func NewStore(rdb *redis.Client, routeID string, period time.Duration) (limiter.Store, error) {
	opts := limiter.StoreOptions{
		Prefix:          fmt.Sprintf("rate_limiter:%s", routeID),
		MaxRetry:        3,
		CleanUpInterval: period,
	}
	if rdb == nil {
		return memorystore.NewStoreWithOptions(opts), nil
	}
	store, err := redisstore.NewStoreWithOptions(rdb, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis store for route %s: %w", routeID, err)
	}
	return store, nil
}

// ParseCustomRate allows formats like "10-2m", "30-20m", "5-1h", "20-10s", etc.
func ParseCustomRate(rateStr string) (limiter.Rate, error) {
	parts := strings.Split(rateStr, "-")
	if len(parts) != 2 {
		return limiter.Rate{}, fmt.Errorf("invalid rate format: %s", rateStr)
	}

	limit, err := strconv.Atoi(parts[0])
	if err != nil || limit <= 0 {
		return limiter.Rate{}, fmt.Errorf("invalid limit: %s", parts[0])
	}

	durationStr := parts[1]
	var unit time.Duration
	switch {
	case strings.HasSuffix(durationStr, "s"):
		unit = time.Second
	case strings.HasSuffix(durationStr, "m"):
		unit = time.Minute
	case strings.HasSuffix(durationStr, "h"):
		unit = time.Hour
	default:
		return limiter.Rate{}, fmt.Errorf("unsupported period: %s", durationStr)
	}

	n, err := strconv.Atoi(durationStr[:len(durationStr)-1])
	if err != nil || n <= 0 {
		return limiter.Rate{}, fmt.Errorf("invalid duration %q", durationStr)
	}

	return limiter.Rate{
		Period: time.Duration(n) * unit,
		Limit:  int64(limit),
	}, nil
}

// NewRateLimiter creates middleware with custom periods like "10-2m" for a specific route.
// A bad rate or store disables limiting for the route rather than failing requests.
// opts override the JSON 429 and 503 replies, e.g. for routes with their own protocol.
func NewRateLimiter(rdb *redis.Client, rateStr, routeID string, opts ...ginmiddleware.Option) gin.HandlerFunc {
	rate, err := ParseCustomRate(rateStr)
	if err != nil {
		logger.ErrorLogger.Errorf("Error parsing rate for route %s: %v", routeID, err)
		return func(c *gin.Context) { c.Next() }
	}

	store, err := NewStore(rdb, routeID, rate.Period)
	if err != nil {
		logger.ErrorLogger.Errorf("Error creating rate limiter store for route %s: %v", routeID, err)
		return func(c *gin.Context) { c.Next() }
	}

	return newMiddleware(store, rate, opts...)
}

func newMiddleware(store limiter.Store, rate limiter.Rate, opts ...ginmiddleware.Option) gin.HandlerFunc {
	base := []ginmiddleware.Option{
		ginmiddleware.WithKeyGetter(rateKey),
		ginmiddleware.WithLimitReachedHandler(limitReached),
		ginmiddleware.WithErrorHandler(storeFailed),
	}
	return ginmiddleware.NewMiddleware(limiter.New(store, rate), append(base, opts...)...)
}
