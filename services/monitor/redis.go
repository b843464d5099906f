package monitor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/roomslot/logger"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "contention:"
	bucketLayout = "200601021504"
	reasonField  = "reason:"
	roomField    = "room:"
)

// Redis counts conflicts in one hash per minute so every API instance contributes
// to the same report.
type Redis struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedis(client *redis.Client, now func() time.Time) *Redis {
	if now == nil {
		now = time.Now
	}
	return &Redis{client: client, now: now}
}

func bucketKey(t time.Time) string {
	return keyPrefix + t.UTC().Format(bucketLayout)
}

func (r *Redis) RecordConflict(ctx context.Context, roomID uuid.UUID, reason string) {
	key := bucketKey(r.now())
	pipe := r.client.TxPipeline()
	pipe.HIncrBy(ctx, key, reasonField+reason, 1)
	pipe.HIncrBy(ctx, key, roomField+roomID.String(), 1)
	pipe.Expire(ctx, key, retention)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.WarnLogger.Warnf("Failed to record admission conflict for room %s: %v", roomID, err)
	}
}

func (r *Redis) Report(ctx context.Context, window time.Duration) (Report, error) {
	now := r.now()
	report := newReport(window, now)

	if window > retention {
		window = retention
	}
	minutes := int(window / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, 0, minutes)
	for i := 0; i < minutes; i++ {
		cmds = append(cmds, pipe.HGetAll(ctx, bucketKey(now.Add(-time.Duration(i)*time.Minute))))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Report{}, fmt.Errorf("failed to read contention counters: %w", err)
	}

	for _, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			continue
		}
		for field, raw := range fields {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(field, reasonField):
				report.ByReason[strings.TrimPrefix(field, reasonField)] += n
				report.Total += n
			case strings.HasPrefix(field, roomField):
				report.ByRoom[strings.TrimPrefix(field, roomField)] += n
			}
		}
	}
	return report, nil
}
