// Package cache holds Redis-backed read-through caches in front of the repositories.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"example.com/gymcheckin/internal/domain"
	"example.com/gymcheckin/internal/observability"
)

const (
	dailyPrefix = "checkin:daily"
	dailyGrace  = time.Hour
)

// DailyCheckInCache remembers each user's check-in for the current day so the
// one-per-day rule can be answered without a database round trip.
type DailyCheckInCache struct {
	domain.CheckInRepository

	client goredis.Cmdable
	logger *zap.Logger
}

// NewDailyCheckInCache wraps next with a Redis lookup.
func NewDailyCheckInCache(next domain.CheckInRepository, client goredis.Cmdable, logger *zap.Logger) *DailyCheckInCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DailyCheckInCache{CheckInRepository: next, client: client, logger: logger}
}

// Create writes through to the wrapped repository and caches the stored check-in.
func (c *DailyCheckInCache) Create(ctx context.Context, checkIn domain.CheckIn) (*domain.CheckIn, error) {
	stored, err := c.CheckInRepository.Create(ctx, checkIn)
	if err != nil {
		return nil, err
	}
	c.store(ctx, stored, checkIn.CreatedAt, checkIn.CreatedAt)
	return stored, nil
}

// FindByUserIDOnDate answers from Redis when possible. Only positive results are cached.
func (c *DailyCheckInCache) FindByUserIDOnDate(ctx context.Context, userID string, date time.Time) (*domain.CheckIn, error) {
	key := DailyKey(userID, date)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached domain.CheckIn
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			observability.RecordCacheLookup("hit")
			return &cached, nil
		}
		c.logger.Warn("discarding malformed cached check-in", zap.String("key", key))
		observability.RecordCacheLookup("error")
	case errors.Is(err, goredis.Nil):
		observability.RecordCacheLookup("miss")
	default:
		c.logger.Warn("daily cache lookup failed", zap.String("key", key), zap.Error(err))
		observability.RecordCacheLookup("error")
	}

	found, err := c.CheckInRepository.FindByUserIDOnDate(ctx, userID, date)
	if err != nil || found == nil {
		return found, err
	}
	// The row may come back in another zone than date; the key follows the lookup's day.
	c.store(ctx, found, date, date)
	return found, nil
}

// store caches checkIn under the calendar day of day, expiring after that day ends.
func (c *DailyCheckInCache) store(ctx context.Context, checkIn *domain.CheckIn, day, now time.Time) {
	body, err := json.Marshal(checkIn)
	if err != nil {
		c.logger.Warn("encode check-in for cache", zap.Error(err))
		return
	}
	key := DailyKey(checkIn.UserID, day)
	if err := c.client.Set(ctx, key, body, dailyTTL(day, now)).Err(); err != nil {
		c.logger.Warn("daily cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// DailyKey is the Redis key holding userID's check-in for the calendar day of date.
func DailyKey(userID string, date time.Time) string {
	return fmt.Sprintf("%s:%s:%s", dailyPrefix, userID, date.Format(time.DateOnly))
}

// dailyTTL keeps an entry until the end of day plus a grace period, measured from now.
func dailyTTL(day, now time.Time) time.Duration {
	_, end := domain.DayBounds(day)
	ttl := end.Sub(now) + dailyGrace
	if ttl < dailyGrace {
		return dailyGrace
	}
	return ttl
}
