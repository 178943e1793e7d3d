package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jobpulse/internal/config"
	"jobpulse/internal/logging"
	"jobpulse/pkg/models"
)

// RedisClient wraps the Redis client with caching helpers for the
// control surface. All caching is best-effort: a cache outage must never
// fail the operation being cached.
type RedisClient struct {
	client *redis.Client
	config *config.Config
	logger logging.Logger
}

// NewRedisClient creates a new Redis client instance
func NewRedisClient(cfg *config.Config) *RedisClient {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		// Fallback to default configuration
		opts = &redis.Options{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
		}
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	return &RedisClient{
		client: redis.NewClient(opts),
		config: cfg,
		logger: logging.GetGlobalLogger(),
	}
}

// Ping tests the Redis connection
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// IsHealthy checks if Redis is connected and healthy
func (r *RedisClient) IsHealthy(ctx context.Context) error {
	return r.Ping(ctx)
}

// CacheSchedulerHealth stores the latest scheduler health summary
func (r *RedisClient) CacheSchedulerHealth(ctx context.Context, health *models.SchedulerHealth) {
	r.set(ctx, r.healthKey(), health, r.config.Redis.CacheTTL)
}

// GetCachedSchedulerHealth returns the cached health summary, or nil when
// the cache is cold or unavailable.
func (r *RedisClient) GetCachedSchedulerHealth(ctx context.Context) *models.SchedulerHealth {
	var health models.SchedulerHealth
	if !r.get(ctx, r.healthKey(), &health) {
		return nil
	}
	return &health
}

type aggregatedSnapshot struct {
	Range   models.DateRange          `json:"range"`
	Records []models.AggregatedRecord `json:"records"`
}

// CacheAggregatedSnapshot stores the latest aggregated rows for a user
// together with the range the snapshot covers.
func (r *RedisClient) CacheAggregatedSnapshot(ctx context.Context, userID string, periodType models.PeriodType, covered models.DateRange, records []models.AggregatedRecord) {
	snapshot := aggregatedSnapshot{Range: covered, Records: records}
	r.set(ctx, r.snapshotKey(userID, periodType), snapshot, r.config.Redis.CacheTTL)
}

// GetCachedAggregatedSnapshot returns the cached aggregated rows for a
// user when the snapshot covers the requested range, or nil otherwise.
func (r *RedisClient) GetCachedAggregatedSnapshot(ctx context.Context, userID string, periodType models.PeriodType, want models.DateRange) []models.AggregatedRecord {
	var snapshot aggregatedSnapshot
	if !r.get(ctx, r.snapshotKey(userID, periodType), &snapshot) {
		return nil
	}
	if want.Start.Before(snapshot.Range.Start) || want.End.After(snapshot.Range.End) {
		return nil
	}
	if snapshot.Records == nil {
		return []models.AggregatedRecord{}
	}
	return snapshot.Records
}

// InvalidateAggregatedSnapshot drops the cached rows for a user after a
// recompute so the next read sees fresh data.
func (r *RedisClient) InvalidateAggregatedSnapshot(ctx context.Context, userID string) {
	for _, pt := range models.AllPeriodTypes {
		if err := r.client.Del(ctx, r.snapshotKey(userID, pt)).Err(); err != nil {
			r.logger.Debug("Failed to invalidate aggregated snapshot cache", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
		}
	}
}

func (r *RedisClient) set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	payload, err := json.Marshal(value)
	if err != nil {
		r.logger.Debug("Failed to marshal cache payload", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return
	}
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		r.logger.Debug("Failed to write cache entry", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

func (r *RedisClient) get(ctx context.Context, key string, out interface{}) bool {
	payload, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			r.logger.Debug("Failed to read cache entry", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		return false
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		r.logger.Debug("Failed to unmarshal cache entry", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return false
	}
	return true
}

func (r *RedisClient) healthKey() string {
	return "scheduler:health"
}

func (r *RedisClient) snapshotKey(userID string, periodType models.PeriodType) string {
	return fmt.Sprintf("analytics:aggregated:%s:%s", userID, periodType)
}
