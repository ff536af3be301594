package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nshruti113/ddos-mitigation-engine/internal/models"
)

type RedisClient struct {
	client *redis.Client
	ctx    context.Context
}

func NewRedisClient(addr string, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{
		client: client,
		ctx:    ctx,
	}, nil
}

// StoreFlowEvent stores one processed-flow disposition in Redis.
func (r *RedisClient) StoreFlowEvent(event models.FlowEvent) error {
	// Store in a time-series sorted set
	timestamp := float64(event.Timestamp.Unix())
	key := "flows:events"

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// Add to sorted set with timestamp as score
	if err := r.client.ZAdd(r.ctx, key, redis.Z{
		Score:  timestamp,
		Member: string(data),
	}).Err(); err != nil {
		return err
	}

	// Keep only last 30 minutes of data
	thirtyMinutesAgo := float64(time.Now().Add(-30 * time.Minute).Unix())
	r.client.ZRemRangeByScore(r.ctx, key, "-inf", fmt.Sprintf("%f", thirtyMinutesAgo))

	// Update real-time counters
	r.updateCounters(event)

	return nil
}

// updateCounters updates real-time per-minute disposition metrics
func (r *RedisClient) updateCounters(event models.FlowEvent) {
	minute := time.Now().Truncate(time.Minute).Unix()
	key := fmt.Sprintf("metrics:%d", minute)

	pipe := r.client.Pipeline()

	// Increment total processed flows
	pipe.HIncrBy(r.ctx, key, "total_flows", 1)

	// Increment disposition counter
	pipe.HIncrBy(r.ctx, key, "disposition:"+event.Disposition, 1)

	// Increment per-connection counter
	pipe.ZIncrBy(r.ctx, key+":connection_counts", 1, event.ConnectionKey)

	// Set expiration (keep for 1 hour)
	pipe.Expire(r.ctx, key, time.Hour)
	pipe.Expire(r.ctx, key+":connection_counts", time.Hour)

	_, err := pipe.Exec(r.ctx)
	if err != nil {
		fmt.Printf("Error updating counters: %v\n", err)
	}
}

// GetRecentEvents retrieves flow events from the last N seconds
func (r *RedisClient) GetRecentEvents(seconds int) ([]models.FlowEvent, error) {
	key := "flows:events"
	since := time.Now().Add(-time.Duration(seconds) * time.Second).Unix()

	results, err := r.client.ZRangeByScore(r.ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", since),
		Max: "+inf",
	}).Result()

	if err != nil {
		return nil, err
	}

	events := make([]models.FlowEvent, 0, len(results))
	for _, result := range results {
		var event models.FlowEvent
		if err := json.Unmarshal([]byte(result), &event); err != nil {
			continue
		}
		events = append(events, event)
	}

	return events, nil
}

func banField(matchAddress string, direction models.Direction) string {
	return fmt.Sprintf("%s|%s", matchAddress, direction)
}

// StoreBan mirrors an installed ban into Redis
func (r *RedisClient) StoreBan(entry models.BanEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	key := "bans:active"

	// Store in hash
	if err := r.client.HSet(r.ctx, key, banField(entry.MatchedAddress, entry.Direction), string(data)).Err(); err != nil {
		return err
	}

	// Also add to time-series
	timestamp := float64(entry.InstalledAtMinute * 60)
	if err := r.client.ZAdd(r.ctx, "bans:history", redis.Z{
		Score:  timestamp,
		Member: banField(entry.MatchedAddress, entry.Direction),
	}).Err(); err != nil {
		return err
	}

	return nil
}

// RemoveBan drops an expired ban from the active mirror
func (r *RedisClient) RemoveBan(matchAddress string, direction models.Direction) error {
	return r.client.HDel(r.ctx, "bans:active", banField(matchAddress, direction)).Err()
}

// GetActiveBans retrieves the mirrored active bans
func (r *RedisClient) GetActiveBans() ([]models.BanEntry, error) {
	key := "bans:active"

	bansData, err := r.client.HGetAll(r.ctx, key).Result()
	if err != nil {
		return nil, err
	}

	bans := make([]models.BanEntry, 0, len(bansData))
	for _, data := range bansData {
		var entry models.BanEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			continue
		}
		bans = append(bans, entry)
	}

	return bans, nil
}

// PublishEvent publishes a flow event to subscribers
func (r *RedisClient) PublishEvent(event models.FlowEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return r.client.Publish(r.ctx, "flow-events", string(data)).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}
