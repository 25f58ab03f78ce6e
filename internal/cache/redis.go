// Package cache mirrors last-good snapshots to Redis so a restarted dashboard can show
// data before its first poll completes, and publishes a notice on every update.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"monitora-dashboard/internal/config"
	"monitora-dashboard/internal/models"
)

const (
	keyPrefix     = "monitora:snapshot:"
	geoKey        = "monitora:devices:geo"
	UpdateChannel = "monitora:updates"
)

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(ctx context.Context, cfg *config.Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client, ttl: cfg.RedisTTL}, nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

type envelope struct {
	Resource string          `json:"resource"`
	SavedAt  time.Time       `json:"saved_at"`
	Data     json.RawMessage `json:"data"`
}

type notice struct {
	Resource string `json:"resource"`
	SavedAt  int64  `json:"saved_at"`
}

func encode(resource string, data interface{}, at time.Time) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s snapshot: %w", resource, err)
	}
	return json.Marshal(envelope{Resource: resource, SavedAt: at.UTC(), Data: raw})
}

func decode(b []byte, dst interface{}) (time.Time, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return time.Time{}, fmt.Errorf("failed to unmarshal snapshot envelope: %w", err)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return time.Time{}, fmt.Errorf("failed to unmarshal %s snapshot: %w", env.Resource, err)
	}
	return env.SavedAt, nil
}

// Store saves the snapshot of resource and publishes an update notice
func (r *RedisCache) Store(ctx context.Context, resource string, data interface{}) error {
	now := time.Now()
	payload, err := encode(resource, data, now)
	if err != nil {
		return err
	}
	pubPayload, _ := json.Marshal(notice{Resource: resource, SavedAt: now.Unix()})

	pipe := r.client.Pipeline()
	pipe.Set(ctx, keyPrefix+resource, payload, r.ttl)
	pipe.Publish(ctx, UpdateChannel, pubPayload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed for %s: %w", resource, err)
	}
	return nil
}

// Load restores the snapshot of resource into dst. ok is false when nothing is cached.
func (r *RedisCache) Load(ctx context.Context, resource string, dst interface{}) (time.Time, bool, error) {
	b, err := r.client.Get(ctx, keyPrefix+resource).Bytes()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get %s snapshot: %w", resource, err)
	}

	savedAt, err := decode(b, dst)
	if err != nil {
		return time.Time{}, false, err
	}
	return savedAt, true, nil
}

// StorePositions indexes the last known position of every device
func (r *RedisCache) StorePositions(ctx context.Context, devices []models.DeviceStatus) error {
	var locs []*redis.GeoLocation
	for _, d := range devices {
		lat, lon, ok := d.Position()
		if !ok {
			continue
		}
		locs = append(locs, &redis.GeoLocation{
			Name:      d.DeviceID,
			Longitude: lon,
			Latitude:  lat,
		})
	}
	if len(locs) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	pipe.GeoAdd(ctx, geoKey, locs...)
	pipe.Expire(ctx, geoKey, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index device positions: %w", err)
	}
	return nil
}

// Nearby returns the ids of devices within radiusKm of a point, nearest first
func (r *RedisCache) Nearby(ctx context.Context, lat, lon, radiusKm float64) ([]string, error) {
	locs, err := r.client.GeoRadius(ctx, geoKey, lon, lat, &redis.GeoRadiusQuery{
		Radius: radiusKm,
		Unit:   "km",
		Sort:   "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geo radius query failed: %w", err)
	}

	ids := make([]string, 0, len(locs))
	for _, l := range locs {
		ids = append(ids, l.Name)
	}
	return ids, nil
}

// Subscribe streams update notices until ctx is done
func (r *RedisCache) Subscribe(ctx context.Context) (<-chan string, error) {
	sub := r.client.Subscribe(ctx, UpdateChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", UpdateChannel, err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var n notice
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					continue
				}
				select {
				case out <- n.Resource:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
