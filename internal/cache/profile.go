// Package cache keeps recently read mileage profiles in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/02loveslollipop/patio/internal/mileage"
)

// ErrMiss is returned when no profile is cached for a vehicle.
var ErrMiss = errors.New("cache miss")

// KV is the subset of Redis commands the profile cache needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Profiles caches mileage profiles keyed by vehicle.
type Profiles struct {
	kv  KV
	ttl time.Duration
}

// NewProfiles builds a profile cache over kv.
func NewProfiles(kv KV, ttl time.Duration) *Profiles {
	return &Profiles{kv: kv, ttl: ttl}
}

func profileKey(vehicleID int64) string {
	return fmt.Sprintf("vehicle:%d:mileage", vehicleID)
}

// Get returns the cached profile, or ErrMiss.
func (p *Profiles) Get(ctx context.Context, vehicleID int64) (mileage.Profile, error) {
	raw, err := p.kv.Get(ctx, profileKey(vehicleID))
	if err != nil {
		return mileage.Profile{}, err
	}
	var profile mileage.Profile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return mileage.Profile{}, fmt.Errorf("decode cached profile: %w", err)
	}
	return profile, nil
}

// Put stores a profile for the configured TTL.
func (p *Profiles) Put(ctx context.Context, profile mileage.Profile) error {
	b, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return p.kv.Set(ctx, profileKey(profile.VehicleID), string(b), p.ttl)
}

// Invalidate drops cached profiles for the given vehicles.
func (p *Profiles) Invalidate(ctx context.Context, vehicleIDs ...int64) error {
	if len(vehicleIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(vehicleIDs))
	for _, id := range vehicleIDs {
		keys = append(keys, profileKey(id))
	}
	return p.kv.Del(ctx, keys...)
}

// Redis adapts a go-redis client to KV.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to addr and verifies the connection.
func NewRedis(ctx context.Context, addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return v, err
}

func (r *Redis) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
