package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Cache keeps computed forecasts in Redis for a short TTL. Forecasts are
// derived data; a stale read is acceptable for the TTL window.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

// Key identifies one forecast scope. componentID 0 means the whole company.
func Key(companyID, componentID, locationID int64) string {
	return fmt.Sprintf("forecast:%d:%d:%d", companyID, componentID, locationID)
}

func (c *Cache) Get(ctx context.Context, key string) ([]Forecast, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var out []Forecast
	if err := json.Unmarshal([]byte(val), &out); err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []Forecast) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, c.ttl).Err()
}

// Invalidate drops every cached scope for the company.
func (c *Cache) Invalidate(ctx context.Context, companyID int64) error {
	iter := c.client.Scan(ctx, 0, fmt.Sprintf("forecast:%d:*", companyID), 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
