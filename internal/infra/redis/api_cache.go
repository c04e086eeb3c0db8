package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// APICache stores serialized snapshots of full external-call results, keyed
// by call type + arguments. The cache is shared across all concurrent runs so
// one run's fetch can satisfy another run's identical request.
type APICache struct {
	client RedisClient
}

func NewAPICache(client RedisClient) *APICache {
	return &APICache{client: client}
}

// Key builds a cache key from a call type and its arguments.
func Key(callType string, args ...interface{}) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, callType)
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	return "yt:" + strings.Join(parts, ":")
}

// Get unmarshals a cached snapshot into dest. The second return value is
// false on a miss.
func (c *APICache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores a full result snapshot with the call type's TTL.
func (c *APICache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl)
}
