package shared

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
)

// IsMemoryURL reports whether a broker/backend URL selects the in-process implementation.
func IsMemoryURL(u string) bool {
	u = strings.TrimSpace(u)
	return u == "" || strings.HasPrefix(u, "memory://")
}

// NewRedisClient constructs a go-redis client from a redis:// URL
func NewRedisClient(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parse redis url")
	}
	// Reasonable timeouts
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	return redis.NewClient(opts), nil
}

// PingRedis validates the connection.
func PingRedis(client *redis.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}
