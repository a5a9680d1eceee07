package rediscache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisAPI is the subset of go-redis commands required by Client.
// *redis.Client satisfies this interface.
type redisAPI interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Client is a short-lived result cache. Entries carry their own TTL and are
// never the source of truth; a miss is an expected outcome, not an error.
type Client struct {
	api redisAPI
}

// New creates a Client over the given Redis API.
func New(api redisAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("rediscache: api must not be nil")
	}
	return &Client{api: api}, nil
}

// NewFromAddr creates a Client connected to addr (host:port).
func NewFromAddr(addr string) (*Client, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("rediscache: addr must not be empty")
	}
	return New(redis.NewClient(&redis.Options{Addr: addr}))
}

// Set stores value under key with the given TTL. Last writer wins.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.api.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("rediscache: set %s: %w", key, err)
	}
	return nil
}

// Get returns the cached value for key. The boolean is false on a miss.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.api.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("rediscache: get %s: %w", key, err)
	}
	return val, true, nil
}
