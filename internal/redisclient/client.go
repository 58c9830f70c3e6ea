// Package redisclient wraps go-redis with the few JSON key/value calls the
// session store needs.
package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by GetJSON when the key does not exist.
var ErrMiss = errors.New("redis: key not found")

type Client struct {
	redisdb *redis.Client
	prefix  string
}

type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every key, e.g. "shopadmin:".
	Prefix string
}

func New(cfg Config) *Client {
	redisdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	return NewWithClient(redisdb, cfg.Prefix)
}

// NewWithClient wraps an existing go-redis client.
func NewWithClient(redisdb *redis.Client, prefix string) *Client {
	return &Client{redisdb: redisdb, prefix: prefix}
}

func (c *Client) Key(parts ...string) string {
	k := c.prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

// Ping checks redis connectivity; /readyz uses it.
func (c *Client) Ping(ctx context.Context) error {
	return c.redisdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.redisdb.Close()
}

func (c *Client) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis set %s: encode: %w", key, err)
	}
	if err := c.redisdb.Set(ctx, key, b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *Client) GetJSON(ctx context.Context, key string, v any) error {
	b, err := c.redisdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("redis get %s: decode: %w", key, err)
	}
	return nil
}

func (c *Client) Del(ctx context.Context, key string) error {
	if err := c.redisdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
