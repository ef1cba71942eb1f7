package redis

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client wraps redis.Client for dependency injection.
type Client struct {
	*redis.Client
}

// NewClient connects to Redis and verifies the connection.
// Supports format: redis://[:password@]host:port[/db]
func NewClient(ctx context.Context, dsn string) (*Client, error) {
	opts, err := parseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse redis dsn: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}

	return &Client{Client: client}, nil
}

// Close closes the client.
func (c *Client) Close() error {
	return c.Client.Close()
}

// parseDSN parses a redis URL into Options.
func parseDSN(dsn string) (*redis.Options, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn url: %w", err)
	}
	if u.Scheme != "redis" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	opts := &redis.Options{
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "6379"
	}
	opts.Addr = host + ":" + port

	if u.User != nil {
		opts.Username = u.User.Username()
		if password, ok := u.User.Password(); ok {
			opts.Password = password
		}
	}

	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid db %q: %w", db, err)
		}
		opts.DB = n
	}

	return opts, nil
}
