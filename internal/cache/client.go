package cache

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Store is keyed get/set/delete with TTL. Get distinguishes a miss
// (found=false, err=nil) from a store failure.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Client fronts a primary store with an in-process secondary. Primary
// failures degrade silently: reads fall through to the secondary, and
// writes land only in the secondary so a cold primary never loses
// observability of recent results.
type Client struct {
	primary   Store
	secondary *MemoryStore
	logger    *slog.Logger
}

// NewClient creates a cache client. primary may be nil, in which case
// only the in-process store is used.
func NewClient(primary Store, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		primary:   primary,
		secondary: NewMemoryStore(),
		logger:    logger,
	}
}

// Get looks up key on the primary, falling through to the secondary on
// any primary error.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.primary != nil {
		val, found, err := c.primary.Get(ctx, key)
		if err == nil {
			return val, found
		}
		c.logger.Debug("primary cache unavailable, using fallback", "key", key, "error", err)
	}
	val, found, _ := c.secondary.Get(ctx, key)
	return val, found
}

// Set writes to the primary; on primary failure it writes only to the
// secondary.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if c.primary != nil {
		if err := c.primary.Set(ctx, key, value, ttl); err == nil {
			return
		} else {
			c.logger.Debug("primary cache set failed, writing fallback", "key", key, "error", err)
		}
	}
	_ = c.secondary.Set(ctx, key, value, ttl)
}

// Delete removes key from both stores, ignoring primary failures.
func (c *Client) Delete(ctx context.Context, key string) {
	if c.primary != nil {
		if err := c.primary.Delete(ctx, key); err != nil {
			c.logger.Debug("primary cache delete failed", "key", key, "error", err)
		}
	}
	_ = c.secondary.Delete(ctx, key)
}

// StartSweeper launches the secondary store's periodic purge. It returns
// immediately; the sweep stops when ctx is cancelled.
func (c *Client) StartSweeper(ctx context.Context, interval time.Duration) {
	go c.secondary.Sweep(ctx, interval)
}
