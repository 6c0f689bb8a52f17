// Package redis caches derived passbands between calibration runs
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/saviobatista/ytla-corr/internal/types"
	"github.com/saviobatista/ytla-corr/internal/vis"
)

// PassbandTTL is how long a cached passband stays valid
const PassbandTTL = 24 * time.Hour

// RedisClientInterface defines the Redis operations used by our client
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Client manages Redis connections and operations
type Client struct {
	client RedisClientInterface
}

// New creates a new Redis client
func New(addr string) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{client: client}, nil
}

// NewWithClient creates a new Redis client with a custom RedisClientInterface (useful for testing)
func NewWithClient(client RedisClientInterface) *Client {
	return &Client{client: client}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// PassbandKey returns the cache key of the passband derived from the
// calibrator at path with the given options fingerprint. size and modTime
// identify the calibrator version so a rewritten file misses the cache.
func PassbandKey(path string, size int64, modTime time.Time, fingerprint string) string {
	return fmt.Sprintf("passband:%s:%d:%d:%s", path, size, modTime.UnixNano(), fingerprint)
}

// StorePassband caches pb under key
func (c *Client) StorePassband(ctx context.Context, key string, pb *vis.Passband) error {
	data, err := json.Marshal(ToCached(pb))
	if err != nil {
		return fmt.Errorf("failed to marshal passband: %w", err)
	}
	return c.client.Set(ctx, key, data, PassbandTTL).Err()
}

// GetPassband returns the passband cached under key, or nil when absent
func (c *Client) GetPassband(ctx context.Context, key string) (*vis.Passband, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get passband: %w", err)
	}

	var cached types.CachedPassband
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("failed to unmarshal passband: %w", err)
	}
	return FromCached(&cached)
}

// DeletePassband removes a cached passband
func (c *Client) DeletePassband(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// ToCached converts a passband into its cache form
func ToCached(pb *vis.Passband) *types.CachedPassband {
	c := &types.CachedPassband{
		Sidebands: vis.Sidebands,
		Baselines: pb.Baselines,
		Channels:  pb.Channels,
		ChMin:     pb.ChMin,
		ChMax:     pb.ChMax,
		Real:      make([]float64, len(pb.Values)),
		Imag:      make([]float64, len(pb.Values)),
		Norm:      append([]float64(nil), pb.Norm...),
	}
	for i, v := range pb.Values {
		c.Real[i] = real(v)
		c.Imag[i] = imag(v)
	}
	return c
}

// FromCached rebuilds a passband, rejecting entries whose arrays do not
// match their declared shape
func FromCached(c *types.CachedPassband) (*vis.Passband, error) {
	n := vis.Sidebands * c.Baselines * c.Channels
	if c.Sidebands != vis.Sidebands || len(c.Real) != n || len(c.Imag) != n || len(c.Norm) != vis.Sidebands*c.Baselines {
		return nil, fmt.Errorf("%w: cached passband nsb=%d nb=%d nch=%d with %d values",
			vis.ErrShapeMismatch, c.Sidebands, c.Baselines, c.Channels, len(c.Real))
	}
	pb := vis.NewPassband(c.Baselines, c.Channels)
	pb.ChMin, pb.ChMax = c.ChMin, c.ChMax
	for i := range pb.Values {
		pb.Values[i] = complex(c.Real[i], c.Imag[i])
	}
	copy(pb.Norm, c.Norm)
	return pb, nil
}
