package sink

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tuan204-dev/iot-next/internal/domain"
	"github.com/tuan204-dev/iot-next/internal/ports"
)

// KV is the subset of *redis.Client the cache needs.
type KV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

// RedisCache keeps the newest value of every metric under
// <prefix>:last:<metric> as "<value>@<RFC3339 timestamp>".
type RedisCache struct {
	client KV
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client KV, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) Name() string { return "redis" }

func (c *RedisCache) key(m domain.Metric) string {
	return c.prefix + ":last:" + string(m)
}

func (c *RedisCache) WriteBatch(ctx context.Context, readings []*domain.Reading) error {
	latest := make(map[domain.Metric]domain.Sample, len(domain.Metrics))
	for _, r := range readings {
		for _, m := range domain.Metrics {
			v, ok := r.Value(m)
			if !ok {
				continue
			}
			if prev, seen := latest[m]; seen && prev.Timestamp.After(r.ReceivedAt) {
				continue
			}
			latest[m] = domain.Sample{Timestamp: r.ReceivedAt, Value: v}
		}
	}

	var errs []error
	for _, m := range domain.Metrics {
		s, ok := latest[m]
		if !ok {
			continue
		}
		if err := c.client.Set(ctx, c.key(m), encodeSample(s), c.ttl).Err(); err != nil {
			errs = append(errs, fmt.Errorf("set %s: %w", c.key(m), err))
		}
	}
	return errors.Join(errs...)
}

// Latest returns the cached sample of each metric that has one.
func (c *RedisCache) Latest(ctx context.Context) (map[domain.Metric]domain.Sample, error) {
	keys := make([]string, len(domain.Metrics))
	for i, m := range domain.Metrics {
		keys[i] = c.key(m)
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget: %w", err)
	}

	out := make(map[domain.Metric]domain.Sample, len(vals))
	for i, raw := range vals {
		str, ok := raw.(string)
		if !ok || i >= len(domain.Metrics) {
			continue
		}
		s, err := decodeSample(str)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", keys[i], err)
		}
		out[domain.Metrics[i]] = s
	}
	return out, nil
}

func encodeSample(s domain.Sample) string {
	return strconv.FormatFloat(s.Value, 'g', -1, 64) + "@" + s.Timestamp.UTC().Format(time.RFC3339Nano)
}

func decodeSample(str string) (domain.Sample, error) {
	val, at, ok := strings.Cut(str, "@")
	if !ok {
		return domain.Sample{}, fmt.Errorf("malformed cache entry %q", str)
	}
	v, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return domain.Sample{}, fmt.Errorf("value: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return domain.Sample{}, fmt.Errorf("timestamp: %w", err)
	}
	return domain.Sample{Timestamp: ts, Value: v}, nil
}

var _ ports.Sink = (*RedisCache)(nil)
var _ KV = (*redis.Client)(nil)
