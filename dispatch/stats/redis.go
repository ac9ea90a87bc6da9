package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis records events as hash counters:
//
//	<prefix>:total                  field -> count
//	<prefix>:minute:<YYYYMMDDhhmm>  field -> count, expiring after ttl
//	<prefix>:bucket:<key>           field -> count, expiring after ttl
//
// Fields are the outcome names plus "attempts" and "throttles".
type Redis struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
	minute bool
}

// RedisOption configures a [Redis] recorder.
type RedisOption func(*Redis)

// WithPrefix sets the key prefix. The default is "botcommons:dispatch".
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = strings.Trim(prefix, ":") }
}

// WithTTL sets the expiry of per-minute and per-bucket keys.
func WithTTL(d time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = d }
}

// WithoutMinuteSeries disables the per-minute keys.
func WithoutMinuteSeries() RedisOption {
	return func(r *Redis) { r.minute = false }
}

// NewRedis returns a recorder writing through rdb.
func NewRedis(rdb redis.Cmdable, opts ...RedisOption) *Redis {
	r := &Redis{
		rdb:    rdb,
		prefix: "botcommons:dispatch",
		ttl:    24 * time.Hour,
		minute: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) Record(ctx context.Context, ev Event) error {
	if r == nil || r.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	pipe := r.rdb.Pipeline()
	incr := func(key string, expire bool) {
		pipe.HIncrBy(ctx, key, string(ev.Outcome), 1)
		if ev.Attempts > 0 {
			pipe.HIncrBy(ctx, key, "attempts", int64(ev.Attempts))
		}
		if ev.Throttles > 0 {
			pipe.HIncrBy(ctx, key, "throttles", int64(ev.Throttles))
		}
		if expire && r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
	}

	incr(r.prefix+":total", false)
	if r.minute {
		incr(fmt.Sprintf("%s:minute:%s", r.prefix, at.UTC().Format("200601021504")), true)
	}
	if ev.Bucket != "" {
		incr(r.prefix+":bucket:"+ev.Bucket, true)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording dispatch stats: %w", err)
	}

	return nil
}

// Total reads the cumulative counters.
func (r *Redis) Total(ctx context.Context) (Counts, error) {
	return r.read(ctx, r.prefix+":total")
}

// Bucket reads the counters for one bucket key.
func (r *Redis) Bucket(ctx context.Context, key string) (Counts, error) {
	return r.read(ctx, r.prefix+":bucket:"+key)
}

func (r *Redis) read(ctx context.Context, key string) (Counts, error) {
	var raw struct {
		Succeeded int64 `redis:"succeeded"`
		Failed    int64 `redis:"failed"`
		Cancelled int64 `redis:"cancelled"`
		Attempts  int64 `redis:"attempts"`
		Throttles int64 `redis:"throttles"`
	}

	if err := r.rdb.HGetAll(ctx, key).Scan(&raw); err != nil {
		return Counts{}, fmt.Errorf("reading %s: %w", key, err)
	}

	return Counts(raw), nil
}
