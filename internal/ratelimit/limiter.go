package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/finsight-core/server/internal/metrics"
	logx "github.com/finsight-core/server/pkg/logger"
)

// Bucket selects which independent limit applies to an identity.
type Bucket string

const (
	// BucketUser limits turns per resolved caller identity.
	BucketUser Bucket = "user"
	// BucketAddr limits turns per network address. Looser per identity since
	// many users may share one address, but it blunts abuse from a single
	// source hitting many identities.
	BucketAddr Bucket = "addr"
)

// Config holds per-bucket limits, sourced from environment variables.
type Config struct {
	UserLimit         int `envconfig:"RATE_LIMIT_USER" default:"10"`
	UserWindowSeconds int `envconfig:"RATE_LIMIT_USER_WINDOW_SECONDS" default:"60"`
	AddrLimit         int `envconfig:"RATE_LIMIT_ADDR" default:"20"`
	AddrWindowSeconds int `envconfig:"RATE_LIMIT_ADDR_WINDOW_SECONDS" default:"60"`
}

type rule struct {
	limit  int
	window time.Duration
}

// Limiter counts requests in a sliding window per (bucket, identity), backed
// by a Redis sorted set scored with the request timestamp. Entries older than
// the window are dropped before counting, so the window slides continuously
// instead of resetting at fixed boundaries.
type Limiter struct {
	rdb   redis.Cmdable
	rules map[Bucket]rule
	now   func() time.Time
}

func New(rdb redis.Cmdable, cfg Config) *Limiter {
	return &Limiter{
		rdb: rdb,
		rules: map[Bucket]rule{
			BucketUser: {limit: cfg.UserLimit, window: time.Duration(cfg.UserWindowSeconds) * time.Second},
			BucketAddr: {limit: cfg.AddrLimit, window: time.Duration(cfg.AddrWindowSeconds) * time.Second},
		},
		now: time.Now,
	}
}

func windowKey(bucket Bucket, identity string) string {
	return fmt.Sprintf("ratelimit:%s:%s", bucket, identity)
}

// Allow reports whether one more request for identity fits inside the bucket's
// window, recording it when admitted. Prune, record, and count run as one
// transactional pipeline: the request's member is added before counting, so
// concurrent callers for the same identity each observe a count that already
// includes their own admission and at most limit of them pass. A request that
// counts itself over the limit removes its member again and is rejected. A
// backing-store failure admits the request: a Redis blip must not take the
// product down, it only costs some upstream protection.
func (l *Limiter) Allow(ctx context.Context, bucket Bucket, identity string) bool {
	r, ok := l.rules[bucket]
	if !ok || r.limit <= 0 {
		return true
	}

	key := windowKey(bucket, identity)
	now := l.now()
	cutoff := strconv.FormatInt(now.Add(-r.window).UnixNano(), 10)
	member := uuid.NewString()

	var count *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "0", cutoff)
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(now.UnixNano()),
			Member: member,
		})
		count = pipe.ZCard(ctx, key)
		pipe.Expire(ctx, key, r.window)
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("bucket", string(bucket)).Msg("rate limiter unavailable, admitting request")
		return true
	}

	if count.Val() > int64(r.limit) {
		// Rejected requests must not occupy a slot. If the removal fails the
		// member ages out of the window on its own.
		if remErr := l.rdb.ZRem(ctx, key, member).Err(); remErr != nil {
			logx.Error().Err(remErr).Str("bucket", string(bucket)).Msg("rate limiter rollback failed")
		}
		metrics.RateLimitRejections.WithLabelValues(string(bucket)).Inc()
		logx.Debug().
			Str("bucket", string(bucket)).
			Str("identity", identity).
			Int64("count", count.Val()).
			Int("limit", r.limit).
			Msg("request rejected by sliding window")
		return false
	}
	return true
}
