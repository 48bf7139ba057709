// Package ratelimit implements a per-client sliding-window request
// limiter with interchangeable counter stores (in-memory or Redis).
//
// The window is approximated with two fixed buckets: the count of the
// previous bucket is weighted by how much of it still overlaps the
// rolling window. This is the same scheme httprate uses and avoids
// storing per-request timestamps.
package ratelimit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

func Init(logger *logrus.Logger) error {
	log = logger.WithFields(logrus.Fields{
		"component": "ratelimit",
	}).Logger
	return nil
}

// Store counts requests per key in fixed window-sized buckets.
type Store interface {
	// Incr records one request for key in the bucket containing now and
	// returns the counts of the current and previous buckets.
	Incr(ctx context.Context, key string, window time.Duration, now time.Time) (curr, prev int64, err error)
}

type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	now    func() time.Time
}

func New(store Store, limit int, window time.Duration) *Limiter {
	return &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records a request for key and reports whether it is within the
// limit. When it is not, the returned duration is a Retry-After hint.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	curr, prev, err := l.store.Incr(ctx, key, l.window, now)
	if err != nil {
		return false, 0, err
	}

	elapsed := now.Sub(now.Truncate(l.window))
	weight := 1 - float64(elapsed)/float64(l.window)
	estimated := float64(curr) + float64(prev)*weight

	if estimated > float64(l.limit) {
		return false, l.window - elapsed, nil
	}
	return true, 0, nil
}

func (l *Limiter) Limit() int {
	return l.limit
}

func (l *Limiter) Window() time.Duration {
	return l.window
}

// bucket identifiers are nanosecond timestamps so windows shorter than a
// second still land in distinct buckets
func bucketStart(now time.Time, window time.Duration) int64 {
	return now.Truncate(window).UnixNano()
}

func prevBucketStart(bucket int64, window time.Duration) int64 {
	return bucket - window.Nanoseconds()
}
