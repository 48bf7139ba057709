package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	_ = Init(logger)
}

// pin the limiter clock to the start of a window so bucket weighting is
// deterministic
func pinned(l *Limiter) time.Time {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Truncate(l.window)
	l.now = func() time.Time { return start }
	return start
}

func TestLimiterAllowsUpToLimit(t *testing.T) {
	l := New(NewMemoryStore(), 3, time.Minute)
	pinned(l)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, _, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should pass", i+1)
	}

	ok, retryAfter, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, retryAfter, time.Duration(0))
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	l := New(NewMemoryStore(), 1, time.Minute)
	pinned(l)

	ctx := context.Background()
	ok, _, _ := l.Allow(ctx, "1.1.1.1")
	assert.True(t, ok)
	ok, _, _ = l.Allow(ctx, "1.1.1.1")
	assert.False(t, ok)

	ok, _, _ = l.Allow(ctx, "2.2.2.2")
	assert.True(t, ok)
}

func TestLimiterPreviousBucketWeighted(t *testing.T) {
	l := New(NewMemoryStore(), 4, time.Minute)
	start := pinned(l)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		ok, _, err := l.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	// 15s into the next window the previous 4 still weigh 3, so a
	// second request estimates above the limit
	l.now = func() time.Time { return start.Add(time.Minute + 15*time.Second) }
	ok, _, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// two full windows later everything has aged out
	l.now = func() time.Time { return start.Add(3 * time.Minute) }
	ok, _, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStoreSubSecondWindow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	window := 500 * time.Millisecond
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	curr, prev, err := s.Incr(ctx, "k", window, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), curr)
	assert.Equal(t, int64(0), prev)

	// half a window later, still the same bucket
	curr, _, err = s.Incr(ctx, "k", window, t0.Add(250*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, int64(2), curr)

	// next bucket starts; the old count is previous, not folded into
	// the current one
	curr, prev, err = s.Incr(ctx, "k", window, t0.Add(500*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, int64(1), curr)
	assert.Equal(t, int64(2), prev)
}

func TestMemoryStorePrune(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, _, err := s.Incr(context.Background(), "old", time.Minute, now)
	require.NoError(t, err)

	s.Prune(time.Minute, now.Add(10*time.Minute))

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.counts)
}

func setupRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, &RedisStore{client: client}
}

func TestRedisStoreIncr(t *testing.T) {
	_, s := setupRedisStore(t)

	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)

	curr, prev, err := s.Incr(ctx, "1.2.3.4", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), curr)
	assert.Equal(t, int64(0), prev)

	curr, _, err = s.Incr(ctx, "1.2.3.4", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), curr)

	// next window sees the old bucket as previous
	curr, prev, err = s.Incr(ctx, "1.2.3.4", time.Minute, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), curr)
	assert.Equal(t, int64(2), prev)
}

func TestRedisStoreSubSecondWindow(t *testing.T) {
	_, s := setupRedisStore(t)

	ctx := context.Background()
	window := 500 * time.Millisecond
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	curr, prev, err := s.Incr(ctx, "k", window, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), curr)
	assert.Equal(t, int64(0), prev)

	curr, prev, err = s.Incr(ctx, "k", window, t0.Add(500*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, int64(1), curr)
	assert.Equal(t, int64(1), prev)
}

func TestRedisStoreBucketsExpire(t *testing.T) {
	mr, s := setupRedisStore(t)

	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_, _, err := s.Incr(ctx, "k", time.Minute, now)
	require.NoError(t, err)

	mr.FastForward(3 * time.Minute)

	_, prev, err := s.Incr(ctx, "k", time.Minute, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(0), prev)
}

func TestMiddlewareReturns429(t *testing.T) {
	l := New(NewMemoryStore(), 1, time.Minute)
	pinned(l)

	e := echo.New()
	handler := Middleware(l)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/download", nil)
		req.RemoteAddr = "9.9.9.9:1234"
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		require.NoError(t, handler(c))
		return rec
	}

	assert.Equal(t, http.StatusOK, do().Code)

	rec := do()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limit_exceeded")
}
