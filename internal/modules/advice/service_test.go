package advice

import (
	"context"
	"io"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"haul/internal/ai"
	"haul/internal/logging"
	"haul/internal/types"
)

type mockAdvisor struct {
	mock.Mock
}

func (m *mockAdvisor) GetTips(ctx context.Context, item string) []string {
	args := m.Called(ctx, item)
	return args.Get(0).([]string)
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func newService(advisor ai.Advisor, cache Cache, limiter Limiter, limit int64) *Service {
	return NewService(advisor, cache, limiter, Config{CacheTTL: time.Hour, HourlyLimit: limit}).
		WithLogger(logging.NewLoggerTo(io.Discard, "error"))
}

func TestRedisCache_GetSet(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	b, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), b)

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRedisLimiter(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)

	mr.FastForward(2 * time.Minute)
	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(1), n)
}

func TestMemoryLimiterWindow(t *testing.T) {
	rl := NewMemoryLimiter()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	ctx := context.Background()
	ok, _, _ := rl.Allow(ctx, "k", 1, time.Minute)
	require.True(t, ok)
	ok, _, _ = rl.Allow(ctx, "k", 1, time.Minute)
	require.False(t, ok)

	now = now.Add(time.Minute)
	ok, n, _ := rl.Allow(ctx, "k", 1, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(1), n)
}

func TestTipsCachesByNormalisedItem(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	advisor := new(mockAdvisor)
	advisor.On("GetTips", mock.Anything, "Old  Sofa").Return([]string{"Wrap it", "Lift with two"}).Once()

	svc := newService(advisor, NewRedisCache(rdb), NewRedisLimiter(rdb), 10)
	ctx := context.Background()

	first, err := svc.Tips(ctx, "client-1", "Old  Sofa")
	require.NoError(t, err)
	require.Equal(t, []string{"Wrap it", "Lift with two"}, first)

	second, err := svc.Tips(ctx, "client-2", " old sofa ")
	require.NoError(t, err)
	require.Equal(t, first, second)

	advisor.AssertExpectations(t)
	require.True(t, mr.Exists(cacheKeyPrefix+"old sofa"))
	require.InDelta(t, time.Hour.Seconds(), mr.TTL(cacheKeyPrefix+"old sofa").Seconds(), 1)
}

func TestTipsDoesNotCacheFallback(t *testing.T) {
	advisor := new(mockAdvisor)
	advisor.On("GetTips", mock.Anything, "Piano").Return(ai.FallbackTips()).Twice()

	svc := newService(advisor, NewMemoryCache(), NewMemoryLimiter(), 10)
	for i := 0; i < 2; i++ {
		tips, err := svc.Tips(context.Background(), "client-1", "Piano")
		require.NoError(t, err)
		require.Equal(t, ai.FallbackTips(), tips)
	}
	advisor.AssertExpectations(t)
}

func TestTipsHourlyLimit(t *testing.T) {
	advisor := new(mockAdvisor)
	advisor.On("GetTips", mock.Anything, mock.Anything).Return([]string{"Strap it down"})

	svc := newService(advisor, NewMemoryCache(), NewMemoryLimiter(), 2)
	ctx := context.Background()
	for _, item := range []string{"Fridge", "Washer"} {
		tips, err := svc.Tips(ctx, "client-1", item)
		require.NoError(t, err)
		require.Equal(t, []string{"Strap it down"}, tips)
	}

	tips, err := svc.Tips(ctx, "client-1", "Bicycle")
	require.NoError(t, err)
	require.Equal(t, ai.FallbackTips(), tips)

	// Cached items stay free once the budget is spent.
	tips, err = svc.Tips(ctx, "client-1", "fridge")
	require.NoError(t, err)
	require.Equal(t, []string{"Strap it down"}, tips)

	// Budgets are per client.
	tips, err = svc.Tips(ctx, "client-2", "Bicycle")
	require.NoError(t, err)
	require.Equal(t, []string{"Strap it down"}, tips)
	advisor.AssertNumberOfCalls(t, "GetTips", 3)
}

func TestTipsSurvivesCacheOutage(t *testing.T) {
	advisor := new(mockAdvisor)
	advisor.On("GetTips", mock.Anything, "Boxes").Return([]string{"Stack heavy boxes low"})

	svc := newService(advisor, brokenCache{}, NewMemoryLimiter(), 0)
	tips, err := svc.Tips(context.Background(), types.ID(""), "Boxes")
	require.NoError(t, err)
	require.Equal(t, []string{"Stack heavy boxes low"}, tips)
}

func TestTipsRejectsEmptyItem(t *testing.T) {
	svc := newService(ai.Static{}, NewMemoryCache(), NewMemoryLimiter(), 1)
	_, err := svc.Tips(context.Background(), "client-1", "  ")
	require.ErrorIs(t, err, ErrEmptyItem)
}
