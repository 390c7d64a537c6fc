package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func withMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewClient(mr.Addr())
	require.NoError(t, err)
	prev := client
	SetClient(rdb)
	t.Cleanup(func() {
		_ = rdb.Close()
		SetClient(prev)
	})
	return mr
}

func TestAside_MissThenHit(t *testing.T) {
	mr := withMiniredis(t)
	ctx := context.Background()
	calls := 0
	fetch := func(dest *payload) func() error {
		return func() error {
			calls++
			*dest = payload{Name: "trip", Count: 3}
			return nil
		}
	}

	var first payload
	require.NoError(t, Aside(ctx, "k", &first, time.Minute, fetch(&first)))
	assert.Equal(t, "trip", first.Name)
	assert.True(t, mr.Exists("k"))

	var second payload
	require.NoError(t, Aside(ctx, "k", &second, time.Minute, fetch(&second)))
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	mr.FastForward(2 * time.Minute)
	var third payload
	require.NoError(t, Aside(ctx, "k", &third, time.Minute, fetch(&third)))
	assert.Equal(t, 2, calls)
}

func TestAside_FetchErrorNotCached(t *testing.T) {
	mr := withMiniredis(t)
	boom := errors.New("boom")

	var dest payload
	err := Aside(context.Background(), "k", &dest, time.Minute, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("k"))
}

func TestAside_NoClient(t *testing.T) {
	prev := client
	SetClient(nil)
	t.Cleanup(func() { SetClient(prev) })

	var dest payload
	err := Aside(context.Background(), "k", &dest, time.Minute, func() error {
		dest.Name = "db"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "db", dest.Name)
}

func TestInvalidateUser(t *testing.T) {
	mr := withMiniredis(t)
	ctx := context.Background()
	require.NoError(t, SetJSON(ctx, UserKey(7), payload{Name: "u"}, UserTTL))
	require.NoError(t, SetJSON(ctx, TripKey("kyoto"), payload{Count: 1}, TripTTL))

	InvalidateUser(ctx, 7)
	assert.False(t, mr.Exists("user:7"))
	assert.True(t, mr.Exists("trip:kyoto"))
}

func TestNewClient_URL(t *testing.T) {
	rdb, err := NewClient("redis://localhost:6380/2")
	require.NoError(t, err)
	defer func() { _ = rdb.Close() }()
	assert.Equal(t, "localhost:6380", rdb.Options().Addr)
	assert.Equal(t, 2, rdb.Options().DB)

	_, err = NewClient("redis://%zz")
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "trip:abc", TripKey("abc"))
	assert.Equal(t, "user:7", UserKey(7))
	var _ redis.Cmdable = (*redis.Client)(nil)
}
