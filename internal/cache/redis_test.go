package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Title string `json:"title"`
}

func withMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(mr.Addr())
	require.NoError(t, err)
	SetClient(c)
	t.Cleanup(func() {
		SetClient(nil)
		_ = c.Close()
	})
	return mr
}

func TestAside(t *testing.T) {
	mr := withMiniredis(t)
	ctx := context.Background()

	calls := 0
	fetch := func(dest *payload) func() error {
		return func() error {
			calls++
			dest.Title = "from db"
			return nil
		}
	}

	var first payload
	require.NoError(t, Aside(ctx, PostKey("p1"), &first, PostTTL, fetch(&first)))
	assert.Equal(t, "from db", first.Title)
	assert.Equal(t, 1, calls)
	assert.True(t, mr.Exists("post:p1"))

	var second payload
	require.NoError(t, Aside(ctx, PostKey("p1"), &second, PostTTL, fetch(&second)))
	assert.Equal(t, "from db", second.Title)
	assert.Equal(t, 1, calls, "second read must be served from cache")

	InvalidatePost(ctx, "p1")
	assert.False(t, mr.Exists("post:p1"))
}

func TestAsideSkipsFillAfterInvalidation(t *testing.T) {
	mr := withMiniredis(t)
	ctx := context.Background()

	// The row is read, then a concurrent delete commits and invalidates
	// before the reader gets to write the cache.
	var dest payload
	err := Aside(ctx, PostKey("p5"), &dest, PostTTL, func() error {
		dest.Title = "stale row"
		InvalidatePost(ctx, "p5")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "stale row", dest.Title)
	assert.False(t, mr.Exists("post:p5"))

	// A newer reader took over the lease; the older one must not fill.
	err = Aside(ctx, PostKey("p6"), &dest, PostTTL, func() error {
		require.NoError(t, mr.Set("post:p6:lease", "someone-else"))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("post:p6"))

	err = Aside(ctx, PostKey("p7"), &dest, PostTTL, func() error { return nil })
	require.NoError(t, err)
	assert.True(t, mr.Exists("post:p7"))
	assert.False(t, mr.Exists("post:p7:lease"))
}

func TestSetJSONTTL(t *testing.T) {
	mr := withMiniredis(t)
	require.NoError(t, SetJSON(context.Background(), PostKey("p9"), payload{Title: "x"}, PostTTL))
	assert.Equal(t, PostTTL, mr.TTL("post:p9"))

	mr.FastForward(PostTTL + time.Second)
	assert.False(t, mr.Exists("post:p9"))
}

func TestAsideFetchError(t *testing.T) {
	withMiniredis(t)
	boom := errors.New("boom")

	var dest payload
	err := Aside(context.Background(), PostKey("p2"), &dest, PostTTL, func() error { return boom })
	assert.ErrorIs(t, err, boom)

	found, err := GetJSON(context.Background(), PostKey("p2"), &dest)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAsideWithoutClient(t *testing.T) {
	SetClient(nil)

	var dest payload
	calls := 0
	err := Aside(context.Background(), PostKey("p3"), &dest, PostTTL, func() error {
		calls++
		dest.Title = "direct"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "direct", dest.Title)
}

func TestAsideCacheOutage(t *testing.T) {
	mr := withMiniredis(t)
	mr.Close()

	var dest payload
	err := Aside(context.Background(), PostKey("p4"), &dest, PostTTL, func() error {
		dest.Title = "db still works"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "db still works", dest.Title)
}

func TestNewClientURL(t *testing.T) {
	c, err := NewClient("redis://localhost:6390/2")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Options().DB)
	_ = c.Close()

	_, err = NewClient("redis://bad host:/x")
	assert.Error(t, err)
}
