package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisStore(client, ttl)
}

func TestRedisStoreSetGet(t *testing.T) {
	ctx := context.Background()
	_, s := newRedisStore(t, 0)

	snap, err := s.Get(ctx, "sessions/a")
	require.NoError(t, err)
	assert.False(t, snap.Exists())

	require.NoError(t, s.Set(ctx, "sessions/a", record{Name: "quiz", Score: 3}))
	require.NoError(t, s.Set(ctx, "sessions/b/name", "mafia"))

	snap, err = s.Get(ctx, "sessions/a")
	require.NoError(t, err)
	var got record
	require.NoError(t, snap.Decode(&got))
	assert.Equal(t, record{Name: "quiz", Score: 3}, got)

	name, err := s.Get(ctx, "sessions/b/name")
	require.NoError(t, err)
	assert.JSONEq(t, `"mafia"`, string(name.Raw()))

	all, err := s.Get(ctx, "sessions")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, all.Children())
	assert.JSONEq(t, `{"a":{"name":"quiz","score":3},"b":{"name":"mafia"}}`, string(all.Raw()))

	_, err = s.Get(ctx, "")
	assert.ErrorIs(t, err, ErrUnsupportedPath)
}

func TestRedisStoreUpdateAndRemove(t *testing.T) {
	ctx := context.Background()
	_, s := newRedisStore(t, 0)

	require.NoError(t, s.Set(ctx, "doc/x", map[string]any{"a": 1, "b": 2, "c": map[string]any{"d": 1}}))
	require.NoError(t, s.Update(ctx, "doc/x", map[string]any{"b": 3, "a": nil, "c/e": "new"}))

	snap, err := s.Get(ctx, "doc/x")
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":3,"c":{"d":1,"e":"new"}}`, string(snap.Raw()))

	require.NoError(t, s.Remove(ctx, "doc/x"))
	snap, err = s.Get(ctx, "doc/x")
	require.NoError(t, err)
	assert.False(t, snap.Exists())

	all, err := s.Get(ctx, "doc")
	require.NoError(t, err)
	assert.False(t, all.Exists(), "removed documents leave the index")
}

func TestRedisStoreServerTimestamp(t *testing.T) {
	ctx := context.Background()
	mr, s := newRedisStore(t, 0)
	mr.SetTime(time.UnixMilli(1700000000123))

	require.NoError(t, s.Set(ctx, "doc/x", map[string]any{"name": "a", "at": ServerTimestamp}))

	snap, err := s.Get(ctx, "doc/x")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"a","at":1700000000123}`, string(snap.Raw()))
}

func TestRedisStoreIncrement(t *testing.T) {
	ctx := context.Background()
	_, s := newRedisStore(t, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Increment(ctx, "doc/x/counter", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := s.Increment(ctx, "doc/x/counter", -1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	require.NoError(t, s.Set(ctx, "doc/x/name", "text"))
	_, err = s.Increment(ctx, "doc/x/name", 1)
	assert.ErrorIs(t, err, ErrNotNumeric)

	_, err = s.Increment(ctx, "doc/x", 1)
	assert.ErrorIs(t, err, ErrUnsupportedPath)
}

func TestRedisStorePushKeysAreOrdered(t *testing.T) {
	ctx := context.Background()
	_, s := newRedisStore(t, 0)

	var keys []string
	for i := 0; i < 12; i++ {
		k, err := s.Push(ctx, "sessions/a/moves", record{Name: "m", Score: i})
		require.NoError(t, err)
		keys = append(keys, k)
	}

	snap, err := s.Get(ctx, "sessions/a/moves")
	require.NoError(t, err)
	assert.Equal(t, keys, snap.Children())

	other, err := s.Push(ctx, "sessions/b/moves", record{Name: "m"})
	require.NoError(t, err)
	assert.Equal(t, keys[0], other, "sequences are per path")
}

func TestRedisStoreConcurrentPushCommitsInKeyOrder(t *testing.T) {
	ctx := context.Background()
	_, s := newRedisStore(t, 0)
	require.NoError(t, s.Set(ctx, "sessions/a/status", "active"))

	var (
		mu       sync.Mutex
		observed [][]string
	)
	unsub, err := s.Subscribe(ctx, "sessions/a/moves", func(snap *Snapshot) {
		mu.Lock()
		observed = append(observed, snap.Children())
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsub()

	const pushers = 8
	var wg sync.WaitGroup
	for i := 0; i < pushers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Push(ctx, "sessions/a/moves", record{Name: fmt.Sprintf("m%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var want []string
	for i := 1; i <= pushers; i++ {
		want = append(want, pushKey(int64(i)))
	}
	snap, err := s.Get(ctx, "sessions/a/moves")
	require.NoError(t, err)
	require.Equal(t, want, snap.Children())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(observed) > 0 && len(observed[len(observed)-1]) == pushers
	}, 2*time.Second, 10*time.Millisecond)

	// every committed state holds a gap-free prefix of the keys
	mu.Lock()
	defer mu.Unlock()
	for _, children := range observed {
		if len(children) == 0 {
			continue
		}
		assert.Equal(t, want[:len(children)], children)
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	ctx := context.Background()
	mr, s := newRedisStore(t, time.Minute)

	require.NoError(t, s.Set(ctx, "sessions/a/name", "old"))
	require.NoError(t, s.Set(ctx, "sessions/b/name", "fresh"))
	mr.FastForward(45 * time.Second)
	require.NoError(t, s.Set(ctx, "sessions/b/name", "fresher"))
	mr.FastForward(30 * time.Second)

	snap, err := s.Get(ctx, "sessions/a")
	require.NoError(t, err)
	assert.False(t, snap.Exists())

	all, err := s.Get(ctx, "sessions")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, all.Children(), "expired documents still indexed are skipped")
}

func TestRedisStoreSubscribe(t *testing.T) {
	ctx := context.Background()
	_, s := newRedisStore(t, 0)
	require.NoError(t, s.Set(ctx, "sessions/a/name", "first"))

	got := make(chan string, 10)
	unsub, err := s.Subscribe(ctx, "sessions/a", func(snap *Snapshot) {
		got <- string(snap.Raw())
	})
	require.NoError(t, err)

	next := func() string {
		select {
		case v := <-got:
			return v
		case <-time.After(2 * time.Second):
			t.Fatal("no notification")
			return ""
		}
	}

	assert.JSONEq(t, `{"name":"first"}`, next())

	require.NoError(t, s.Set(ctx, "sessions/a/name", "second"))
	assert.JSONEq(t, `{"name":"second"}`, next())

	// unrelated documents and unchanged values do not notify
	require.NoError(t, s.Set(ctx, "sessions/b/name", "other"))
	require.NoError(t, s.Set(ctx, "sessions/a/name", "second"))

	require.NoError(t, s.Update(ctx, "sessions", map[string]any{"a/name": "third"}))
	assert.JSONEq(t, `{"name":"third"}`, next())

	unsub()
	unsub()
	require.NoError(t, s.Set(ctx, "sessions/a/name", "fourth"))

	select {
	case v := <-got:
		t.Fatalf("unexpected notification after unsubscribe: %s", v)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRedisStoreSubscribeCollection(t *testing.T) {
	ctx := context.Background()
	_, s := newRedisStore(t, 0)

	got := make(chan []string, 10)
	unsub, err := s.Subscribe(ctx, "sessions", func(snap *Snapshot) {
		got <- snap.Children()
	})
	require.NoError(t, err)
	defer unsub()

	assert.Empty(t, <-got)
	require.NoError(t, s.Set(ctx, "sessions/a/status", "waiting"))

	select {
	case children := <-got:
		assert.Equal(t, []string{"a"}, children)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
	}
}
