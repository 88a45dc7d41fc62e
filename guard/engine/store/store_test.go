package store

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/git-hulk/go-nodup/guard/engine"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return mr, NewRedis(client)
}

func TestMemoryStore(t *testing.T) {
	runBasicStoreTest(t, NewMemory(nil))
}

func TestRedisStore(t *testing.T) {
	_, s := newMiniRedis(t)
	runBasicStoreTest(t, s)
}

func TestEtcdStore(t *testing.T) {
	endpoints := os.Getenv("NODUP_ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("NODUP_ETCD_ENDPOINTS is not set")
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   strings.Split(endpoints, ","),
		DialTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, client.Close())
	}()
	runBasicStoreTest(t, NewEtcd(client))
}

func runBasicStoreTest(t *testing.T, s engine.Store) {
	ctx := context.Background()
	key := "test-store-key-" + uuid.NewString()
	ttl := 3 * time.Second

	ok, err := s.SetNX(ctx, key, "v1", ttl)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.SetNX(ctx, key, "v2", ttl)
	require.NoError(t, err)
	require.False(t, ok)

	value, found, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v1", value)

	// replace is conditioned on the current value
	ok, err = s.Replace(ctx, key, "other", "v2", ttl)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = s.Replace(ctx, key, "v1", "v2", ttl)
	require.NoError(t, err)
	require.True(t, ok)
	value, _, err = s.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "v2", value)

	cad, isCAD := s.(engine.CompareAndDeleter)
	require.True(t, isCAD)
	ok, err = cad.CompareAndDelete(ctx, key, "v1")
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = cad.CompareAndDelete(ctx, key, "v2")
	require.NoError(t, err)
	require.True(t, ok)
	_, found, err = s.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, found)

	ok, err = s.Replace(ctx, key, "v2", "v3", ttl)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.SetNX(ctx, key, "v4", ttl)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.Delete(ctx, key))
	_, found, err = s.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemory(func() time.Time { return now })

	ok, err := s.SetNX(ctx, "k", "v1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(time.Second)
	_, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)
	ok, err = s.SetNX(ctx, "k", "v2", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisStoreAttachesTTL(t *testing.T) {
	mr, s := newMiniRedis(t)
	ctx := context.Background()

	ok, err := s.SetNX(ctx, "k", "v1", 2*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2*time.Second, mr.TTL("k"))

	ok, err = s.Replace(ctx, "k", "v1", "v2", 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 5*time.Second, mr.TTL("k"))

	mr.FastForward(6 * time.Second)
	require.False(t, mr.Exists("k"))
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, s := newMiniRedis(t)
	mr.Close()

	_, err := s.SetNX(context.Background(), "k", "v1", time.Second)
	require.Error(t, err)
	_, _, err = s.Get(context.Background(), "k")
	require.Error(t, err)
}

// The manager must not trust key eviction: miniredis keeps the key until it
// is fast-forwarded, while the manager clock has already moved past expiry.
func TestManagerOnRedis(t *testing.T) {
	mr, s := newMiniRedis(t)
	ctx := context.Background()
	now := time.Now()
	m := engine.NewManager(s, engine.NewTimerScheduler(8), engine.WithClock(func() time.Time { return now }))

	key := "lock_books:tok123"
	ownerA, ownerB := uuid.NewString(), uuid.NewString()

	ok, err := m.Acquire(ctx, key, ownerA, 2*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2*time.Second, mr.TTL(key))

	ok, err = m.Acquire(ctx, key, ownerB, 2*time.Second)
	require.NoError(t, err)
	require.False(t, ok)

	now = now.Add(2100 * time.Millisecond)
	require.True(t, mr.Exists(key))
	ok, err = m.Acquire(ctx, key, ownerB, 2*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m.Release(ctx, key, ownerA))
	record, found, err := m.Inspect(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, ownerB, record.Owner)

	require.NoError(t, m.Release(ctx, key, ownerB))
	require.False(t, mr.Exists(key))
}

func TestManagerOnRedisConcurrentAcquire(t *testing.T) {
	_, s := newMiniRedis(t)
	m := engine.NewManager(s, nil)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		acquired int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.Acquire(ctx, "concurrent", uuid.NewString(), 5*time.Second)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, acquired)
}

func TestManagerOnRedisUnavailable(t *testing.T) {
	mr, s := newMiniRedis(t)
	m := engine.NewManager(s, nil)
	mr.Close()

	ok, err := m.Acquire(context.Background(), "k", uuid.NewString(), time.Second)
	require.Error(t, err)
	require.False(t, ok)
}
