package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test:")
}

func implementations(t *testing.T) map[string]Store {
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "state.json"), 0)
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemoryStore(0),
		"file":   fs,
		"redis":  newMiniredisStore(t),
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, "summary_cache_g_2", "b"))
			require.NoError(t, s.Set(ctx, "summary_cache_g_1", "a"))
			require.NoError(t, s.Set(ctx, "daily_digest_2024-05-01", "d"))
			require.NoError(t, s.Set(ctx, "jwt_token", "tok"))

			v, ok, err := s.Get(ctx, "summary_cache_g_1")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "a", v)

			keys, err := s.Keys(ctx, "summary_cache_")
			require.NoError(t, err)
			assert.Equal(t, []string{"summary_cache_g_1", "summary_cache_g_2"}, keys)

			all, err := s.Keys(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 4)

			require.NoError(t, s.Set(ctx, "summary_cache_g_1", "a2"))
			v, _, _ = s.Get(ctx, "summary_cache_g_1")
			assert.Equal(t, "a2", v)

			require.NoError(t, s.Remove(ctx, "jwt_token"))
			require.NoError(t, s.Remove(ctx, "jwt_token"))
			_, ok, _ = s.Get(ctx, "jwt_token")
			assert.False(t, ok)

			n, err := Clear(ctx, s, "summary_cache_")
			require.NoError(t, err)
			assert.Equal(t, 2, n)
			keys, _ = s.Keys(ctx, "")
			assert.Equal(t, []string{"daily_digest_2024-05-01"}, keys)
		})
	}
}

func TestMemoryStore_Quota(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)

	require.NoError(t, s.Set(ctx, "k", "12345"))
	err := s.Set(ctx, "k2", "123456789")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuotaExceeded))

	var se *StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "set", se.Op)
	assert.Equal(t, "k2", se.Key)

	// overwriting reuses the old entry's budget
	require.NoError(t, s.Set(ctx, "k", "123456789"))
	assert.Equal(t, 1, s.Len())
}

func TestFileStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	s, err := NewFileStore(path, 0)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "summary_cache_g_1", `{"emailId":"g_1"}`))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reopened, err := NewFileStore(path, 0)
	require.NoError(t, err)
	v, ok, err := reopened.Get(ctx, "summary_cache_g_1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"emailId":"g_1"}`, v)
}

func TestFileStore_TwoInstancesSeeEachOthersWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	seed, err := NewFileStore(path, 0)
	require.NoError(t, err)
	require.NoError(t, seed.Set(ctx, "jwt_token", "secret"))

	a, err := NewFileStore(path, 0)
	require.NoError(t, err)
	_, ok, err := a.Get(ctx, "jwt_token")
	require.NoError(t, err)
	require.True(t, ok)

	b, err := NewFileStore(path, 0)
	require.NoError(t, err)
	require.NoError(t, b.Remove(ctx, "jwt_token"))
	require.NoError(t, b.Set(ctx, "summary_cache_g_2", `{"emailId":"g_2"}`))

	require.NoError(t, a.Set(ctx, "summary_cache_g_1", `{"emailId":"g_1"}`))

	_, ok, err = a.Get(ctx, "jwt_token")
	require.NoError(t, err)
	assert.False(t, ok)

	fresh, err := NewFileStore(path, 0)
	require.NoError(t, err)
	keys, err := fresh.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"summary_cache_g_1", "summary_cache_g_2"}, keys)
}

func TestFileStore_QuotaCountsOtherInstanceWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	a, err := NewFileStore(path, 16)
	require.NoError(t, err)
	b, err := NewFileStore(path, 16)
	require.NoError(t, err)

	require.NoError(t, a.Set(ctx, "a", "12345"))
	require.NoError(t, b.Set(ctx, "b", "12345"))

	err = a.Set(ctx, "c", "12345")
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestFileStore_QuotaLeavesFileUntouched(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := NewFileStore(path, 8)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "a", "1"))

	err = s.Set(ctx, "big", "0123456789")
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	reopened, _ := NewFileStore(path, 0)
	keys, err := reopened.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	s, err := NewFileStore(path, 0)
	require.NoError(t, err)
	_, _, err = s.Get(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt state file")
}

func TestNewFileStore_EmptyPath(t *testing.T) {
	_, err := NewFileStore("", 0)
	assert.Error(t, err)
}

func TestRedisStore_Namespace(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	a := NewRedisStore(client, "a:")
	b := NewRedisStore(client, "b:")
	require.NoError(t, a.Set(ctx, "summary_cache_1", "x"))
	require.NoError(t, b.Set(ctx, "summary_cache_2", "y"))

	keys, err := a.Keys(ctx, "summary_cache_")
	require.NoError(t, err)
	assert.Equal(t, []string{"summary_cache_1"}, keys)

	raw, err := mr.Get("a:summary_cache_1")
	require.NoError(t, err)
	assert.Equal(t, "x", raw)

	require.NoError(t, a.Ping(ctx))
	assert.NoError(t, a.Close())
}

func TestRedisStore_ConnectionError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	s := NewRedisStore(client, "x:")
	_, _, err = s.Get(context.Background(), "k")
	require.Error(t, err)

	var se *StoreError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "get", se.Op)
}

func TestNewRedisStoreWithURL_Invalid(t *testing.T) {
	_, err := NewRedisStoreWithURL("not-a-url://", "x:")
	assert.Error(t, err)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `a\*b\?c\[d\]`, escapeGlob("a*b?c[d]"))
	assert.Equal(t, "plain:", escapeGlob("plain:"))
}
