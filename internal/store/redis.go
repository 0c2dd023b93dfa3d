package store

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key written by RedisStore.
const DefaultRedisPrefix = "inboxdigest:"

const scanBatch = 200

// RedisStore implements Store on top of Redis strings.
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
	owned     bool
}

// NewRedisStore wraps an existing client. The caller keeps ownership of the client.
func NewRedisStore(client redis.UniversalClient, namespace string) *RedisStore {
	return &RedisStore{client: client, namespace: namespace}
}

// NewRedisStoreWithURL connects to the Redis server described by url.
func NewRedisStoreWithURL(url, namespace string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, &StoreError{Op: "connect", Err: err}
	}
	return &RedisStore{
		client:    redis.NewClient(opts),
		namespace: namespace,
		owned:     true,
	}, nil
}

// Client returns the underlying Redis client.
func (r *RedisStore) Client() redis.UniversalClient {
	return r.client
}

// Ping verifies connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return &StoreError{Op: "ping", Err: err}
	}
	return nil
}

// Close closes the client if it was created by NewRedisStoreWithURL.
func (r *RedisStore) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}

// Get returns the value for key.
func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.namespace+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StoreError{Op: "get", Key: key, Err: err}
	}
	return v, true, nil
}

// Set stores value under key without expiry.
func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.namespace+key, value, 0).Err(); err != nil {
		if strings.HasPrefix(err.Error(), "OOM") {
			return &StoreError{Op: "set", Key: key, Err: ErrQuotaExceeded}
		}
		return &StoreError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// Remove deletes key.
func (r *RedisStore) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.namespace+key).Err(); err != nil {
		return &StoreError{Op: "remove", Key: key, Err: err}
	}
	return nil
}

// Keys scans the namespace for keys with the prefix.
func (r *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(r.namespace+prefix) + "*"
	seen := make(map[string]struct{})

	iter := r.client.Scan(ctx, 0, match, scanBatch).Iterator()
	for iter.Next(ctx) {
		k := strings.TrimPrefix(iter.Val(), r.namespace)
		seen[k] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return nil, &StoreError{Op: "keys", Err: err}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// escapeGlob quotes the metacharacters understood by SCAN MATCH.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\', '^', '-':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
