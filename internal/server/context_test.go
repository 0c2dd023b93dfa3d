package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxdigest/internal/config"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/session"
	"github.com/teemow/inboxdigest/internal/store"
)

func memoryConfig(apiURL string) config.Config {
	cfg := config.Default()
	cfg.Store = config.StoreMemory
	cfg.APIURL = apiURL
	return cfg
}

func TestNewServerContext_MemoryStore(t *testing.T) {
	sc, err := NewServerContext(context.Background(), memoryConfig("http://localhost:3001/api"), WithLogger(logging.Discard()))
	require.NoError(t, err)
	defer sc.Shutdown()

	assert.NotNil(t, sc.Summaries())
	assert.NotNil(t, sc.Digests())
	assert.NotNil(t, sc.Session())
	assert.NotNil(t, sc.Gateway())
	assert.NotNil(t, sc.Inbox())
	assert.NotNil(t, sc.Orchestrator())
	assert.NoError(t, sc.Ping(context.Background()))

	_, err = sc.PushListener(context.Background())
	assert.ErrorIs(t, err, session.ErrNotLoggedIn)
}

func TestNewServerContext_FileStore(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.StorePath = dir + "/state.json"
	cfg.SessionPath = dir + "/session.json"

	sc, err := NewServerContext(context.Background(), cfg, WithLogger(logging.Discard()))
	require.NoError(t, err)
	defer sc.Shutdown()

	fs, ok := sc.Store().(*store.FileStore)
	require.True(t, ok)
	assert.Equal(t, cfg.StorePath, fs.Path())
}

func TestNewServerContext_InvalidTimezone(t *testing.T) {
	cfg := memoryConfig("http://localhost:3001/api")
	cfg.Timezone = "Nowhere/Special"
	_, err := NewServerContext(context.Background(), cfg, WithLogger(logging.Discard()))
	assert.Error(t, err)
}

func TestServerContext_Shutdown(t *testing.T) {
	sc, err := NewServerContext(context.Background(), memoryConfig("http://localhost:3001/api"), WithLogger(logging.Discard()))
	require.NoError(t, err)

	assert.False(t, sc.IsShutdown())
	require.NoError(t, sc.Shutdown())
	assert.True(t, sc.IsShutdown())
	assert.Error(t, sc.Context().Err())
	require.NoError(t, sc.Shutdown(), "second shutdown is a no-op")
}

func TestServerContext_RedisBackedPushListener(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := memoryConfig("http://localhost:3001/api")
	cfg.Store = config.StoreRedis
	cfg.RedisURL = "redis://" + mr.Addr()

	sc, err := NewServerContext(context.Background(), cfg, WithLogger(logging.Discard()))
	require.NoError(t, err)
	defer sc.Shutdown()

	ctx := context.Background()
	require.NoError(t, sc.Session().SaveSession(ctx, "tok", session.User{ID: "u-42"}))

	l, err := sc.PushListener(ctx)
	require.NoError(t, err)
	assert.Equal(t, "summary-complete:u-42", l.Channel())

	// Token and session markers live in separate namespaces.
	assert.True(t, mr.Exists("inboxdigest:jwt_token"))
	keys, err := sc.Store().Keys(ctx, "")
	require.NoError(t, err)
	for _, k := range keys {
		assert.NotContains(t, k, "session:")
	}
}

func TestServerContext_PushWithoutRedis(t *testing.T) {
	ctx := context.Background()
	sc, err := NewServerContext(ctx, memoryConfig("http://localhost:3001/api"), WithLogger(logging.Discard()))
	require.NoError(t, err)
	defer sc.Shutdown()

	require.NoError(t, sc.Session().SaveSession(ctx, "tok", session.User{ID: "u1"}))
	_, err = sc.PushListener(ctx)
	assert.ErrorIs(t, err, ErrPushUnavailable)
}

func TestServerContext_InjectedRedisClientIsNotClosed(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sc, err := NewServerContext(context.Background(), memoryConfig("http://localhost:3001/api"),
		WithLogger(logging.Discard()), WithRedisClient(client))
	require.NoError(t, err)
	require.NoError(t, sc.Shutdown())

	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestServerContext_SummarizeToDigestFlow(t *testing.T) {
	now := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/emails/g_1/summarize":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"summary_html_full": "<p>s</p>",
				"summary_json":      map[string]any{"category": "Work"},
			})
		case "/api/emails/g_1":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "g_1", "subject": "Plan", "date": "2024-05-01T09:00:00Z"})
		case "/api/daily-digest/generate":
			_ = json.NewEncoder(w).Encode(map[string]any{"dailyDigest": map[string]any{"digestHtml": "<h1>d</h1>", "totalEmails": 1}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer gw.Close()

	ctx := context.Background()
	sc, err := NewServerContext(ctx, memoryConfig(gw.URL+"/api"),
		WithLogger(logging.Discard()),
		WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	defer sc.Shutdown()

	require.NoError(t, sc.Session().SaveSession(ctx, "tok", session.User{ID: "u1"}))

	_, err = sc.Inbox().Summarize(ctx, "g_1", false)
	require.NoError(t, err)

	res, err := sc.Orchestrator().Generate(ctx, "")
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, "2024-05-01", res.Digest.Date)

	again, err := sc.Orchestrator().Generate(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.True(t, again.FromCache)
}
