package push

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxdigest/internal/cache"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/store"
)

type staticMeta struct {
	meta  cache.EmailMeta
	err   error
	calls int
}

func (s *staticMeta) MetaLookup(ctx context.Context, id string) (cache.EmailMeta, error) {
	s.calls++
	return s.meta, s.err
}

func setupRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newSummaryCache() *cache.SummaryCache {
	return cache.NewSummaryCache(store.NewMemoryStore(0), cache.WithLogger(logging.Discard()))
}

func sampleEvent(id string) Event {
	return Event{
		EmailID: id,
		Summary: cache.SummaryResponse{
			SummaryHTMLFull: "<p>done</p>",
			SummaryJSON:     json.RawMessage(`{"category":"Work"}`),
		},
		EmailDate:    "2024-05-01T08:00:00Z",
		EmailSubject: "Report",
	}
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "summary-complete:u1", Channel("", "u1"))
	assert.Equal(t, "events:u1", Channel("events:", "u1"))
}

func TestNewListener_Validation(t *testing.T) {
	rdb := setupRedis(t)
	summaries := newSummaryCache()

	_, err := NewListener(nil, "c", summaries)
	assert.Error(t, err)
	_, err = NewListener(rdb, " ", summaries)
	assert.Error(t, err)
	_, err = NewListener(rdb, "c", nil)
	assert.Error(t, err)
}

func TestListener_Handle(t *testing.T) {
	ctx := context.Background()
	summaries := newSummaryCache()
	l, err := NewListener(setupRedis(t), "summary-complete:u1", summaries, WithLogger(logging.Discard()))
	require.NoError(t, err)

	raw, err := json.Marshal(sampleEvent("g_1"))
	require.NoError(t, err)

	entry, err := l.Handle(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "Report", entry.EmailSubject)

	got, err := summaries.Get(ctx, "g_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2024-05-01T08:00:00Z", got.EmailDate)
	assert.JSONEq(t, `{"category":"Work"}`, string(got.SummaryJSON))
}

func TestListener_HandleMalformed(t *testing.T) {
	ctx := context.Background()
	l, err := NewListener(setupRedis(t), "c", newSummaryCache(), WithLogger(logging.Discard()))
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: `{{`},
		{name: "missing id", payload: `{"summary":{"summary_json":{}}}`},
		{name: "missing summary", payload: `{"emailId":"g_1"}`},
		{name: "null summary json", payload: `{"emailId":"g_1","summary":{"summary_json":null}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Handle(ctx, []byte(tt.payload))
			assert.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
}

func TestListener_HandleMetaFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("lookup fills missing fields", func(t *testing.T) {
		meta := &staticMeta{meta: cache.EmailMeta{Date: "2024-04-30T10:00:00Z", Subject: "From lookup"}}
		l, err := NewListener(setupRedis(t), "c", newSummaryCache(),
			WithLogger(logging.Discard()), WithMetaLookup(meta))
		require.NoError(t, err)

		ev := sampleEvent("o_2")
		ev.EmailDate = ""
		raw, _ := json.Marshal(ev)

		entry, err := l.Handle(ctx, raw)
		require.NoError(t, err)
		assert.Equal(t, 1, meta.calls)
		assert.Equal(t, "2024-04-30T10:00:00Z", entry.EmailDate)
		assert.Equal(t, "Report", entry.EmailSubject, "event subject wins")
	})

	t.Run("lookup failure uses defaults", func(t *testing.T) {
		meta := &staticMeta{err: errors.New("offline")}
		l, err := NewListener(setupRedis(t), "c", newSummaryCache(),
			WithLogger(logging.Discard()), WithMetaLookup(meta))
		require.NoError(t, err)

		ev := sampleEvent("o_2")
		ev.EmailSubject = ""
		raw, _ := json.Marshal(ev)

		entry, err := l.Handle(ctx, raw)
		require.NoError(t, err)
		assert.Equal(t, cache.DefaultSubject, entry.EmailSubject)
	})

	t.Run("complete event skips lookup", func(t *testing.T) {
		meta := &staticMeta{}
		l, err := NewListener(setupRedis(t), "c", newSummaryCache(),
			WithLogger(logging.Discard()), WithMetaLookup(meta))
		require.NoError(t, err)

		raw, _ := json.Marshal(sampleEvent("g_1"))
		_, err = l.Handle(ctx, raw)
		require.NoError(t, err)
		assert.Zero(t, meta.calls)
	})
}

func TestListener_RunWritesThrough(t *testing.T) {
	rdb := setupRedis(t)
	summaries := newSummaryCache()
	channel := Channel("", "u1")

	l, err := NewListener(rdb, channel, summaries, WithLogger(logging.Discard()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool {
		subs, err := rdb.PubSubNumSub(context.Background(), channel).Result()
		return err == nil && subs[channel] > 0
	}, 2*time.Second, 10*time.Millisecond)

	_, err = rdb.Publish(context.Background(), channel, "garbage").Result()
	require.NoError(t, err)
	n, err := Publish(context.Background(), rdb, channel, sampleEvent("g_9"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.Eventually(t, func() bool {
		return summaries.Has(context.Background(), "g_9")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListener_RunSubscribeFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	defer client.Close()
	mr.Close()

	l, err := NewListener(client, "c", newSummaryCache(), WithLogger(logging.Discard()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	assert.Error(t, l.Run(ctx))
}
