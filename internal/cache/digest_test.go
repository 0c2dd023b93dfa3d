package cache

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/store"
)

func TestDigestStore_SaveGet(t *testing.T) {
	ctx := context.Background()
	clock := newClock("2024-05-02T07:00:00Z")
	ds := NewDigestStore(store.NewMemoryStore(0), testOptions(clock)...)

	got, err := ds.Get(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.Nil(t, got)

	saved, err := ds.Save(ctx, "2024-05-01", DailyDigest{
		DigestHTML:  "<h1>Digest</h1>",
		DigestJSON:  json.RawMessage(`{"audioScript": "Good morning"}`),
		TotalEmails: 3,
		GeneratedAt: "2024-05-02T06:59:00.000Z",
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", saved.Date)
	assert.Equal(t, "2024-05-02T07:00:00.000Z", saved.SavedAt)

	got, err = ds.Get(ctx, "2024-05-01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, saved, *got)
	assert.Equal(t, "Good morning", got.Script())
}

func TestDigestStore_InvalidDate(t *testing.T) {
	ds := NewDigestStore(store.NewMemoryStore(0))
	_, err := ds.Save(context.Background(), "May 1", DailyDigest{})
	assert.ErrorIs(t, err, ErrInvalidDate)
	_, err = ds.Get(context.Background(), "../etc")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestDigestStore_AllNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(0)
	clock := newClock("2024-05-05T00:00:00Z")
	ds := NewDigestStore(s, testOptions(clock)...)

	for _, date := range []string{"2024-05-02", "2024-05-04", "2024-05-01"} {
		_, err := ds.Save(ctx, date, DailyDigest{DigestHTML: date})
		require.NoError(t, err)
	}
	require.NoError(t, s.Set(ctx, "daily_digest_2024-05-03", "{corrupt"))

	all, err := ds.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2024-05-04", all[0].Date)
	assert.Equal(t, "2024-05-02", all[1].Date)
	assert.Equal(t, "2024-05-01", all[2].Date)
}

func TestDigestStore_GetCorruptIsMiss(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(0)
	require.NoError(t, s.Set(ctx, "daily_digest_2024-05-01", "[1,2"))

	ds := NewDigestStore(s, WithLogger(logging.Discard()))
	got, err := ds.Get(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDailyDigest_Script(t *testing.T) {
	tests := []struct {
		name   string
		digest DailyDigest
		want   string
	}{
		{"nested", DailyDigest{DigestJSON: json.RawMessage(`{"audioScript":"nested"}`), AudioScript: "top"}, "nested"},
		{"top level fallback", DailyDigest{DigestJSON: json.RawMessage(`{"sections":[]}`), AudioScript: "top"}, "top"},
		{"no json", DailyDigest{AudioScript: "top"}, "top"},
		{"none", DailyDigest{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.digest.Script())
		})
	}
}
