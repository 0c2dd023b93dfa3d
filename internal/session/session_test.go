package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/store"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestGuard(t *testing.T) (*Guard, *store.MemoryStore, *store.MemoryStore) {
	t.Helper()
	persistent := store.NewMemoryStore(0)
	ephemeral := store.NewMemoryStore(0)
	g := NewGuard(persistent, ephemeral,
		WithLogger(logging.Discard()),
		WithClock(func() time.Time { return fixedNow }))
	return g, persistent, ephemeral
}

func signedToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestGuard_SaveSessionAndCurrentUser(t *testing.T) {
	ctx := context.Background()
	g, persistent, ephemeral := newTestGuard(t)

	assert.False(t, g.LoggedIn(ctx))
	_, err := g.AccessToken(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	require.NoError(t, ephemeral.Set(ctx, LoginAttemptsKey, "2"))
	user := User{ID: "u1", Email: "jane@example.com", OnboardingCompleted: true}
	require.NoError(t, g.SaveSession(ctx, "tok-123", user))

	assert.True(t, g.LoggedIn(ctx))
	got, err := g.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, user, *got)

	token, ok, err := persistent.Get(ctx, TokenKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-123", token)

	_, ok, _ = ephemeral.Get(ctx, LoginAttemptsKey)
	assert.False(t, ok, "login resets the landing counter")
}

func TestGuard_SaveSessionRejectsEmptyToken(t *testing.T) {
	g, _, _ := newTestGuard(t)
	assert.Error(t, g.SaveSession(context.Background(), "", User{ID: "u1"}))
}

func TestGuard_Claims(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newTestGuard(t)

	exp := fixedNow.Add(time.Hour).Truncate(time.Second)
	require.NoError(t, g.SaveSession(ctx, signedToken(t, "u1", exp), User{ID: "u1"}))

	claims, err := g.Claims(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.True(t, claims.ExpiresAt.Equal(exp))
	assert.False(t, claims.Expired(fixedNow))
	assert.True(t, claims.Expired(exp))
}

func TestParseClaims_Invalid(t *testing.T) {
	_, err := ParseClaims("not-a-jwt")
	assert.Error(t, err)
}

func TestGuard_LogoutKeepsCaches(t *testing.T) {
	ctx := context.Background()
	g, persistent, ephemeral := newTestGuard(t)

	require.NoError(t, g.SaveSession(ctx, "tok", User{ID: "u1"}))
	require.NoError(t, persistent.Set(ctx, "summary_cache_g_1", `{"summary_json":{}}`))
	require.NoError(t, persistent.Set(ctx, "daily_digest_2024-05-01", `{"date":"2024-05-01"}`))
	require.NoError(t, persistent.Set(ctx, "theme", "dark"))
	require.NoError(t, ephemeral.Set(ctx, "marker", "1"))

	require.NoError(t, g.Logout(ctx))

	keys, err := persistent.Keys(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"daily_digest_2024-05-01", "logout", "summary_cache_g_1"}, keys)
	assert.Equal(t, 0, ephemeral.Len())

	at, ok, err := g.LastLogout(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, fixedNow.UnixMilli(), at.UnixMilli())
	assert.False(t, g.LoggedIn(ctx))
}

func TestGuard_RecordLandingTripsAfterThree(t *testing.T) {
	ctx := context.Background()
	g, persistent, ephemeral := newTestGuard(t)

	require.NoError(t, persistent.Set(ctx, TokenKey, "stale"))
	require.NoError(t, persistent.Set(ctx, "summary_cache_g_1", "{}"))

	for i := 1; i <= MaxLandings+1; i++ {
		require.NoError(t, g.RecordLanding(ctx), "landing %d", i)
	}

	err := g.RecordLanding(ctx)
	assert.ErrorIs(t, err, ErrRedirectLoop)
	assert.Equal(t, "There was an issue with your session. Please log in again.", err.Error())

	_, ok, _ := ephemeral.Get(ctx, LoginAttemptsKey)
	assert.False(t, ok, "counter removed")
	_, ok, _ = persistent.Get(ctx, TokenKey)
	assert.False(t, ok, "token purged")
	_, ok, _ = persistent.Get(ctx, "summary_cache_g_1")
	assert.True(t, ok, "summaries preserved")

	// The counter starts over.
	require.NoError(t, g.RecordLanding(ctx))
	v, _, _ := ephemeral.Get(ctx, LoginAttemptsKey)
	assert.Equal(t, "1", v)
}

func TestGuard_RecordLandingIgnoresGarbageCounter(t *testing.T) {
	ctx := context.Background()
	g, _, ephemeral := newTestGuard(t)

	require.NoError(t, ephemeral.Set(ctx, LoginAttemptsKey, "abc"))
	require.NoError(t, g.RecordLanding(ctx))
	v, _, _ := ephemeral.Get(ctx, LoginAttemptsKey)
	assert.Equal(t, "1", v)
}

func TestTransport_AttachesBearerToken(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newTestGuard(t)
	require.NoError(t, g.SaveSession(ctx, "tok-abc", User{ID: "u1"}))

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := g.HTTPClient(nil).Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer tok-abc", gotAuth)
}

func TestTransport_NotLoggedIn(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newTestGuard(t)

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	_, err = g.HTTPClient(nil).Do(req)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.True(t, IsAuthFailure(err))
	assert.False(t, called)
}

func TestTransport_UnauthorizedExpiresSession(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			ctx := context.Background()
			g, persistent, ephemeral := newTestGuard(t)

			require.NoError(t, g.SaveSession(ctx, "tok", User{ID: "u1"}))
			require.NoError(t, persistent.Set(ctx, "summary_cache_g_1", `{"summary_json":{}}`))
			require.NoError(t, ephemeral.Set(ctx, "marker", "1"))

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer srv.Close()

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL+"/emails/g_1/summarize", nil)
			require.NoError(t, err)
			resp, err := g.HTTPClient(&http.Client{Timeout: 5 * time.Second}).Do(req)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, ErrSessionExpired)

			_, ok, _ := persistent.Get(ctx, TokenKey)
			assert.False(t, ok, "jwt_token purged")
			_, ok, _ = persistent.Get(ctx, UserKey)
			assert.False(t, ok, "user_info purged")
			_, ok, _ = persistent.Get(ctx, "summary_cache_g_1")
			assert.True(t, ok, "summary cache preserved")
			assert.Equal(t, 0, ephemeral.Len())
		})
	}
}

func TestTransport_ServerErrorPassesThrough(t *testing.T) {
	ctx := context.Background()
	g, persistent, _ := newTestGuard(t)
	require.NoError(t, g.SaveSession(ctx, "tok", User{ID: "u1"}))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := g.HTTPClient(nil).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	_, ok, _ := persistent.Get(ctx, TokenKey)
	assert.True(t, ok)
}
