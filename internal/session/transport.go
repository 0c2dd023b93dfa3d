package session

import (
	"context"
	"errors"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// tokenSource adapts the guard to oauth2.TokenSource for one request context.
type tokenSource struct {
	ctx   context.Context
	guard *Guard
}

func (s tokenSource) Token() (*oauth2.Token, error) {
	token, err := s.guard.AccessToken(s.ctx)
	if err != nil {
		return nil, err
	}
	t := &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
	if claims, err := ParseClaims(token); err == nil {
		t.Expiry = claims.ExpiresAt
	}
	return t, nil
}

// TokenSource returns a token source reading the stored JWT with ctx.
func (g *Guard) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSource{ctx: ctx, guard: g}
}

// Transport wraps base so every request carries the bearer token and
// authentication failures end the session.
func (g *Guard) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &guardTransport{guard: g, base: base}
}

// HTTPClient returns an http.Client using Transport(base).
func (g *Guard) HTTPClient(base *http.Client) *http.Client {
	c := &http.Client{}
	if base != nil {
		*c = *base
	}
	c.Transport = g.Transport(c.Transport)
	return c
}

type guardTransport struct {
	guard *Guard
	base  http.RoundTripper
}

func (t *guardTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	rt := &oauth2.Transport{Source: t.guard.TokenSource(ctx), Base: t.base}

	resp, err := rt.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		_ = t.guard.Expire(ctx)
		return nil, ErrSessionExpired
	}
	return resp, nil
}

// IsAuthFailure reports whether err ends the current session.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrNotLoggedIn) || errors.Is(err, ErrRedirectLoop)
}
