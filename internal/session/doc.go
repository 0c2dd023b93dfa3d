// Package session guards every authenticated backend call.
//
// The Guard owns the session state kept in the persistent store (jwt_token,
// user_info) and the ephemeral per-session store (login_attempts). It
// provides:
//
//   - an oauth2.TokenSource that attaches the stored JWT as a bearer token
//   - an http.RoundTripper that turns 401/403 responses into ErrSessionExpired
//     after purging all state except the summary and digest caches
//   - login, logout and current-user helpers
//   - a redirect-loop guard that forces a clean state after more than
//     three consecutive unauthenticated landings
//
// Callers detect an expired session with errors.Is(err, session.ErrSessionExpired)
// and must not show a generic error on top of the expiry message.
package session
