// Package gateway is the REST client for the summarization backend.
//
// Login and signup go out unauthenticated. Every other call runs through the
// session guard transport, so a 401 or 403 ends the session and surfaces as
// session.ErrSessionExpired. Other non-2xx responses become *APIError whose
// message is the backend's JSON "message" field when present.
//
// Each request carries a fresh X-Request-ID, is traced as a client span and
// counted in the gateway request metrics.
package gateway
