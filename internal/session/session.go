package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/teemow/inboxdigest/internal/cache"
	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/store"
)

// Keys used by the session guard.
const (
	TokenKey         = "jwt_token"
	UserKey          = "user_info"
	LoginAttemptsKey = "login_attempts"
)

// MaxLandings is the number of consecutive unauthenticated landings
// tolerated before the guard forces a clean login.
const MaxLandings = 3

var (
	// ErrSessionExpired is returned when the backend rejects the session.
	ErrSessionExpired = errors.New("Session expired")

	// ErrNotLoggedIn is returned when no token is stored.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrRedirectLoop is returned when the landing counter trips.
	ErrRedirectLoop = errors.New("There was an issue with your session. Please log in again.")
)

// User is the account returned by login and signup.
type User struct {
	ID                  string `json:"id"`
	Email               string `json:"email"`
	OnboardingCompleted bool   `json:"onboardingCompleted"`
}

// Claims are the unverified JWT claims this client reads.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Expired reports whether the token expiry has passed at now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Purger removes persisted state that must not survive a session.
type Purger interface {
	PurgeExceptCache(ctx context.Context) (int, error)
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

// WithClock overrides the time source.
func WithClock(now cache.Clock) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithPurger overrides how persistent state is purged.
func WithPurger(p Purger) Option {
	return func(g *Guard) {
		if p != nil {
			g.purger = p
		}
	}
}

// Guard manages session state and authenticated transport.
type Guard struct {
	persistent store.Store
	ephemeral  store.Store
	purger     Purger
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	now        cache.Clock
}

// NewGuard creates a Guard. ephemeral holds per-session markers and is
// cleared entirely when a session ends.
func NewGuard(persistent, ephemeral store.Store, opts ...Option) *Guard {
	g := &Guard{
		persistent: persistent,
		ephemeral:  ephemeral,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.WithComponent(g.logger, "session")
	if g.purger == nil {
		g.purger = cache.NewMaintainer(persistent, cache.WithLogger(g.logger), cache.WithClock(g.now))
	}
	return g
}

// AccessToken returns the stored JWT.
func (g *Guard) AccessToken(ctx context.Context) (string, error) {
	token, ok, err := g.persistent.Get(ctx, TokenKey)
	if err != nil {
		return "", fmt.Errorf("failed to read session token: %w", err)
	}
	if !ok || token == "" {
		return "", ErrNotLoggedIn
	}
	return token, nil
}

// LoggedIn reports whether a token and user are stored.
func (g *Guard) LoggedIn(ctx context.Context) bool {
	if _, err := g.AccessToken(ctx); err != nil {
		return false
	}
	u, err := g.CurrentUser(ctx)
	return err == nil && u != nil
}

// Claims decodes the stored token without verifying its signature; the
// backend remains the authority on validity.
func (g *Guard) Claims(ctx context.Context) (Claims, error) {
	token, err := g.AccessToken(ctx)
	if err != nil {
		return Claims{}, err
	}
	return ParseClaims(token)
}

// ParseClaims reads the subject and expiry of an unverified JWT.
func ParseClaims(token string) (Claims, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Claims{}, fmt.Errorf("failed to parse session token: %w", err)
	}

	var c Claims
	if sub, err := parsed.Claims.GetSubject(); err == nil {
		c.Subject = sub
	}
	if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}

// SaveSession stores the token and user after a successful login or signup
// and resets the landing counter.
func (g *Guard) SaveSession(ctx context.Context, token string, user User) error {
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	if err := g.persistent.Set(ctx, TokenKey, token); err != nil {
		return fmt.Errorf("failed to save session token: %w", err)
	}
	if err := g.persistent.Set(ctx, UserKey, string(raw)); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	if err := g.ResetLanding(ctx); err != nil {
		g.logger.Warn("failed to reset landing counter", logging.Err(err))
	}

	g.metrics.RecordSessionEvent(ctx, instrumentation.SessionEventLogin)
	g.logger.Info("session started",
		logging.UserHash(user.Email),
		slog.String("token", logging.SanitizeToken(token)))
	return nil
}

// UpdateUser replaces the stored user record, for example after onboarding
// state changes on the backend.
func (g *Guard) UpdateUser(ctx context.Context, user User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	return g.persistent.Set(ctx, UserKey, string(raw))
}

// CurrentUser returns the stored user, or nil when logged out.
func (g *Guard) CurrentUser(ctx context.Context) (*User, error) {
	raw, ok, err := g.persistent.Get(ctx, UserKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("failed to decode stored user: %w", err)
	}
	return &u, nil
}

// Expire ends the session after the backend rejected it.
func (g *Guard) Expire(ctx context.Context) error {
	err := g.purge(ctx)
	g.metrics.RecordSessionEvent(ctx, instrumentation.SessionEventExpired)
	g.logger.Warn("session expired, cleared state except cached summaries", logging.Err(err))
	return err
}

// Logout ends the session and records the logout time.
func (g *Guard) Logout(ctx context.Context) error {
	if err := g.purge(ctx); err != nil {
		return err
	}
	stamp := strconv.FormatInt(g.now().UnixMilli(), 10)
	if err := g.persistent.Set(ctx, cache.LogoutKey, stamp); err != nil {
		return fmt.Errorf("failed to record logout: %w", err)
	}
	g.metrics.RecordSessionEvent(ctx, instrumentation.SessionEventLogout)
	g.logger.Info("logged out")
	return nil
}

// LastLogout returns the time of the last explicit logout, if any.
func (g *Guard) LastLogout(ctx context.Context) (time.Time, bool, error) {
	raw, ok, err := g.persistent.Get(ctx, cache.LogoutKey)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

// RecordLanding counts an unauthenticated landing on the login entry point.
// After more than MaxLandings in a row all state except the caches is
// purged and ErrRedirectLoop is returned.
func (g *Guard) RecordLanding(ctx context.Context) error {
	attempts := 0
	raw, ok, err := g.ephemeral.Get(ctx, LoginAttemptsKey)
	if err != nil {
		return fmt.Errorf("failed to read landing counter: %w", err)
	}
	if ok {
		if n, err := strconv.Atoi(raw); err == nil {
			attempts = n
		}
	}

	if attempts > MaxLandings {
		if err := g.ephemeral.Remove(ctx, LoginAttemptsKey); err != nil {
			return err
		}
		if _, err := g.purger.PurgeExceptCache(ctx); err != nil {
			return err
		}
		g.metrics.RecordSessionEvent(ctx, instrumentation.SessionEventRedirectLoop)
		g.logger.Warn("redirect loop detected, cleared state for a clean login", slog.Int("attempts", attempts))
		return ErrRedirectLoop
	}

	return g.ephemeral.Set(ctx, LoginAttemptsKey, strconv.Itoa(attempts+1))
}

// ResetLanding clears the landing counter.
func (g *Guard) ResetLanding(ctx context.Context) error {
	return g.ephemeral.Remove(ctx, LoginAttemptsKey)
}

func (g *Guard) purge(ctx context.Context) error {
	var errs []error
	if _, err := g.purger.PurgeExceptCache(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to purge session state: %w", err))
	}
	if _, err := store.Clear(ctx, g.ephemeral, ""); err != nil {
		errs = append(errs, fmt.Errorf("failed to clear ephemeral state: %w", err))
	}
	return errors.Join(errs...)
}
