package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/inboxdigest/internal/cache"
	"github.com/teemow/inboxdigest/internal/digest"
	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/session"
)

// Credentials are sent to login and signup.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by login and signup.
type AuthResponse struct {
	Token string       `json:"token"`
	User  session.User `json:"user"`
}

// AuthStatus reports which mail providers are connected.
type AuthStatus struct {
	IsGoogleConnected   bool `json:"isGoogleConnected"`
	IsO365Connected     bool `json:"isO365Connected"`
	OnboardingCompleted bool `json:"onboardingCompleted"`
}

// Connected reports whether any mail provider is connected.
func (s AuthStatus) Connected() bool {
	return s.IsGoogleConnected || s.IsO365Connected
}

// Label is a mailbox folder or label.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Email is a message as returned by the backend. List responses leave Body empty.
type Email struct {
	ID      string `json:"id"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Subject string `json:"subject,omitempty"`
	Date    string `json:"date,omitempty"`
	Snippet string `json:"snippet,omitempty"`
	Body    string `json:"body,omitempty"`
}

// Meta returns the cache metadata for the email.
func (e Email) Meta() cache.EmailMeta {
	return cache.EmailMeta{Date: e.Date, Subject: e.Subject}
}

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, creds Credentials) (AuthResponse, error) {
	return c.authenticate(ctx, "login", "/auth/login", creds)
}

// Signup creates an account and authenticates.
func (c *Client) Signup(ctx context.Context, creds Credentials) (AuthResponse, error) {
	return c.authenticate(ctx, "signup", "/auth/signup", creds)
}

func (c *Client) authenticate(ctx context.Context, op, path string, creds Credentials) (AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, call{
		op:       op,
		method:   http.MethodPost,
		path:     path,
		body:     creds,
		fallback: msgAuthFailed,
	}, &out)
	if err != nil {
		return AuthResponse{}, err
	}
	if out.Token == "" {
		return AuthResponse{}, fmt.Errorf("%s response did not include a token", op)
	}
	return out, nil
}

// AuthStatus returns the provider connection state of the current user.
func (c *Client) AuthStatus(ctx context.Context) (AuthStatus, error) {
	var out AuthStatus
	err := c.do(ctx, call{op: "auth_status", method: http.MethodGet, path: "/auth/status", authed: true}, &out)
	return out, err
}

// ListLabels returns the mailbox labels.
func (c *Client) ListLabels(ctx context.Context) ([]Label, error) {
	var out struct {
		Labels []Label `json:"labels"`
	}
	err := c.do(ctx, call{op: "list_labels", method: http.MethodGet, path: "/labels", authed: true}, &out)
	return out.Labels, err
}

// ListEmails returns the messages under a label.
func (c *Client) ListEmails(ctx context.Context, labelID string) ([]Email, error) {
	if labelID == "" {
		labelID = "INBOX"
	}
	var out struct {
		Messages []Email `json:"messages"`
	}
	err := c.do(ctx, call{
		op:     "list_emails",
		method: http.MethodGet,
		path:   "/emails?labelId=" + url.QueryEscape(labelID),
		authed: true,
	}, &out)
	return out.Messages, err
}

// GetEmail returns a single message with its body.
func (c *Client) GetEmail(ctx context.Context, id string) (Email, error) {
	if id == "" {
		return Email{}, cache.ErrEmptyEmailID
	}
	var out Email
	err := c.do(ctx, call{
		op:       "get_email",
		method:   http.MethodGet,
		path:     "/emails/" + url.PathEscape(id),
		authed:   true,
		fallback: msgEmailFailed,
		attrs:    emailAttrs(id),
	}, &out)
	if err == nil && out.ID == "" {
		out.ID = id
	}
	return out, err
}

// Summarize requests a summary of one email.
func (c *Client) Summarize(ctx context.Context, id string) (cache.SummaryResponse, error) {
	if id == "" {
		return cache.SummaryResponse{}, cache.ErrEmptyEmailID
	}
	var out cache.SummaryResponse
	err := c.do(ctx, call{
		op:       "summarize",
		method:   http.MethodPost,
		path:     "/emails/" + url.PathEscape(id) + "/summarize",
		authed:   true,
		fallback: msgSummaryFailed,
		attrs:    emailAttrs(id),
	}, &out)
	return out, err
}

// SummarizeBatch queues emails for background summarization and returns the
// backend's acknowledgement message.
func (c *Client) SummarizeBatch(ctx context.Context, ids []string) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	err := c.do(ctx, call{
		op:     "summarize_batch",
		method: http.MethodPost,
		path:   "/summarize-batch",
		body:   map[string][]string{"emailIds": ids},
		authed: true,
	}, &out)
	return out.Message, err
}

// GenerateDigest asks the backend to build the daily digest.
func (c *Client) GenerateDigest(ctx context.Context, req digest.DigestRequest) (cache.DailyDigest, error) {
	var out struct {
		DailyDigest *cache.DailyDigest `json:"dailyDigest"`
	}
	err := c.do(ctx, call{
		op:       "generate_digest",
		method:   http.MethodPost,
		path:     "/daily-digest/generate",
		body:     req,
		authed:   true,
		fallback: msgDigestFailed,
		attrs:    []attribute.KeyValue{attribute.String(instrumentation.SpanAttrDate, req.Date)},
	}, &out)
	if err != nil {
		return cache.DailyDigest{}, err
	}
	if out.DailyDigest == nil {
		return cache.DailyDigest{}, &APIError{Op: "generate_digest", StatusCode: http.StatusOK, Message: msgDigestFailed}
	}
	return *out.DailyDigest, nil
}

// GenerateVideo renders the digest video and streams it to w.
func (c *Client) GenerateVideo(ctx context.Context, req digest.VideoRequest, w io.Writer) (int64, error) {
	resp, finish, err := c.send(ctx, call{
		op:       "generate_video",
		method:   http.MethodPost,
		path:     "/daily-digest/generate-video",
		body:     req,
		authed:   true,
		fallback: msgVideoFailed,
	})
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(w, resp.Body)
	resp.Body.Close()
	if err != nil {
		err = fmt.Errorf("failed to download video: %w", err)
	}
	finish(err)
	return n, err
}

func emailAttrs(id string) []attribute.KeyValue {
	return instrumentation.NewSpanAttributeBuilder().WithEmailID(id).Build()
}

var _ digest.Backend = (*Client)(nil)
