package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/session"
)

// DefaultBaseURL is the backend gateway used when none is configured.
const DefaultBaseURL = "http://localhost:3001/api"

// DefaultTimeout bounds a single JSON request. Video generation is not
// bounded by it.
const DefaultTimeout = 60 * time.Second

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// Authenticator wraps a transport with session handling.
type Authenticator interface {
	Transport(base http.RoundTripper) http.RoundTripper
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the base HTTP client. Its transport is wrapped by the
// authenticator for authenticated calls.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.base = c
		}
	}
}

// WithTimeout sets the per-request timeout for JSON calls.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(cl *Client) {
		cl.metrics = m
	}
}

// Client talks to the backend gateway.
type Client struct {
	baseURL string
	base    *http.Client
	public  *http.Client
	authed  *http.Client
	timeout time.Duration
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// New creates a Client for baseURL. auth may be nil, in which case
// authenticated calls are sent without credentials.
func New(baseURL string, auth Authenticator, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid gateway URL %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		base:    &http.Client{},
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithComponent(c.logger, "gateway")

	// Timeouts are applied per request, so the shared clients carry none.
	c.public = &http.Client{Transport: c.base.Transport, CheckRedirect: c.base.CheckRedirect, Jar: c.base.Jar}
	c.authed = &http.Client{Transport: c.base.Transport, CheckRedirect: c.base.CheckRedirect, Jar: c.base.Jar}
	if auth != nil {
		c.authed.Transport = auth.Transport(c.base.Transport)
	}
	return c, nil
}

// BaseURL returns the gateway base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type call struct {
	op       string
	method   string
	path     string
	body     any
	authed   bool
	fallback string
	timeout  bool
	attrs    []attribute.KeyValue
}

// send performs the call and returns the successful response with a finish
// func. The caller closes the body and then calls finish with the error of
// consuming it, which ends the gateway span.
func (c *Client) send(ctx context.Context, cl call) (*http.Response, func(error), error) {
	cancel := context.CancelFunc(func() {})
	if cl.timeout && c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	requestID := uuid.NewString()
	ctx, span := instrumentation.StartGatewaySpan(ctx, cl.op, append(cl.attrs, attrRequestID(requestID))...)
	fail := func(err error) error {
		instrumentation.SetSpanError(span, err)
		span.End()
		cancel()
		return err
	}

	start := time.Now()
	logger := c.logger.With(logging.Operation(cl.op), logging.RequestID(requestID))

	var body io.Reader
	if cl.body != nil {
		raw, err := json.Marshal(cl.body)
		if err != nil {
			return nil, nil, fail(fmt.Errorf("failed to encode %s request: %w", cl.op, err))
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, body)
	if err != nil {
		return nil, nil, fail(fmt.Errorf("failed to build %s request: %w", cl.op, err))
	}
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.public
	if cl.authed {
		httpClient = c.authed
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		status := instrumentation.StatusError
		if errors.Is(err, session.ErrSessionExpired) || errors.Is(err, session.ErrNotLoggedIn) {
			status = instrumentation.StatusExpired
			logger.Warn("gateway call rejected, session ended", logging.Err(err))
			err = unwrapURLError(err)
		} else {
			logger.Error("gateway call failed", logging.Err(err))
			err = fmt.Errorf("%s request failed: %w", cl.op, err)
		}
		c.metrics.RecordGatewayRequest(ctx, cl.op, status, time.Since(start))
		return nil, nil, fail(err)
	}

	span.SetAttributes(attrStatus(resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(cl.op, resp, cl.fallback)
		resp.Body.Close()
		c.metrics.RecordGatewayRequest(ctx, cl.op, instrumentation.StatusError, time.Since(start))
		logger.Warn("gateway returned an error",
			slog.Int("status_code", resp.StatusCode),
			slog.String("message", apiErr.Message))
		return nil, nil, fail(apiErr)
	}

	c.metrics.RecordGatewayRequest(ctx, cl.op, instrumentation.StatusSuccess, time.Since(start))
	logger.Debug("gateway call completed",
		slog.Int("status_code", resp.StatusCode),
		slog.Duration(logging.KeyDuration, time.Since(start)))

	finish := func(err error) {
		if err != nil {
			instrumentation.SetSpanError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		span.End()
		cancel()
	}
	return resp, finish, nil
}

// do performs a JSON call and decodes the response into out when non-nil.
func (c *Client) do(ctx context.Context, cl call, out any) (err error) {
	cl.timeout = true
	resp, finish, err := c.send(ctx, cl)
	if err != nil {
		return err
	}
	defer func() { finish(err) }()
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", cl.op, err)
	}
	return nil
}

// unwrapURLError strips the *url.Error added by http.Client so session
// errors print as their own message.
func unwrapURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
