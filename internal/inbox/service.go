package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/teemow/inboxdigest/internal/cache"
	"github.com/teemow/inboxdigest/internal/gateway"
	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/session"
)

// DefaultConcurrency bounds SummarizeMany when no limit is configured.
const DefaultConcurrency = 4

// DefaultQueuedMessage is reported when the backend acknowledges a batch
// without a message.
const DefaultQueuedMessage = "Emails queued for summarization. Summaries are cached as each one completes."

// ErrNoEmails is returned when a batch operation gets no identifiers.
var ErrNoEmails = errors.New("no email ids given")

// Gateway is the subset of the backend client the service uses.
type Gateway interface {
	ListEmails(ctx context.Context, labelID string) ([]gateway.Email, error)
	GetEmail(ctx context.Context, id string) (gateway.Email, error)
	Summarize(ctx context.Context, id string) (cache.SummaryResponse, error)
	SummarizeBatch(ctx context.Context, ids []string) (string, error)
}

// Result is the outcome of summarizing one email.
type Result struct {
	EmailID   string               `json:"emailId"`
	Summary   *cache.CachedSummary `json:"summary,omitempty"`
	FromCache bool                 `json:"fromCache"`

	// Err is set when this email could not be summarized.
	Err error `json:"-"`
}

// Error returns the failure message for JSON output.
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Email is a listed message joined with its cached summary.
type Email struct {
	gateway.Email
	Summarized bool                 `json:"isSummaryLoaded"`
	Summary    *cache.CachedSummary `json:"summary,omitempty"`
}

// Option configures a Service.
type Option func(*Service)

// WithConcurrency bounds concurrent summarize calls.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service runs the summarize flow.
type Service struct {
	gw          Gateway
	summaries   *cache.SummaryCache
	concurrency int
	logger      *slog.Logger
	metrics     *instrumentation.Metrics
}

// NewService creates a Service.
func NewService(gw Gateway, summaries *cache.SummaryCache, opts ...Option) *Service {
	s := &Service{
		gw:          gw,
		summaries:   summaries,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithComponent(s.logger, "inbox")
	return s
}

// Summarize returns the summary of id, from the cache when present unless
// refresh is set. On a miss the email is fetched for its date and subject
// before the backend is asked for a summary.
func (s *Service) Summarize(ctx context.Context, id string, refresh bool) (Result, error) {
	return s.summarize(ctx, id, nil, refresh)
}

// SummarizeEmail is Summarize for an email whose metadata is already known.
func (s *Service) SummarizeEmail(ctx context.Context, email gateway.Email, refresh bool) (Result, error) {
	meta := email.Meta()
	return s.summarize(ctx, email.ID, &meta, refresh)
}

func (s *Service) summarize(ctx context.Context, id string, meta *cache.EmailMeta, refresh bool) (Result, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Result{}, cache.ErrEmptyEmailID
	}
	logger := s.logger.With(logging.EmailID(id))

	if !refresh {
		cached, err := s.summaries.Get(ctx, id)
		if err != nil {
			logger.Warn("summary cache read failed, summarizing anyway", logging.Err(err))
		}
		if cached != nil && cached.HasSummary() {
			logger.Debug("summary served from cache")
			return Result{EmailID: id, Summary: cached, FromCache: true}, nil
		}
	}

	// Metadata first: a session failure here must not cost a summary.
	if meta == nil {
		m, err := s.lookupMeta(ctx, id)
		if err != nil {
			return Result{EmailID: id}, err
		}
		meta = &m
	}

	resp, err := s.gw.Summarize(ctx, id)
	if err != nil {
		return Result{EmailID: id}, err
	}

	entry, err := s.summaries.Put(ctx, id, resp, *meta)
	if err != nil && errors.Is(err, cache.ErrEmptyEmailID) {
		return Result{EmailID: id}, err
	}
	// A failed cache write still yields a usable summary.
	logger.Info("summarized email", slog.Bool("cached", err == nil))
	return Result{EmailID: id, Summary: &entry}, nil
}

// lookupMeta fetches the email for its date and subject. Only session
// failures abort; anything else falls back to the cache defaults.
func (s *Service) lookupMeta(ctx context.Context, id string) (cache.EmailMeta, error) {
	email, err := s.gw.GetEmail(ctx, id)
	if err != nil {
		if session.IsAuthFailure(err) {
			return cache.EmailMeta{}, err
		}
		s.logger.Warn("could not fetch email metadata, using defaults",
			logging.EmailID(id),
			logging.Err(err))
		return cache.EmailMeta{}, nil
	}
	return email.Meta(), nil
}

// MetaLookup returns the date and subject of an email.
func (s *Service) MetaLookup(ctx context.Context, id string) (cache.EmailMeta, error) {
	return s.lookupMeta(ctx, id)
}

// SummarizeMany summarizes ids with bounded concurrency. Per-email failures
// are reported in the results; a session failure aborts the whole batch.
// Results are returned in input order with duplicates removed.
func (s *Service) SummarizeMany(ctx context.Context, ids []string, refresh bool) ([]Result, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, ErrNoEmails
	}

	results := make([]Result, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, id := range ids {
		g.Go(func() error {
			if gctx.Err() != nil {
				results[i] = Result{EmailID: id, Err: gctx.Err()}
				return nil
			}
			r, err := s.summarize(gctx, id, nil, refresh)
			if err != nil {
				if session.IsAuthFailure(err) {
					return err
				}
				r = Result{EmailID: id, Err: err}
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	s.logger.Info("batch summarize finished",
		logging.Count(len(results)),
		slog.Int("failed", failed))
	return results, nil
}

// QueueBatch hands ids to the backend for background summarization. The
// summaries arrive later over the push channel.
func (s *Service) QueueBatch(ctx context.Context, ids []string) (string, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return "", ErrNoEmails
	}
	msg, err := s.gw.SummarizeBatch(ctx, ids)
	if err != nil {
		return "", fmt.Errorf("failed to queue %d emails: %w", len(ids), err)
	}
	if msg == "" {
		msg = DefaultQueuedMessage
	}
	s.logger.Info("queued emails for summarization", logging.Count(len(ids)))
	return msg, nil
}

// ListEmails lists a label and marks which messages already have a cached summary.
func (s *Service) ListEmails(ctx context.Context, labelID string) ([]Email, error) {
	emails, err := s.gw.ListEmails(ctx, labelID)
	if err != nil {
		return nil, err
	}
	out := make([]Email, 0, len(emails))
	for _, e := range emails {
		item := Email{Email: e}
		if cached, err := s.summaries.Get(ctx, e.ID); err == nil && cached != nil {
			item.Summarized = true
			item.Summary = cached
		}
		out = append(out, item)
	}
	return out, nil
}

// Cached returns the cached summary of id without contacting the backend.
func (s *Service) Cached(ctx context.Context, id string) (*cache.CachedSummary, error) {
	if strings.TrimSpace(id) == "" {
		return nil, cache.ErrEmptyEmailID
	}
	return s.summaries.Get(ctx, id)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
