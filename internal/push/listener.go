package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/teemow/inboxdigest/internal/cache"
	"github.com/teemow/inboxdigest/internal/digest"
	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
)

// DefaultChannelPrefix is prepended to the user id to form the channel name.
const DefaultChannelPrefix = "summary-complete:"

// ErrMalformedEvent is returned for payloads that cannot be cached.
var ErrMalformedEvent = errors.New("malformed summary event")

// Event is a completed background summary.
type Event struct {
	EmailID      string                `json:"emailId"`
	Summary      cache.SummaryResponse `json:"summary"`
	EmailDate    string                `json:"emailDate,omitempty"`
	EmailSubject string                `json:"emailSubject,omitempty"`
}

// MetaLookup resolves the date and subject of an email.
type MetaLookup interface {
	MetaLookup(ctx context.Context, id string) (cache.EmailMeta, error)
}

// Channel returns the channel name for userID.
func Channel(prefix, userID string) string {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return prefix + userID
}

// Option configures a Listener.
type Option func(*Listener)

// WithMetaLookup sets the fallback for events without date or subject.
func WithMetaLookup(m MetaLookup) Option {
	return func(l *Listener) {
		l.meta = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(l *Listener) {
		l.metrics = m
	}
}

// Listener subscribes to a summary-complete channel.
type Listener struct {
	rdb       redis.UniversalClient
	channel   string
	summaries *cache.SummaryCache
	meta      MetaLookup
	logger    *slog.Logger
	metrics   *instrumentation.Metrics
}

// NewListener creates a Listener for channel.
func NewListener(rdb redis.UniversalClient, channel string, summaries *cache.SummaryCache, opts ...Option) (*Listener, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if strings.TrimSpace(channel) == "" {
		return nil, fmt.Errorf("channel required")
	}
	if summaries == nil {
		return nil, fmt.Errorf("summary cache required")
	}
	l := &Listener{
		rdb:       rdb,
		channel:   channel,
		summaries: summaries,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.WithComponent(l.logger, "push").With(slog.String("channel", channel))
	return l, nil
}

// Channel returns the subscribed channel name.
func (l *Listener) Channel() string {
	return l.channel
}

// Run subscribes and handles events until ctx is cancelled. It returns nil
// on cancellation and an error if the subscription fails or is closed.
func (l *Listener) Run(ctx context.Context) error {
	sub := l.rdb.Subscribe(ctx, l.channel)
	defer sub.Close()

	// Wait for the subscription confirmation before reporting readiness.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis subscribe: %w", err)
	}
	l.logger.Info("listening for summary events")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("stopped listening for summary events")
			return nil
		case m, ok := <-ch:
			if !ok || m == nil {
				return fmt.Errorf("subscription to %s closed", l.channel)
			}
			if _, err := l.Handle(ctx, []byte(m.Payload)); err != nil {
				l.logger.Warn("skipped summary event", logging.Err(err))
			}
		}
	}
}

// Handle decodes one payload and writes it through the summary cache.
func (l *Listener) Handle(ctx context.Context, payload []byte) (cache.CachedSummary, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		l.metrics.RecordPushEvent(ctx, instrumentation.StatusError, string(digest.ProviderUnknown))
		return cache.CachedSummary{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	provider := string(digest.ProviderFor(ev.EmailID))
	if strings.TrimSpace(ev.EmailID) == "" || emptySummary(ev.Summary) {
		l.metrics.RecordPushEvent(ctx, instrumentation.StatusError, provider)
		return cache.CachedSummary{}, fmt.Errorf("%w: missing emailId or summary", ErrMalformedEvent)
	}

	meta := cache.EmailMeta{Date: ev.EmailDate, Subject: ev.EmailSubject}
	if (meta.Date == "" || meta.Subject == "") && l.meta != nil {
		found, err := l.meta.MetaLookup(ctx, ev.EmailID)
		if err != nil {
			l.logger.Warn("metadata lookup failed", logging.EmailID(ev.EmailID), logging.Err(err))
		} else {
			if meta.Date == "" {
				meta.Date = found.Date
			}
			if meta.Subject == "" {
				meta.Subject = found.Subject
			}
		}
	}

	entry, err := l.summaries.Put(ctx, ev.EmailID, ev.Summary, meta)
	if err != nil {
		l.metrics.RecordPushEvent(ctx, instrumentation.StatusError, provider)
		return entry, err
	}
	l.metrics.RecordPushEvent(ctx, instrumentation.StatusSuccess, provider)
	l.logger.Info("cached pushed summary", logging.EmailID(ev.EmailID), logging.Provider(provider))
	return entry, nil
}

// Publish sends ev on channel and returns the number of receivers.
func Publish(ctx context.Context, rdb redis.UniversalClient, channel string, ev Event) (int64, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("failed to encode summary event: %w", err)
	}
	n, err := rdb.Publish(ctx, channel, raw).Result()
	if err != nil {
		return 0, fmt.Errorf("redis publish: %w", err)
	}
	return n, nil
}

func emptySummary(s cache.SummaryResponse) bool {
	raw := strings.TrimSpace(string(s.SummaryJSON))
	return s.SummaryHTMLFull == "" && s.SummaryHTMLBreakdown == "" && (raw == "" || raw == "null")
}
