package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
)

// Key layout shared with the browser client.
const (
	SummaryPrefix = "summary_cache_"
	DigestPrefix  = "daily_digest_"

	// PreservedPrefix covers every summary-related key kept by a session purge.
	PreservedPrefix = "summary_"

	// LogoutKey records the time of the last explicit logout.
	LogoutKey = "logout"
)

// DefaultSubject is recorded when an email has no subject.
const DefaultSubject = "No Subject"

// TimeLayout is the ISO-8601 layout used for every stored timestamp.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// DateLayout is the layout of digest date keys.
const DateLayout = "2006-01-02"

var (
	// ErrEmptyEmailID is returned when an operation needs an email identifier.
	ErrEmptyEmailID = errors.New("email id cannot be empty")

	// ErrInvalidDate is returned for digest dates not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("date must be in YYYY-MM-DD format")
)

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Clock returns the current time.
type Clock func() time.Time

// Option configures a SummaryCache, DigestStore or Maintainer.
type Option func(*options)

type options struct {
	now     Clock
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// WithClock overrides the time source.
func WithClock(now Clock) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger used to report skipped entries and failed writes.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func buildOptions(component string, opts []Option) options {
	o := options{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.WithComponent(o.logger, component)
	return o
}

// FormatTime renders t in TimeLayout, always in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses an RFC 3339 timestamp with or without fractional seconds.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// ValidateDate checks that date is a real calendar date in YYYY-MM-DD form.
func ValidateDate(date string) error {
	if !dateRe.MatchString(date) {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return nil
}
