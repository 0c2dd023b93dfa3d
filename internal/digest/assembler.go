package digest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/mail"
	"sort"
	"time"

	"github.com/teemow/inboxdigest/internal/cache"
	"github.com/teemow/inboxdigest/internal/logging"
)

// SummarySource enumerates cached summaries.
type SummarySource interface {
	GetAll(ctx context.Context) ([]cache.CachedSummary, error)
}

// DigestSummary is one email as submitted for digest generation.
type DigestSummary struct {
	EmailID       string          `json:"emailId"`
	EmailDate     string          `json:"emailDate"`
	EmailSubject  string          `json:"emailSubject"`
	EmailProvider Provider        `json:"emailProvider"`
	SummaryJSON   json.RawMessage `json:"summaryJson"`
}

// DigestRequest is the payload of the digest-generation endpoint.
type DigestRequest struct {
	Summaries      []DigestSummary `json:"summaries"`
	Date           string          `json:"date"`
	ProviderCounts ProviderCounts  `json:"providerCounts"`
}

// zoned layouts carry their own offset; local layouts are read in the
// assembler's location.
var (
	zonedLayouts = []string{
		time.RFC3339,
		time.RFC1123Z,
		time.RFC1123,
		time.RFC850,
		time.ANSIC,
	}
	localLayouts = []string{
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		cache.DateLayout,
	}
)

// Assembler groups cached summaries by calendar day and provider.
type Assembler struct {
	source SummarySource
	loc    *time.Location
	now    cache.Clock
	logger *slog.Logger
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithLocation sets the time zone used to derive calendar days.
func WithLocation(loc *time.Location) AssemblerOption {
	return func(a *Assembler) {
		if loc != nil {
			a.loc = loc
		}
	}
}

// WithAssemblerClock overrides the time source used for "today".
func WithAssemblerClock(now cache.Clock) AssemblerOption {
	return func(a *Assembler) {
		if now != nil {
			a.now = now
		}
	}
}

// WithAssemblerLogger sets the logger.
func WithAssemblerLogger(logger *slog.Logger) AssemblerOption {
	return func(a *Assembler) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAssembler creates an Assembler reading from source.
func NewAssembler(source SummarySource, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		source: source,
		loc:    time.UTC,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.WithComponent(a.logger, "digest_assembler")
	return a
}

// Location returns the time zone used for calendar days.
func (a *Assembler) Location() *time.Location {
	return a.loc
}

// Today returns the current calendar day.
func (a *Assembler) Today() string {
	return a.now().In(a.loc).Format(cache.DateLayout)
}

// ParseTimestamp parses the date formats found in cached summaries.
func (a *Assembler) ParseTimestamp(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, a.loc); err == nil {
			return t, true
		}
	}
	if t, err := mail.ParseDate(value); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// Day projects a timestamp string onto a calendar day (YYYY-MM-DD).
func (a *Assembler) Day(value string) (string, bool) {
	t, ok := a.ParseTimestamp(value)
	if !ok {
		return "", false
	}
	return t.In(a.loc).Format(cache.DateLayout), true
}

// SummariesForDate returns the summaries whose effective date falls on date,
// one per email identifier, ordered by effective time then identifier.
func (a *Assembler) SummariesForDate(ctx context.Context, date string) ([]cache.CachedSummary, error) {
	if err := cache.ValidateDate(date); err != nil {
		return nil, err
	}
	all, err := a.source.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	matching := make([]cache.CachedSummary, 0, len(all))
	for _, s := range all {
		day, ok := a.Day(s.EffectiveDate())
		if !ok {
			a.logger.Debug("skipping summary with unparsable date",
				logging.EmailID(s.EmailID),
				logging.Date(s.EffectiveDate()))
			continue
		}
		if day == date {
			matching = append(matching, s)
		}
	}

	out := dedupe(matching)
	a.sortSummaries(out)
	return out, nil
}

// CountForDate returns the number of distinct summaries for date.
func (a *Assembler) CountForDate(ctx context.Context, date string) (int, error) {
	summaries, err := a.SummariesForDate(ctx, date)
	if err != nil {
		return 0, err
	}
	return len(summaries), nil
}

// CountByProviderForDate tallies the summaries for date per provider.
func (a *Assembler) CountByProviderForDate(ctx context.Context, date string) (ProviderCounts, error) {
	summaries, err := a.SummariesForDate(ctx, date)
	if err != nil {
		return ProviderCounts{}, err
	}
	return countProviders(summaries), nil
}

// SummariesByProvider groups the summaries for date by provider. Every
// provider key is present, possibly with an empty slice.
func (a *Assembler) SummariesByProvider(ctx context.Context, date string) (map[Provider][]cache.CachedSummary, error) {
	summaries, err := a.SummariesForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	grouped := map[Provider][]cache.CachedSummary{
		ProviderGmail:   {},
		ProviderOutlook: {},
		ProviderUnknown: {},
	}
	for _, s := range summaries {
		p := ProviderFor(s.EmailID)
		grouped[p] = append(grouped[p], s)
	}
	return grouped, nil
}

// AvailableDates returns every calendar day with at least one summary,
// most recent first.
func (a *Assembler) AvailableDates(ctx context.Context) ([]string, error) {
	all, err := a.source.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	dates := make([]string, 0)
	for _, s := range all {
		day, ok := a.Day(s.EffectiveDate())
		if !ok {
			continue
		}
		if _, dup := seen[day]; dup {
			continue
		}
		seen[day] = struct{}{}
		dates = append(dates, day)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// BuildDigestRequest packages the summaries for date for submission.
// The result is deterministic for an unchanged cache.
func (a *Assembler) BuildDigestRequest(ctx context.Context, date string) (DigestRequest, error) {
	summaries, err := a.SummariesForDate(ctx, date)
	if err != nil {
		return DigestRequest{}, err
	}

	req := DigestRequest{
		Summaries:      make([]DigestSummary, 0, len(summaries)),
		Date:           date,
		ProviderCounts: countProviders(summaries),
	}
	for _, s := range summaries {
		req.Summaries = append(req.Summaries, DigestSummary{
			EmailID:       s.EmailID,
			EmailDate:     s.EmailDate,
			EmailSubject:  s.EmailSubject,
			EmailProvider: ProviderFor(s.EmailID),
			SummaryJSON:   s.SummaryJSON,
		})
	}
	return req, nil
}

// dedupe keeps one entry per email identifier: the one with the later
// cachedAt, or the first seen on a tie.
func dedupe(summaries []cache.CachedSummary) []cache.CachedSummary {
	index := make(map[string]int, len(summaries))
	out := make([]cache.CachedSummary, 0, len(summaries))
	for _, s := range summaries {
		i, ok := index[s.EmailID]
		if !ok {
			index[s.EmailID] = len(out)
			out = append(out, s)
			continue
		}
		if s.CachedTime().After(out[i].CachedTime()) {
			out[i] = s
		}
	}
	return out
}

func (a *Assembler) sortSummaries(summaries []cache.CachedSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		ti, _ := a.ParseTimestamp(summaries[i].EffectiveDate())
		tj, _ := a.ParseTimestamp(summaries[j].EffectiveDate())
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return summaries[i].EmailID < summaries[j].EmailID
	})
}

func countProviders(summaries []cache.CachedSummary) ProviderCounts {
	var counts ProviderCounts
	for _, s := range summaries {
		counts.Add(ProviderFor(s.EmailID))
	}
	return counts
}
