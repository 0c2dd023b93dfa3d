package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/store"
)

// SummaryResponse is the backend's summarization result for one email.
type SummaryResponse struct {
	SummaryHTMLFull      string          `json:"summary_html_full"`
	SummaryHTMLBreakdown string          `json:"summary_html_breakdown"`
	SummaryJSON          json.RawMessage `json:"summary_json"`
}

// EmailMeta carries the provenance recorded next to a summary.
type EmailMeta struct {
	// Date is the original message date as reported by the backend.
	Date string

	// Subject is the message subject.
	Subject string
}

// CachedSummary is the record stored under summary_cache_<emailId>.
type CachedSummary struct {
	SummaryHTMLFull      string          `json:"summary_html_full"`
	SummaryHTMLBreakdown string          `json:"summary_html_breakdown"`
	SummaryJSON          json.RawMessage `json:"summary_json"`
	CachedAt             string          `json:"cachedAt"`
	EmailID              string          `json:"emailId"`
	EmailDate            string          `json:"emailDate,omitempty"`
	EmailSubject         string          `json:"emailSubject,omitempty"`
}

// EffectiveDate returns the timestamp used for date bucketing: the email
// date, or the cache time for legacy entries without one.
func (s CachedSummary) EffectiveDate() string {
	if s.EmailDate != "" {
		return s.EmailDate
	}
	return s.CachedAt
}

// CachedTime parses CachedAt. The zero time is returned for missing or
// unparsable values.
func (s CachedSummary) CachedTime() time.Time {
	t, err := ParseTime(s.CachedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// HasSummary reports whether the entry carries a structured summary.
func (s CachedSummary) HasSummary() bool {
	return hasJSON(s.SummaryJSON)
}

// SummaryFields is the subset of summary_json this client understands.
// Other fields are preserved untouched in CachedSummary.SummaryJSON.
type SummaryFields struct {
	Category        string   `json:"category,omitempty"`
	ConfidenceScore float64  `json:"confidenceScore,omitempty"`
	KeywordsFound   []string `json:"keywordsFound,omitempty"`
	AudioScript     string   `json:"audioScript,omitempty"`
}

// Fields decodes the well-known fields of the structured summary.
func (s CachedSummary) Fields() (SummaryFields, error) {
	var f SummaryFields
	if !s.HasSummary() {
		return f, nil
	}
	if err := json.Unmarshal(s.SummaryJSON, &f); err != nil {
		return f, fmt.Errorf("failed to decode summary_json for %s: %w", s.EmailID, err)
	}
	return f, nil
}

// SummaryKey returns the store key for emailID.
func SummaryKey(emailID string) string {
	return SummaryPrefix + emailID
}

// SummaryCache stores per-email summaries.
type SummaryCache struct {
	store store.Store
	opts  options
}

// NewSummaryCache creates a SummaryCache backed by s.
func NewSummaryCache(s store.Store, opts ...Option) *SummaryCache {
	return &SummaryCache{
		store: s,
		opts:  buildOptions("summary_cache", opts),
	}
}

// Put records resp for emailID. The returned summary is valid even when
// the write fails; the error only reports that the entry was not persisted.
func (c *SummaryCache) Put(ctx context.Context, emailID string, resp SummaryResponse, meta EmailMeta) (CachedSummary, error) {
	if emailID == "" {
		return CachedSummary{}, ErrEmptyEmailID
	}

	now := FormatTime(c.opts.now())
	entry := CachedSummary{
		SummaryHTMLFull:      resp.SummaryHTMLFull,
		SummaryHTMLBreakdown: resp.SummaryHTMLBreakdown,
		SummaryJSON:          compactJSON(resp.SummaryJSON),
		CachedAt:             now,
		EmailID:              emailID,
		EmailDate:            meta.Date,
		EmailSubject:         meta.Subject,
	}
	if entry.EmailDate == "" {
		entry.EmailDate = now
	}
	if strings.TrimSpace(entry.EmailSubject) == "" {
		entry.EmailSubject = DefaultSubject
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		c.opts.metrics.RecordCacheWrite(ctx, instrumentation.CacheSummary, instrumentation.StatusError)
		return entry, fmt.Errorf("failed to encode summary for %s: %w", emailID, err)
	}
	if err := c.store.Set(ctx, SummaryKey(emailID), string(raw)); err != nil {
		c.opts.metrics.RecordCacheWrite(ctx, instrumentation.CacheSummary, instrumentation.StatusError)
		c.opts.logger.Warn("failed to cache summary",
			logging.EmailID(emailID),
			logging.Err(err))
		return entry, fmt.Errorf("failed to cache summary for %s: %w", emailID, err)
	}

	c.opts.metrics.RecordCacheWrite(ctx, instrumentation.CacheSummary, instrumentation.StatusSuccess)
	c.opts.logger.Debug("cached summary", logging.EmailID(emailID))
	return entry, nil
}

// Get returns the cached summary for emailID, or nil when there is none.
// An unparsable entry is logged and treated as a miss.
func (c *SummaryCache) Get(ctx context.Context, emailID string) (*CachedSummary, error) {
	if emailID == "" {
		return nil, ErrEmptyEmailID
	}

	raw, ok, err := c.store.Get(ctx, SummaryKey(emailID))
	if err != nil {
		return nil, err
	}
	if !ok {
		c.opts.metrics.RecordCacheLookup(ctx, instrumentation.CacheSummary, false)
		return nil, nil
	}

	entry, err := c.decode(SummaryKey(emailID), raw)
	if err != nil {
		c.opts.logger.Warn("ignoring unparsable cached summary",
			logging.EmailID(emailID),
			logging.Err(err))
		c.opts.metrics.RecordCacheLookup(ctx, instrumentation.CacheSummary, false)
		return nil, nil
	}
	c.opts.metrics.RecordCacheLookup(ctx, instrumentation.CacheSummary, true)
	return &entry, nil
}

// Has reports whether a usable summary is cached for emailID.
func (c *SummaryCache) Has(ctx context.Context, emailID string) bool {
	entry, err := c.Get(ctx, emailID)
	return err == nil && entry != nil && entry.HasSummary()
}

// GetAll returns every parsable cached summary that carries summary_json,
// one per key, in key order. Entries are not deduplicated.
func (c *SummaryCache) GetAll(ctx context.Context) ([]CachedSummary, error) {
	keys, err := c.store.Keys(ctx, SummaryPrefix)
	if err != nil {
		return nil, err
	}

	out := make([]CachedSummary, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := c.store.Get(ctx, key)
		if err != nil {
			c.opts.logger.Warn("failed to read cached summary", logging.Key(key), logging.Err(err))
			continue
		}
		if !ok {
			continue
		}
		entry, err := c.decode(key, raw)
		if err != nil {
			c.opts.logger.Warn("skipping unparsable cached summary", logging.Key(key), logging.Err(err))
			continue
		}
		if !entry.HasSummary() {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// Remove deletes the cached summary for emailID.
func (c *SummaryCache) Remove(ctx context.Context, emailID string) error {
	if emailID == "" {
		return ErrEmptyEmailID
	}
	return c.store.Remove(ctx, SummaryKey(emailID))
}

func (c *SummaryCache) decode(key, raw string) (CachedSummary, error) {
	var entry CachedSummary
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return entry, err
	}
	// The key is authoritative for the id; legacy entries may lack the field.
	entry.EmailID = strings.TrimPrefix(key, SummaryPrefix)
	if entry.CachedAt == "" {
		entry.CachedAt = FormatTime(c.opts.now())
	}
	return entry, nil
}

func hasJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func compactJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return json.RawMessage(buf.Bytes())
}
