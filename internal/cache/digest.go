package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/store"
)

// DailyDigest is the backend-produced digest for one calendar date.
type DailyDigest struct {
	Date        string          `json:"date,omitempty"`
	DigestHTML  string          `json:"digestHtml"`
	DigestJSON  json.RawMessage `json:"digestJson,omitempty"`
	TotalEmails int             `json:"totalEmails"`
	GeneratedAt string          `json:"generatedAt,omitempty"`
	SavedAt     string          `json:"savedAt,omitempty"`

	// AudioScript is set by backends that return the narration at the top level.
	AudioScript string `json:"audioScript,omitempty"`
}

// Script returns the narration script from digestJson, falling back to the
// top-level audioScript field.
func (d DailyDigest) Script() string {
	if hasJSON(d.DigestJSON) {
		var body struct {
			AudioScript string `json:"audioScript"`
		}
		if err := json.Unmarshal(d.DigestJSON, &body); err == nil && body.AudioScript != "" {
			return body.AudioScript
		}
	}
	return d.AudioScript
}

// DigestKey returns the store key for date.
func DigestKey(date string) string {
	return DigestPrefix + date
}

// DigestStore caches generated digests by date.
type DigestStore struct {
	store store.Store
	opts  options
}

// NewDigestStore creates a DigestStore backed by s.
func NewDigestStore(s store.Store, opts ...Option) *DigestStore {
	return &DigestStore{
		store: s,
		opts:  buildOptions("digest_store", opts),
	}
}

// Save stores d under date, stamping the date and savedAt fields.
func (ds *DigestStore) Save(ctx context.Context, date string, d DailyDigest) (DailyDigest, error) {
	if err := ValidateDate(date); err != nil {
		return d, err
	}
	d.Date = date
	d.SavedAt = FormatTime(ds.opts.now())
	d.DigestJSON = compactJSON(d.DigestJSON)

	raw, err := json.Marshal(d)
	if err != nil {
		ds.opts.metrics.RecordCacheWrite(ctx, instrumentation.CacheDigest, instrumentation.StatusError)
		return d, fmt.Errorf("failed to encode digest for %s: %w", date, err)
	}
	if err := ds.store.Set(ctx, DigestKey(date), string(raw)); err != nil {
		ds.opts.metrics.RecordCacheWrite(ctx, instrumentation.CacheDigest, instrumentation.StatusError)
		ds.opts.logger.Warn("failed to save daily digest", logging.Date(date), logging.Err(err))
		return d, fmt.Errorf("failed to save digest for %s: %w", date, err)
	}

	ds.opts.metrics.RecordCacheWrite(ctx, instrumentation.CacheDigest, instrumentation.StatusSuccess)
	return d, nil
}

// Get returns the digest saved for date, or nil.
func (ds *DigestStore) Get(ctx context.Context, date string) (*DailyDigest, error) {
	if err := ValidateDate(date); err != nil {
		return nil, err
	}
	raw, ok, err := ds.store.Get(ctx, DigestKey(date))
	if err != nil {
		return nil, err
	}
	if !ok {
		ds.opts.metrics.RecordCacheLookup(ctx, instrumentation.CacheDigest, false)
		return nil, nil
	}

	var d DailyDigest
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		ds.opts.logger.Warn("ignoring unparsable daily digest", logging.Date(date), logging.Err(err))
		ds.opts.metrics.RecordCacheLookup(ctx, instrumentation.CacheDigest, false)
		return nil, nil
	}
	d.Date = date
	ds.opts.metrics.RecordCacheLookup(ctx, instrumentation.CacheDigest, true)
	return &d, nil
}

// All returns every saved digest, newest date first.
func (ds *DigestStore) All(ctx context.Context) ([]DailyDigest, error) {
	keys, err := ds.store.Keys(ctx, DigestPrefix)
	if err != nil {
		return nil, err
	}

	out := make([]DailyDigest, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := ds.store.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var d DailyDigest
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			ds.opts.logger.Warn("skipping unparsable daily digest", logging.Key(key), logging.Err(err))
			continue
		}
		d.Date = strings.TrimPrefix(key, DigestPrefix)
		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date > out[j].Date
	})
	return out, nil
}
