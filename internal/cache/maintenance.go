package cache

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/store"
)

const (
	// DefaultMaxAge is the retention used by the maintenance sweep.
	DefaultMaxAge = 30 * 24 * time.Hour

	// KeepForever disables age-based removal.
	KeepForever = time.Duration(math.MaxInt64)
)

const oneDay = 24 * time.Hour

// MaxAgeFromDays converts a retention in days to a duration. Values too
// large for time.Duration saturate to KeepForever instead of wrapping.
func MaxAgeFromDays(days float64) time.Duration {
	limit := float64(KeepForever / oneDay)
	switch {
	case days >= limit:
		return KeepForever
	case days <= -limit:
		return -KeepForever
	}
	return time.Duration(days * float64(oneDay))
}

// Maintainer runs store-wide sweeps over the cache key space.
type Maintainer struct {
	store store.Store
	opts  options
}

// NewMaintainer creates a Maintainer backed by s.
func NewMaintainer(s store.Store, opts ...Option) *Maintainer {
	return &Maintainer{
		store: s,
		opts:  buildOptions("cache_maintenance", opts),
	}
}

// Cleanup removes summary and digest entries whose cachedAt (or savedAt)
// is at least maxAge old, and every entry that cannot be parsed. Entries
// without any timestamp are dated at the Unix epoch. A maxAge of zero or
// less removes everything; KeepForever removes only unparsable entries.
func (m *Maintainer) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	now := m.opts.now()
	cutoff := now.Add(-maxAge)
	removed := 0

	for _, prefix := range []string{SummaryPrefix, DigestPrefix} {
		keys, err := m.store.Keys(ctx, prefix)
		if err != nil {
			return removed, err
		}

		for _, key := range keys {
			raw, ok, err := m.store.Get(ctx, key)
			if err != nil {
				return removed, err
			}
			if !ok {
				continue
			}

			ref, parsed := referenceTime(raw)
			expired := maxAge <= 0 || !ref.After(cutoff)
			if parsed && !expired {
				continue
			}

			if err := m.store.Remove(ctx, key); err != nil {
				return removed, err
			}
			removed++
			if !parsed {
				m.opts.logger.Info("removed unparsable cache entry", logging.Key(key))
			}
		}
	}

	m.opts.metrics.RecordCacheEviction(ctx, removed)
	if removed > 0 {
		m.opts.logger.Info("cleaned up old cache entries", logging.Count(removed))
	}
	return removed, nil
}

// PurgeExceptCache removes all state except cached summaries, saved digests
// and the logout marker. It returns the number of keys removed.
func (m *Maintainer) PurgeExceptCache(ctx context.Context) (int, error) {
	keys, err := m.store.Keys(ctx, "")
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range keys {
		if Preserved(key) {
			continue
		}
		if err := m.store.Remove(ctx, key); err != nil {
			return removed, err
		}
		removed++
	}
	m.opts.logger.Debug("purged session state", logging.Count(removed))
	return removed, nil
}

// Preserved reports whether key survives a session purge.
func Preserved(key string) bool {
	return strings.HasPrefix(key, PreservedPrefix) ||
		strings.HasPrefix(key, DigestPrefix) ||
		key == LogoutKey
}

func referenceTime(raw string) (time.Time, bool) {
	var stamps struct {
		CachedAt string `json:"cachedAt"`
		SavedAt  string `json:"savedAt"`
	}
	if err := json.Unmarshal([]byte(raw), &stamps); err != nil {
		return time.Time{}, false
	}

	value := stamps.CachedAt
	if value == "" {
		value = stamps.SavedAt
	}
	if value == "" {
		return time.Unix(0, 0), true
	}
	t, err := ParseTime(value)
	if err != nil {
		return time.Unix(0, 0), true
	}
	return t, true
}
