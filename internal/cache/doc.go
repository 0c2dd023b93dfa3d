// Package cache implements the local summary cache and daily digest store.
//
// Both caches sit on top of a store.Store and use the key layout the browser
// client established:
//
//   - summary_cache_<emailId>  one CachedSummary per summarized email
//   - daily_digest_<date>      one DailyDigest per calendar date (YYYY-MM-DD)
//
// Caching is best-effort. Write failures are logged and reported to the
// caller, who may ignore them; unparsable entries are skipped on read and
// removed by the maintenance sweep.
//
// Timestamps are stored as ISO-8601 UTC strings with millisecond precision
// (for example 2024-05-01T10:00:00.000Z) so existing entries stay readable.
package cache
