package instrumentation

import "time"

// Metric label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusExpired = "expired"

	CacheSummary = "summary"
	CacheDigest  = "digest"

	ResultHit  = "hit"
	ResultMiss = "miss"

	DigestResultCacheHit    = "cache_hit"
	DigestResultGenerated   = "generated"
	DigestResultNoSummaries = "no_summaries"
	DigestResultError       = "error"

	SessionEventLogin        = "login"
	SessionEventLogout       = "logout"
	SessionEventExpired      = "expired"
	SessionEventRedirectLoop = "redirect_loop"
)

// Exporter names accepted in Config.
const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)

// DefaultMetricInterval is the push interval of periodic metric readers.
const DefaultMetricInterval = 10 * time.Second
