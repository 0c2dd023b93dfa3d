// Package inbox implements the summarize flow on top of the gateway and
// the summary cache.
//
// Summaries are cache-first: a cached entry is returned without a network
// call unless a refresh is requested. Fresh summaries are written through
// the cache together with the email's date and subject so the digest
// assembler can bucket them by day.
package inbox
