// Package digest_tools provides MCP tools over the summary cache and
// the daily digest: per-day listings and counts, digest generation,
// saved digests, video export and cache cleanup.
package digest_tools
