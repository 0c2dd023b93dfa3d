// Package mail_tools provides MCP tools for the session, the mailbox and
// per-email summaries.
//
// Summaries are served from the local summary cache when present; a miss
// calls the backend and writes the result through to the cache. A missing
// or expired session is reported with a hint to sign in again.
package mail_tools
