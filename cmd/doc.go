// Package cmd implements the command-line interface for inboxdigest.
//
// Session commands:
//   - login, signup: authenticate against the backend and store the session
//   - logout: end the session, keeping the summary and digest caches
//   - status: show the session and connected mail providers
//
// Mail commands:
//   - labels, emails: browse the mailbox through the backend
//   - summarize: summarize emails (or queue them) and cache the results
//   - summary: show a cached summary
//   - listen: cache summaries pushed over Redis for queued emails
//
// Digest commands:
//   - dates, counts: inspect which days have cached summaries
//   - digest: show or generate a day's digest, optionally as a video
//   - digests: list saved digests
//   - cleanup: remove old and unreadable cache entries
//
// serve starts the MCP server over stdio; generate-docs prints the tool
// reference and version prints build information.
package cmd
