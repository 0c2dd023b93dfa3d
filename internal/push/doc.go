// Package push receives summary-complete events for queued batch
// summarization and writes them through the summary cache.
//
// Events are published on a Redis pub/sub channel per user,
// "summary-complete:<userID>" by default. Each payload is
//
//	{"emailId": "...", "summary": {...}, "emailDate": "...", "emailSubject": "..."}
//
// where emailDate and emailSubject are optional. When they are missing the
// listener asks a MetaLookup (typically the inbox service) for them.
package push
