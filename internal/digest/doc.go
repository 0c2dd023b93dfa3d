// Package digest assembles cached email summaries into daily digests.
//
// The Assembler buckets summaries by calendar day, removes duplicate email
// identifiers (keeping the most recently cached entry), classifies each email
// by provider and builds the payload submitted to the backend.
//
// The Orchestrator drives digest generation for one date:
//
//	Idle -> Ready        digest already saved for the date (no network call)
//	Idle -> Failed       no summaries for the date (ErrNoSummaries, no network call)
//	Idle -> Requesting   summaries found, request submitted to the backend
//	Requesting -> Ready  digest saved to the digest store
//	Requesting -> Failed backend or network failure, message surfaced verbatim
//
// Ready is terminal: later requests for the same date are served from the
// digest store. Failed requests are never retried automatically.
//
// Calendar days are computed in the assembler's location, UTC unless
// configured otherwise, so the same cache yields the same buckets on every
// machine.
package digest
