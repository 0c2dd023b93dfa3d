// Package batch turns multi-email tool calls into per-email reports: it
// reads the email id argument in the shapes MCP clients send and tallies
// successes, failures and cache hits.
package batch
