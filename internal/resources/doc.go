// Package resources provides MCP resources for the session and the saved
// daily digests. Resources are read-only and never contact the backend.
package resources
