// Package common provides shared helpers for the MCP tool packages:
// instrumentation of handlers, argument parsing and result formatting.
package common
