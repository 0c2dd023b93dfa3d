package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/inboxdigest/internal/gateway"
	"github.com/teemow/inboxdigest/internal/session"
)

// LoginHint is appended to errors caused by a missing or expired session.
const LoginHint = "Run `inboxdigest login` to sign in again."

// StringArg returns the string argument name, or "" when absent.
func StringArg(args map[string]interface{}, name string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return ""
}

// BoolArg returns the boolean argument name, or def when absent.
func BoolArg(args map[string]interface{}, name string, def bool) bool {
	if v, ok := args[name].(bool); ok {
		return v
	}
	return def
}

// IntArg returns the numeric argument name, or def when absent.
// JSON numbers arrive as float64.
func IntArg(args map[string]interface{}, name string, def int) int {
	if v, ok := args[name].(float64); ok {
		return int(v)
	}
	return def
}

// JSONResult marshals v as an indented JSON text result.
func JSONResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ErrorResult turns err into a tool error. Backend errors surface their
// message verbatim and session failures carry the login hint; anything
// else is prefixed.
func ErrorResult(prefix string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, session.ErrRedirectLoop):
		return mcp.NewToolResultError(session.ErrRedirectLoop.Error())
	case errors.Is(err, session.ErrNotLoggedIn):
		return mcp.NewToolResultError("Not logged in. " + LoginHint)
	case errors.Is(err, session.ErrSessionExpired):
		return mcp.NewToolResultError("Session expired. " + LoginHint)
	}
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) {
		return mcp.NewToolResultError(apiErr.Message)
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}
