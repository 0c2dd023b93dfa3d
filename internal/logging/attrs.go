package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"
)

// Attribute keys shared by every package.
const (
	KeyComponent = "component"
	KeyOperation = "operation"
	KeyTool      = "tool"
	KeyEmailID   = "email_id"
	KeyDate      = "date"
	KeyKey       = "key"
	KeyProvider  = "provider"
	KeyUserHash  = "user_hash"
	KeyRequestID = "request_id"
	KeyDuration  = "duration"
	KeyStatus    = "status"
	KeyCount     = "count"
	KeyError     = "error"
)

func stringAttr(key string) func(string) slog.Attr {
	return func(v string) slog.Attr { return slog.String(key, v) }
}

// Attribute constructors.
var (
	Operation = stringAttr(KeyOperation)
	EmailID   = stringAttr(KeyEmailID)
	Date      = stringAttr(KeyDate)
	Key       = stringAttr(KeyKey)
	Provider  = stringAttr(KeyProvider)
	RequestID = stringAttr(KeyRequestID)
	Status    = stringAttr(KeyStatus)
)

// Count returns the count attribute.
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}

// Duration returns the elapsed time attribute.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration(KeyDuration, d)
}

// Err returns the error attribute. A nil error yields an empty group,
// which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{Key: "", Value: slog.GroupValue()}
	}
	return slog.String(KeyError, err.Error())
}

// WithComponent tags logger with the package that logs. A nil logger means
// slog.Default().
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String(KeyComponent, component))
}

// WithTool tags logger with an MCP tool name.
func WithTool(logger *slog.Logger, tool string) *slog.Logger {
	return logger.With(slog.String(KeyTool, tool))
}

// AnonymizeEmail hashes an address so log lines of one user correlate
// without the address itself appearing.
func AnonymizeEmail(email string) string {
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(email))
	return "user:" + hex.EncodeToString(sum[:8])
}

// UserHash returns the anonymized user attribute.
func UserHash(email string) slog.Attr {
	return slog.String(KeyUserHash, AnonymizeEmail(email))
}

// SanitizeToken describes a session token by its length only.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
