package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttrs(t *testing.T) {
	tests := []struct {
		attr  slog.Attr
		key   string
		value string
	}{
		{Operation("generate_digest"), KeyOperation, "generate_digest"},
		{EmailID("g_1"), KeyEmailID, "g_1"},
		{Date("2024-05-01"), KeyDate, "2024-05-01"},
		{Key("summary_cache_g_1"), KeyKey, "summary_cache_g_1"},
		{Provider("gmail"), KeyProvider, "gmail"},
		{RequestID("abc"), KeyRequestID, "abc"},
		{Status("success"), KeyStatus, "success"},
		{Count(3), KeyCount, "3"},
		{Duration(1500 * time.Millisecond), KeyDuration, "1.5s"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.key, tt.attr.Key)
			assert.Equal(t, tt.value, tt.attr.Value.String())
		})
	}
}

func TestErr(t *testing.T) {
	attr := Err(errors.New("boom"))
	assert.Equal(t, KeyError, attr.Key)
	assert.Equal(t, "boom", attr.Value.String())

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("no error", Err(nil))
	assert.NotContains(t, buf.String(), KeyError+"=")
}

func TestWithComponentAndTool(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	WithTool(WithComponent(base, "mcp"), "list_digests").Info("tool invoked")
	assert.Contains(t, buf.String(), "component=mcp")
	assert.Contains(t, buf.String(), "tool=list_digests")

	assert.NotNil(t, WithComponent(nil, "cache"))
}

func TestAnonymizeEmail(t *testing.T) {
	assert.Empty(t, AnonymizeEmail(""))

	a := AnonymizeEmail("jane@example.com")
	assert.True(t, strings.HasPrefix(a, "user:"), a)
	assert.Len(t, a, len("user:")+16)
	assert.Equal(t, a, AnonymizeEmail("jane@example.com"))
	assert.NotEqual(t, a, AnonymizeEmail("john@example.com"))
	assert.NotContains(t, a, "jane")

	attr := UserHash("jane@example.com")
	assert.Equal(t, KeyUserHash, attr.Key)
	assert.Equal(t, a, attr.Value.String())
}

func TestSanitizeToken(t *testing.T) {
	assert.Equal(t, "<empty>", SanitizeToken(""))
	assert.Equal(t, "[token:32 chars]", SanitizeToken("eyJhbGciOiJIUzI1NiJ9.payload.sig"))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{" INFO ", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
		} else {
			assert.NoError(t, err, tt.in)
		}
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("debug", FormatJSON, &buf)
	require.NoError(t, err)

	logger.Debug("login", EmailID("g_1"), slog.String("password", "hunter2"), slog.String("Token", "eyJ"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "g_1", rec[KeyEmailID])
	assert.Equal(t, Redacted, rec["password"])
	assert.Equal(t, Redacted, rec["Token"])
	assert.NotContains(t, buf.String(), "hunter2")

	_, err = New("info", "xml", &buf)
	assert.Error(t, err)
	_, err = New("loud", FormatText, &buf)
	assert.Error(t, err)
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("warn", FormatText, &buf)
	require.NoError(t, err)

	logger.Info("summary served from cache")
	logger.Warn("summary cache read failed")
	assert.NotContains(t, buf.String(), "served from cache")
	assert.Contains(t, buf.String(), "cache read failed")
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}
