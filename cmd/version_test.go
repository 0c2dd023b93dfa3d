package cmd

import (
	"encoding/json"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	SetVersion("1.2.3")
	t.Cleanup(func() { SetVersion("dev") })

	t.Run("short", func(t *testing.T) {
		stdout, _, err := run(t, "", "version", "--short")
		require.NoError(t, err)
		assert.Equal(t, "1.2.3", strings.TrimSpace(stdout))
	})

	t.Run("json", func(t *testing.T) {
		stdout, _, err := run(t, "", "--json", "version")
		require.NoError(t, err)

		var info versionInfo
		require.NoError(t, json.Unmarshal([]byte(stdout), &info))
		assert.Equal(t, "1.2.3", info.Version)
		assert.Equal(t, runtime.Version(), info.GoVersion)
	})

	t.Run("text", func(t *testing.T) {
		stdout, _, err := run(t, "", "version")
		require.NoError(t, err)
		assert.Contains(t, stdout, "inboxdigest 1.2.3")
		assert.Contains(t, stdout, "Platform:")
	})
}
