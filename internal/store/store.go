package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// ErrQuotaExceeded is returned by Set when a write would exceed the store quota.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// DefaultQuotaBytes mirrors the per-origin local storage budget of browsers.
const DefaultQuotaBytes = 5 << 20

// Store is an origin-wide string key-value store.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// StoreError describes a failed store operation
type StoreError struct {
	// Op is the operation that failed (e.g., "get", "set", "keys")
	Op string

	// Key is the key involved, empty for enumeration
	Key string

	// Err is the underlying error
	Err error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("store %s (key: %s): %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Clear removes every key with the given prefix and returns how many were removed.
func Clear(ctx context.Context, s Store, prefix string) (int, error) {
	keys, err := s.Keys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, k := range keys {
		if err := s.Remove(ctx, k); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// DefaultFilePath returns the default location of the persistent state file.
func DefaultFilePath() string {
	return filepath.Join(userCacheDir(), "inboxdigest", "state.json")
}

// DefaultSessionFilePath returns the default location of the ephemeral session file.
func DefaultSessionFilePath() string {
	return filepath.Join(userCacheDir(), "inboxdigest", "session.json")
}

func filterKeys(keys []string, prefix string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func entrySize(key, value string) int64 {
	return int64(len(key) + len(value))
}

func userCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir
	}
	switch runtime.GOOS {
	case "windows":
		return os.Getenv("LOCALAPPDATA")
	default:
		return filepath.Join(homeDir(), ".cache")
	}
}

func homeDir() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
	}
	return os.Getenv("HOME")
}
