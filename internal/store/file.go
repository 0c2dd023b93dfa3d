package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// FileStore persists all keys in a single JSON document.
// Every operation reads the document fresh. Mutations hold an exclusive
// flock on "<path>.lock" across read, modify and atomic rename so that
// several processes sharing the file never overwrite each other's keys.
type FileStore struct {
	path  string
	quota int64

	mu sync.Mutex
}

// NewFileStore creates a FileStore backed by path. A quota of 0 disables the limit.
func NewFileStore(path string, quota int64) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store path cannot be empty")
	}
	return &FileStore{path: path, quota: quota}, nil
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.path
}

// lock takes an exclusive flock on the sidecar lock file, blocking until
// other holders release it. The returned func releases the lock.
func (f *FileStore) lock() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	lf, err := os.OpenFile(f.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := syscall.Flock(int(lf.Fd()), syscall.LOCK_EX); err != nil {
		lf.Close()
		return nil, fmt.Errorf("failed to lock state file: %w", err)
	}
	return func() {
		_ = syscall.Flock(int(lf.Fd()), syscall.LOCK_UN)
		lf.Close()
	}, nil
}

// read returns the current document and its accounted size. A missing file
// is an empty store.
func (f *FileStore) read() (map[string]string, int64, error) {
	data := make(map[string]string)

	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return data, 0, nil
	}
	if err != nil {
		return nil, 0, &StoreError{Op: "load", Err: err}
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, 0, &StoreError{Op: "load", Err: fmt.Errorf("corrupt state file %s: %w", f.path, err)}
		}
	}
	var size int64
	for k, v := range data {
		size += entrySize(k, v)
	}
	return data, size, nil
}

func (f *FileStore) flush(data map[string]string) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, f.path)
}

// mutate runs fn against the latest document under the file lock and writes
// the result back when fn reports a change.
func (f *FileStore) mutate(op, key string, fn func(data map[string]string, size int64) (bool, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	unlock, err := f.lock()
	if err != nil {
		return &StoreError{Op: op, Key: key, Err: err}
	}
	defer unlock()

	data, size, err := f.read()
	if err != nil {
		return err
	}
	changed, err := fn(data, size)
	if err != nil || !changed {
		return err
	}
	if err := f.flush(data); err != nil {
		return &StoreError{Op: op, Key: key, Err: err}
	}
	return nil
}

// Get returns the value for key.
func (f *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	data, _, err := f.read()
	if err != nil {
		return "", false, err
	}
	v, ok := data[key]
	return v, ok, nil
}

// Set stores value under key and rewrites the file.
func (f *FileStore) Set(_ context.Context, key, value string) error {
	return f.mutate("set", key, func(data map[string]string, size int64) (bool, error) {
		next := size + entrySize(key, value)
		if old, ok := data[key]; ok {
			next -= entrySize(key, old)
		}
		if f.quota > 0 && next > f.quota {
			return false, &StoreError{Op: "set", Key: key, Err: ErrQuotaExceeded}
		}
		data[key] = value
		return true, nil
	})
}

// Remove deletes key and rewrites the file when something changed.
func (f *FileStore) Remove(_ context.Context, key string) error {
	return f.mutate("remove", key, func(data map[string]string, _ int64) (bool, error) {
		if _, ok := data[key]; !ok {
			return false, nil
		}
		delete(data, key)
		return true, nil
	})
}

// Keys returns every key with the prefix, sorted.
func (f *FileStore) Keys(_ context.Context, prefix string) ([]string, error) {
	data, _, err := f.read()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	return filterKeys(keys, prefix), nil
}
