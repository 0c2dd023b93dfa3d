// Package store provides the persistent key-value storage used by the
// summary cache, the digest store and the session guard.
//
// Every implementation satisfies the same small contract:
//
//   - Get returns the stored string and whether it was present
//   - Set writes a value and may fail with ErrQuotaExceeded
//   - Remove deletes a key; removing a missing key is not an error
//   - Keys enumerates every key with a given prefix in sorted order
//
// Three implementations are available:
//
//   - MemoryStore keeps everything in process memory (tests, ephemeral state)
//   - FileStore persists a single JSON document on disk with atomic writes,
//     re-reading it under a file lock so several processes can share it
//   - RedisStore stores keys in Redis under a namespace prefix
//
// Callers treat storage as best-effort: failures are logged and the current
// operation continues. No implementation retries.
//
// Example usage:
//
//	st, err := store.NewFileStore(store.DefaultFilePath(), store.DefaultQuotaBytes)
//	if err != nil {
//	    return err
//	}
//	if err := st.Set(ctx, "summary_cache_g_1", payload); err != nil {
//	    logger.Warn("cache write failed", logging.Err(err))
//	}
package store
