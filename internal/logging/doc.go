// Package logging builds the slog loggers of inboxdigest and names the
// attributes they carry.
//
// Loggers write text or JSON to stderr at the level given by LOG_LEVEL.
// Attributes named password, token or authorization are redacted by the
// handler, and user addresses are logged as hashes:
//
//	logger := logging.WithComponent(slog.Default(), "cache")
//	logger.Warn("failed to cache summary", logging.EmailID(id), logging.Err(err))
package logging
