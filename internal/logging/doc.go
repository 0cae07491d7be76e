// Package logging provides structured logging for the carlink host driver.
//
// This package wraps a zap logger with package-level convenience functions so
// that every layer of the driver (codec, transport, session engine, routers)
// logs through one configured sink.
//
// # Log Levels
//
//   - Debug: per-frame traces and hex dumps
//   - Info: session phase changes, peer plug/unplug, configuration
//   - Warn: resynchronisation, dropped frames, protocol violations
//   - Error: channel failures and startup errors
//
// # Configuration
//
// Initialize logging at startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// With an empty level the CARLINK_LOG_LEVEL environment variable is consulted;
// if that is also empty the logger is a no-op.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
