// Package logging provides structured logging with per-module log levels.
//
// Loggers are plain *slog.Logger values tagged with a "module" attribute:
//
//	logger := logging.GetLogger("orchestrator")
//	logger.Info("Streaming started", "service", name)
//
// Records are routed to stdout (text or json), to the systemd journal when
// journald is reachable, and to an in-memory ring buffer that backs the
// control API's log endpoint. Module levels can be overridden in the
// [logging.modules] table and changed at runtime with SetModuleLevel.
//
// Journal records carry SYSLOG_IDENTIFIER=outputnode and every attribute as
// an upper-cased field:
//
//	journalctl -t outputnode MODULE=outputs KIND=stream
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	multitrack = "debug"
//	api = "warn"
package logging
