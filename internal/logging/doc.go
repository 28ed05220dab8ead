// Package logging assembles structured slog loggers and formatting helpers used
// across podmirror.
//
// It owns the console and JSON handlers, mirrors records into a JSON log file
// when a log directory is configured, and exposes context-aware helpers so
// engine code automatically tags lines with run IDs, stages, and upstream item
// IDs. The package also provides a no-op logger for tests and retention
// pruning for old log files.
package logging
