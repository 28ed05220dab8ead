// Package services defines shared utilities consumed by the sync engine and
// its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and upstream item IDs
//     for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     (source outage, publish failure, configuration) into exit statuses.
//   - The Executor abstraction that makes external command execution
//     (yt-dlp, git) testable.
package services
