// Package notifications pushes sync events to an ntfy topic.
//
// NewService returns a no-op implementation when no topic is configured, so
// the engine can notify unconditionally. Delivery is best-effort: callers
// log failures and carry on.
package notifications
