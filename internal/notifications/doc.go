// Package notifications publishes production lifecycle events to ntfy.
//
// NewService returns a noop implementation when no topic is configured, so
// callers never need to nil-check the notifier.
package notifications
