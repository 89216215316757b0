// Package services defines shared utilities consumed by the scene orchestrator
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp production IDs, scene IDs, generation phases,
//     and correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified consistently (retry or not, which HTTP status to return).
//
// Use these helpers when wiring new integrations so operational behaviour
// (error handling, observability, retries) stays uniform across the daemon.
package services
