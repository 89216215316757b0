// Package config loads, normalizes, and validates sceneforge configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SCENEFORGE_GENERATION_API_KEY. The Config type centralizes every knob the
// daemon and CLI need: the state directory, the durable store backend, the
// generation and enhancement services, and the orchestrator's retry, poll and
// deadline policy.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
