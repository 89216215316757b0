// Package orchestrator drives scenes through image then video generation.
//
// Orchestrator owns the per-scene policy: bounded image retries with linear
// backoff, a fixed-cadence video poll under a wall-clock deadline, and the
// classification that separates transient poll failures, provider
// rejections, and timeouts. Every phase transition is written back to the
// Target and persisted immediately. Producer sequences the orchestrator over
// a whole production and is safe to re-run; finished scenes are skipped.
// Registry rejects a second concurrent trigger for the same scene.
package orchestrator
