// Package daemon coordinates the long-running sceneforge process.
//
// It assembles the production store, persistence adapter, editor workspace,
// and orchestrator into a Stack, guards the process with a flock-based lock,
// and serves the HTTP API with gin. Scene generations and batch runs started
// over the API run as background jobs on a daemon-owned context; stopping the
// daemon cancels them, waits for each to record its outcome on the scene, and
// flushes every open production before releasing the lock.
//
// Keep orchestration logic in the orchestrator and editing rules in the
// editor: handlers here translate requests and map errors onto status codes.
package daemon
