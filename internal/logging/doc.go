// Package logging assembles structured slog loggers and formatting helpers used
// across sceneforge.
//
// It owns the configurable console/JSON handlers, tees a JSON copy into the
// state directory log file, and feeds an in-memory StreamHub that the API
// exposes for log tailing. Context-aware helpers tag log lines with production
// IDs, scene IDs, generation phases, and correlation IDs. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
