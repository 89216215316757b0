// Package preflight provides readiness checks for the filesystem paths and
// external services sceneforge depends on.
//
// The CLI "sceneforge doctor" command runs RunAll before a user commits to a
// long production run. Checks for optional integrations (prompt enhancement,
// the asset library) are skipped when those integrations are not configured.
package preflight
