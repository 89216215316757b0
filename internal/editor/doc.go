// Package editor holds open productions in memory while they are edited and
// generated.
//
// A Session serializes user edits (recorded for undo) and orchestrator
// write-backs (not recorded) against one production, mirrors every change to
// the local cache, and schedules the debounced durable save. Workspace maps
// production ids to sessions for the daemon and CLI.
package editor
