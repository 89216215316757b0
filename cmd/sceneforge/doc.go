// Package main hosts the sceneforge CLI entrypoint and command graph.
//
// The Cobra command tree works against the local production store: listing,
// importing, editing, and exporting productions, plus scene and batch
// generation. Generation commands take the daemon lock first, so they refuse
// to run while `sceneforge serve` owns the state directory. Edits made here
// go through the same editor sessions the daemon uses, so undo history and
// validation behave identically.
package main
