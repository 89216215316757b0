// Package persistence saves and restores the working production.
//
// Every change is mirrored synchronously to a local JSON cache. Durable saves
// go to the configured store on a debounce that resets on each change, and
// can also be forced. On startup a pending handoff plan wins, then the durable
// copy of the cached production id, then the cached scenes themselves. History
// keeps deep-copied undo/redo snapshots.
package persistence
