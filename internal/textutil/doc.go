// Package textutil normalizes free-text tags and titles and sanitizes names
// for filesystem use.
package textutil
