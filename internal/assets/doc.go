// Package assets resolves reference asset ids attached to scenes into the
// URLs sent with image generation requests.
package assets
