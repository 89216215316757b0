// Package generation wraps the external image and video generation service.
//
// Image generation is a single round trip. Video generation either returns
// the finished asset immediately or a job id that callers poll with
// PollVideo. The client applies no retry or polling policy of its own.
package generation
