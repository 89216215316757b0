package generation

import (
	"context"
	"strings"
)

// ImageRequest describes one image generation call.
type ImageRequest struct {
	Prompt        string   `json:"prompt"`
	ReferenceURLs []string `json:"reference_images"`
	AspectRatio   string   `json:"aspect_ratio"`
	Resolution    string   `json:"resolution"`
	Mode          string   `json:"mode,omitempty"`
	Style         string   `json:"style,omitempty"`
}

// ImageResult is a finished image asset.
type ImageResult struct {
	URL string
}

// VideoRequest describes one image-to-video job.
type VideoRequest struct {
	Prompt       string `json:"prompt"`
	SeedImageURL string `json:"image_url"`
	Duration     int    `json:"duration"`
	AspectRatio  string `json:"aspect_ratio"`
	Resolution   string `json:"resolution"`
}

// VideoSubmission is the provider's answer to a video request: either a
// finished asset, a job to poll, or a mock acknowledgement from an
// unconfigured provider.
type VideoSubmission struct {
	VideoURL string
	JobID    string
	Mock     bool
}

// Immediate reports whether the submission already carries the asset.
func (s VideoSubmission) Immediate() bool { return s.VideoURL != "" }

// JobState is the provider-reported state of a video job.
type JobState string

const (
	JobProcessing JobState = "processing"
	JobSucceeded  JobState = "succeeded"
	JobFailed     JobState = "failed"
)

// ParseJobState maps provider spellings onto JobState. Unknown values are
// treated as still processing.
func ParseJobState(value string) JobState {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "succeeded", "success", "completed", "complete":
		return JobSucceeded
	case "failed", "failure", "error", "rejected", "cancelled", "canceled":
		return JobFailed
	default:
		return JobProcessing
	}
}

// JobStatus is one poll observation of a video job.
type JobStatus struct {
	State    JobState
	VideoURL string
	Error    string
	Causes   []string
	// Done is set by providers that flag completion separately from state.
	Done bool
}

// Finished reports whether the provider considers the job over.
func (s JobStatus) Finished() bool {
	return s.Done || s.State == JobSucceeded || s.State == JobFailed
}

// Client is the generation service as seen by the orchestrator. Every call is
// a single request/response; retry and polling policy live with the caller.
type Client interface {
	GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error)
	SubmitVideo(ctx context.Context, req VideoRequest) (VideoSubmission, error)
	PollVideo(ctx context.Context, jobID string) (JobStatus, error)
}

// VideoAspectRatio maps a production aspect ratio onto the ratios video
// providers accept: portrait stays 9:16, everything else renders 16:9.
func VideoAspectRatio(aspect string) string {
	if strings.TrimSpace(aspect) == "9:16" {
		return "9:16"
	}
	return "16:9"
}
