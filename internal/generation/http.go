package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sceneforge/internal/services"
)

const (
	defaultHTTPTimeout = 120 * time.Second
	maxResponseBytes   = 4 << 20
)

// HTTPClient talks to the generation service over JSON/HTTP:
// POST /image, POST /video, GET /video/status/{id}.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option customizes the HTTP client.
type Option func(*HTTPClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIKey sends key as a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(c *HTTPClient) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *HTTPClient) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewHTTPClient returns a client for the service rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type imageResponse struct {
	Success  *bool  `json:"success"`
	Output   string `json:"output"`
	ImageURL string `json:"image_url"`
	Error    string `json:"error"`
}

type videoResponse struct {
	VideoURL     string `json:"video_url"`
	PredictionID string `json:"prediction_id"`
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	Error        string `json:"error"`
}

type statusResponse struct {
	Status         string   `json:"status"`
	VideoURL       string   `json:"video_url"`
	Error          string   `json:"error"`
	PossibleCauses []string `json:"possible_causes"`
	Done           bool     `json:"done"`
}

// GenerateImage performs one image generation round trip.
func (c *HTTPClient) GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return ImageResult{}, services.Wrap(services.ErrValidation, "generation", "image", "prompt is empty", nil)
	}
	if req.ReferenceURLs == nil {
		req.ReferenceURLs = []string{}
	}
	var resp imageResponse
	if err := c.do(ctx, "image", http.MethodPost, "/image", req, &resp); err != nil {
		return ImageResult{}, err
	}
	imageURL := strings.TrimSpace(resp.Output)
	if imageURL == "" {
		imageURL = strings.TrimSpace(resp.ImageURL)
	}
	if (resp.Success != nil && !*resp.Success) || imageURL == "" {
		msg := strings.TrimSpace(resp.Error)
		if msg == "" {
			msg = "image generation failed"
		}
		return ImageResult{}, &APIError{Operation: "image", Message: msg}
	}
	return ImageResult{URL: imageURL}, nil
}

// SubmitVideo starts a video job, returning either the asset or a job id.
func (c *HTTPClient) SubmitVideo(ctx context.Context, req VideoRequest) (VideoSubmission, error) {
	if strings.TrimSpace(req.SeedImageURL) == "" {
		return VideoSubmission{}, services.Wrap(services.ErrValidation, "generation", "video", "seed image url is empty", nil)
	}
	var resp videoResponse
	if err := c.do(ctx, "video", http.MethodPost, "/video", req, &resp); err != nil {
		return VideoSubmission{}, err
	}
	switch {
	case strings.TrimSpace(resp.VideoURL) != "":
		return VideoSubmission{VideoURL: strings.TrimSpace(resp.VideoURL)}, nil
	case strings.TrimSpace(resp.PredictionID) != "":
		return VideoSubmission{JobID: strings.TrimSpace(resp.PredictionID)}, nil
	case strings.TrimSpace(resp.JobID) != "":
		return VideoSubmission{JobID: strings.TrimSpace(resp.JobID)}, nil
	case strings.TrimSpace(resp.Error) != "":
		return VideoSubmission{}, &APIError{Operation: "video", Message: resp.Error}
	case strings.EqualFold(resp.Status, "mock"):
		return VideoSubmission{Mock: true}, nil
	default:
		return VideoSubmission{}, &APIError{Operation: "video", Message: "unexpected response from video service"}
	}
}

// PollVideo fetches the current state of a video job.
func (c *HTTPClient) PollVideo(ctx context.Context, jobID string) (JobStatus, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return JobStatus{}, services.Wrap(services.ErrValidation, "generation", "poll", "job id is empty", nil)
	}
	var resp statusResponse
	if err := c.do(ctx, "poll", http.MethodGet, "/video/status/"+url.PathEscape(jobID), nil, &resp); err != nil {
		return JobStatus{}, err
	}
	return JobStatus{
		State:    ParseJobState(resp.Status),
		VideoURL: strings.TrimSpace(resp.VideoURL),
		Error:    strings.TrimSpace(resp.Error),
		Causes:   resp.PossibleCauses,
		Done:     resp.Done,
	}, nil
}

func (c *HTTPClient) do(ctx context.Context, operation, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("generation %s: encode request: %w", operation, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("generation %s: build request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return services.Wrap(services.ErrTransient, "generation", operation, "request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return services.Wrap(services.ErrTransient, "generation", operation, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Operation: operation, StatusCode: resp.StatusCode, Message: errorMessage(payload, resp.Status)}
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &APIError{Operation: operation, StatusCode: resp.StatusCode, Message: "invalid JSON response"}
	}
	return nil
}

func errorMessage(payload []byte, fallback string) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return fallback
	}
	if len(text) > 300 {
		text = text[:300] + "..."
	}
	return text
}
