package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sceneforge/internal/services"
)

// HTTPEnhancer calls an enhancement service: POST {prompt, context, style,
// subject, systemPrompt} -> {enhanced_prompt}.
type HTTPEnhancer struct {
	url        string
	httpClient *http.Client
}

// NewHTTPEnhancer returns an enhancer posting to url.
func NewHTTPEnhancer(url string, timeout time.Duration) *HTTPEnhancer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEnhancer{url: strings.TrimSpace(url), httpClient: &http.Client{Timeout: timeout}}
}

type enhanceRequest struct {
	Prompt       string `json:"prompt"`
	Context      string `json:"context"`
	Style        string `json:"style,omitempty"`
	Subject      string `json:"subject,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

type enhanceResponse struct {
	EnhancedPrompt string `json:"enhanced_prompt"`
}

func (e *HTTPEnhancer) Enhance(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(enhanceRequest{
		Prompt:       req.Prompt,
		Context:      string(req.Kind) + "_generation",
		Style:        req.Style,
		Subject:      req.Subject,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("encode enhance request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build enhance request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "enhance", "http", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", services.Wrap(services.ErrExternalService, "enhance", "http", resp.Status, nil)
	}
	var out enhanceResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", services.Wrap(services.ErrExternalService, "enhance", "http", "decode response", err)
	}
	enhanced := strings.TrimSpace(out.EnhancedPrompt)
	if enhanced == "" {
		return "", services.Wrap(services.ErrExternalService, "enhance", "http", "empty enhanced prompt", nil)
	}
	return enhanced, nil
}
