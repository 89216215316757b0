package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sceneforge/internal/production"
	"sceneforge/internal/services"
)

// Remote speaks the durable production contract over HTTP
// (GET/POST/PUT/DELETE /productions).
type Remote struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// RemoteOption customizes a Remote store.
type RemoteOption func(*Remote)

// WithRemoteHTTPClient overrides the HTTP client used for requests.
func WithRemoteHTTPClient(client *http.Client) RemoteOption {
	return func(r *Remote) {
		if client != nil {
			r.httpClient = client
		}
	}
}

// WithRemoteTimeout sets the per-request timeout.
func WithRemoteTimeout(timeout time.Duration) RemoteOption {
	return func(r *Remote) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// NewRemote returns a store backed by the service at baseURL.
func NewRemote(baseURL string, opts ...RemoteOption) (*Remote, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if _, err := url.ParseRequestURI(baseURL); err != nil || baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "store", "open remote", fmt.Sprintf("invalid url %q", baseURL), err)
	}
	r := &Remote{baseURL: baseURL, timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(r)
	}
	if r.httpClient == nil {
		r.httpClient = &http.Client{Timeout: r.timeout}
	}
	return r, nil
}

func (r *Remote) Close() error { return nil }

func (r *Remote) Get(ctx context.Context, id string) (*production.Production, error) {
	var out production.Production
	if err := r.do(ctx, http.MethodGet, "/productions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Remote) Create(ctx context.Context, p *production.Production) (*production.Production, error) {
	if err := validateForWrite(p); err != nil {
		return nil, err
	}
	if p.ID != "" {
		return r.Update(ctx, p)
	}
	var out production.Production
	if err := r.do(ctx, http.MethodPost, "/productions", p, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, services.Wrap(services.ErrExternalService, "store", "create", "remote store returned no id", nil)
	}
	return &out, nil
}

func (r *Remote) Update(ctx context.Context, p *production.Production) (*production.Production, error) {
	if err := validateForWrite(p); err != nil {
		return nil, err
	}
	var out production.Production
	if err := r.do(ctx, http.MethodPut, "/productions/"+url.PathEscape(p.ID), p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Remote) Delete(ctx context.Context, id string) error {
	return r.do(ctx, http.MethodDelete, "/productions/"+url.PathEscape(id), nil, nil)
}

func (r *Remote) List(ctx context.Context) ([]Summary, error) {
	var out struct {
		Productions []Summary `json:"productions"`
	}
	if err := r.do(ctx, http.MethodGet, "/productions", nil, &out); err != nil {
		return nil, err
	}
	return out.Productions, nil
}

func (r *Remote) do(ctx context.Context, method, path string, body any, out any) error {
	ctx = ensureContext(ctx)
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "store", strings.ToLower(method), "remote store unreachable", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return services.Wrap(services.ErrTransient, "store", strings.ToLower(method), "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "store", strings.ToLower(method), remoteMessage(payload, path), nil)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return services.Wrap(services.ErrValidation, "store", strings.ToLower(method), remoteMessage(payload, resp.Status), nil)
	case resp.StatusCode >= 300:
		return services.Wrap(services.ErrExternalService, "store", strings.ToLower(method), fmt.Sprintf("%s: %s", resp.Status, remoteMessage(payload, "")), nil)
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return services.Wrap(services.ErrExternalService, "store", strings.ToLower(method), "decode response", err)
	}
	return nil
}

func remoteMessage(payload []byte, fallback string) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.Error != "" {
		return body.Error
	}
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return fallback
	}
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
