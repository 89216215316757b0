package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sceneforge/internal/services"
)

// HTTPLibrary resolves assets with GET {base}/assets/{id}.
type HTTPLibrary struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPLibrary returns a library backed by the asset service at baseURL.
func NewHTTPLibrary(baseURL string, timeout time.Duration) *HTTPLibrary {
	return &HTTPLibrary{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (l *HTTPLibrary) Lookup(ctx context.Context, id string) (Asset, error) {
	endpoint := l.baseURL + "/assets/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Asset{}, fmt.Errorf("build asset request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return Asset{}, services.Wrap(services.ErrTransient, "assets", "lookup", "request failed", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Asset{}, ErrUnknownAsset
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Asset{}, services.Wrap(services.ErrExternalService, "assets", "lookup", resp.Status, nil)
	}
	var asset Asset
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&asset); err != nil {
		return Asset{}, services.Wrap(services.ErrExternalService, "assets", "lookup", "decode response", err)
	}
	if asset.ID == "" {
		asset.ID = id
	}
	return asset, nil
}
