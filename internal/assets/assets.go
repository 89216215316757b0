package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"sceneforge/internal/config"
	"sceneforge/internal/logging"
	"sceneforge/internal/services"
)

// ErrUnknownAsset is returned when an id does not exist in the library.
var ErrUnknownAsset = errors.New("unknown asset")

// Asset is one entry of the reference library.
type Asset struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// Library looks up reference assets by id.
type Library interface {
	Lookup(ctx context.Context, id string) (Asset, error)
}

// Resolve maps ids to asset URLs in order, skipping blanks and duplicates.
// Unknown ids are logged and dropped so a stale reference never blocks an
// image call; other lookup errors are returned.
func Resolve(ctx context.Context, lib Library, ids []string, logger *slog.Logger) ([]string, error) {
	ids = lo.Uniq(lo.Compact(lo.Map(ids, func(id string, _ int) string { return strings.TrimSpace(id) })))
	if lib == nil || len(ids) == 0 {
		return nil, nil
	}
	urls := make([]string, 0, len(ids))
	for _, id := range ids {
		asset, err := lib.Lookup(ctx, id)
		if err != nil {
			if errors.Is(err, ErrUnknownAsset) {
				logging.WarnWithContext(logger, "reference asset not found", "asset_missing",
					logging.String("asset_id", id),
					logging.String(logging.FieldImpact, "image generated without this reference"),
					logging.String(logging.FieldErrorHint, "remove the reference or restore the asset"),
				)
				continue
			}
			return nil, fmt.Errorf("resolve asset %s: %w", id, err)
		}
		if asset.URL != "" {
			urls = append(urls, asset.URL)
		}
	}
	return urls, nil
}

// Static is a fixed in-memory library.
type Static map[string]Asset

// NewStatic builds a library from an id to URL map.
func NewStatic(urls map[string]string) Static {
	return lo.MapValues(urls, func(url, id string) Asset { return Asset{ID: id, URL: url} })
}

func (s Static) Lookup(_ context.Context, id string) (Asset, error) {
	asset, ok := s[id]
	if !ok {
		return Asset{}, ErrUnknownAsset
	}
	return asset, nil
}

// Chain consults libraries in order and returns the first hit.
type Chain []Library

func (c Chain) Lookup(ctx context.Context, id string) (Asset, error) {
	for _, lib := range c {
		asset, err := lib.Lookup(ctx, id)
		if err == nil {
			return asset, nil
		}
		if !errors.Is(err, ErrUnknownAsset) {
			return Asset{}, err
		}
	}
	return Asset{}, ErrUnknownAsset
}

// New builds the library described by cfg.Assets. Static entries shadow the
// remote library. Returns nil when nothing is configured.
func New(cfg *config.Config) (Library, error) {
	var chain Chain
	if len(cfg.Assets.Static) > 0 {
		chain = append(chain, NewStatic(cfg.Assets.Static))
	}
	if cfg.Assets.BaseURL != "" {
		remote := NewHTTPLibrary(cfg.Assets.BaseURL, 15*time.Second)
		cached, err := NewCached(remote, cfg.Assets.CacheSize)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "assets", "init", "build lookup cache", err)
		}
		chain = append(chain, cached)
	}
	switch len(chain) {
	case 0:
		return nil, nil
	case 1:
		return chain[0], nil
	default:
		return chain, nil
	}
}
