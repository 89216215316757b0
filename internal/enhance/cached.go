package enhance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"sceneforge/internal/logging"
)

// Cached memoizes enhancements so a retried attempt reuses the rewrite
// instead of paying for a second call.
type Cached struct {
	next   Enhancer
	cache  *gocache.Cache
	logger *slog.Logger
}

// NewCached wraps next with a TTL cache.
func NewCached(next Enhancer, ttl time.Duration, logger *slog.Logger) *Cached {
	return &Cached{
		next:   next,
		cache:  gocache.New(ttl, 2*ttl),
		logger: logging.NewComponentLogger(logger, "enhance-cache"),
	}
}

func (c *Cached) Enhance(ctx context.Context, req Request) (string, error) {
	key := cacheKey(req)
	if hit, ok := c.cache.Get(key); ok {
		c.logger.Debug("enhancement cache hit", logging.String("kind", string(req.Kind)))
		return hit.(string), nil
	}
	out, err := c.next.Enhance(ctx, req)
	if err != nil {
		return "", err
	}
	c.cache.SetDefault(key, out)
	return out, nil
}

// Len reports the number of cached rewrites.
func (c *Cached) Len() int { return c.cache.ItemCount() }

func cacheKey(req Request) string {
	h := sha256.New()
	for _, part := range []string{string(req.Kind), req.SystemPrompt, req.Style, req.Subject, req.Prompt} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
