package advisory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"payment-advisor-api/internal/cache"
)

// DefaultCacheTTL is how long a generated response is reused.
const DefaultCacheTTL = 10 * time.Minute

// CachedAdvisor reuses responses for identical prompts. Cache failures are
// logged and otherwise ignored; failed generations are never cached.
type CachedAdvisor struct {
	next   Advisor
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedAdvisor wraps next with c.
func NewCachedAdvisor(next Advisor, c cache.Cache, ttl time.Duration, logger *slog.Logger) *CachedAdvisor {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedAdvisor{next: next, cache: c, ttl: ttl, logger: logger}
}

func cacheKey(req Request) string {
	h := sha256.New()
	if req.JSON {
		h.Write([]byte("json\x00"))
	} else {
		h.Write([]byte("text\x00"))
	}
	h.Write([]byte(req.Prompt))
	return "advisory:" + hex.EncodeToString(h.Sum(nil))
}

// cachedResponse is the stored form of a generated response.
type cachedResponse struct {
	Text        string    `json:"text"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Generate implements Advisor.
func (c *CachedAdvisor) Generate(ctx context.Context, req Request) (string, error) {
	key := cacheKey(req)

	var hit cachedResponse
	err := cache.GetJSON(ctx, c.cache, key, &hit)
	switch {
	case err == nil && hit.Text != "":
		c.logger.Debug("advisory cache hit", "key", key, "age", time.Since(hit.GeneratedAt))
		return hit.Text, nil
	case err == nil, errors.Is(err, cache.ErrCorrupt):
		c.logger.Warn("dropping unusable advisory cache entry", "key", key, "error", err)
		if err := c.cache.Delete(ctx, key); err != nil {
			c.logger.Warn("advisory cache delete failed", "error", err)
		}
	case !errors.Is(err, cache.ErrNotFound):
		c.logger.Warn("advisory cache read failed", "error", err)
	}

	text, err := c.next.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	entry := cachedResponse{Text: text, GeneratedAt: time.Now().UTC()}
	if err := cache.SetJSON(ctx, c.cache, key, entry, c.ttl); err != nil {
		c.logger.Warn("advisory cache write failed", "error", err)
	}
	return text, nil
}
