package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/devdebug/devdebug-ai/internal/cache"
)

// Cached wraps a Client with an exact-match response cache. Errors are
// never cached.
type Cached struct {
	inner Client
	store *cache.Cache
}

// NewCached builds the caching decorator.
func NewCached(inner Client, store *cache.Cache) *Cached {
	return &Cached{inner: inner, store: store}
}

func (c *Cached) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	key := completionKey(prompt, maxTokens)
	if cached, ok := c.store.Get(key); ok {
		return cached, nil
	}

	response, err := c.inner.Complete(ctx, prompt, maxTokens)
	if err != nil {
		return "", err
	}
	c.store.Set(key, response)
	return response, nil
}

func (c *Cached) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

func completionKey(prompt string, maxTokens int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d:%s", maxTokens, prompt))
	return hex.EncodeToString(sum[:])
}
