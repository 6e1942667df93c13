package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/talentbridge/go-apiclient/envelope"
	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	path    string
	value   envelope.Envelope[json.RawMessage]
	expires time.Time
}

// responseCache stores successful GET envelopes. Concurrent identical
// requests share one network call.
type responseCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

func newResponseCache(ttl time.Duration, now func() time.Time) *responseCache {
	return &responseCache{ttl: ttl, now: now, entries: map[string]cacheEntry{}}
}

// cacheKey binds an entry to the token it was fetched with, so a response
// is never served to another session.
func cacheKey(method, target, token string) string {
	h := sha256.New()
	h.Write([]byte(method + " " + target + "\n"))
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *responseCache) get(key string) (envelope.Envelope[json.RawMessage], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || !c.now().Before(entry.expires) {
		return envelope.Envelope[json.RawMessage]{}, false
	}
	return entry.value, true
}

// do returns the cached envelope for key or runs fn once for all concurrent
// callers of the same key. The shared call is detached from the caller that
// started it; each caller stops waiting when its own ctx is done.
func (c *responseCache) do(ctx context.Context, key, path string, fn func(context.Context) (envelope.Envelope[json.RawMessage], error)) (envelope.Envelope[json.RawMessage], error) {
	if e, ok := c.get(key); ok {
		return e, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		e, err := fn(shared)
		if err != nil {
			return e, err
		}
		if e.Success {
			c.mu.Lock()
			c.entries[key] = cacheEntry{path: normalizePath(path), value: e, expires: c.now().Add(c.ttl)}
			c.mu.Unlock()
		}
		return e, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return envelope.Envelope[json.RawMessage]{}, res.Err
		}
		return res.Val.(envelope.Envelope[json.RawMessage]), nil
	case <-ctx.Done():
		return envelope.Fail[json.RawMessage](envelope.NewError(envelope.KindNetwork, msgRequestCanceled)), nil
	}
}

func (c *responseCache) invalidate(path string) {
	path = normalizePath(path)

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if e.path == path {
			delete(c.entries, k)
		}
	}
}

func (c *responseCache) clear() {
	c.mu.Lock()
	c.entries = map[string]cacheEntry{}
	c.mu.Unlock()
}

func (c *responseCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func normalizePath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return "/" + strings.Trim(path, "/")
}

// ClearCache drops every cached response.
func (c *Client) ClearCache() {
	if c.cache == nil {
		return
	}
	c.cache.clear()
	c.logger.Debugf("Response cache cleared")
}
