// Package channels keeps an in-memory copy of the source-channel allow list
// with an explicit TTL, so ingest does not hit the database for every update.
package channels

import (
	"context"
	"strings"
	"sync"
	"time"

	"promptika-bot/internal/database"
)

// DefaultTTL is how long a loaded allow list stays fresh.
const DefaultTTL = 5 * time.Minute

// Cache is a TTL-bound allow-list cache backed by a ChannelRepository.
// A stale cache is refreshed on demand; refresh failures keep the previous
// snapshot so a database hiccup does not drop incoming posts.
type Cache struct {
	repo database.ChannelRepository
	ttl  time.Duration

	mu        sync.RWMutex
	set       map[string]struct{}
	expiresAt time.Time
}

// NewCache creates a Cache with the given TTL. A non-positive ttl falls back
// to DefaultTTL.
func NewCache(repo database.ChannelRepository, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{repo: repo, ttl: ttl}
}

// RefreshIfStale reloads the allow list from storage when the TTL has passed
// or nothing was loaded yet.
func (c *Cache) RefreshIfStale(ctx context.Context) error {
	c.mu.RLock()
	fresh := c.set != nil && time.Now().Before(c.expiresAt)
	c.mu.RUnlock()
	if fresh {
		return nil
	}
	return c.Refresh(ctx)
}

// Refresh unconditionally reloads the allow list from storage.
func (c *Cache) Refresh(ctx context.Context) error {
	list, err := c.repo.List(ctx)
	if err != nil {
		return err
	}

	set := make(map[string]struct{}, len(list))
	for _, ch := range list {
		set[normalize(ch.Username)] = struct{}{}
	}

	c.mu.Lock()
	c.set = set
	c.expiresAt = time.Now().Add(c.ttl)
	c.mu.Unlock()
	return nil
}

// Allowed reports whether the channel username is on the allow list. An empty
// allow list permits everything, matching the behavior before any channel was
// registered.
func (c *Cache) Allowed(username string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.set) == 0 {
		return true
	}
	_, ok := c.set[normalize(username)]
	return ok
}

// Invalidate drops the cached snapshot so the next check reloads it.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.set = nil
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func normalize(username string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
}
