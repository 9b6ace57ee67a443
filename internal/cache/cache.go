package cache

import (
	"fmt"
	"sync"
	"time"

	"mailcal/internal/models"
)

// item is a cached artifact with expiration
type item struct {
	artifact  *models.CalendarArtifact
	expiresAt time.Time
}

// ArtifactCache is a small in-memory TTL cache fronting latest-artifact
// lookups. Entries are invalidated whenever an artifact for their key is
// created, updated or deleted, so latest-wins semantics are preserved.
type ArtifactCache struct {
	items map[string]*item
	mutex sync.RWMutex
}

// New creates a new artifact cache
func New() *ArtifactCache {
	return &ArtifactCache{
		items: make(map[string]*item),
	}
}

// ScheduleKey builds the cache key for a SINGLE artifact lookup
func ScheduleKey(scheduleID int64) string {
	return fmt.Sprintf("single:%d", scheduleID)
}

// GroupKey builds the cache key for a GROUP artifact lookup
func GroupKey(calendarID, groupID int64) string {
	return fmt.Sprintf("group:%d:%d", calendarID, groupID)
}

// Get retrieves a cached artifact, dropping it if expired
func (c *ArtifactCache) Get(key string) (*models.CalendarArtifact, bool) {
	c.mutex.RLock()
	cached, exists := c.items[key]
	c.mutex.RUnlock()

	if !exists {
		return nil, false
	}
	if time.Now().After(cached.expiresAt) {
		c.Delete(key)
		return nil, false
	}
	return cached.artifact, true
}

// Set stores an artifact under the key with TTL
func (c *ArtifactCache) Set(key string, artifact *models.CalendarArtifact, ttl time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = &item{
		artifact:  artifact,
		expiresAt: time.Now().Add(ttl),
	}
}

// Delete removes one key from the cache
func (c *ArtifactCache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.items, key)
}

// Clear removes all cached artifacts
func (c *ArtifactCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.items = make(map[string]*item)
}
