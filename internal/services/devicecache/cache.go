package devicecache

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/auralink/plantlink/internal/model/entities"
)

// ProfileStore is the slice of the storage layer the cache reads through to.
type ProfileStore interface {
	Profile(ctx context.Context, deviceID string) (entities.DeviceProfile, error)
}

// Cache is a process-local, read-through copy of device profiles. Writes from
// the management API merge into existing entries; a miss consults storage
// once, then stays cached for the process lifetime.
type Cache struct {
	store ProfileStore

	mu      sync.RWMutex
	entries map[string]entities.DeviceProfile
}

func New(store ProfileStore) *Cache {
	return &Cache{
		store:   store,
		entries: make(map[string]entities.DeviceProfile),
	}
}

// Warm pre-loads the profile for deviceID. Best effort: storage errors are
// logged and swallowed, the caller never fails because of a cold cache.
func (c *Cache) Warm(ctx context.Context, deviceID string) {
	if deviceID == "" {
		return
	}
	p, err := c.store.Profile(ctx, deviceID)
	if err != nil {
		log.Printf("devicecache: warm %s failed: %v", deviceID, err)
		return
	}
	c.mu.Lock()
	c.entries[deviceID] = p
	c.mu.Unlock()
}

// SetPlantName trims and merges the plant name into the cached entry.
func (c *Cache) SetPlantName(deviceID, name string) {
	c.setField(deviceID, name, func(p *entities.DeviceProfile, v string) { p.PlantName = v })
}

// SetNotifyEmail trims and merges the notification recipient.
func (c *Cache) SetNotifyEmail(deviceID, email string) {
	c.setField(deviceID, email, func(p *entities.DeviceProfile, v string) { p.NotifyEmail = v })
}

func (c *Cache) setField(deviceID, value string, assign func(*entities.DeviceProfile, string)) {
	if deviceID == "" {
		return
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	c.mu.Lock()
	p, ok := c.entries[deviceID]
	if !ok {
		p = entities.DeviceProfile{DeviceID: deviceID}
	}
	assign(&p, value)
	c.entries[deviceID] = p
	c.mu.Unlock()
}

// PlantName returns the cached plant name, consulting storage once on a miss.
func (c *Cache) PlantName(ctx context.Context, deviceID string) string {
	return c.Profile(ctx, deviceID).PlantName
}

// NotifyEmail returns the cached notification recipient, consulting storage
// once on a miss.
func (c *Cache) NotifyEmail(ctx context.Context, deviceID string) string {
	return c.Profile(ctx, deviceID).NotifyEmail
}

// Profile returns the cached profile for deviceID. On a miss it reads through
// to storage, caches the result (even an empty profile, so repeated misses do
// not hammer storage) and returns it. Storage errors resolve to an empty
// profile without caching, so a later call can retry.
func (c *Cache) Profile(ctx context.Context, deviceID string) entities.DeviceProfile {
	if deviceID == "" {
		return entities.DeviceProfile{}
	}
	c.mu.RLock()
	p, ok := c.entries[deviceID]
	c.mu.RUnlock()
	if ok {
		return p
	}

	p, err := c.store.Profile(ctx, deviceID)
	if err != nil {
		log.Printf("devicecache: read-through %s failed: %v", deviceID, err)
		return entities.DeviceProfile{DeviceID: deviceID}
	}
	c.mu.Lock()
	// another goroutine may have populated the entry meanwhile; keep merges
	if cur, ok := c.entries[deviceID]; ok {
		p = cur
	} else {
		c.entries[deviceID] = p
	}
	c.mu.Unlock()
	return p
}
