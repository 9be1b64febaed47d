package dedup

import (
	"sync"
	"time"
)

// Deduper suppresses QoS 1 redeliveries by remembering message identities
// (typically a payload hash) for a bounded time.
type Deduper struct {
	mu        sync.Mutex
	ttl       time.Duration
	maxSize   int
	seen      map[string]time.Time // id -> expiry
	lastSweep time.Time
}

func New(ttl time.Duration, maxSize int) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &Deduper{
		ttl:       ttl,
		maxSize:   maxSize,
		seen:      make(map[string]time.Time, 64),
		lastSweep: time.Now(),
	}
}

// Seen records id and reports whether it was already registered and not yet
// expired. An empty id is never considered a duplicate.
func (d *Deduper) Seen(id string) bool {
	if id == "" {
		return false
	}
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	exp, dup := d.seen[id]
	if dup && now.Before(exp) {
		return true
	}
	d.seen[id] = now.Add(d.ttl)

	// Sweep expired entries at most once per TTL, or whenever the map
	// outgrows its cap.
	if len(d.seen) > d.maxSize || now.Sub(d.lastSweep) > d.ttl {
		d.sweepLocked(now)
	}
	return false
}

// Forget drops id, allowing it to be processed again.
func (d *Deduper) Forget(id string) {
	d.mu.Lock()
	delete(d.seen, id)
	d.mu.Unlock()
}

// Len returns the number of tracked identities.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *Deduper) sweepLocked(now time.Time) {
	for k, exp := range d.seen {
		if now.After(exp) {
			delete(d.seen, k)
		}
	}
	d.lastSweep = now
}
