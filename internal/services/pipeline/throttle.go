package pipeline

import (
	"sync"
	"time"
)

// DefaultInterval is the cooldown between advisory generations per device.
const DefaultInterval = 5 * time.Minute

// Throttle rate-limits advisory generation per device. It is a simple
// cooldown, not a sliding window: a burst after a long idle period triggers
// exactly one generation, then the cooldown restarts. State lives in memory
// only and resets on restart.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	lastRun  map[string]time.Time
}

func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Throttle{
		interval: interval,
		lastRun:  make(map[string]time.Time),
	}
}

// Allow reports whether a generation may run for deviceID at now. One
// device's runs never suppress another's.
func (t *Throttle) Allow(deviceID string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.lastRun[deviceID]
	return !ok || now.Sub(last) >= t.interval
}

// MarkRun records that a generation ran for deviceID at now.
func (t *Throttle) MarkRun(deviceID string, now time.Time) {
	t.mu.Lock()
	t.lastRun[deviceID] = now
	t.mu.Unlock()
}
