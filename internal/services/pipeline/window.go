package pipeline

import (
	"context"
	"time"

	"github.com/auralink/plantlink/internal/model/messages"
)

// Window defaults: a five minute trailing window, with the last ten samples
// as the cold-start fallback.
const (
	DefaultWindowDuration = 5 * time.Minute
	DefaultMinSamples     = 10
)

// ReadingStore is the slice of storage the pipeline reads and writes.
type ReadingStore interface {
	SaveReading(ctx context.Context, r messages.SensorReading) error
	ReadingsSince(ctx context.Context, deviceID string, since time.Time) ([]messages.SensorReading, error)
	LastReadings(ctx context.Context, deviceID string, n int) ([]messages.SensorReading, error)
}

// WindowReader assembles the bounded chronological window fed to advisory
// generation: a trailing duration query, falling back to the most recent N
// samples when the duration yields nothing (cold start). The result is empty
// only when the device has no history at all.
type WindowReader struct {
	store      ReadingStore
	window     time.Duration
	minSamples int

	now func() time.Time // test hook
}

func NewWindowReader(store ReadingStore, window time.Duration, minSamples int) *WindowReader {
	if window <= 0 {
		window = DefaultWindowDuration
	}
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	return &WindowReader{store: store, window: window, minSamples: minSamples, now: time.Now}
}

// Read returns the recent readings for deviceID, oldest first.
func (w *WindowReader) Read(ctx context.Context, deviceID string) ([]messages.SensorReading, error) {
	since := w.now().Add(-w.window)
	readings, err := w.store.ReadingsSince(ctx, deviceID, since)
	if err != nil {
		return nil, err
	}
	if len(readings) > 0 {
		return readings, nil
	}
	// Cold start, or cadence slower than the window: take the size-bounded
	// fallback instead of an unbounded scan.
	return w.store.LastReadings(ctx, deviceID, w.minSamples)
}
