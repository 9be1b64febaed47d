package sensor_simulator

import (
	"math/rand"
	"sync"
	"time"

	"github.com/auralink/plantlink/internal/model/messages"
)

// Baseline operating point the walk hovers around, and the per-tick jitter.
const (
	baseTempC   = 30.8
	baseHumPct  = 62.0
	baseSoilPct = 48.0

	tempJitter = 1.0
	humJitter  = 2.0
	soilJitter = 4.0

	// soilDriftPerMin models slow drying when nobody waters the plant.
	soilDriftPerMin = 0.05
)

// DataGenerator produces a plausible random walk of plant sensor readings.
// State is kept internal so consecutive readings stay correlated instead of
// jumping around the baseline.
type DataGenerator struct {
	mu   sync.Mutex
	rng  *rand.Rand
	last time.Time

	tempC   float64
	humPct  float64
	soilPct float64
}

func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rng:     rand.New(rand.NewSource(seed)),
		tempC:   baseTempC,
		humPct:  baseHumPct,
		soilPct: baseSoilPct,
	}
}

// Next advances the walk and returns a reading for deviceID.
func (g *DataGenerator) Next(deviceID string) messages.SensorReading {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UTC()
	if !g.last.IsZero() {
		g.soilPct -= soilDriftPerMin * now.Sub(g.last).Minutes()
	}
	g.last = now

	g.tempC = drift(g.rng, g.tempC, baseTempC, tempJitter)
	g.humPct = drift(g.rng, g.humPct, baseHumPct, humJitter)
	g.soilPct = drift(g.rng, g.soilPct, g.soilPct, soilJitter)

	r := messages.SensorReading{
		DeviceID:  deviceID,
		Timestamp: now,
		TempC:     round1(g.tempC),
		HumPct:    float64(int(g.humPct + 0.5)),
		SoilPct:   float64(int(g.soilPct + 0.5)),
		Firmware:  "mock-1.0",
	}
	r.Clamp()
	return r
}

// Water bumps the soil level, for driving the walk from tests or a CLI flag.
func (g *DataGenerator) Water(amountPct float64) {
	if amountPct <= 0 {
		return
	}
	g.mu.Lock()
	g.soilPct += amountPct
	if g.soilPct > 100 {
		g.soilPct = 100
	}
	g.mu.Unlock()
}

// drift nudges v toward anchor with uniform jitter of the given half-width.
func drift(rng *rand.Rand, v, anchor, jitter float64) float64 {
	return v + (anchor-v)*0.2 + (rng.Float64()*2-1)*jitter
}

func round1(v float64) float64 {
	if v >= 0 {
		return float64(int(v*10+0.5)) / 10
	}
	return float64(int(v*10-0.5)) / 10
}
