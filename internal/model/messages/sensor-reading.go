package messages

import (
	"time"
)

// SensorReading is one sample published by the device on plant/sensors/{deviceId}.
type SensorReading struct {
	DeviceID  string    `json:"deviceId"`
	Timestamp time.Time `json:"ts"`
	TempC     float64   `json:"t_c"`
	HumPct    float64   `json:"h_pct"`
	SoilPct   float64   `json:"soil_pct"`
	Firmware  string    `json:"fw,omitempty"`
}

// Intake range limits. Readings are clamped at the MQTT boundary; everything
// past the pipeline handler may assume values inside these bounds.
const (
	TempMinC = -10.0
	TempMaxC = 60.0
)

// Clamp forces the reading into the accepted ranges.
func (r *SensorReading) Clamp() {
	r.TempC = clamp(r.TempC, TempMinC, TempMaxC)
	r.HumPct = clamp(r.HumPct, 0, 100)
	r.SoilPct = clamp(r.SoilPct, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
