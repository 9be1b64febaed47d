package advisor

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/auralink/plantlink/internal/model/entities"
	"github.com/auralink/plantlink/internal/model/messages"
)

// Defaults for the rule thresholds (percent soil moisture). The water
// threshold is deliberately looser than the low-soil one: watering is
// suggested before the situation is critical.
const (
	DefaultSoilLowPct   = 25.0
	DefaultSoilWaterPct = 35.0
	DefaultEmailCap     = 1
)

const (
	fallbackQuote = "Gentle air, steady roots."
	fallbackFrom  = "AuraLinkPlant"

	// Placeholder rendered instead of averages for a device with no history.
	avgPlaceholder = "—"
)

// Input is what a reasoning backend receives: the chronological window plus
// the plant identity.
type Input struct {
	PlantName string
	Readings  []messages.SensorReading
	LatestTs  time.Time
}

// ReasoningClient is an unreliable external capability modelled as a tagged
// result: a validated payload, or an error explaining why the result is
// unusable. Validation failures must never escape as anything but an error.
type ReasoningClient interface {
	Advise(ctx context.Context, in Input) (messages.AdvisoryPayload, error)
}

// Config tunes the rule thresholds and output caps.
type Config struct {
	SoilLowPct   float64 // mean soil below this → priority high
	SoilWaterPct float64 // mean soil below this → water_now
	EmailCap     int
}

func (c *Config) applyDefaults() {
	if c.SoilLowPct <= 0 {
		c.SoilLowPct = DefaultSoilLowPct
	}
	if c.SoilWaterPct <= 0 {
		c.SoilWaterPct = DefaultSoilWaterPct
	}
	if c.EmailCap <= 0 {
		c.EmailCap = DefaultEmailCap
	}
}

// Generator turns (profile, window) into an advisory payload. It is a total
// function: whatever the external backend does, the caller gets a well-formed
// payload back.
type Generator struct {
	cfg Config
	llm ReasoningClient // nil → rule-based path only
}

// NewGenerator builds a generator. llm may be nil when no credential is
// configured; the deterministic path then always runs.
func NewGenerator(cfg Config, llm ReasoningClient) *Generator {
	cfg.applyDefaults()
	return &Generator{cfg: cfg, llm: llm}
}

// Generate produces the advisory for one throttle cycle. The external path is
// tried when available; any failure there falls back to the deterministic
// rules. The safety override is applied uniformly to both paths afterwards.
func (g *Generator) Generate(ctx context.Context, profile entities.DeviceProfile, window []messages.SensorReading, latestTs time.Time) messages.AdvisoryPayload {
	plantName := profile.PlantName
	if plantName == "" {
		plantName = "unknown"
	}
	if latestTs.IsZero() {
		latestTs = time.Now().UTC()
	}

	var payload messages.AdvisoryPayload
	generated := false
	if g.llm != nil {
		p, err := g.llm.Advise(ctx, Input{PlantName: plantName, Readings: window, LatestTs: latestTs})
		if err != nil {
			log.Printf("advisor: external path unavailable, using rules: %v", err)
		} else {
			payload = p
			generated = true
		}
	}
	if !generated {
		payload = g.ruleBased(plantName, window)
	}

	payload.Timestamp = latestTs
	if payload.Emails == nil {
		payload.Emails = []messages.EmailDraft{}
	}
	if len(payload.Emails) > g.cfg.EmailCap {
		payload.Emails = payload.Emails[:g.cfg.EmailCap]
	}

	// Safety override: a critically dry latest sample forces high priority no
	// matter what either path computed.
	if n := len(window); n > 0 && window[n-1].SoilPct < g.cfg.SoilLowPct {
		payload.Priority = messages.PriorityHigh
	}
	return payload
}

// ruleBased is the deterministic fallback: window means against fixed
// thresholds. Identical inputs yield identical numeric output.
func (g *Generator) ruleBased(plantName string, window []messages.SensorReading) messages.AdvisoryPayload {
	stats := Summarize(window)

	priority := messages.PriorityNormal
	waterNow := false
	reason := "No readings yet; neutral guidance."
	if stats.Count > 0 {
		if stats.MeanSoilPct < g.cfg.SoilLowPct {
			priority = messages.PriorityHigh
		}
		waterNow = stats.MeanSoilPct < g.cfg.SoilWaterPct
		reason = "Rule-based guidance from the window average."
	}

	return messages.AdvisoryPayload{
		Quote: fallbackQuote,
		Emails: []messages.EmailDraft{{
			From:    fallbackFrom,
			Subject: fmt.Sprintf("%s status (fallback)", plantName),
			Summary: fmt.Sprintf("Avg T=%s°C, H=%s%%, Soil=%s%%. Check watering and light.",
				stats.TempLabel(), stats.HumLabel(), stats.SoilLabel()),
		}},
		Priority: priority,
		Advice:   messages.Advice{WaterNow: waterNow, Reason: reason},
	}
}

// WindowStats are the arithmetic means over a window, rounded for display:
// temperature to one decimal, percentages to whole numbers.
type WindowStats struct {
	Count       int
	MeanTempC   float64
	MeanHumPct  float64
	MeanSoilPct float64
	First       time.Time
	Last        time.Time
}

// Summarize computes the window statistics. A zero-length window yields
// Count == 0 and undefined means; use the label helpers for rendering.
func Summarize(window []messages.SensorReading) WindowStats {
	s := WindowStats{Count: len(window)}
	if s.Count == 0 {
		return s
	}
	var t, h, soil float64
	for _, r := range window {
		t += r.TempC
		h += r.HumPct
		soil += r.SoilPct
	}
	n := float64(s.Count)
	s.MeanTempC = math.Round(t/n*10) / 10
	s.MeanHumPct = math.Round(h / n)
	s.MeanSoilPct = math.Round(soil / n)
	s.First = window[0].Timestamp
	s.Last = window[s.Count-1].Timestamp
	return s
}

// TempLabel renders the mean temperature, or a placeholder when undefined.
func (s WindowStats) TempLabel() string {
	if s.Count == 0 {
		return avgPlaceholder
	}
	return fmt.Sprintf("%.1f", s.MeanTempC)
}

func (s WindowStats) HumLabel() string {
	if s.Count == 0 {
		return avgPlaceholder
	}
	return fmt.Sprintf("%.0f", s.MeanHumPct)
}

func (s WindowStats) SoilLabel() string {
	if s.Count == 0 {
		return avgPlaceholder
	}
	return fmt.Sprintf("%.0f", s.MeanSoilPct)
}
