package advisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/auralink/plantlink/internal/model/entities"
	"github.com/auralink/plantlink/internal/model/messages"
)

func window(soil ...float64) []messages.SensorReading {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	out := make([]messages.SensorReading, len(soil))
	for i, s := range soil {
		out[i] = messages.SensorReading{
			DeviceID:  "dev-001",
			Timestamp: base.Add(time.Duration(i) * 10 * time.Second),
			TempC:     30.8,
			HumPct:    62,
			SoilPct:   s,
		}
	}
	return out
}

func TestFallbackLowSoilIsHighPriority(t *testing.T) {
	g := NewGenerator(Config{}, nil)
	win := window(20, 20, 20)

	p := g.Generate(context.Background(), entities.DeviceProfile{PlantName: "Basil"}, win, win[2].Timestamp)

	require.Equal(t, messages.PriorityHigh, p.Priority)
	require.True(t, p.Advice.WaterNow)
	require.Len(t, p.Emails, 1)
	require.Contains(t, p.Emails[0].Summary, "T=30.8")
	require.Contains(t, p.Emails[0].Summary, "Soil=20")
	require.Contains(t, p.Emails[0].Subject, "Basil")
}

func TestFallbackWaterBandIsNormalPriority(t *testing.T) {
	// mean soil 30: below the water threshold (35) but above low-soil (25)
	g := NewGenerator(Config{}, nil)
	win := window(30, 30, 30)

	p := g.Generate(context.Background(), entities.DeviceProfile{}, win, win[2].Timestamp)

	require.Equal(t, messages.PriorityNormal, p.Priority)
	require.True(t, p.Advice.WaterNow)
}

func TestFallbackHealthySoil(t *testing.T) {
	g := NewGenerator(Config{}, nil)
	win := window(55, 60, 58)

	p := g.Generate(context.Background(), entities.DeviceProfile{}, win, win[2].Timestamp)

	require.Equal(t, messages.PriorityNormal, p.Priority)
	require.False(t, p.Advice.WaterNow)
}

func TestFallbackIsDeterministic(t *testing.T) {
	g := NewGenerator(Config{}, nil)
	win := window(42, 37, 40)
	ts := win[2].Timestamp

	a := g.Generate(context.Background(), entities.DeviceProfile{PlantName: "Fern"}, win, ts)
	b := g.Generate(context.Background(), entities.DeviceProfile{PlantName: "Fern"}, win, ts)

	require.Equal(t, a, b)
}

func TestEmptyWindowRendersPlaceholders(t *testing.T) {
	g := NewGenerator(Config{}, nil)

	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	p := g.Generate(context.Background(), entities.DeviceProfile{}, nil, ts)

	require.Equal(t, messages.PriorityNormal, p.Priority)
	require.False(t, p.Advice.WaterNow)
	require.Len(t, p.Emails, 1)
	require.Contains(t, p.Emails[0].Summary, "T=—")
	require.Contains(t, p.Emails[0].Subject, "unknown")
	require.Equal(t, ts, p.Timestamp)
}

type stubReasoner struct {
	payload messages.AdvisoryPayload
	err     error
	calls   int
}

func (s *stubReasoner) Advise(_ context.Context, _ Input) (messages.AdvisoryPayload, error) {
	s.calls++
	return s.payload, s.err
}

func TestExternalFailureFallsBack(t *testing.T) {
	stub := &stubReasoner{err: errors.New("schema violation")}
	g := NewGenerator(Config{}, stub)
	win := window(50, 50)

	p := g.Generate(context.Background(), entities.DeviceProfile{}, win, win[1].Timestamp)

	require.Equal(t, 1, stub.calls)
	require.Equal(t, fallbackQuote, p.Quote)
	require.Equal(t, messages.PriorityNormal, p.Priority)
}

func TestSafetyOverrideAppliesToExternalPath(t *testing.T) {
	// The external backend reports everything fine, but the latest sample is
	// critically dry: the override must win.
	stub := &stubReasoner{payload: messages.AdvisoryPayload{
		Quote:    "all good",
		Priority: messages.PriorityLow,
		Advice:   messages.Advice{WaterNow: false, Reason: "looks fine"},
	}}
	g := NewGenerator(Config{}, stub)
	win := window(40, 30, 18)

	p := g.Generate(context.Background(), entities.DeviceProfile{}, win, win[2].Timestamp)

	require.Equal(t, messages.PriorityHigh, p.Priority)
	require.Equal(t, "all good", p.Quote)
}

func TestSafetyOverrideAppliesToFallbackPath(t *testing.T) {
	// Mean soil is above both thresholds but the latest sample collapsed.
	g := NewGenerator(Config{}, nil)
	win := window(60, 60, 60, 10)

	p := g.Generate(context.Background(), entities.DeviceProfile{}, win, win[3].Timestamp)

	require.Equal(t, messages.PriorityHigh, p.Priority)
}

func TestEmailCapTruncatesExternalDrafts(t *testing.T) {
	stub := &stubReasoner{payload: messages.AdvisoryPayload{
		Quote:    "ok",
		Priority: messages.PriorityNormal,
		Emails: []messages.EmailDraft{
			{From: "a", Subject: "s1", Summary: "x"},
			{From: "b", Subject: "s2", Summary: "y"},
		},
		Advice: messages.Advice{Reason: "r"},
	}}
	g := NewGenerator(Config{EmailCap: 1}, stub)
	win := window(50)

	p := g.Generate(context.Background(), entities.DeviceProfile{}, win, win[0].Timestamp)

	require.Len(t, p.Emails, 1)
	require.Equal(t, "s1", p.Emails[0].Subject)
}

func TestSummarizeRounding(t *testing.T) {
	win := window(20, 21)
	win[0].TempC, win[1].TempC = 30.75, 30.84
	win[0].HumPct, win[1].HumPct = 61.2, 62.9

	s := Summarize(win)

	require.Equal(t, 2, s.Count)
	require.InDelta(t, 30.8, s.MeanTempC, 1e-9)
	require.InDelta(t, 62, s.MeanHumPct, 1e-9)
	require.InDelta(t, 21, s.MeanSoilPct, 1e-9)
	require.Equal(t, "30.8", s.TempLabel())
	require.Equal(t, "62", s.HumLabel())
	require.Equal(t, "21", s.SoilLabel())
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	require.Zero(t, s.Count)
	require.Equal(t, "—", s.TempLabel())
	require.Equal(t, "—", s.HumLabel())
	require.Equal(t, "—", s.SoilLabel())
}
