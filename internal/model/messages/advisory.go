package messages

import "time"

// Priority of an advisory as shown on the device display.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the three known levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

// EmailDraft is a notification suggestion carried inside an advisory.
type EmailDraft struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Summary string `json:"summary"`
}

// Advice is the watering guidance part of an advisory.
type Advice struct {
	WaterNow bool   `json:"water_now"`
	Reason   string `json:"reason"`
}

// AdvisoryPayload is the unit published to plant/device/{deviceId}/display and
// persisted for history. It is always well-formed: there is no error variant.
type AdvisoryPayload struct {
	Timestamp time.Time    `json:"ts"`
	Quote     string       `json:"quote"`
	Emails    []EmailDraft `json:"emails"`
	Priority  Priority     `json:"priority"`
	Advice    Advice       `json:"advice"`
}
