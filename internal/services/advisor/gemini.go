package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker"

	"github.com/auralink/plantlink/internal/model/messages"
)

const (
	defaultGeminiModel   = "gemini-2.0-flash"
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiTimeout = 15 * time.Second
)

// Output caps the model is instructed to honor and that validation enforces.
const (
	quoteMaxLen   = 100
	subjectMaxLen = 100
	summaryMaxLen = 140
	reasonMaxLen  = 140
)

// GeminiConfig configures the external reasoning client.
type GeminiConfig struct {
	APIKey   string
	Model    string        // default gemini-2.0-flash
	BaseURL  string        // overridable for tests
	Timeout  time.Duration // per-request bound, default 15s
	EmailCap int           // max drafts accepted from the model
}

// GeminiClient calls the Gemini generateContent endpoint and returns a
// schema-validated advisory, or an error. Every failure mode (breaker open,
// network, status, non-JSON, schema violation) surfaces the same way, so the
// generator can fall back without inspecting the cause.
type GeminiClient struct {
	cfg      GeminiConfig
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	validate *validator.Validate
}

// NewGeminiClient builds the client. Returns nil when no API key is
// configured, which the generator treats as "fallback only".
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultGeminiTimeout
	}
	if cfg.EmailCap <= 0 {
		cfg.EmailCap = DefaultEmailCap
	}
	return &GeminiClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "gemini",
			Interval: 60 * time.Second,
			Timeout:  30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
		}),
		validate: validator.New(),
	}
}

// Advise implements ReasoningClient.
func (c *GeminiClient) Advise(ctx context.Context, in Input) (messages.AdvisoryPayload, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.call(ctx, in)
	})
	if err != nil {
		return messages.AdvisoryPayload{}, err
	}
	return res.(messages.AdvisoryPayload), nil
}

// ---- request/response wire types ----

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenCfg    `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenCfg struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMIMEType string  `json:"responseMimeType"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// geminiAdvisory is the strict output schema. WaterNow is a pointer so that
// "required" distinguishes a missing field from an explicit false.
type geminiAdvisory struct {
	Quote    string        `json:"quote" validate:"required,max=100"`
	Emails   []geminiEmail `json:"emails" validate:"omitempty,dive"`
	Priority string        `json:"priority" validate:"required,oneof=low normal high"`
	Advice   *geminiAdvice `json:"advice" validate:"required"`
}

type geminiEmail struct {
	From    string `json:"from" validate:"required"`
	Subject string `json:"subject" validate:"required,max=100"`
	Summary string `json:"summary" validate:"required,max=140"`
}

type geminiAdvice struct {
	WaterNow *bool  `json:"water_now" validate:"required"`
	Reason   string `json:"reason" validate:"required,max=140"`
}

func (c *GeminiClient) call(ctx context.Context, in Input) (messages.AdvisoryPayload, error) {
	var zero messages.AdvisoryPayload

	prompt, err := buildPrompt(in, c.cfg.EmailCap)
	if err != nil {
		return zero, err
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenCfg{
			Temperature:      0.5,
			MaxOutputTokens:  512,
			ResponseMIMEType: "application/json",
		},
	})
	if err != nil {
		return zero, err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.cfg.BaseURL, c.cfg.Model, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return zero, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return zero, fmt.Errorf("gemini status %d: %s", resp.StatusCode, string(snippet))
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return zero, fmt.Errorf("gemini decode: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return zero, fmt.Errorf("gemini: empty candidates")
	}

	return c.parseAdvisory(out.Candidates[0].Content.Parts[0].Text, in.LatestTs)
}

// parseAdvisory parses the model text into the strict schema. An array
// response is normalized to its first element before validation.
func (c *GeminiClient) parseAdvisory(text string, ts time.Time) (messages.AdvisoryPayload, error) {
	var zero messages.AdvisoryPayload

	raw := []byte(strings.TrimSpace(text))
	if len(raw) == 0 {
		return zero, fmt.Errorf("gemini: empty output")
	}
	if raw[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return zero, fmt.Errorf("gemini: bad array output: %w", err)
		}
		if len(arr) == 0 {
			return zero, fmt.Errorf("gemini: empty array output")
		}
		raw = arr[0]
	}

	var adv geminiAdvisory
	if err := json.Unmarshal(raw, &adv); err != nil {
		return zero, fmt.Errorf("gemini: bad JSON output: %w", err)
	}
	if err := c.validate.Struct(adv); err != nil {
		return zero, fmt.Errorf("gemini: schema violation: %w", err)
	}
	if len(adv.Emails) > c.cfg.EmailCap {
		return zero, fmt.Errorf("gemini: %d email drafts exceeds cap %d", len(adv.Emails), c.cfg.EmailCap)
	}

	emails := make([]messages.EmailDraft, 0, len(adv.Emails))
	for _, e := range adv.Emails {
		emails = append(emails, messages.EmailDraft{From: e.From, Subject: e.Subject, Summary: e.Summary})
	}
	return messages.AdvisoryPayload{
		Timestamp: ts,
		Quote:     adv.Quote,
		Emails:    emails,
		Priority:  messages.Priority(adv.Priority),
		Advice:    messages.Advice{WaterNow: *adv.Advice.WaterNow, Reason: adv.Advice.Reason},
	}, nil
}

// buildPrompt renders the bounded instruction: plant identity, chronological
// window as JSON, and the exact output schema with its caps.
func buildPrompt(in Input, emailCap int) (string, error) {
	type row struct {
		Ts      string  `json:"ts"`
		TempC   float64 `json:"t_c"`
		HumPct  float64 `json:"h_pct"`
		SoilPct float64 `json:"soil_pct"`
	}
	rows := make([]row, 0, len(in.Readings))
	for _, r := range in.Readings {
		rows = append(rows, row{
			Ts:      r.Timestamp.UTC().Format(time.RFC3339),
			TempC:   r.TempC,
			HumPct:  r.HumPct,
			SoilPct: r.SoilPct,
		})
	}
	readingsJSON, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are AuraLinkPlant helping a home grower via a tiny desk display.\n\n")
	fmt.Fprintf(&b, "Plant: %s\n\n", in.PlantName)
	fmt.Fprintf(&b, "You receive a window of recent sensor readings as a JSON array.\n")
	fmt.Fprintf(&b, "Each item: {\"ts\": ISO8601, \"t_c\": number, \"h_pct\": number, \"soil_pct\": number}\n")
	fmt.Fprintf(&b, "readings = %s\n\n", readingsJSON)
	fmt.Fprintf(&b, "Your job:\n")
	fmt.Fprintf(&b, "1) Infer ideal ranges for THIS plant (temperature, humidity, soil moisture).\n")
	fmt.Fprintf(&b, "2) Compare window averages and trends (first vs last + average) to those ranges.\n")
	fmt.Fprintf(&b, "3) Output EXACTLY ONE JSON OBJECT (not an array, no markdown) with this schema:\n")
	fmt.Fprintf(&b, "{\n")
	fmt.Fprintf(&b, "  \"quote\": string,  // <= %d chars\n", quoteMaxLen)
	fmt.Fprintf(&b, "  \"emails\": [      // at most %d item(s)\n", emailCap)
	fmt.Fprintf(&b, "    {\"from\": \"AuraLinkPlant\", \"subject\": string, \"summary\": string}  // subject <= %d, summary <= %d chars\n", subjectMaxLen, summaryMaxLen)
	fmt.Fprintf(&b, "  ],\n")
	fmt.Fprintf(&b, "  \"priority\": \"low\"|\"normal\"|\"high\",\n")
	fmt.Fprintf(&b, "  \"advice\": {\"water_now\": boolean, \"reason\": string}  // reason <= %d chars\n", reasonMaxLen)
	fmt.Fprintf(&b, "}\n\n")
	fmt.Fprintf(&b, "Guidance:\n")
	fmt.Fprintf(&b, "- \"high\" if soil below ideal and trending down, or temps above ideal, or humidity far outside ideal.\n")
	fmt.Fprintf(&b, "- Within ideal and stable: \"normal\" and water_now=false.\n")
	fmt.Fprintf(&b, "- Near the lower soil bound: suggest a small amount (e.g. \"add 50-100 ml\").\n")
	fmt.Fprintf(&b, "- Keep the reason compact; no external people or extra fields.\n\n")
	fmt.Fprintf(&b, "Output: ONLY that single JSON object. Do NOT return an array.\n")
	return b.String(), nil
}
