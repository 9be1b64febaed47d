package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/auralink/plantlink/internal/services/advisor"
	"github.com/auralink/plantlink/internal/services/api"
	"github.com/auralink/plantlink/internal/services/devicecache"
	"github.com/auralink/plantlink/internal/services/inbox"
	"github.com/auralink/plantlink/internal/services/mailer"
	"github.com/auralink/plantlink/internal/services/pipeline"
	"github.com/auralink/plantlink/internal/services/store"
	"github.com/auralink/plantlink/pkg/dedup"
	"github.com/auralink/plantlink/pkg/mqttclient"
)

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func main() {
	_ = godotenv.Load()

	// === Config ===
	cfg := struct {
		DeviceID string

		MQTTURL  string
		MQTTUser string
		MQTTPass string

		SensorTopicTmpl  string
		DisplayTopicTmpl string
		AlertTopicTmpl   string

		Influx store.Config

		AdvisoryInterval time.Duration
		WindowDuration   time.Duration
		WindowMinSamples int
		SoilLowPct       float64
		SoilWaterPct     float64
		EmailDraftCap    int

		GeminiAPIKey  string
		GeminiModel   string
		GeminiTimeout time.Duration

		SMTPHost      string
		SMTPPort      int
		SMTPUser      string
		SMTPPass      string
		MailDefaultTo string

		IMAPHost string
		IMAPPort int
		IMAPUser string
		IMAPPass string

		HTTPPort int
	}{
		DeviceID: envStr("DEVICE_ID", "dev-001"),

		MQTTURL:  envStr("MQTT_URL", "tcp://localhost:1883"),
		MQTTUser: os.Getenv("MQTT_USER"),
		MQTTPass: os.Getenv("MQTT_PASS"),

		SensorTopicTmpl:  envStr("SENSOR_TOPIC", "plant/sensors/{device}"),
		DisplayTopicTmpl: envStr("DISPLAY_TOPIC", pipeline.DefaultDisplayTopic),
		AlertTopicTmpl:   envStr("ALERT_TOPIC", "plant/alerts/{device}"),

		Influx: store.Config{
			URL:    envStr("INFLUX_URL", "http://localhost:8086"),
			Token:  os.Getenv("INFLUX_TOKEN"),
			Org:    envStr("INFLUX_ORG", "auralink"),
			Bucket: envStr("INFLUX_BUCKET", "plant"),
		},

		AdvisoryInterval: envDur("ADVISORY_INTERVAL", pipeline.DefaultInterval),
		WindowDuration:   envDur("WINDOW_DURATION", pipeline.DefaultWindowDuration),
		WindowMinSamples: envInt("WINDOW_MIN_SAMPLES", pipeline.DefaultMinSamples),
		SoilLowPct:       envFloat("SOIL_LOW_PCT", advisor.DefaultSoilLowPct),
		SoilWaterPct:     envFloat("SOIL_WATER_PCT", advisor.DefaultSoilWaterPct),
		EmailDraftCap:    envInt("EMAIL_DRAFT_CAP", advisor.DefaultEmailCap),

		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   envStr("GEMINI_MODEL", ""),
		GeminiTimeout: envDur("GEMINI_TIMEOUT", 15*time.Second),

		SMTPHost:      os.Getenv("SMTP_HOST"),
		SMTPPort:      envInt("SMTP_PORT", 465),
		SMTPUser:      os.Getenv("SMTP_USER"),
		SMTPPass:      os.Getenv("SMTP_PASS"),
		MailDefaultTo: envStr("MAIL_DEFAULT_TO", os.Getenv("IMAP_USER")),

		IMAPHost: os.Getenv("IMAP_HOST"),
		IMAPPort: envInt("IMAP_PORT", 993),
		IMAPUser: os.Getenv("IMAP_USER"),
		IMAPPass: os.Getenv("IMAP_PASS"),

		HTTPPort: envInt("HTTP_PORT", 3000),
	}

	if cfg.GeminiAPIKey != "" {
		log.Printf("env: GEMINI_API_KEY set: %s***", cfg.GeminiAPIKey[:min(6, len(cfg.GeminiAPIKey))])
	} else {
		log.Println("env: GEMINI_API_KEY not set, rule-based advisories only")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// === Storage ===
	st, err := store.New(cfg.Influx)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	// === Device cache ===
	cache := devicecache.New(st)
	warmCtx, warmCancel := context.WithTimeout(ctx, 5*time.Second)
	cache.Warm(warmCtx, cfg.DeviceID)
	warmCancel()

	// === Mail ===
	mail := mailer.New(mailer.Config{
		Host: cfg.SMTPHost, Port: cfg.SMTPPort,
		User: cfg.SMTPUser, Password: cfg.SMTPPass,
		DefaultTo: cfg.MailDefaultTo,
	})
	if mail == nil {
		log.Println("mail: smtp not configured, notifications disabled")
	}

	poller := inbox.New(inbox.Config{
		Host: cfg.IMAPHost, Port: cfg.IMAPPort,
		User: cfg.IMAPUser, Password: cfg.IMAPPass,
	})
	if poller != nil {
		go poller.Start(ctx)
	} else {
		log.Println("inbox: imap not configured, fetcher skipped")
	}

	// === MQTT ===
	client, err := mqttclient.Connect(ctx, mqttclient.Config{
		BrokerURL: cfg.MQTTURL,
		User:      cfg.MQTTUser,
		Password:  cfg.MQTTPass,
		ClientID:  "plantlink-backend-" + cfg.DeviceID,
		WillTopic: strings.ReplaceAll(cfg.AlertTopicTmpl, "{device}", cfg.DeviceID),
	})
	if err != nil {
		log.Fatalf("mqtt: %v", err)
	}
	defer mqttclient.Disconnect(client)

	// === Pipeline ===
	gemini := advisor.NewGeminiClient(advisor.GeminiConfig{
		APIKey:   cfg.GeminiAPIKey,
		Model:    cfg.GeminiModel,
		Timeout:  cfg.GeminiTimeout,
		EmailCap: cfg.EmailDraftCap,
	})
	generator := advisor.NewGenerator(advisor.Config{
		SoilLowPct:   cfg.SoilLowPct,
		SoilWaterPct: cfg.SoilWaterPct,
		EmailCap:     cfg.EmailDraftCap,
	}, reasoningOrNil(gemini))

	dispatcher := pipeline.NewDispatcher(
		pipeline.NewDisplayPublisher(client, cfg.DisplayTopicTmpl),
		st, mailerOrNil(mail), cache, cfg.MailDefaultTo,
	)

	sensorTopic := strings.ReplaceAll(cfg.SensorTopicTmpl, "{device}", cfg.DeviceID)
	consumer := mqttclient.NewConsumer(client, sensorTopic, 1, nil)

	svc := pipeline.NewService(
		consumer,
		st,
		pipeline.NewWindowReader(st, cfg.WindowDuration, cfg.WindowMinSamples),
		pipeline.NewThrottle(cfg.AdvisoryInterval),
		cache,
		generator,
		dispatcher,
		dedup.New(10*time.Minute, 20000),
	)

	// === HTTP ===
	srv := api.NewServer(st, cache, inboxOrNil(poller))
	hs := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("api: listening on :%d", cfg.HTTPPort)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("api: %v", err)
		}
	}()

	log.Printf("pipeline: consuming %s (advisory interval %s, window %s)",
		sensorTopic, cfg.AdvisoryInterval, cfg.WindowDuration)
	svc.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = hs.Shutdown(shutdownCtx)
}

// Typed-nil to interface-nil conversions: a nil *GeminiClient stored in the
// interface would not compare equal to nil inside the generator.
func reasoningOrNil(c *advisor.GeminiClient) advisor.ReasoningClient {
	if c == nil {
		return nil
	}
	return c
}

func mailerOrNil(m *mailer.Mailer) pipeline.Mailer {
	if m == nil {
		return nil
	}
	return m
}

func inboxOrNil(p *inbox.Poller) api.InboxReader {
	if p == nil {
		return nil
	}
	return p
}
