package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	sim "github.com/auralink/plantlink/internal/sensor-simulator"
	"github.com/auralink/plantlink/pkg/mqttclient"
)

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
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

	deviceID := envStr("DEVICE_ID", "dev-001")
	topic := strings.ReplaceAll(envStr("SENSOR_TOPIC", "plant/sensors/{device}"), "{device}", deviceID)
	interval := envDur("MOCK_INTERVAL", 10*time.Second)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := mqttclient.Connect(ctx, mqttclient.Config{
		BrokerURL: envStr("MQTT_URL", "tcp://localhost:1883"),
		User:      os.Getenv("MQTT_USER"),
		Password:  os.Getenv("MQTT_PASS"),
		ClientID:  "mock-sensor-" + deviceID,
	})
	if err != nil {
		log.Fatalf("mock: mqtt connect: %v", err)
	}
	defer mqttclient.Disconnect(client)

	pub := mqttclient.NewPublisher(client, topic, 1)
	gen := sim.NewDataGenerator(time.Now().UnixNano())

	log.Printf("mock: publishing every %s to %s", interval, topic)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r := gen.Next(deviceID)
			b, err := json.Marshal(r)
			if err != nil {
				log.Printf("mock: marshal: %v", err)
				continue
			}
			if err := pub.Publish(b); err != nil {
				log.Printf("mock: publish: %v", err)
				continue
			}
			log.Printf("mock: → T=%.1f H=%.0f Soil=%.0f", r.TempC, r.HumPct, r.SoilPct)
		}
	}
}
