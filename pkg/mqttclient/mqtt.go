package mqttclient

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Config carries the broker connection settings.
type Config struct {
	BrokerURL string // e.g. tcp://localhost:1883
	User      string
	Password  string
	ClientID  string
	WillTopic string // optional; retained "backend_offline" is published on ungraceful exit
}

// Connect establishes the shared MQTT connection with exponential backoff.
// The client disconnects when ctx is cancelled.
func Connect(ctx context.Context, cfg Config) (mqtt.Client, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "plantlink-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) { log.Printf("mqtt: connected to %s", cfg.BrokerURL) })
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) { log.Printf("mqtt: connection lost: %v", err) })
	if cfg.WillTopic != "" {
		opts.SetWill(cfg.WillTopic, "backend_offline", 1, true)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second
	const maxRetries = 5

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Printf("mqtt: connect attempt failed: %v", token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithMaxRetries(bo, maxRetries-1))
	if err != nil {
		return nil, fmt.Errorf("mqtt connect after retries: %w", err)
	}

	go func() {
		<-ctx.Done()
		client.Disconnect(250)
		log.Println("mqtt: connection closed")
	}()

	return client, nil
}

// Disconnect closes the connection if it is still open.
func Disconnect(client mqtt.Client) {
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
}
