package mqttclient

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// IPublisher publishes serialized payloads to a fixed topic.
type IPublisher interface {
	Publish(payload []byte) error
	PublishRetained(payload []byte) error
}

// Publisher wraps the shared client for one output topic.
type Publisher struct {
	client mqtt.Client
	topic  string
	qos    byte
}

func NewPublisher(client mqtt.Client, topic string, qos byte) *Publisher {
	return &Publisher{client: client, topic: topic, qos: qos}
}

// Publish sends payload with the configured QoS, not retained.
func (p *Publisher) Publish(payload []byte) error {
	return p.publish(payload, false)
}

// PublishRetained sends payload with the retain flag set, so a subscriber
// joining later still receives the last value.
func (p *Publisher) PublishRetained(payload []byte) error {
	return p.publish(payload, true)
}

func (p *Publisher) publish(payload []byte, retain bool) error {
	token := p.client.Publish(p.topic, p.qos, retain, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, token.Error())
	}
	return nil
}
