package mqttclient

import (
	"context"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Handler processes one inbound message. Returning an error only logs it;
// the subscription stays up.
type Handler func(topic string, msg mqtt.Message) error

// IConsumer subscribes to a topic and feeds messages to an injected handler.
type IConsumer interface {
	Consume(ctx context.Context)
	SetHandler(h Handler)
}

// Consumer subscribes to a single topic on the shared client.
type Consumer struct {
	client  mqtt.Client
	topic   string
	qos     byte
	handler Handler
}

// NewConsumer creates a consumer; the handler may be injected later via
// SetHandler before Consume is called.
func NewConsumer(client mqtt.Client, topic string, qos byte, handler Handler) *Consumer {
	return &Consumer{client: client, topic: topic, qos: qos, handler: handler}
}

func (c *Consumer) SetHandler(h Handler) { c.handler = h }

// Consume subscribes and blocks until ctx is cancelled, then unsubscribes.
func (c *Consumer) Consume(ctx context.Context) {
	token := c.client.Subscribe(c.topic, c.qos, func(_ mqtt.Client, msg mqtt.Message) {
		if c.handler == nil {
			log.Printf("mqtt: no handler for topic %s", c.topic)
			return
		}
		if err := c.handler(msg.Topic(), msg); err != nil {
			log.Printf("mqtt: handler error on %s: %v", msg.Topic(), err)
		}
	})
	if token.Wait() && token.Error() != nil {
		log.Printf("mqtt: subscribe %s failed: %v", c.topic, token.Error())
		return
	}
	log.Printf("mqtt: subscribed to %s (qos %d)", c.topic, c.qos)

	<-ctx.Done()

	unsub := c.client.Unsubscribe(c.topic)
	unsub.Wait()
}
