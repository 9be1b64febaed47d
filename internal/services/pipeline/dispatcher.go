package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/auralink/plantlink/internal/model/messages"
	"github.com/auralink/plantlink/internal/services/advisor"
	"github.com/auralink/plantlink/internal/services/devicecache"
	"github.com/auralink/plantlink/pkg/mqttclient"
)

// DefaultDisplayTopic is the per-device output channel template.
const DefaultDisplayTopic = "plant/device/{device}/display"

// AdvisoryStore persists advisory payloads for history queries.
type AdvisoryStore interface {
	SaveAdvisory(ctx context.Context, deviceID string, p messages.AdvisoryPayload) error
}

// Mailer delivers a notification, best effort.
type Mailer interface {
	Send(subject, body, toOverride string) error
}

// AdvisoryPublisher pushes a serialized payload to a device's output channel.
type AdvisoryPublisher interface {
	PublishRetained(deviceID string, payload []byte) error
}

// DisplayPublisher publishes retained QoS 1 payloads on the per-device
// display topic, so a device reconnecting later still receives the last
// advisory without re-triggering generation.
type DisplayPublisher struct {
	client mqtt.Client
	tmpl   string

	mu   sync.Mutex
	pubs map[string]*mqttclient.Publisher
}

func NewDisplayPublisher(client mqtt.Client, topicTmpl string) *DisplayPublisher {
	if strings.TrimSpace(topicTmpl) == "" {
		topicTmpl = DefaultDisplayTopic
	}
	return &DisplayPublisher{client: client, tmpl: topicTmpl, pubs: make(map[string]*mqttclient.Publisher)}
}

func (d *DisplayPublisher) PublishRetained(deviceID string, payload []byte) error {
	d.mu.Lock()
	pub, ok := d.pubs[deviceID]
	if !ok {
		topic := strings.ReplaceAll(d.tmpl, "{device}", deviceID)
		pub = mqttclient.NewPublisher(d.client, topic, 1)
		d.pubs[deviceID] = pub
	}
	d.mu.Unlock()
	return pub.PublishRetained(payload)
}

// Dispatcher fans one generated advisory out to its three sinks: the device
// display, the history store and (optionally) the owner's mailbox. Each sink
// is independent best-effort; no step unwinds another.
type Dispatcher struct {
	publisher  AdvisoryPublisher
	advisories AdvisoryStore
	mail       Mailer // nil when SMTP is not configured
	cache      *devicecache.Cache
	defaultTo  string
}

func NewDispatcher(publisher AdvisoryPublisher, advisories AdvisoryStore, mail Mailer, cache *devicecache.Cache, defaultTo string) *Dispatcher {
	return &Dispatcher{
		publisher:  publisher,
		advisories: advisories,
		mail:       mail,
		cache:      cache,
		defaultTo:  defaultTo,
	}
}

// Dispatch publishes, persists and notifies. window is the same sequence the
// advisory was generated from; it feeds the notification body.
func (d *Dispatcher) Dispatch(ctx context.Context, deviceID string, p messages.AdvisoryPayload, window []messages.SensorReading) {
	blob, err := json.Marshal(p)
	if err != nil {
		log.Printf("dispatch: marshal advisory for %s: %v", deviceID, err)
		return
	}

	if err := d.publisher.PublishRetained(deviceID, blob); err != nil {
		publishErrors.Inc()
		log.Printf("dispatch: publish for %s failed: %v", deviceID, err)
	}

	if err := d.advisories.SaveAdvisory(ctx, deviceID, p); err != nil {
		persistErrors.Inc()
		log.Printf("dispatch: persist advisory for %s failed: %v", deviceID, err)
	}

	d.notify(ctx, deviceID, p, window)
}

// notify sends the notification email when the payload carries a usable
// draft. Failures are logged and otherwise ignored: mail is a side channel,
// never part of the pipeline outcome.
func (d *Dispatcher) notify(ctx context.Context, deviceID string, p messages.AdvisoryPayload, window []messages.SensorReading) {
	if d.mail == nil || len(p.Emails) == 0 {
		return
	}
	draft := p.Emails[0]
	if strings.TrimSpace(draft.Subject) == "" {
		return
	}

	to := ""
	if d.cache != nil {
		to = d.cache.NotifyEmail(ctx, deviceID)
	}
	if to == "" {
		to = d.defaultTo
	}

	body := notificationBody(p, window)
	if err := d.mail.Send(draft.Subject, body, to); err != nil {
		mailErrors.Inc()
		log.Printf("dispatch: mail for %s failed: %v", deviceID, err)
		return
	}
	mailSent.Inc()
}

// notificationBody composes the plain-text email: draft summary, advice,
// action line, priority, window span and averages, latest sample, quote.
func notificationBody(p messages.AdvisoryPayload, window []messages.SensorReading) string {
	stats := advisor.Summarize(window)

	var b strings.Builder
	b.WriteString(p.Emails[0].Summary)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Advice: %s\n", p.Advice.Reason)
	if p.Advice.WaterNow {
		b.WriteString("Action: water now\n")
	} else {
		b.WriteString("Action: no watering needed\n")
	}
	fmt.Fprintf(&b, "Priority: %s\n", p.Priority)

	if stats.Count > 0 {
		fmt.Fprintf(&b, "Window: %s to %s (%d samples)\n",
			stats.First.UTC().Format(time.RFC3339),
			stats.Last.UTC().Format(time.RFC3339),
			stats.Count)
		fmt.Fprintf(&b, "Averages: T=%s°C H=%s%% Soil=%s%%\n",
			stats.TempLabel(), stats.HumLabel(), stats.SoilLabel())
		last := window[len(window)-1]
		fmt.Fprintf(&b, "Latest: T=%.1f°C H=%.0f%% Soil=%.0f%% at %s\n",
			last.TempC, last.HumPct, last.SoilPct, last.Timestamp.UTC().Format(time.RFC3339))
	}

	fmt.Fprintf(&b, "\n\"%s\"\n", p.Quote)
	return b.String()
}
