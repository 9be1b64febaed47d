package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/auralink/plantlink/internal/model/messages"
	"github.com/auralink/plantlink/internal/services/advisor"
	"github.com/auralink/plantlink/internal/services/devicecache"
	"github.com/auralink/plantlink/pkg/dedup"
	"github.com/auralink/plantlink/pkg/mqttclient"
)

const opTimeout = 10 * time.Second

// Service is the pipeline orchestrator. Each inbound reading is handled to
// completion before the next: persist (always), throttle gate, then window
// fetch, generation and dispatch. Every step past the gate is best effort;
// partial completion (reading saved, advisory lost) is acceptable.
type Service struct {
	consumer   mqttclient.IConsumer
	readings   ReadingStore
	windows    *WindowReader
	throttle   *Throttle
	cache      *devicecache.Cache
	generator  *advisor.Generator
	dispatcher *Dispatcher
	deduper    *dedup.Deduper

	now func() time.Time // test hook
}

func NewService(
	consumer mqttclient.IConsumer,
	readings ReadingStore,
	windows *WindowReader,
	throttle *Throttle,
	cache *devicecache.Cache,
	generator *advisor.Generator,
	dispatcher *Dispatcher,
	deduper *dedup.Deduper,
) *Service {
	s := &Service{
		consumer:   consumer,
		readings:   readings,
		windows:    windows,
		throttle:   throttle,
		cache:      cache,
		generator:  generator,
		dispatcher: dispatcher,
		deduper:    deduper,
		now:        time.Now,
	}
	consumer.SetHandler(s.HandleReading)
	return s
}

// Start blocks consuming sensor messages until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.consumer.Consume(ctx)
}

// HandleReading processes one inbound sensor message end to end.
func (s *Service) HandleReading(topic string, msg mqtt.Message) error {
	// QoS 1 redeliveries carry identical payloads; drop them before decoding.
	if s.deduper != nil {
		sum := sha256.Sum256(msg.Payload())
		if s.deduper.Seen(hex.EncodeToString(sum[:])) {
			return nil
		}
	}

	var r messages.SensorReading
	if err := json.Unmarshal(msg.Payload(), &r); err != nil {
		readingsDropped.Inc()
		log.Printf("pipeline: bad JSON on %s: %v", topic, err)
		return nil // malformed input never reaches the core
	}
	if r.DeviceID == "" {
		readingsDropped.Inc()
		log.Printf("pipeline: reading without deviceId on %s", topic)
		return nil
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now().UTC()
	}
	r.Clamp()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	// Persist unconditionally; only generation is throttled.
	if err := s.readings.SaveReading(ctx, r); err != nil {
		log.Printf("pipeline: persist reading %s failed: %v", r.DeviceID, err)
	}
	readingsIngested.Inc()

	now := s.now()
	if !s.throttle.Allow(r.DeviceID, now) {
		throttleSuppressed.Inc()
		return nil
	}
	s.throttle.MarkRun(r.DeviceID, now)

	window, err := s.windows.Read(ctx, r.DeviceID)
	if err != nil {
		// Degrade to the one sample in hand rather than skipping the cycle.
		log.Printf("pipeline: window read %s failed: %v", r.DeviceID, err)
		window = []messages.SensorReading{r}
	}

	profile := s.cache.Profile(ctx, r.DeviceID)
	payload := s.generator.Generate(ctx, profile, window, r.Timestamp)
	advisoriesGenerated.Inc()

	s.dispatcher.Dispatch(ctx, r.DeviceID, payload, window)
	log.Printf("pipeline: advisory for %s priority=%s water_now=%v",
		r.DeviceID, payload.Priority, payload.Advice.WaterNow)
	return nil
}
