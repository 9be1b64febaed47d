package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	readingsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plantlink",
		Subsystem: "pipeline",
		Name:      "readings_ingested_total",
		Help:      "Sensor readings accepted and persisted.",
	})
	readingsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plantlink",
		Subsystem: "pipeline",
		Name:      "readings_dropped_total",
		Help:      "Inbound messages dropped before the pipeline (bad JSON, duplicates, missing device).",
	})
	throttleSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plantlink",
		Subsystem: "pipeline",
		Name:      "throttle_suppressed_total",
		Help:      "Readings persisted but not followed by generation due to the cooldown.",
	})
	advisoriesGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plantlink",
		Subsystem: "pipeline",
		Name:      "advisories_generated_total",
		Help:      "Advisory payloads produced and dispatched.",
	})
	publishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plantlink",
		Subsystem: "dispatch",
		Name:      "publish_errors_total",
		Help:      "Failed display publishes.",
	})
	persistErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plantlink",
		Subsystem: "dispatch",
		Name:      "persist_errors_total",
		Help:      "Failed advisory history writes.",
	})
	mailSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plantlink",
		Subsystem: "dispatch",
		Name:      "mail_sent_total",
		Help:      "Notification emails handed to the mail transport.",
	})
	mailErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plantlink",
		Subsystem: "dispatch",
		Name:      "mail_errors_total",
		Help:      "Failed notification sends.",
	})
)
