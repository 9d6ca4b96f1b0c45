package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWithPrefix("sentinel_", registry)

var (
	// Latency buckets in milliseconds
	latencyBuckets = []float64{
		1, 5, 10, 25,
		50, 100, 250,
		500, 1000, 2500,
	}

	FindingsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "findings_total",
			Help: "Findings produced by the detectors",
		},
		[]string{"kind", "severity"},
	)

	IncidentsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidents_total",
			Help: "Classification decisions by assigned severity and resulting state",
		},
		[]string{"severity", "state"},
	)

	CountermeasuresTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "countermeasures_total",
			Help: "Dispatched countermeasures by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	EnforcerLatency = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enforcer_latency_ms",
			Help:    "Latency of enforcer calls in milliseconds",
			Buckets: latencyBuckets,
		},
		[]string{"kind"},
	)

	InterceptLatency = promauto.With(registerer).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "intercept_latency_ms",
			Help:    "Time spent scanning a request in the interception hook",
			Buckets: latencyBuckets,
		},
	)

	IncidentLogPending = promauto.With(registerer).NewGauge(
		prometheus.GaugeOpts{
			Name: "incident_log_pending",
			Help: "Records waiting for the incident store to recover",
		},
	)

	DroppedTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropped_total",
			Help: "Work dropped because a bounded queue was full",
		},
		[]string{"queue"},
	)

	HandlerPanicsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "handler_panics_total",
			Help: "Panics recovered from HTTP handlers by route",
		},
		[]string{"route"},
	)

	TrackedProfiles = promauto.With(registerer).NewGauge(
		prometheus.GaugeOpts{
			Name: "tracked_profiles",
			Help: "Attacker profiles held in memory",
		},
	)

	ActiveHoneypots = promauto.With(registerer).NewGauge(
		prometheus.GaugeOpts{
			Name: "active_honeypots",
			Help: "Honeypots currently serving decoys",
		},
	)
)

type MetricsConfig struct {
	EnableLatency    bool `mapstructure:"enable_latency"`
	EnableProcess    bool `mapstructure:"enable_process"`
	EnableEnforcer   bool `mapstructure:"enable_enforcer"`
	EnableQueueDepth bool `mapstructure:"enable_queue_depth"`
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		EnableLatency:    true,
		EnableProcess:    true,
		EnableEnforcer:   true,
		EnableQueueDepth: true,
	}
}

var Config = DefaultMetricsConfig()

func Initialize(cfg MetricsConfig) {
	Config = cfg
	if cfg.EnableProcess {
		registry.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
}

// Gatherer exposes the private registry to the metrics server.
func Gatherer() prometheus.Gatherer {
	return registry
}
