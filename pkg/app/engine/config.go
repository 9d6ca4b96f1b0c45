package engine

import (
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/app/classifier"
	"github.com/NeuralTrust/TrustSentinel/pkg/app/dispatcher"
	"github.com/NeuralTrust/TrustSentinel/pkg/app/honeypot"
	"github.com/NeuralTrust/TrustSentinel/pkg/detection/behavior"
	"github.com/NeuralTrust/TrustSentinel/pkg/detection/traffic"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/worker"
)

type Config struct {
	TickInterval     time.Duration     `mapstructure:"tick_interval"`
	StaleAfter       time.Duration     `mapstructure:"stale_after"`
	EndpointAlertTTL time.Duration     `mapstructure:"endpoint_alert_ttl"`
	RecentIncidents  int               `mapstructure:"recent_incidents"`
	SubscriberBuffer int               `mapstructure:"subscriber_buffer"`
	Traffic          traffic.Config    `mapstructure:"traffic"`
	Behavior         behavior.Config   `mapstructure:"behavior"`
	Classifier       classifier.Config `mapstructure:"classifier"`
	Dispatcher       dispatcher.Config `mapstructure:"dispatcher"`
	Honeypot         honeypot.Config   `mapstructure:"honeypot"`
	Workers          worker.Config     `mapstructure:"workers"`
}

func DefaultConfig() Config {
	return Config{
		TickInterval:     5 * time.Second,
		EndpointAlertTTL: 5 * time.Minute,
		RecentIncidents:  20,
		SubscriberBuffer: 64,
		Traffic:          traffic.DefaultConfig(),
		Behavior:         behavior.DefaultConfig(),
		Classifier:       classifier.DefaultConfig(),
		Dispatcher:       dispatcher.DefaultConfig(),
		Honeypot:         honeypot.DefaultConfig(),
		Workers:          worker.Config{QueueSize: 1024},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 3 * c.TickInterval
	}
	if c.EndpointAlertTTL <= 0 {
		c.EndpointAlertTTL = d.EndpointAlertTTL
	}
	if c.RecentIncidents <= 0 {
		c.RecentIncidents = d.RecentIncidents
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = d.SubscriberBuffer
	}
	return c
}
