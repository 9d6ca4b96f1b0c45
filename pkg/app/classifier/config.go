package classifier

import (
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/finding"
)

type Penalties struct {
	Low      float64 `mapstructure:"low"`
	Medium   float64 `mapstructure:"medium"`
	High     float64 `mapstructure:"high"`
	Critical float64 `mapstructure:"critical"`
}

func (p Penalties) For(severity finding.Severity) float64 {
	switch severity {
	case finding.SeverityLow:
		return p.Low
	case finding.SeverityMedium:
		return p.Medium
	case finding.SeverityHigh:
		return p.High
	case finding.SeverityCritical:
		return p.Critical
	}
	return 0
}

type Config struct {
	DecayWindow        time.Duration `mapstructure:"decay_window"`
	IdlePeriod         time.Duration `mapstructure:"idle_period"`
	CorrelationWindow  time.Duration `mapstructure:"correlation_window"`
	BlockFindings      int           `mapstructure:"block_findings"`
	BlockReputation    float64       `mapstructure:"block_reputation"`
	ReputationRecovery float64       `mapstructure:"reputation_recovery"`
	ReleaseReputation  float64       `mapstructure:"release_reputation"`
	Penalties          Penalties     `mapstructure:"penalties"`
	EvictAfter         time.Duration `mapstructure:"evict_after"`
	EvictedCapacity    int           `mapstructure:"evicted_capacity"`
	RehydrateDepth     int           `mapstructure:"rehydrate_depth"`
}

func DefaultConfig() Config {
	return Config{
		DecayWindow:        time.Hour,
		IdlePeriod:         15 * time.Minute,
		CorrelationWindow:  5 * time.Minute,
		BlockFindings:      3,
		BlockReputation:    0.3,
		ReputationRecovery: 0.05,
		ReleaseReputation:  0.5,
		Penalties: Penalties{
			Low:      0.02,
			Medium:   0.1,
			High:     0.2,
			Critical: 0.4,
		},
		EvictAfter:      2 * time.Hour,
		EvictedCapacity: 10_000,
		RehydrateDepth:  1_000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DecayWindow <= 0 {
		c.DecayWindow = d.DecayWindow
	}
	if c.IdlePeriod <= 0 {
		c.IdlePeriod = d.IdlePeriod
	}
	if c.CorrelationWindow <= 0 {
		c.CorrelationWindow = d.CorrelationWindow
	}
	if c.BlockFindings <= 0 {
		c.BlockFindings = d.BlockFindings
	}
	if c.BlockReputation <= 0 {
		c.BlockReputation = d.BlockReputation
	}
	if c.ReputationRecovery <= 0 {
		c.ReputationRecovery = d.ReputationRecovery
	}
	if c.ReleaseReputation <= 0 {
		c.ReleaseReputation = d.ReleaseReputation
	}
	if c.Penalties == (Penalties{}) {
		c.Penalties = d.Penalties
	}
	if c.EvictAfter <= 0 {
		c.EvictAfter = d.EvictAfter
	}
	if c.EvictedCapacity <= 0 {
		c.EvictedCapacity = d.EvictedCapacity
	}
	if c.RehydrateDepth <= 0 {
		c.RehydrateDepth = d.RehydrateDepth
	}
	return c
}
