package behavior

import "time"

type Penalties struct {
	LowVariance         float64 `mapstructure:"low_variance"`
	ConsistentIntervals float64 `mapstructure:"consistent_intervals"`
	AbnormalVelocity    float64 `mapstructure:"abnormal_velocity"`
	NavigationShape     float64 `mapstructure:"navigation_shape"`
}

type Config struct {
	MaxSignals            int           `mapstructure:"max_signals"`
	MinSignals            int           `mapstructure:"min_signals"`
	ConfidenceThreshold   float64       `mapstructure:"confidence_threshold"`
	LowVarianceCV         float64       `mapstructure:"low_variance_cv"`
	ConsistentToleranceMs float64       `mapstructure:"consistent_tolerance_ms"`
	MinHumanIntervalMs    float64       `mapstructure:"min_human_interval_ms"`
	FlatNavigationDepth   int           `mapstructure:"flat_navigation_depth"`
	DeepNavigationDepth   int           `mapstructure:"deep_navigation_depth"`
	Cooldown              time.Duration `mapstructure:"cooldown"`
	SessionTTL            time.Duration `mapstructure:"session_ttl"`
	Penalties             Penalties     `mapstructure:"penalties"`
}

func DefaultConfig() Config {
	return Config{
		MaxSignals:            50,
		MinSignals:            5,
		ConfidenceThreshold:   0.8,
		LowVarianceCV:         0.1,
		ConsistentToleranceMs: 5,
		MinHumanIntervalMs:    250,
		FlatNavigationDepth:   3,
		DeepNavigationDepth:   12,
		Cooldown:              time.Minute,
		SessionTTL:            30 * time.Minute,
		Penalties: Penalties{
			LowVariance:         0.35,
			ConsistentIntervals: 0.30,
			AbnormalVelocity:    0.35,
			NavigationShape:     0.15,
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxSignals <= 0 {
		c.MaxSignals = d.MaxSignals
	}
	if c.MinSignals <= 1 {
		c.MinSignals = d.MinSignals
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = d.ConfidenceThreshold
	}
	if c.LowVarianceCV <= 0 {
		c.LowVarianceCV = d.LowVarianceCV
	}
	if c.ConsistentToleranceMs <= 0 {
		c.ConsistentToleranceMs = d.ConsistentToleranceMs
	}
	if c.MinHumanIntervalMs <= 0 {
		c.MinHumanIntervalMs = d.MinHumanIntervalMs
	}
	if c.FlatNavigationDepth <= 0 {
		c.FlatNavigationDepth = d.FlatNavigationDepth
	}
	if c.DeepNavigationDepth <= 0 {
		c.DeepNavigationDepth = d.DeepNavigationDepth
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = d.SessionTTL
	}
	if c.Penalties == (Penalties{}) {
		c.Penalties = d.Penalties
	}
	return c
}
