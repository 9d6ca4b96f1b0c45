package traffic

import "time"

const (
	minExceededSignals = 2

	criticalScore = 10.0
	highScore     = 5.0
	mediumScore   = 2.0
	lowScore      = 1.0

	minRequestsFloor  = 1.0
	minUniqueFloor    = 1.0
	minLatencyFloor   = 1.0
	minErrorRateFloor = 0.001
)

type Weights struct {
	Volume        float64 `mapstructure:"volume"`
	UniqueSources float64 `mapstructure:"unique_sources"`
	ErrorRate     float64 `mapstructure:"error_rate"`
	Latency       float64 `mapstructure:"latency"`
}

type Config struct {
	Window                time.Duration `mapstructure:"window"`
	VolumeRatio           float64       `mapstructure:"volume_ratio"`
	UniqueSourceRatio     float64       `mapstructure:"unique_source_ratio"`
	LatencyRatio          float64       `mapstructure:"latency_ratio"`
	ErrorRateThreshold    float64       `mapstructure:"error_rate_threshold"`
	Smoothing             float64       `mapstructure:"smoothing"`
	HeavyHitterShare      float64       `mapstructure:"heavy_hitter_share"`
	TopSources            int           `mapstructure:"top_sources"`
	MaxRecordsPerEndpoint int           `mapstructure:"max_records_per_endpoint"`
	EvaluationParallelism int           `mapstructure:"evaluation_parallelism"`
	EndpointIdleTTL       time.Duration `mapstructure:"endpoint_idle_ttl"`
	Weights               Weights       `mapstructure:"weights"`
	InitialBaseline       Baseline      `mapstructure:"initial_baseline"`
}

func DefaultConfig() Config {
	return Config{
		Window:                60 * time.Second,
		VolumeRatio:           5,
		UniqueSourceRatio:     5,
		LatencyRatio:          3,
		ErrorRateThreshold:    0.30,
		Smoothing:             0.2,
		HeavyHitterShare:      0.2,
		TopSources:            5,
		MaxRecordsPerEndpoint: 500_000,
		EvaluationParallelism: 8,
		EndpointIdleTTL:       time.Hour,
		Weights: Weights{
			Volume:        0.4,
			UniqueSources: 0.3,
			ErrorRate:     0.2,
			Latency:       0.1,
		},
		InitialBaseline: Baseline{
			RequestsPerWindow:      100,
			UniqueSourcesPerWindow: 10,
			AvgResponseTimeMs:      200,
			ErrorRate:              0.01,
		},
	}
}

// withDefaults fills zero values so partially specified configs stay usable.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.VolumeRatio <= 0 {
		c.VolumeRatio = d.VolumeRatio
	}
	if c.UniqueSourceRatio <= 0 {
		c.UniqueSourceRatio = d.UniqueSourceRatio
	}
	if c.LatencyRatio <= 0 {
		c.LatencyRatio = d.LatencyRatio
	}
	if c.ErrorRateThreshold <= 0 {
		c.ErrorRateThreshold = d.ErrorRateThreshold
	}
	if c.Smoothing <= 0 || c.Smoothing >= 1 {
		c.Smoothing = d.Smoothing
	}
	if c.HeavyHitterShare <= 0 {
		c.HeavyHitterShare = d.HeavyHitterShare
	}
	if c.TopSources <= 0 {
		c.TopSources = d.TopSources
	}
	if c.MaxRecordsPerEndpoint <= 0 {
		c.MaxRecordsPerEndpoint = d.MaxRecordsPerEndpoint
	}
	if c.EvaluationParallelism <= 0 {
		c.EvaluationParallelism = d.EvaluationParallelism
	}
	if c.EndpointIdleTTL <= 0 {
		c.EndpointIdleTTL = d.EndpointIdleTTL
	}
	if c.Weights == (Weights{}) {
		c.Weights = d.Weights
	}
	if c.InitialBaseline.RequestsPerWindow <= 0 {
		c.InitialBaseline.RequestsPerWindow = d.InitialBaseline.RequestsPerWindow
	}
	if c.InitialBaseline.UniqueSourcesPerWindow <= 0 {
		c.InitialBaseline.UniqueSourcesPerWindow = d.InitialBaseline.UniqueSourcesPerWindow
	}
	if c.InitialBaseline.AvgResponseTimeMs <= 0 {
		c.InitialBaseline.AvgResponseTimeMs = d.InitialBaseline.AvgResponseTimeMs
	}
	if c.InitialBaseline.ErrorRate <= 0 {
		c.InitialBaseline.ErrorRate = d.InitialBaseline.ErrorRate
	}
	return c
}
