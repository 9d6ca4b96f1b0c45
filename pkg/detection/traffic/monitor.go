package traffic

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/finding"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// EndpointSourcePrefix marks findings attributed to a whole endpoint rather
// than to a single source.
const EndpointSourcePrefix = "endpoint:"

const retiredBaselines = 4096

type Outcome struct {
	LatencyMs float64 `json:"latency_ms"`
	IsError   bool    `json:"is_error"`
}

// Baseline is the smoothed reference for one endpoint. Every field stays
// strictly positive.
type Baseline struct {
	RequestsPerWindow      float64 `json:"requests_per_window" mapstructure:"requests_per_window"`
	UniqueSourcesPerWindow float64 `json:"unique_sources_per_window" mapstructure:"unique_sources_per_window"`
	AvgResponseTimeMs      float64 `json:"avg_response_time_ms" mapstructure:"avg_response_time_ms"`
	ErrorRate              float64 `json:"error_rate" mapstructure:"error_rate"`
}

type Signal string

const (
	SignalVolume        Signal = "volume"
	SignalUniqueSources Signal = "unique_sources"
	SignalErrorRate     Signal = "error_rate"
	SignalLatency       Signal = "latency"
)

type SourceShare struct {
	SourceID string  `json:"source_id"`
	Requests int     `json:"requests"`
	Share    float64 `json:"share"`
}

type Snapshot struct {
	Endpoint      string        `json:"endpoint"`
	TotalRequests int           `json:"total_requests"`
	UniqueSources int           `json:"unique_sources"`
	AvgLatencyMs  float64       `json:"avg_latency_ms"`
	ErrorRate     float64       `json:"error_rate"`
	TopSources    []SourceShare `json:"top_sources,omitempty"`
	TakenAt       time.Time     `json:"taken_at"`
}

type Ratios struct {
	Volume        float64 `json:"volume"`
	UniqueSources float64 `json:"unique_sources"`
	ErrorRate     float64 `json:"error_rate"`
	Latency       float64 `json:"latency"`
}

type Verdict struct {
	Endpoint        string            `json:"endpoint"`
	Snapshot        Snapshot          `json:"snapshot"`
	Baseline        Baseline          `json:"baseline"`
	Ratios          Ratios            `json:"ratios"`
	Exceeded        []Signal          `json:"exceeded"`
	Anomalous       bool              `json:"anomalous"`
	Score           float64           `json:"score"`
	Severity        finding.Severity  `json:"severity"`
	Findings        []finding.Finding `json:"findings,omitempty"`
	BaselineUpdated bool              `json:"baseline_updated"`
}

//go:generate mockery --name=Monitor --dir=. --output=./mocks --filename=monitor_mock.go --case=underscore --with-expecter
type Monitor interface {
	Record(sourceID, endpoint string, outcome Outcome)
	Evaluate(endpoint string) Verdict
	EvaluateAll(ctx context.Context) []Verdict
	Baseline(endpoint string) (Baseline, bool)
}

type Option func(*monitor)

func WithTimeProvider(fn func() time.Time) Option {
	return func(m *monitor) {
		m.timeProvider = fn
	}
}

type monitor struct {
	logger       *logrus.Logger
	cfg          Config
	endpoints    sync.Map
	retired      *lru.Cache[string, Baseline]
	timeProvider func() time.Time
}

func NewMonitor(logger *logrus.Logger, cfg Config, opts ...Option) Monitor {
	retired, _ := lru.New[string, Baseline](retiredBaselines)
	m := &monitor{
		logger:       logger,
		cfg:          cfg.withDefaults(),
		retired:      retired,
		timeProvider: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// window returns the live window for endpoint. A window recreated after
// eviction starts from the baseline it had learned.
func (m *monitor) window(endpoint string) *endpointWindow {
	if w, ok := m.endpoints.Load(endpoint); ok {
		return w.(*endpointWindow)
	}
	baseline := m.cfg.InitialBaseline
	if learned, ok := m.retired.Get(endpoint); ok {
		baseline = learned
	}
	w, loaded := m.endpoints.LoadOrStore(endpoint, newEndpointWindow(baseline))
	if !loaded {
		m.retired.Remove(endpoint)
	}
	return w.(*endpointWindow)
}

// lock returns the endpoint's live window with its lock held.
func (m *monitor) lock(endpoint string) *endpointWindow {
	for {
		w := m.window(endpoint)
		w.mu.Lock()
		if !w.retired {
			return w
		}
		w.mu.Unlock()
	}
}

// Record only takes the endpoint's own lock and never performs I/O.
func (m *monitor) Record(sourceID, endpoint string, outcome Outcome) {
	now := m.timeProvider()
	w := m.lock(endpoint)
	defer w.mu.Unlock()
	w.prune(now.Add(-m.cfg.Window))
	w.push(requestRecord{
		at:        now,
		sourceID:  sourceID,
		latencyMs: outcome.LatencyMs,
		isError:   outcome.IsError,
	}, m.cfg.MaxRecordsPerEndpoint)
}

func (m *monitor) Baseline(endpoint string) (Baseline, bool) {
	v, ok := m.endpoints.Load(endpoint)
	if !ok {
		return m.retired.Get(endpoint)
	}
	w := v.(*endpointWindow)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.retired {
		return m.retired.Get(endpoint)
	}
	return w.baseline, true
}

func (m *monitor) Evaluate(endpoint string) Verdict {
	now := m.timeProvider()
	w := m.lock(endpoint)
	w.prune(now.Add(-m.cfg.Window))
	snapshot := w.snapshot(endpoint, now, m.cfg.TopSources)
	baseline := w.baseline
	verdict := m.judge(snapshot, baseline)
	if !verdict.Anomalous && snapshot.TotalRequests > 0 {
		w.baseline = m.smooth(baseline, snapshot)
		verdict.BaselineUpdated = true
	}
	w.mu.Unlock()

	if verdict.Anomalous {
		verdict.Findings = m.findings(verdict, now)
		m.logger.WithFields(logrus.Fields{
			"endpoint":  endpoint,
			"score":     verdict.Score,
			"severity":  verdict.Severity.String(),
			"exceeded":  verdict.Exceeded,
			"requests":  snapshot.TotalRequests,
			"unique":    snapshot.UniqueSources,
			"errorRate": snapshot.ErrorRate,
		}).Warn("volumetric anomaly detected")
	}
	return verdict
}

// EvaluateAll is the periodic tick. Endpoints are evaluated in parallel; each
// evaluation is serialized against its own window mutations.
func (m *monitor) EvaluateAll(ctx context.Context) []Verdict {
	var endpoints []string
	m.endpoints.Range(func(key, _ any) bool {
		endpoints = append(endpoints, key.(string))
		return true
	})
	sort.Strings(endpoints)

	var (
		mu       sync.Mutex
		verdicts = make([]Verdict, 0, len(endpoints))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.EvaluationParallelism)
	for _, endpoint := range endpoints {
		endpoint := endpoint
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			verdict := m.Evaluate(endpoint)
			mu.Lock()
			verdicts = append(verdicts, verdict)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.logger.WithError(err).Debug("traffic evaluation interrupted")
	}

	m.evictIdle(m.timeProvider())
	sort.Slice(verdicts, func(i, j int) bool { return verdicts[i].Endpoint < verdicts[j].Endpoint })
	return verdicts
}

// evictIdle drops empty windows idle past the TTL. The learned baseline is
// kept aside so the endpoint does not relearn from scratch.
func (m *monitor) evictIdle(now time.Time) {
	m.endpoints.Range(func(key, value any) bool {
		w := value.(*endpointWindow)
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.retired || w.len() > 0 || now.Sub(w.lastRecord) <= m.cfg.EndpointIdleTTL {
			return true
		}
		w.retired = true
		m.retired.Add(key.(string), w.baseline)
		m.endpoints.Delete(key)
		return true
	})
}

func (m *monitor) judge(snapshot Snapshot, baseline Baseline) Verdict {
	ratios := Ratios{
		Volume:        float64(snapshot.TotalRequests) / baseline.RequestsPerWindow,
		UniqueSources: float64(snapshot.UniqueSources) / baseline.UniqueSourcesPerWindow,
		ErrorRate:     snapshot.ErrorRate / m.cfg.ErrorRateThreshold,
		Latency:       snapshot.AvgLatencyMs / baseline.AvgResponseTimeMs,
	}

	var exceeded []Signal
	if ratios.Volume > m.cfg.VolumeRatio {
		exceeded = append(exceeded, SignalVolume)
	}
	if ratios.UniqueSources > m.cfg.UniqueSourceRatio {
		exceeded = append(exceeded, SignalUniqueSources)
	}
	if snapshot.ErrorRate > m.cfg.ErrorRateThreshold {
		exceeded = append(exceeded, SignalErrorRate)
	}
	if ratios.Latency > m.cfg.LatencyRatio {
		exceeded = append(exceeded, SignalLatency)
	}

	score := m.cfg.Weights.Volume*ratios.Volume +
		m.cfg.Weights.UniqueSources*ratios.UniqueSources +
		m.cfg.Weights.ErrorRate*ratios.ErrorRate +
		m.cfg.Weights.Latency*ratios.Latency

	verdict := Verdict{
		Endpoint:  snapshot.Endpoint,
		Snapshot:  snapshot,
		Baseline:  baseline,
		Ratios:    ratios,
		Exceeded:  exceeded,
		Anomalous: len(exceeded) >= minExceededSignals,
		Score:     score,
	}
	if verdict.Anomalous {
		verdict.Severity = ScoreSeverity(score)
	}
	return verdict
}

// ScoreSeverity maps a composite score to a tier; SeverityNone means the
// score is below the LOW threshold and no finding is emitted.
func ScoreSeverity(score float64) finding.Severity {
	switch {
	case score > criticalScore:
		return finding.SeverityCritical
	case score > highScore:
		return finding.SeverityHigh
	case score > mediumScore:
		return finding.SeverityMedium
	case score > lowScore:
		return finding.SeverityLow
	default:
		return finding.SeverityNone
	}
}

func (m *monitor) smooth(b Baseline, s Snapshot) Baseline {
	alpha := m.cfg.Smoothing
	ema := func(prev, current, floor float64) float64 {
		next := (1-alpha)*prev + alpha*current
		if next < floor {
			return floor
		}
		return next
	}
	return Baseline{
		RequestsPerWindow:      ema(b.RequestsPerWindow, float64(s.TotalRequests), minRequestsFloor),
		UniqueSourcesPerWindow: ema(b.UniqueSourcesPerWindow, float64(s.UniqueSources), minUniqueFloor),
		AvgResponseTimeMs:      ema(b.AvgResponseTimeMs, s.AvgLatencyMs, minLatencyFloor),
		ErrorRate:              ema(b.ErrorRate, s.ErrorRate, minErrorRateFloor),
	}
}

func (m *monitor) findings(v Verdict, now time.Time) []finding.Finding {
	if v.Severity == finding.SeverityNone {
		return nil
	}
	metrics := map[string]float64{
		"score":            v.Score,
		"total_requests":   float64(v.Snapshot.TotalRequests),
		"unique_sources":   float64(v.Snapshot.UniqueSources),
		"avg_latency_ms":   v.Snapshot.AvgLatencyMs,
		"error_rate":       v.Snapshot.ErrorRate,
		"volume_ratio":     v.Ratios.Volume,
		"unique_ratio":     v.Ratios.UniqueSources,
		"latency_ratio":    v.Ratios.Latency,
		"signals_exceeded": float64(len(v.Exceeded)),
	}
	confidence := float64(len(v.Exceeded)) / 4
	opts := []finding.Option{
		finding.WithMetrics(metrics),
		finding.WithContext(v.Endpoint),
		finding.WithTimestamp(now),
		finding.WithConfidence(confidence),
	}

	out := []finding.Finding{
		finding.New(finding.KindVolumetricAnomaly, EndpointSourcePrefix+v.Endpoint, v.Severity, opts...),
	}
	for _, top := range v.Snapshot.TopSources {
		if top.Share < m.cfg.HeavyHitterShare {
			continue
		}
		sourceMetrics := map[string]float64{
			"score":    v.Score,
			"requests": float64(top.Requests),
			"share":    top.Share,
		}
		out = append(out, finding.New(finding.KindVolumetricAnomaly, top.SourceID, v.Severity,
			finding.WithMetrics(sourceMetrics),
			finding.WithContext(v.Endpoint),
			finding.WithTimestamp(now),
			finding.WithConfidence(confidence),
		))
	}
	return out
}

func (v Verdict) String() string {
	return fmt.Sprintf("%s anomalous=%t score=%.2f severity=%s exceeded=%v",
		v.Endpoint, v.Anomalous, v.Score, v.Severity, v.Exceeded)
}
