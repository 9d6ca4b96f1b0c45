package behavior

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/finding"
	"github.com/avct/uasurfer"
	"github.com/sirupsen/logrus"
)

var headlessMarkers = []string{
	"headlesschrome",
	"phantomjs",
	"selenium",
	"puppeteer",
	"playwright",
	"webdriver",
	"python-requests",
	"go-http-client",
	"curl/",
	"wget/",
}

// Signal is one coarse interaction event of a session.
type Signal struct {
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
	Depth     int       `json:"depth"`
	UserAgent string    `json:"user_agent,omitempty"`
}

//go:generate mockery --name=Analyzer --dir=. --output=./mocks --filename=analyzer_mock.go --case=underscore --with-expecter
type Analyzer interface {
	Observe(sessionID string, signal Signal)
	Assess(sessionID string) *finding.Finding
	Prune(now time.Time) int
}

type Option func(*analyzer)

func WithTimeProvider(fn func() time.Time) Option {
	return func(a *analyzer) {
		a.timeProvider = fn
	}
}

type analyzer struct {
	logger       *logrus.Logger
	cfg          Config
	sessions     sync.Map
	timeProvider func() time.Time
}

type session struct {
	mu               sync.Mutex
	signals          []Signal
	next             int
	count            int
	userAgent        string
	lastSeen         time.Time
	lastReported     time.Time
	headlessReported bool
}

func NewAnalyzer(logger *logrus.Logger, cfg Config, opts ...Option) Analyzer {
	a := &analyzer{
		logger:       logger,
		cfg:          cfg.withDefaults(),
		timeProvider: time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *analyzer) session(sessionID string) *session {
	if s, ok := a.sessions.Load(sessionID); ok {
		return s.(*session)
	}
	s, _ := a.sessions.LoadOrStore(sessionID, &session{
		signals: make([]Signal, a.cfg.MaxSignals),
	})
	return s.(*session)
}

func (a *analyzer) Observe(sessionID string, signal Signal) {
	if signal.Timestamp.IsZero() {
		signal.Timestamp = a.timeProvider()
	}
	s := a.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.signals[s.next] = signal
	s.next = (s.next + 1) % len(s.signals)
	if s.count < len(s.signals) {
		s.count++
	}
	if signal.UserAgent != "" {
		s.userAgent = signal.UserAgent
	}
	s.lastSeen = signal.Timestamp
}

// ordered returns the retained signals oldest first.
func (s *session) ordered() []Signal {
	out := make([]Signal, 0, s.count)
	start := (s.next - s.count + len(s.signals)) % len(s.signals)
	for i := 0; i < s.count; i++ {
		out = append(out, s.signals[(start+i)%len(s.signals)])
	}
	return out
}

func (a *analyzer) Assess(sessionID string) *finding.Finding {
	v, ok := a.sessions.Load(sessionID)
	if !ok {
		return nil
	}
	s := v.(*session)
	now := a.timeProvider()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastReported.IsZero() && now.Sub(s.lastReported) < a.cfg.Cooldown {
		return nil
	}

	if s.count >= a.cfg.MinSignals {
		assessment := a.score(s.ordered())
		if assessment.confidence > a.cfg.ConfidenceThreshold {
			s.lastReported = now
			f := finding.New(finding.KindBehavioralAnomaly, sessionID, finding.SeverityMedium,
				finding.WithConfidence(assessment.confidence),
				finding.WithMetrics(assessment.metrics),
				finding.WithTimestamp(now),
			)
			a.logger.WithFields(logrus.Fields{
				"session_id": sessionID,
				"confidence": assessment.confidence,
			}).Info("behavioral anomaly detected")
			return &f
		}
	}

	if !s.headlessReported && isHeadless(s.userAgent) {
		s.headlessReported = true
		s.lastReported = now
		f := finding.New(finding.KindHeadlessClient, sessionID, finding.SeverityMedium,
			finding.WithConfidence(0.9),
			finding.WithPattern("headless-user-agent", "behavior", s.userAgent),
			finding.WithTimestamp(now),
		)
		return &f
	}
	return nil
}

// Prune lazily drops sessions idle for longer than the session TTL.
func (a *analyzer) Prune(now time.Time) int {
	removed := 0
	a.sessions.Range(func(key, value any) bool {
		s := value.(*session)
		s.mu.Lock()
		idle := now.Sub(s.lastSeen) > a.cfg.SessionTTL
		s.mu.Unlock()
		if idle {
			a.sessions.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

type assessment struct {
	confidence float64
	metrics    map[string]float64
}

func (a *analyzer) score(signals []Signal) assessment {
	intervals := make([]float64, 0, len(signals)-1)
	for i := 1; i < len(signals); i++ {
		intervals = append(intervals, float64(signals[i].Timestamp.Sub(signals[i-1].Timestamp).Milliseconds()))
	}
	mean, stddev := meanStdDev(intervals)

	cv := 1.0
	if mean > 0 {
		cv = stddev / mean
	}

	consistent := true
	for _, interval := range intervals {
		if math.Abs(interval-mean) > a.cfg.ConsistentToleranceMs {
			consistent = false
			break
		}
	}

	minDepth, maxDepth := signals[0].Depth, signals[0].Depth
	for _, sig := range signals[1:] {
		if sig.Depth < minDepth {
			minDepth = sig.Depth
		}
		if sig.Depth > maxDepth {
			maxDepth = sig.Depth
		}
	}
	flat := minDepth == maxDepth && minDepth >= a.cfg.FlatNavigationDepth
	deep := maxDepth >= a.cfg.DeepNavigationDepth

	confidence := 0.0
	if cv < a.cfg.LowVarianceCV {
		confidence += a.cfg.Penalties.LowVariance
	}
	if consistent {
		confidence += a.cfg.Penalties.ConsistentIntervals
	}
	if mean < a.cfg.MinHumanIntervalMs {
		confidence += a.cfg.Penalties.AbnormalVelocity
	}
	if flat || deep {
		confidence += a.cfg.Penalties.NavigationShape
	}
	confidence = math.Min(confidence, 1)

	return assessment{
		confidence: confidence,
		metrics: map[string]float64{
			"signals":             float64(len(signals)),
			"mean_interval_ms":    mean,
			"interval_cv":         cv,
			"max_depth":           float64(maxDepth),
			"consistent":          boolToFloat(consistent),
			"requests_per_second": ratePerSecond(mean),
		},
	}
}

func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

func ratePerSecond(meanIntervalMs float64) float64 {
	if meanIntervalMs <= 0 {
		return 0
	}
	return 1000 / meanIntervalMs
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func isHeadless(userAgent string) bool {
	if userAgent == "" {
		return false
	}
	lowered := strings.ToLower(userAgent)
	for _, marker := range headlessMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	ua := uasurfer.Parse(userAgent)
	return ua.IsBot()
}
