package finding

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

type Kind string

const (
	KindSQLInjection        Kind = "SQL_INJECTION"
	KindCommandInjection    Kind = "COMMAND_INJECTION"
	KindScriptInjection     Kind = "SCRIPT_INJECTION"
	KindEncodingObfuscation Kind = "ENCODING_OBFUSCATION"
	KindHeuristicAnomaly    Kind = "HEURISTIC_ANOMALY"
	KindUnscannableInput    Kind = "UNSCANNABLE_INPUT"
	KindVolumetricAnomaly   Kind = "VOLUMETRIC_ANOMALY"
	KindBehavioralAnomaly   Kind = "BEHAVIORAL_ANOMALY"
	KindHeadlessClient      Kind = "HEADLESS_CLIENT"
)

// MaxSampleLength bounds every evidence sample that leaves the scanner.
const MaxSampleLength = 100

// Evidence is either a matched pattern or a metric snapshot.
type Evidence struct {
	PatternID string             `json:"pattern_id,omitempty"`
	Family    string             `json:"family,omitempty"`
	Sample    string             `json:"sample,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// Finding is a single detected signal. It is a value type: copies never
// share mutable state with the original.
type Finding struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	SourceID   string    `json:"source_id"`
	Severity   Severity  `json:"severity"`
	Confidence float64   `json:"confidence"`
	Context    string    `json:"context,omitempty"`
	Evidence   Evidence  `json:"evidence"`
	Timestamp  time.Time `json:"timestamp"`
}

type Option func(*Finding)

func WithConfidence(confidence float64) Option {
	return func(f *Finding) {
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		f.Confidence = confidence
	}
}

func WithContext(context string) Option {
	return func(f *Finding) {
		f.Context = context
	}
}

func WithTimestamp(ts time.Time) Option {
	return func(f *Finding) {
		f.Timestamp = ts
	}
}

func WithPattern(patternID, family, sample string) Option {
	return func(f *Finding) {
		f.Evidence.PatternID = patternID
		f.Evidence.Family = family
		f.Evidence.Sample = SanitizeSample(sample)
	}
}

func WithMetrics(metrics map[string]float64) Option {
	return func(f *Finding) {
		copied := make(map[string]float64, len(metrics))
		for k, v := range metrics {
			copied[k] = v
		}
		f.Evidence.Metrics = copied
	}
}

func New(kind Kind, sourceID string, severity Severity, opts ...Option) Finding {
	f := Finding{
		ID:         uuid.NewString(),
		Kind:       kind,
		SourceID:   sourceID,
		Severity:   severity,
		Confidence: 1,
		Timestamp:  time.Now(),
	}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// Attribute returns a copy of the finding bound to sourceID.
func (f Finding) Attribute(sourceID string) Finding {
	copied := f
	copied.SourceID = sourceID
	if f.Evidence.Metrics != nil {
		copied.Evidence.Metrics = make(map[string]float64, len(f.Evidence.Metrics))
		for k, v := range f.Evidence.Metrics {
			copied.Evidence.Metrics[k] = v
		}
	}
	return copied
}

// SanitizeSample strips control characters and caps the sample so that log
// records are always safe to render.
func SanitizeSample(sample string) string {
	var b strings.Builder
	b.Grow(len(sample))
	for _, r := range sample {
		if r == unicode.ReplacementChar || unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	cleaned := b.String()
	runes := []rune(cleaned)
	if len(runes) > MaxSampleLength {
		return string(runes[:MaxSampleLength-3]) + "..."
	}
	return cleaned
}

func HighestSeverity(findings []Finding) Severity {
	highest := SeverityNone
	for _, f := range findings {
		highest = MaxSeverity(highest, f.Severity)
	}
	return highest
}
