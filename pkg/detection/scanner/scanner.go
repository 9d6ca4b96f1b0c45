package scanner

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/NeuralTrust/TrustSentinel/pkg/detection/signature"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/finding"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/incident"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fastjson"
)

const (
	heuristicFamily = "heuristic"
	maxScanBytes    = 64 * 1024
	maxJSONDepth    = 32
)

var parserPool fastjson.ParserPool

type Result struct {
	Safe     bool              `json:"safe"`
	Findings []finding.Finding `json:"findings"`
}

func (r Result) HighestSeverity() finding.Severity {
	return finding.HighestSeverity(r.Findings)
}

//go:generate mockery --name=Scanner --dir=. --output=./mocks --filename=scanner_mock.go --case=underscore --with-expecter
type Scanner interface {
	Scan(input any, scanContext string) Result
	ScanFrom(sourceID string, input any, scanContext string) Result
	Detect(sourceID string, input any, scanContext string) Result
	Library() *signature.Library
}

type Option func(*patternScanner)

func WithTimeProvider(fn func() time.Time) Option {
	return func(s *patternScanner) {
		s.timeProvider = fn
	}
}

func WithIncidentLog(log incident.Log) Option {
	return func(s *patternScanner) {
		s.incidentLog = log
	}
}

type patternScanner struct {
	logger       *logrus.Logger
	library      *signature.Library
	incidentLog  incident.Log
	escapeRun    *regexp.Regexp
	timeProvider func() time.Time
}

func NewPatternScanner(logger *logrus.Logger, library *signature.Library, opts ...Option) Scanner {
	s := &patternScanner{
		logger:       logger,
		library:      library,
		timeProvider: time.Now,
		escapeRun: regexp.MustCompile(fmt.Sprintf(
			`(?i)(?:%%[0-9a-f]{2}|\\x[0-9a-f]{2}|\\u[0-9a-f]{4}|&#x?[0-9a-f]{2,6};){%d,}`,
			library.Heuristics.EscapeRunLength,
		)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *patternScanner) Library() *signature.Library {
	return s.library
}

func (s *patternScanner) Scan(input any, scanContext string) Result {
	return s.ScanFrom("", input, scanContext)
}

// ScanFrom never panics and never fails: anything that cannot be turned into
// text is reported as a LOW unscannable finding with Safe=true. Every result
// carrying findings is appended to the incident log.
func (s *patternScanner) ScanFrom(sourceID string, input any, scanContext string) Result {
	result := s.Detect(sourceID, input, scanContext)
	s.record(sourceID, scanContext, result)
	return result
}

// Detect is ScanFrom without the incident log record, for callers that write
// their own.
func (s *patternScanner) Detect(sourceID string, input any, scanContext string) (result Result) {
	now := s.timeProvider()
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"source_id": sourceID,
				"context":   scanContext,
				"panic":     r,
			}).Error("scanner recovered from panic")
			result = s.unscannable(sourceID, scanContext, now, fmt.Sprint(r))
		}
	}()

	text, err := stringify(input)
	if err != nil {
		s.logger.WithError(err).WithField("context", scanContext).Debug("input is not scannable")
		return s.unscannable(sourceID, scanContext, now, err.Error())
	}

	if s.library.Whitelisted(text) {
		return Result{Safe: true}
	}

	if len(text) > maxScanBytes {
		text = text[:maxScanBytes]
	}

	findings := s.matchSignatures(sourceID, text, scanContext, now)
	findings = append(findings, s.heuristics(sourceID, text, scanContext, now)...)

	result = Result{Safe: len(findings) == 0, Findings: findings}
	if !result.Safe {
		s.logger.WithFields(logrus.Fields{
			"source_id": sourceID,
			"context":   scanContext,
			"findings":  len(findings),
			"severity":  result.HighestSeverity().String(),
		}).Warn("threat detected")
	}
	return result
}

func (s *patternScanner) record(sourceID, scanContext string, result Result) {
	if s.incidentLog == nil || len(result.Findings) == 0 {
		return
	}
	record := incident.NewRecord(incident.RecordTypeScan, sourceID, result.HighestSeverity(), result.Findings)
	record.Message = finding.SanitizeSample(scanContext)
	s.incidentLog.Append(record)
}

func (s *patternScanner) matchSignatures(sourceID, text, scanContext string, now time.Time) []finding.Finding {
	var findings []finding.Finding
	for _, family := range s.library.Families {
		for _, rule := range family.Rules {
			loc := rule.Pattern.FindStringIndex(text)
			if loc == nil {
				continue
			}
			findings = append(findings, finding.New(family.Kind, sourceID, family.Severity,
				finding.WithPattern(rule.ID, family.Name, text[loc[0]:loc[1]]),
				finding.WithContext(scanContext),
				finding.WithTimestamp(now),
			))
		}
	}
	return findings
}

func (s *patternScanner) heuristics(sourceID, text, scanContext string, now time.Time) []finding.Finding {
	var findings []finding.Finding
	emit := func(patternID string, severity finding.Severity, sample string) {
		findings = append(findings, finding.New(finding.KindHeuristicAnomaly, sourceID, severity.Cap(finding.SeverityHigh),
			finding.WithPattern(patternID, heuristicFamily, sample),
			finding.WithContext(scanContext),
			finding.WithTimestamp(now),
			finding.WithConfidence(0.6),
		))
	}

	if run, ok := specialCharacterRun(text, s.library.Heuristics.SpecialRunLength); ok {
		emit("heuristic-special-run", finding.SeverityMedium, run)
	}

	if loc := s.escapeRun.FindStringIndex(text); loc != nil {
		emit("heuristic-escape-run", finding.SeverityMedium, text[loc[0]:loc[1]])
	}

	if limit, ok := s.library.Heuristics.LengthLimits[strings.ToLower(scanContext)]; ok {
		length := utf8.RuneCountInString(text)
		if length > limit {
			ratio := float64(length) / float64(limit)
			severity := finding.SeverityLow
			switch {
			case ratio >= 4:
				severity = finding.SeverityHigh
			case ratio >= 2:
				severity = finding.SeverityMedium
			}
			emit("heuristic-length-outlier", severity, fmt.Sprintf("%s length %d exceeds %d", scanContext, length, limit))
		}
	}
	return findings
}

func (s *patternScanner) unscannable(sourceID, scanContext string, now time.Time, reason string) Result {
	return Result{
		Safe: true,
		Findings: []finding.Finding{
			finding.New(finding.KindUnscannableInput, sourceID, finding.SeverityLow,
				finding.WithPattern("unscannable-input", heuristicFamily, reason),
				finding.WithContext(scanContext),
				finding.WithTimestamp(now),
				finding.WithConfidence(0.1),
			),
		},
	}
}

// specialCharacterRun finds the first run of at least minRun identical
// characters that are neither letters, digits nor whitespace.
func specialCharacterRun(text string, minRun int) (string, bool) {
	var (
		prev  rune
		count int
		start int
	)
	for i, r := range text {
		special := !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r)
		if special && r == prev && count > 0 {
			count++
		} else if special {
			prev, count, start = r, 1, i
		} else {
			prev, count = 0, 0
		}
		if count >= minRun {
			return text[start : i+utf8.RuneLen(r)], true
		}
	}
	return "", false
}

func stringify(input any) (string, error) {
	switch v := input.(type) {
	case nil:
		return "", nil
	case string:
		return extractText([]byte(v)), nil
	case []byte:
		return extractText(v), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("stringify %T: %w", input, err)
		}
		return extractText(raw), nil
	}
}

// extractText flattens JSON documents into their keys and string leaves so
// that escaped payloads are matched in decoded form. Anything else is
// returned untouched.
func extractText(data []byte) string {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return string(data)
	}

	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return string(data)
	}
	var parts []string
	collectStrings(v, 0, &parts)
	return strings.Join(parts, "\n")
}

func collectStrings(v *fastjson.Value, depth int, parts *[]string) {
	if v == nil || depth > maxJSONDepth {
		return
	}
	switch v.Type() {
	case fastjson.TypeString:
		if b, err := v.StringBytes(); err == nil {
			*parts = append(*parts, string(b))
		}
	case fastjson.TypeObject:
		obj, err := v.Object()
		if err != nil {
			return
		}
		obj.Visit(func(key []byte, child *fastjson.Value) {
			*parts = append(*parts, string(key))
			collectStrings(child, depth+1, parts)
		})
	case fastjson.TypeArray:
		items, err := v.Array()
		if err != nil {
			return
		}
		for _, item := range items {
			collectStrings(item, depth+1, parts)
		}
	}
}
