package finding

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain"
)

type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityNone:     "NONE",
	SeverityLow:      "LOW",
	SeverityMedium:   "MEDIUM",
	SeverityHigh:     "HIGH",
	SeverityCritical: "CRITICAL",
}

// Severities lists the actionable tiers in ascending order.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SEVERITY(%d)", int(s))
}

func ParseSeverity(value string) (Severity, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for severity, name := range severityNames {
		if name == normalized && severity != SeverityNone {
			return severity, nil
		}
	}
	return SeverityNone, fmt.Errorf("%w: %q", domain.ErrInvalidSeverity, value)
}

func (s Severity) AtLeast(other Severity) bool {
	return s >= other
}

// Lower steps one tier down, bottoming out at SeverityNone.
func (s Severity) Lower() Severity {
	if s <= SeverityNone {
		return SeverityNone
	}
	return s - 1
}

func (s Severity) Cap(max Severity) Severity {
	if s > max {
		return max
	}
	return s
}

func MaxSeverity(a, b Severity) Severity {
	if a > b {
		return a
	}
	return b
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if strings.EqualFold(raw, "NONE") || raw == "" {
		*s = SeverityNone
		return nil
	}
	parsed, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
