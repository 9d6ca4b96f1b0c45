package dispatcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/countermeasure"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/finding"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/honeypot"
)

// Entry is one configured countermeasure of a severity tier.
type Entry struct {
	Kind         string        `mapstructure:"kind"`
	Duration     time.Duration `mapstructure:"duration"`
	Permanent    bool          `mapstructure:"permanent"`
	DelayMs      int           `mapstructure:"delay_ms"`
	JitterMs     int           `mapstructure:"jitter_ms"`
	HoneypotKind string        `mapstructure:"honeypot_kind"`
	Aggressive   bool          `mapstructure:"aggressive"`
}

type Config struct {
	Policy        map[string][]Entry `mapstructure:"policy"`
	Timeout       time.Duration      `mapstructure:"timeout"`
	RetryDelay    time.Duration      `mapstructure:"retry_delay"`
	ThrottleTTL   time.Duration      `mapstructure:"throttle_ttl"`
	MonitorTTL    time.Duration      `mapstructure:"monitor_ttl"`
	AlertCooldown time.Duration      `mapstructure:"alert_cooldown"`
}

func DefaultPolicy() map[string][]Entry {
	return map[string][]Entry{
		"LOW": {
			{Kind: string(countermeasure.KindLog)},
		},
		"MEDIUM": {
			{Kind: string(countermeasure.KindMonitor)},
			{Kind: string(countermeasure.KindThrottle), DelayMs: 500, JitterMs: 250},
		},
		"HIGH": {
			{Kind: string(countermeasure.KindBlock), Duration: time.Hour},
			{Kind: string(countermeasure.KindDeployHoneypot), HoneypotKind: string(honeypot.KindDatabase)},
			{Kind: string(countermeasure.KindInvalidateSession)},
		},
		"CRITICAL": {
			{Kind: string(countermeasure.KindBlock), Permanent: true},
			{Kind: string(countermeasure.KindAlert)},
			{Kind: string(countermeasure.KindDeployHoneypot), HoneypotKind: string(honeypot.KindDatabase), Aggressive: true},
		},
	}
}

func DefaultConfig() Config {
	return Config{
		Policy:        DefaultPolicy(),
		Timeout:       2 * time.Second,
		RetryDelay:    100 * time.Millisecond,
		ThrottleTTL:   10 * time.Minute,
		MonitorTTL:    time.Hour,
		AlertCooldown: 15 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.Policy) == 0 {
		c.Policy = d.Policy
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.ThrottleTTL <= 0 {
		c.ThrottleTTL = d.ThrottleTTL
	}
	if c.MonitorTTL <= 0 {
		c.MonitorTTL = d.MonitorTTL
	}
	if c.AlertCooldown <= 0 {
		c.AlertCooldown = d.AlertCooldown
	}
	return c
}

// Table is the validated severity to countermeasure mapping. It is built
// once and never mutated; Plan hands out copies.
type Table struct {
	plans map[finding.Severity][]countermeasure.Countermeasure
}

func NewTable(policy map[string][]Entry) (*Table, error) {
	t := &Table{plans: make(map[finding.Severity][]countermeasure.Countermeasure, len(policy))}
	for name, entries := range policy {
		severity, err := finding.ParseSeverity(strings.ToUpper(name))
		if err != nil || severity == finding.SeverityNone {
			return nil, domain.NewConfigurationError("countermeasure policy", fmt.Sprintf("unknown severity %q", name), err)
		}
		if len(entries) == 0 {
			return nil, domain.NewConfigurationError("countermeasure policy", fmt.Sprintf("severity %s has no countermeasures", severity), nil)
		}
		seen := make(map[countermeasure.Kind]struct{}, len(entries))
		plan := make([]countermeasure.Countermeasure, 0, len(entries))
		for _, entry := range entries {
			cm, err := entry.countermeasure()
			if err != nil {
				return nil, domain.NewConfigurationError("countermeasure policy", fmt.Sprintf("severity %s", severity), err)
			}
			if _, dup := seen[cm.Kind]; dup {
				return nil, domain.NewConfigurationError("countermeasure policy",
					fmt.Sprintf("severity %s lists %s twice", severity, cm.Kind), nil)
			}
			seen[cm.Kind] = struct{}{}
			plan = append(plan, cm)
		}
		t.plans[severity] = plan
	}
	for _, severity := range finding.Severities {
		if _, ok := t.plans[severity]; !ok {
			return nil, domain.NewConfigurationError("countermeasure policy", fmt.Sprintf("missing severity %s", severity), nil)
		}
	}
	return t, nil
}

// Plan returns the ordered countermeasures for a severity.
func (t *Table) Plan(severity finding.Severity) []countermeasure.Countermeasure {
	plan := t.plans[severity]
	out := make([]countermeasure.Countermeasure, len(plan))
	for i, cm := range plan {
		out[i] = clone(cm)
	}
	return out
}

func (e Entry) countermeasure() (countermeasure.Countermeasure, error) {
	kind := countermeasure.Kind(strings.ToLower(e.Kind))
	if !kind.Valid() {
		return countermeasure.Countermeasure{}, fmt.Errorf("unknown countermeasure kind %q", e.Kind)
	}
	switch kind {
	case countermeasure.KindBlock:
		if e.Permanent {
			return countermeasure.PermanentBlock(), nil
		}
		if e.Duration <= 0 {
			return countermeasure.Countermeasure{}, fmt.Errorf("block requires a positive duration or permanent")
		}
		return countermeasure.Block(e.Duration), nil
	case countermeasure.KindThrottle:
		if e.DelayMs <= 0 || e.JitterMs < 0 {
			return countermeasure.Countermeasure{}, fmt.Errorf("throttle requires a positive delay_ms and non-negative jitter_ms")
		}
		return countermeasure.Throttle(e.DelayMs, e.JitterMs), nil
	case countermeasure.KindDeployHoneypot:
		hk, err := honeypot.ParseKind(e.HoneypotKind)
		if err != nil {
			return countermeasure.Countermeasure{}, err
		}
		return countermeasure.DeployHoneypot(string(hk), e.Aggressive), nil
	case countermeasure.KindAlert:
		return countermeasure.Alert(countermeasure.AlertPayload{}), nil
	}
	return countermeasure.Countermeasure{Kind: kind}, nil
}

func clone(cm countermeasure.Countermeasure) countermeasure.Countermeasure {
	out := cm
	if cm.Block != nil {
		b := *cm.Block
		out.Block = &b
	}
	if cm.Throttle != nil {
		t := *cm.Throttle
		out.Throttle = &t
	}
	if cm.Honeypot != nil {
		h := *cm.Honeypot
		out.Honeypot = &h
	}
	if cm.Alert != nil {
		a := *cm.Alert
		a.Kinds = append([]finding.Kind(nil), cm.Alert.Kinds...)
		out.Alert = &a
	}
	return out
}
