package countermeasure

import (
	"fmt"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/finding"
)

type Kind string

const (
	KindLog               Kind = "log"
	KindMonitor           Kind = "monitor"
	KindThrottle          Kind = "throttle"
	KindBlock             Kind = "block"
	KindDeployHoneypot    Kind = "deploy_honeypot"
	KindInvalidateSession Kind = "invalidate_session"
	KindAlert             Kind = "alert"
)

var knownKinds = map[Kind]struct{}{
	KindLog:               {},
	KindMonitor:           {},
	KindThrottle:          {},
	KindBlock:             {},
	KindDeployHoneypot:    {},
	KindInvalidateSession: {},
	KindAlert:             {},
}

func (k Kind) Valid() bool {
	_, ok := knownKinds[k]
	return ok
}

// Tracked reports whether the kind is kept in a profile's active set.
// Log and session invalidation are one-shot actions.
func (k Kind) Tracked() bool {
	return k != KindLog && k != KindInvalidateSession
}

type BlockSpec struct {
	Duration  time.Duration `json:"duration"`
	Permanent bool          `json:"permanent"`
}

type ThrottleSpec struct {
	DelayMs  int `json:"delay_ms"`
	JitterMs int `json:"jitter_ms"`
}

type HoneypotSpec struct {
	HoneypotID string `json:"honeypot_id,omitempty"`
	Kind       string `json:"kind"`
	Aggressive bool   `json:"aggressive"`
}

type AlertPayload struct {
	SourceID   string           `json:"source_id"`
	Severity   finding.Severity `json:"severity"`
	State      string           `json:"state"`
	Kinds      []finding.Kind   `json:"kinds"`
	Reason     string           `json:"reason"`
	IncidentID string           `json:"incident_id,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Countermeasure is a tagged variant: exactly one payload field is set, matching Kind.
type Countermeasure struct {
	Kind     Kind          `json:"kind"`
	Block    *BlockSpec    `json:"block,omitempty"`
	Throttle *ThrottleSpec `json:"throttle,omitempty"`
	Honeypot *HoneypotSpec `json:"honeypot,omitempty"`
	Alert    *AlertPayload `json:"alert,omitempty"`
}

func Log() Countermeasure {
	return Countermeasure{Kind: KindLog}
}

func Monitor() Countermeasure {
	return Countermeasure{Kind: KindMonitor}
}

func InvalidateSession() Countermeasure {
	return Countermeasure{Kind: KindInvalidateSession}
}

func Block(duration time.Duration) Countermeasure {
	return Countermeasure{Kind: KindBlock, Block: &BlockSpec{Duration: duration}}
}

func PermanentBlock() Countermeasure {
	return Countermeasure{Kind: KindBlock, Block: &BlockSpec{Permanent: true}}
}

func Throttle(delayMs, jitterMs int) Countermeasure {
	return Countermeasure{Kind: KindThrottle, Throttle: &ThrottleSpec{DelayMs: delayMs, JitterMs: jitterMs}}
}

func DeployHoneypot(kind string, aggressive bool) Countermeasure {
	return Countermeasure{Kind: KindDeployHoneypot, Honeypot: &HoneypotSpec{Kind: kind, Aggressive: aggressive}}
}

func Alert(payload AlertPayload) Countermeasure {
	return Countermeasure{Kind: KindAlert, Alert: &payload}
}

func (c Countermeasure) String() string {
	switch c.Kind {
	case KindBlock:
		if c.Block != nil && c.Block.Permanent {
			return "block(permanent)"
		}
		if c.Block != nil {
			return fmt.Sprintf("block(%s)", c.Block.Duration)
		}
	case KindThrottle:
		if c.Throttle != nil {
			return fmt.Sprintf("throttle(%dms±%dms)", c.Throttle.DelayMs, c.Throttle.JitterMs)
		}
	case KindDeployHoneypot:
		if c.Honeypot != nil {
			return fmt.Sprintf("deploy_honeypot(%s)", c.Honeypot.Kind)
		}
	}
	return string(c.Kind)
}
