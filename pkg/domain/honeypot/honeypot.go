package honeypot

import (
	"fmt"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain"
)

type Kind string

const (
	KindDatabase           Kind = "database"
	KindResourceExhaustion Kind = "resource_exhaustion"
	KindCredential         Kind = "credential"
)

func ParseKind(value string) (Kind, error) {
	switch Kind(value) {
	case KindDatabase, KindResourceExhaustion, KindCredential:
		return Kind(value), nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrInvalidHoneypotKind, value)
}

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

type Technique string

const (
	TechniqueUnionBased        Technique = "union_based"
	TechniqueTautologyBased    Technique = "tautology_based"
	TechniqueTimeBased         Technique = "time_based"
	TechniqueDestructive       Technique = "destructive"
	TechniqueReconnaissance    Technique = "reconnaissance"
	TechniqueCommandInjection  Technique = "command_injection"
	TechniqueScriptInjection   Technique = "script_injection"
	TechniqueEncodingEvasion   Technique = "encoding_evasion"
	TechniqueCredentialHarvest Technique = "credential_harvest"
)

// Resource is a single decoy endpoint served to the engaged source.
type Resource struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	ContentType string `json:"content_type"`
	Body        string `json:"-"`
	DelayMs     int    `json:"delay_ms,omitempty"`
}

type Interaction struct {
	Resource  string    `json:"resource"`
	Payload   string    `json:"payload"`
	Technique Technique `json:"technique"`
	Timestamp time.Time `json:"timestamp"`
}

type Honeypot struct {
	ID           string        `json:"id"`
	SourceID     string        `json:"source_id"`
	Kind         Kind          `json:"kind"`
	Aggressive   bool          `json:"aggressive"`
	CanaryToken  string        `json:"canary_token"`
	Resources    []Resource    `json:"decoy_resources"`
	Interactions []Interaction `json:"interactions"`
	Status       Status        `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
}

func (h *Honeypot) ActiveAt(now time.Time) bool {
	return h.Status == StatusActive && now.Before(h.ExpiresAt)
}

// Copy returns a deep copy safe to hand out of the registry.
func (h *Honeypot) Copy() Honeypot {
	copied := *h
	copied.Resources = append([]Resource(nil), h.Resources...)
	copied.Interactions = append([]Interaction(nil), h.Interactions...)
	return copied
}

// Intelligence is the read-only engagement summary for one source.
type Intelligence struct {
	SourceID          string            `json:"source_id"`
	Honeypots         int               `json:"honeypots"`
	ActiveHoneypots   int               `json:"active_honeypots"`
	InteractionCount  int               `json:"interaction_count"`
	Techniques        map[Technique]int `json:"techniques"`
	ResourcesTouched  map[string]int    `json:"resources_touched"`
	FirstInteraction  time.Time         `json:"first_interaction,omitempty"`
	LastInteraction   time.Time         `json:"last_interaction,omitempty"`
	EngagementSeconds float64           `json:"engagement_seconds"`
	DominantTechnique Technique         `json:"dominant_technique,omitempty"`
	GeneratedAt       time.Time         `json:"generated_at"`
}
