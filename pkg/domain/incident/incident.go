package incident

import (
	"context"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/countermeasure"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/finding"
	"github.com/google/uuid"
)

// Incident is one classification decision: a correlated set of findings with
// a single severity and response.
type Incident struct {
	ID                        string                   `json:"id"`
	SourceID                  string                   `json:"source_id"`
	Findings                  []finding.Finding        `json:"findings"`
	AssignedSeverity          finding.Severity         `json:"assigned_severity"`
	PreviousState             string                   `json:"previous_state"`
	State                     string                   `json:"state"`
	CountermeasuresDispatched []countermeasure.Outcome `json:"countermeasures_dispatched"`
	CreatedAt                 time.Time                `json:"created_at"`
}

type RecordType string

const (
	RecordTypeScan                RecordType = "scan"
	RecordTypeClassification      RecordType = "classification"
	RecordTypeEnforcementFailure  RecordType = "enforcement_failure"
	RecordTypeHoneypotInteraction RecordType = "honeypot_interaction"
)

// Record is the envelope appended to the log. IDs are stable across
// redeliveries so stores can deduplicate.
type Record struct {
	ID        string            `json:"id"`
	Type      RecordType        `json:"type"`
	SourceID  string            `json:"source_id,omitempty"`
	Severity  finding.Severity  `json:"severity"`
	Findings  []finding.Finding `json:"findings,omitempty"`
	Incident  *Incident         `json:"incident,omitempty"`
	Message   string            `json:"message,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func NewRecord(recordType RecordType, sourceID string, severity finding.Severity, findings []finding.Finding) Record {
	return Record{
		ID:        uuid.NewString(),
		Type:      recordType,
		SourceID:  sourceID,
		Severity:  severity,
		Findings:  findings,
		CreatedAt: time.Now(),
	}
}

func NewClassificationRecord(inc Incident) Record {
	return Record{
		ID:        inc.ID,
		Type:      RecordTypeClassification,
		SourceID:  inc.SourceID,
		Severity:  inc.AssignedSeverity,
		Findings:  inc.Findings,
		Incident:  &inc,
		CreatedAt: inc.CreatedAt,
	}
}

// Store is the durable backend behind the log.
type Store interface {
	Append(ctx context.Context, record Record) error
	Recent(ctx context.Context, n int) ([]Record, error)
}

// Log is the engine-facing append-only log. Append never blocks on I/O.
type Log interface {
	Append(record Record)
	Recent(ctx context.Context, n int) ([]Record, error)
	Degraded() bool
}

// Exporter receives a copy of every flushed record. Failures are never
// propagated to the classification path.
type Exporter interface {
	Export(ctx context.Context, record Record) error
	Close()
}
