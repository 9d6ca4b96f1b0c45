package profile

import (
	"sort"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/countermeasure"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/finding"
)

type State int

const (
	StateClean State = iota
	StateWatched
	StateFlagged
	StateBlocked
)

var stateNames = map[State]string{
	StateClean:   "CLEAN",
	StateWatched: "WATCHED",
	StateFlagged: "FLAGGED",
	StateBlocked: "BLOCKED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

func (s State) Lower() State {
	if s <= StateClean {
		return StateClean
	}
	return s - 1
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AttackerProfile is the per-source running state. It is not safe for
// concurrent use; the classifier serializes access per source.
type AttackerProfile struct {
	SourceID              string
	FirstSeen             time.Time
	LastSeen              time.Time
	FindingKinds          map[finding.Kind]struct{}
	CurrentSeverity       finding.Severity
	ReputationScore       float64
	State                 State
	EnhancedMonitoring    bool
	ActiveCountermeasures map[countermeasure.Kind]countermeasure.Active
	RecentFindings        []finding.Finding
	LastTransition        time.Time
	DecayAnchor           time.Time
	TotalFindings         int
}

func New(sourceID string, now time.Time) *AttackerProfile {
	return &AttackerProfile{
		SourceID:              sourceID,
		FirstSeen:             now,
		LastSeen:              now,
		FindingKinds:          make(map[finding.Kind]struct{}),
		ReputationScore:       1,
		State:                 StateClean,
		ActiveCountermeasures: make(map[countermeasure.Kind]countermeasure.Active),
		DecayAnchor:           now,
	}
}

// Clone returns a deep copy that can be worked on without the profile's lock.
func (p *AttackerProfile) Clone() *AttackerProfile {
	c := *p
	c.FindingKinds = make(map[finding.Kind]struct{}, len(p.FindingKinds))
	for kind := range p.FindingKinds {
		c.FindingKinds[kind] = struct{}{}
	}
	c.ActiveCountermeasures = make(map[countermeasure.Kind]countermeasure.Active, len(p.ActiveCountermeasures))
	for kind, active := range p.ActiveCountermeasures {
		c.ActiveCountermeasures[kind] = active
	}
	c.RecentFindings = append([]finding.Finding(nil), p.RecentFindings...)
	return &c
}

// FindingsSince returns the recent findings observed at or after since.
func (p *AttackerProfile) FindingsSince(since time.Time) []finding.Finding {
	out := make([]finding.Finding, 0, len(p.RecentFindings))
	for _, f := range p.RecentFindings {
		if !f.Timestamp.Before(since) {
			out = append(out, f)
		}
	}
	return out
}

// PruneFindings drops recent findings older than since.
func (p *AttackerProfile) PruneFindings(since time.Time) {
	kept := p.RecentFindings[:0]
	for _, f := range p.RecentFindings {
		if !f.Timestamp.Before(since) {
			kept = append(kept, f)
		}
	}
	p.RecentFindings = kept
}

// ExpireCountermeasures removes entries past their expiry and reports
// whether anything was removed.
func (p *AttackerProfile) ExpireCountermeasures(now time.Time) bool {
	removed := false
	for kind, active := range p.ActiveCountermeasures {
		if !active.Expired(now) {
			continue
		}
		delete(p.ActiveCountermeasures, kind)
		if kind == countermeasure.KindMonitor {
			p.EnhancedMonitoring = false
		}
		removed = true
	}
	return removed
}

// Snapshot is an immutable copy of a profile for the query surface.
type Snapshot struct {
	SourceID              string                  `json:"source_id"`
	FirstSeen             time.Time               `json:"first_seen"`
	LastSeen              time.Time               `json:"last_seen"`
	FindingKinds          []finding.Kind          `json:"finding_kinds"`
	CurrentSeverity       finding.Severity        `json:"current_severity"`
	ReputationScore       float64                 `json:"reputation_score"`
	State                 State                   `json:"state"`
	EnhancedMonitoring    bool                    `json:"enhanced_monitoring"`
	ActiveCountermeasures []countermeasure.Active `json:"active_countermeasures"`
	TotalFindings         int                     `json:"total_findings"`
}

func (p *AttackerProfile) Snapshot() Snapshot {
	kinds := make([]finding.Kind, 0, len(p.FindingKinds))
	for kind := range p.FindingKinds {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	active := make([]countermeasure.Active, 0, len(p.ActiveCountermeasures))
	for _, a := range p.ActiveCountermeasures {
		active = append(active, a)
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].Countermeasure.Kind < active[j].Countermeasure.Kind
	})

	return Snapshot{
		SourceID:              p.SourceID,
		FirstSeen:             p.FirstSeen,
		LastSeen:              p.LastSeen,
		FindingKinds:          kinds,
		CurrentSeverity:       p.CurrentSeverity,
		ReputationScore:       p.ReputationScore,
		State:                 p.State,
		EnhancedMonitoring:    p.EnhancedMonitoring,
		ActiveCountermeasures: active,
		TotalFindings:         p.TotalFindings,
	}
}
