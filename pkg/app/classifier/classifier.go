package classifier

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/app/dispatcher"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/countermeasure"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/finding"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/incident"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/profile"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const maxRecentFindings = 256

// Decision is the result of classifying one finding.
type Decision struct {
	Incident      incident.Incident `json:"incident"`
	Profile       profile.Snapshot  `json:"profile"`
	PreviousState profile.State     `json:"previous_state"`
	Transitioned  bool              `json:"transitioned"`
	Escalated     bool              `json:"escalated"`
}

type SweepResult struct {
	Profiles int
	Decayed  int
	Expired  int
	Evicted  int
}

//go:generate mockery --name=Classifier --dir=. --output=./mocks --filename=classifier_mock.go --case=underscore --with-expecter
type Classifier interface {
	Classify(ctx context.Context, f finding.Finding) (Decision, error)
	Sweep(now time.Time) SweepResult
	Profiles() []profile.Snapshot
	Profile(ctx context.Context, sourceID string) (profile.Snapshot, error)
	Release(ctx context.Context, sourceID string) (profile.Snapshot, error)
}

type Option func(*classifier)

func WithTimeProvider(fn func() time.Time) Option {
	return func(c *classifier) {
		c.timeProvider = fn
	}
}

type classifier struct {
	logger       *logrus.Logger
	cfg          Config
	dispatcher   dispatcher.Dispatcher
	log          incident.Log
	store        *profileStore
	evicted      *lru.Cache[string, struct{}]
	group        singleflight.Group
	timeProvider func() time.Time
}

func New(
	logger *logrus.Logger,
	cfg Config,
	d dispatcher.Dispatcher,
	log incident.Log,
	opts ...Option,
) (Classifier, error) {
	cfg = cfg.withDefaults()
	evicted, err := lru.New[string, struct{}](cfg.EvictedCapacity)
	if err != nil {
		return nil, domain.NewConfigurationError("classifier", "evicted source cache", err)
	}
	c := &classifier{
		logger:       logger,
		cfg:          cfg,
		dispatcher:   d,
		log:          log,
		store:        newProfileStore(),
		evicted:      evicted,
		timeProvider: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Classify runs in three steps: the state transition under the profile lock,
// the enforcer calls against a working copy with the lock released, then a
// commit of the countermeasure bookkeeping. Sweeps and queries of the source
// are never held up by a slow enforcer.
func (c *classifier) Classify(ctx context.Context, f finding.Finding) (Decision, error) {
	if f.SourceID == "" {
		return Decision{}, fmt.Errorf("finding %s has no source id", f.ID)
	}
	e, cl := c.begin(ctx, f)
	defer e.enforcing.Unlock()

	outcomes := c.dispatcher.Dispatch(ctx, cl.request)

	e.mu.Lock()
	commit(e.profile, cl.request.Profile, outcomes)
	snapshot := e.profile.Snapshot()
	e.mu.Unlock()

	return c.conclude(cl, outcomes, snapshot), nil
}

// classification carries one finding from the state transition to the commit.
type classification struct {
	finding   finding.Finding
	incident  incident.Incident
	previous  profile.State
	state     profile.State
	escalated bool
	request   dispatcher.Request
}

// begin returns the source's entry with its enforcing lock held.
func (c *classifier) begin(ctx context.Context, f finding.Finding) (*entry, classification) {
	for {
		e := c.acquire(ctx, f.SourceID)
		e.enforcing.Lock()
		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			e.enforcing.Unlock()
			continue
		}
		cl := c.transition(e.profile, f)
		e.mu.Unlock()
		return e, cl
	}
}

func (c *classifier) transition(p *profile.AttackerProfile, f finding.Finding) classification {
	now := c.timeProvider()
	previous := c.observe(p, f, now)
	escalated := previous != profile.StateBlocked && p.State == profile.StateBlocked

	correlated := p.FindingsSince(now.Add(-c.cfg.CorrelationWindow))
	if !containsFinding(correlated, f.ID) {
		correlated = append(correlated, f)
	}
	severity := finding.HighestSeverity(correlated)

	inc := incident.Incident{
		ID:               uuid.NewString(),
		SourceID:         p.SourceID,
		Findings:         correlated,
		AssignedSeverity: severity,
		PreviousState:    previous.String(),
		State:            p.State.String(),
		CreatedAt:        now,
	}

	req := dispatcher.Request{
		Profile:    p.Clone(),
		Severity:   severity,
		IncidentID: inc.ID,
		Reason:     fmt.Sprintf("%s finding moved source from %s to %s", f.Kind, previous, p.State),
	}
	if escalated {
		req.Extras = []countermeasure.Countermeasure{
			countermeasure.PermanentBlock(),
			countermeasure.Alert(countermeasure.AlertPayload{
				Reason: fmt.Sprintf("source entered %s", profile.StateBlocked),
			}),
		}
	}
	return classification{
		finding:   f,
		incident:  inc,
		previous:  previous,
		state:     p.State,
		escalated: escalated,
		request:   req,
	}
}

// commit copies what the dispatcher tracked on the working copy into the
// live profile. Kinds the plan did not touch keep their live value.
func commit(p, work *profile.AttackerProfile, outcomes []countermeasure.Outcome) {
	for _, o := range outcomes {
		kind := o.Countermeasure.Kind
		if active, ok := work.ActiveCountermeasures[kind]; ok {
			p.ActiveCountermeasures[kind] = active
		}
	}
	if work.EnhancedMonitoring {
		p.EnhancedMonitoring = true
	}
}

func (c *classifier) conclude(cl classification, outcomes []countermeasure.Outcome, snapshot profile.Snapshot) Decision {
	inc := cl.incident
	inc.CountermeasuresDispatched = outcomes
	c.log.Append(incident.NewClassificationRecord(inc))

	c.logger.WithFields(logrus.Fields{
		"source_id":      inc.SourceID,
		"incident_id":    inc.ID,
		"finding_kind":   string(cl.finding.Kind),
		"severity":       inc.AssignedSeverity.String(),
		"previous_state": cl.previous.String(),
		"state":          cl.state.String(),
		"reputation":     snapshot.ReputationScore,
	}).Info("finding classified")

	return Decision{
		Incident:      inc,
		Profile:       snapshot,
		PreviousState: cl.previous,
		Transitioned:  cl.previous != cl.state,
		Escalated:     cl.escalated,
	}
}

// observe folds a finding into the profile and applies at most one state
// transition, except that a CRITICAL finding takes a CLEAN source straight to
// FLAGGED. It returns the state before the finding.
func (c *classifier) observe(p *profile.AttackerProfile, f finding.Finding, now time.Time) profile.State {
	c.decay(p, now)
	previous := p.State

	if now.After(p.LastSeen) {
		p.LastSeen = now
	}
	p.FindingKinds[f.Kind] = struct{}{}
	p.PruneFindings(now.Add(-c.cfg.DecayWindow))
	p.RecentFindings = append(p.RecentFindings, f)
	if len(p.RecentFindings) > maxRecentFindings {
		p.RecentFindings = p.RecentFindings[len(p.RecentFindings)-maxRecentFindings:]
	}
	p.TotalFindings++
	p.CurrentSeverity = finding.MaxSeverity(p.CurrentSeverity, f.Severity)
	p.ReputationScore = clamp(p.ReputationScore - c.cfg.Penalties.For(f.Severity))

	p.State = c.next(p, f, now)
	if p.State != previous {
		p.LastTransition = now
	}
	p.DecayAnchor = now
	return previous
}

func (c *classifier) next(p *profile.AttackerProfile, f finding.Finding, now time.Time) profile.State {
	recent := p.FindingsSince(now.Add(-c.cfg.DecayWindow))
	switch p.State {
	case profile.StateClean:
		if f.Severity >= finding.SeverityCritical {
			return profile.StateFlagged
		}
		if f.Severity >= finding.SeverityMedium {
			return profile.StateWatched
		}
	case profile.StateWatched:
		if f.Severity >= finding.SeverityCritical || len(recent) >= 2 {
			return profile.StateFlagged
		}
	case profile.StateFlagged:
		if countAtLeast(recent, finding.SeverityHigh) >= c.cfg.BlockFindings ||
			p.ReputationScore < c.cfg.BlockReputation {
			return profile.StateBlocked
		}
	}
	return p.State
}

// decay steps state and severity down one tier per whole idle period since
// the anchor and recovers reputation at the same pace.
func (c *classifier) decay(p *profile.AttackerProfile, now time.Time) bool {
	if !now.After(p.DecayAnchor) {
		return false
	}
	periods := int(now.Sub(p.DecayAnchor) / c.cfg.IdlePeriod)
	if periods <= 0 {
		return false
	}
	before := p.State
	for i := 0; i < periods; i++ {
		if p.State == profile.StateClean && p.CurrentSeverity == finding.SeverityNone && p.ReputationScore >= 1 {
			break
		}
		p.State = p.State.Lower()
		p.CurrentSeverity = p.CurrentSeverity.Lower()
		p.ReputationScore = clamp(p.ReputationScore + c.cfg.ReputationRecovery)
	}
	p.DecayAnchor = p.DecayAnchor.Add(time.Duration(periods) * c.cfg.IdlePeriod)
	if p.State != before {
		p.LastTransition = now
		return true
	}
	return false
}

func (c *classifier) Sweep(now time.Time) SweepResult {
	var result SweepResult
	c.store.each(func(sourceID string, e *entry) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.evicted {
			return
		}
		result.Profiles++
		p := e.profile
		if c.decay(p, now) {
			result.Decayed++
		}
		if p.ExpireCountermeasures(now) {
			result.Expired++
		}
		p.PruneFindings(now.Add(-c.cfg.DecayWindow))
		if evictable(p, now, c.cfg.EvictAfter) {
			c.store.evict(sourceID, e)
			c.evicted.Add(sourceID, struct{}{})
			result.Evicted++
		}
	})
	if result.Evicted > 0 || result.Decayed > 0 {
		c.logger.WithFields(logrus.Fields{
			"profiles": result.Profiles,
			"decayed":  result.Decayed,
			"expired":  result.Expired,
			"evicted":  result.Evicted,
		}).Debug("profile sweep")
	}
	return result
}

func (c *classifier) Profiles() []profile.Snapshot {
	var out []profile.Snapshot
	c.store.each(func(_ string, e *entry) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.evicted {
			out = append(out, e.profile.Snapshot())
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

func (c *classifier) Profile(ctx context.Context, sourceID string) (profile.Snapshot, error) {
	e, err := c.lookup(ctx, sourceID)
	if err != nil {
		return profile.Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile.Snapshot(), nil
}

// Release lifts blocking after manual review and drops the source back to
// WATCHED with a floor on its reputation.
func (c *classifier) Release(ctx context.Context, sourceID string) (profile.Snapshot, error) {
	for {
		e, err := c.lookup(ctx, sourceID)
		if err != nil {
			return profile.Snapshot{}, err
		}
		e.enforcing.Lock()
		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			e.enforcing.Unlock()
			continue
		}
		work := e.profile.Clone()
		e.mu.Unlock()

		snapshot, err := c.release(ctx, e, work)
		e.enforcing.Unlock()
		return snapshot, err
	}
}

func (c *classifier) release(ctx context.Context, e *entry, work *profile.AttackerProfile) (profile.Snapshot, error) {
	if err := c.dispatcher.Release(ctx, work); err != nil {
		return profile.Snapshot{}, err
	}

	e.mu.Lock()
	p := e.profile
	for kind := range p.ActiveCountermeasures {
		if _, ok := work.ActiveCountermeasures[kind]; !ok {
			delete(p.ActiveCountermeasures, kind)
		}
	}
	now := c.timeProvider()
	previous := p.State
	if p.State > profile.StateWatched {
		p.State = profile.StateWatched
		p.LastTransition = now
	}
	if p.ReputationScore < c.cfg.ReleaseReputation {
		p.ReputationScore = c.cfg.ReleaseReputation
	}
	p.DecayAnchor = now
	snapshot := p.Snapshot()
	e.mu.Unlock()

	inc := incident.Incident{
		ID:               uuid.NewString(),
		SourceID:         snapshot.SourceID,
		AssignedSeverity: snapshot.CurrentSeverity,
		PreviousState:    previous.String(),
		State:            snapshot.State.String(),
		CreatedAt:        now,
	}
	record := incident.NewClassificationRecord(inc)
	record.Message = "released after manual review"
	c.log.Append(record)

	c.logger.WithFields(logrus.Fields{
		"source_id":      snapshot.SourceID,
		"previous_state": previous.String(),
	}).Info("source released")
	return snapshot, nil
}

// acquire returns the hot entry for a source, rehydrating evicted sources
// from the incident log and creating fresh profiles otherwise.
func (c *classifier) acquire(ctx context.Context, sourceID string) *entry {
	if e, ok := c.store.get(sourceID); ok {
		return e
	}
	if c.evicted.Contains(sourceID) {
		return c.rehydrateEntry(ctx, sourceID)
	}
	return c.store.getOrInsert(sourceID, func() *profile.AttackerProfile {
		return profile.New(sourceID, c.timeProvider())
	})
}

func (c *classifier) lookup(ctx context.Context, sourceID string) (*entry, error) {
	if e, ok := c.store.get(sourceID); ok {
		return e, nil
	}
	if c.evicted.Contains(sourceID) {
		return c.rehydrateEntry(ctx, sourceID), nil
	}
	return nil, domain.NewNotFoundError("profile", sourceID)
}

func (c *classifier) rehydrateEntry(ctx context.Context, sourceID string) *entry {
	v, _, _ := c.group.Do(sourceID, func() (any, error) {
		if e, ok := c.store.get(sourceID); ok {
			return e, nil
		}
		p := c.rehydrate(ctx, sourceID)
		e := c.store.getOrInsert(sourceID, func() *profile.AttackerProfile { return p })
		c.evicted.Remove(sourceID)
		return e, nil
	})
	return v.(*entry)
}

func countAtLeast(findings []finding.Finding, severity finding.Severity) int {
	n := 0
	for _, f := range findings {
		if f.Severity >= severity {
			n++
		}
	}
	return n
}

func containsFinding(findings []finding.Finding, id string) bool {
	for _, f := range findings {
		if f.ID == id {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
