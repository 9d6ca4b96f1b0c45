package classifier

import (
	"context"
	"sort"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/countermeasure"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/finding"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/incident"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/profile"
	"github.com/sirupsen/logrus"
)

// rehydrate rebuilds an evicted profile by replaying the source's findings
// from the incident log in timestamp order. Countermeasures still in force
// are restored from the dispatched outcomes so refreshes stay idempotent.
func (c *classifier) rehydrate(ctx context.Context, sourceID string) *profile.AttackerProfile {
	now := c.timeProvider()
	records, err := c.log.Recent(ctx, c.cfg.RehydrateDepth)
	if err != nil {
		c.logger.WithError(err).WithField("source_id", sourceID).
			Warn("incident log unavailable, starting profile from scratch")
		return profile.New(sourceID, now)
	}

	seen := make(map[string]struct{})
	var findings []finding.Finding
	var incidents []*incident.Incident
	for i := range records {
		r := records[i]
		if r.SourceID != sourceID || r.Type != incident.RecordTypeClassification {
			continue
		}
		for _, f := range r.Findings {
			if f.SourceID != sourceID {
				continue
			}
			if _, dup := seen[f.ID]; dup {
				continue
			}
			seen[f.ID] = struct{}{}
			findings = append(findings, f)
		}
		if r.Incident != nil {
			incidents = append(incidents, r.Incident)
		}
	}
	if len(findings) == 0 {
		return profile.New(sourceID, now)
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Timestamp.Before(findings[j].Timestamp)
	})
	p := profile.New(sourceID, findings[0].Timestamp)
	for _, f := range findings {
		c.observe(p, f, f.Timestamp)
	}
	c.decay(p, now)
	p.PruneFindings(now.Add(-c.cfg.DecayWindow))

	sort.SliceStable(incidents, func(i, j int) bool {
		return incidents[i].CreatedAt.Before(incidents[j].CreatedAt)
	})
	for _, inc := range incidents {
		restoreCountermeasures(p, inc)
	}
	p.ExpireCountermeasures(now)

	c.logger.WithFields(logrus.Fields{
		"source_id": sourceID,
		"findings":  len(findings),
		"state":     p.State.String(),
	}).Debug("profile rehydrated")
	return p
}

func restoreCountermeasures(p *profile.AttackerProfile, inc *incident.Incident) {
	for _, outcome := range inc.CountermeasuresDispatched {
		kind := outcome.Countermeasure.Kind
		if !kind.Tracked() {
			continue
		}
		if outcome.Status != countermeasure.StatusApplied && outcome.Status != countermeasure.StatusRefreshed {
			continue
		}
		issuedAt := inc.CreatedAt
		refreshes := 0
		if existing, ok := p.ActiveCountermeasures[kind]; ok {
			issuedAt = existing.IssuedAt
			refreshes = existing.Refreshes + 1
		}
		p.ActiveCountermeasures[kind] = countermeasure.Active{
			Countermeasure: outcome.Countermeasure,
			Status:         countermeasure.ActiveStatusActive,
			IssuedAt:       issuedAt,
			RefreshedAt:    inc.CreatedAt,
			ExpiresAt:      outcome.ExpiresAt,
			Refreshes:      refreshes,
		}
		if kind == countermeasure.KindMonitor {
			p.EnhancedMonitoring = true
		}
	}
}
