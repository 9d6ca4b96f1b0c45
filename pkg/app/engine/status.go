package engine

import (
	"context"
	"sort"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/countermeasure"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/finding"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/incident"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/profile"
)

const (
	DegradedIncidentLog = "incident_log"
	DegradedEnforcer    = "enforcer"
	DegradedTick        = "tick"
)

type SourceCountermeasures struct {
	SourceID        string                  `json:"source_id"`
	State           profile.State           `json:"state"`
	Countermeasures []countermeasure.Active `json:"countermeasures"`
}

type EndpointAlert struct {
	Endpoint string           `json:"endpoint"`
	Severity finding.Severity `json:"severity"`
	At       time.Time        `json:"at"`
}

// Status is always best effort. Stale is set when the log or the enforcer
// is degraded or the tick has fallen behind.
type Status struct {
	ThreatLevel             finding.Severity        `json:"threat_level"`
	ActiveCountermeasures   []SourceCountermeasures `json:"active_countermeasures"`
	RecentIncidents         []incident.Record       `json:"recent_incidents"`
	EndpointAlerts          []EndpointAlert         `json:"endpoint_alerts,omitempty"`
	TrackedProfiles         int                     `json:"tracked_profiles"`
	ActiveHoneypots         int                     `json:"active_honeypots"`
	Stale                   bool                    `json:"stale"`
	Degraded                []string                `json:"degraded,omitempty"`
	DegradedCountermeasures []countermeasure.Kind   `json:"degraded_countermeasures,omitempty"`
	LastTick                time.Time               `json:"last_tick,omitempty"`
	GeneratedAt             time.Time               `json:"generated_at"`
}

func (e *Engine) Status(ctx context.Context) Status {
	now := e.timeProvider()
	status := Status{
		ActiveHoneypots: e.honeypots.ActiveCount(),
		GeneratedAt:     now,
	}

	for _, snapshot := range e.classifier.Profiles() {
		status.TrackedProfiles++
		if snapshot.State != profile.StateClean {
			status.ThreatLevel = finding.MaxSeverity(status.ThreatLevel, snapshot.CurrentSeverity)
		}
		if len(snapshot.ActiveCountermeasures) > 0 {
			status.ActiveCountermeasures = append(status.ActiveCountermeasures, SourceCountermeasures{
				SourceID:        snapshot.SourceID,
				State:           snapshot.State,
				Countermeasures: snapshot.ActiveCountermeasures,
			})
		}
	}

	e.mu.RLock()
	status.LastTick = e.lastTick
	for endpoint, alert := range e.endpointAlerts {
		if now.Sub(alert.at) > e.cfg.EndpointAlertTTL {
			continue
		}
		status.ThreatLevel = finding.MaxSeverity(status.ThreatLevel, alert.severity)
		status.EndpointAlerts = append(status.EndpointAlerts, EndpointAlert{
			Endpoint: endpoint,
			Severity: alert.severity,
			At:       alert.at,
		})
	}
	e.mu.RUnlock()
	sort.Slice(status.EndpointAlerts, func(i, j int) bool {
		return status.EndpointAlerts[i].Endpoint < status.EndpointAlerts[j].Endpoint
	})

	recent, err := e.log.Recent(ctx, e.cfg.RecentIncidents)
	if err != nil {
		e.logger.WithError(err).Warn("recent incidents unavailable")
		status.Degraded = append(status.Degraded, DegradedIncidentLog)
	} else {
		status.RecentIncidents = recent
		if e.log.Degraded() {
			status.Degraded = append(status.Degraded, DegradedIncidentLog)
		}
	}

	if kinds := e.dispatcher.Degraded(); len(kinds) > 0 {
		status.Degraded = append(status.Degraded, DegradedEnforcer)
		status.DegradedCountermeasures = kinds
	}

	reference := status.LastTick
	if reference.IsZero() {
		reference = e.createdAt
	}
	if now.Sub(reference) > e.cfg.StaleAfter {
		status.Degraded = append(status.Degraded, DegradedTick)
	}

	status.Stale = len(status.Degraded) > 0
	return status
}
