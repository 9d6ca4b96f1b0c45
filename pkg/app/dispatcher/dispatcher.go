package dispatcher

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/countermeasure"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/finding"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/honeypot"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/incident"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/profile"
	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
)

// HoneypotDeployer allocates decoys for the deploy_honeypot countermeasure.
type HoneypotDeployer interface {
	Deploy(sourceID string, kind honeypot.Kind, aggressive bool) honeypot.Honeypot
}

// Request carries one dispatch decision. Extras override table entries of
// the same kind and are appended otherwise.
type Request struct {
	Profile    *profile.AttackerProfile
	Severity   finding.Severity
	IncidentID string
	Reason     string
	Extras     []countermeasure.Countermeasure
}

//go:generate mockery --name=Dispatcher --dir=. --output=./mocks --filename=dispatcher_mock.go --case=underscore --with-expecter
type Dispatcher interface {
	// Dispatch runs the plan for the request severity against the profile.
	// Request.Profile is mutated in place; callers pass a copy they own.
	Dispatch(ctx context.Context, req Request) []countermeasure.Outcome
	Release(ctx context.Context, p *profile.AttackerProfile) error
	// Degraded lists the countermeasure kinds whose last invocation failed.
	Degraded() []countermeasure.Kind
}

type Option func(*dispatcher)

func WithTimeProvider(fn func() time.Time) Option {
	return func(d *dispatcher) {
		d.timeProvider = fn
	}
}

func WithHoneypotDeployer(deployer HoneypotDeployer) Option {
	return func(d *dispatcher) {
		d.deployer = deployer
	}
}

func WithIncidentLog(log incident.Log) Option {
	return func(d *dispatcher) {
		d.log = log
	}
}

func WithJitter(fn func(n int) int) Option {
	return func(d *dispatcher) {
		d.jitter = fn
	}
}

type dispatcher struct {
	logger       *logrus.Logger
	cfg          Config
	table        *Table
	enforcer     countermeasure.Enforcer
	deployer     HoneypotDeployer
	log          incident.Log
	timeProvider func() time.Time
	jitter       func(n int) int
	health       *health
}

// New validates the countermeasure policy and returns a ConfigurationError
// when it is incomplete.
func New(logger *logrus.Logger, cfg Config, enforcer countermeasure.Enforcer, opts ...Option) (Dispatcher, error) {
	if enforcer == nil {
		return nil, domain.NewConfigurationError("dispatcher", "an enforcer is required", nil)
	}
	cfg = cfg.withDefaults()
	table, err := NewTable(cfg.Policy)
	if err != nil {
		return nil, err
	}
	d := &dispatcher{
		logger:       logger,
		cfg:          cfg,
		table:        table,
		enforcer:     enforcer,
		timeProvider: time.Now,
		jitter:       rand.IntN,
		health:       newHealth(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *dispatcher) Dispatch(ctx context.Context, req Request) []countermeasure.Outcome {
	plan := merge(d.table.Plan(req.Severity), req.Extras)
	now := d.timeProvider()
	outcomes := make([]countermeasure.Outcome, 0, len(plan))
	for _, cm := range plan {
		outcome := d.execute(ctx, req, cm, now)
		if outcome.Failed() {
			d.recordFailure(req, outcome, now)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (d *dispatcher) Degraded() []countermeasure.Kind {
	return d.health.degraded()
}

func merge(plan, extras []countermeasure.Countermeasure) []countermeasure.Countermeasure {
	for _, extra := range extras {
		replaced := false
		for i := range plan {
			if plan[i].Kind == extra.Kind {
				plan[i] = extra
				replaced = true
				break
			}
		}
		if !replaced {
			plan = append(plan, extra)
		}
	}
	return plan
}

func (d *dispatcher) execute(
	ctx context.Context,
	req Request,
	cm countermeasure.Countermeasure,
	now time.Time,
) countermeasure.Outcome {
	p := req.Profile
	existing, active := p.ActiveCountermeasures[cm.Kind]
	refresh := active && existing.Status == countermeasure.ActiveStatusActive && !existing.Expired(now)

	switch cm.Kind {
	case countermeasure.KindLog:
		d.logger.WithFields(logrus.Fields{
			"source_id": p.SourceID,
			"severity":  req.Severity.String(),
			"state":     p.State.String(),
		}).Info("low severity incident logged")
		return countermeasure.Outcome{Countermeasure: cm, Status: countermeasure.StatusApplied}

	case countermeasure.KindMonitor:
		p.EnhancedMonitoring = true
		return d.track(p, cm, existing, refresh, now.Add(d.cfg.MonitorTTL), now, 0, nil)

	case countermeasure.KindThrottle:
		delay := cm.Throttle.DelayMs
		if cm.Throttle.JitterMs > 0 {
			delay += d.jitter(cm.Throttle.JitterMs + 1)
		}
		attempts, err := d.invoke(ctx, func(ctx context.Context) error {
			return d.enforcer.Throttle(ctx, p.SourceID, delay)
		})
		return d.track(p, cm, existing, refresh, now.Add(d.cfg.ThrottleTTL), now, attempts, err)

	case countermeasure.KindBlock:
		if refresh && existing.Countermeasure.Block != nil && existing.Countermeasure.Block.Permanent {
			cm = countermeasure.PermanentBlock()
		}
		var duration time.Duration
		expiresAt := time.Time{}
		if !cm.Block.Permanent {
			duration = cm.Block.Duration
			expiresAt = now.Add(duration)
			if refresh && existing.ExpiresAt.After(expiresAt) {
				expiresAt = existing.ExpiresAt
			}
		}
		attempts, err := d.invoke(ctx, func(ctx context.Context) error {
			return d.enforcer.Block(ctx, p.SourceID, duration)
		})
		return d.track(p, cm, existing, refresh, expiresAt, now, attempts, err)

	case countermeasure.KindDeployHoneypot:
		if d.deployer == nil {
			return countermeasure.Outcome{Countermeasure: cm, Status: countermeasure.StatusSkipped, Error: "no honeypot registry"}
		}
		kind, err := honeypot.ParseKind(cm.Honeypot.Kind)
		if err != nil {
			return countermeasure.Outcome{Countermeasure: cm, Status: countermeasure.StatusFailed, Error: err.Error()}
		}
		hp := d.deployer.Deploy(p.SourceID, kind, cm.Honeypot.Aggressive)
		cm.Honeypot.HoneypotID = hp.ID
		return d.track(p, cm, existing, refresh, hp.ExpiresAt, now, 0, nil)

	case countermeasure.KindInvalidateSession:
		invalidator, ok := d.enforcer.(countermeasure.SessionInvalidator)
		if !ok {
			return countermeasure.Outcome{Countermeasure: cm, Status: countermeasure.StatusSkipped}
		}
		attempts, err := d.invoke(ctx, func(ctx context.Context) error {
			return invalidator.InvalidateSession(ctx, p.SourceID)
		})
		if err != nil {
			return countermeasure.Outcome{Countermeasure: cm, Status: countermeasure.StatusFailed, Attempts: attempts, Error: err.Error()}
		}
		return countermeasure.Outcome{Countermeasure: cm, Status: countermeasure.StatusApplied, Attempts: attempts}

	case countermeasure.KindAlert:
		if refresh {
			return countermeasure.Outcome{Countermeasure: existing.Countermeasure, Status: countermeasure.StatusSkipped, ExpiresAt: existing.ExpiresAt}
		}
		payload := d.alertPayload(req, cm, now)
		cm = countermeasure.Alert(payload)
		attempts, err := d.invoke(ctx, func(ctx context.Context) error {
			return d.enforcer.Alert(ctx, payload)
		})
		return d.track(p, cm, existing, false, now.Add(d.cfg.AlertCooldown), now, attempts, err)
	}

	return countermeasure.Outcome{Countermeasure: cm, Status: countermeasure.StatusSkipped, Error: "unsupported countermeasure"}
}

// track records the countermeasure in the profile's active set. A failed
// invocation leaves the entry pending so the next dispatch retries it.
func (d *dispatcher) track(
	p *profile.AttackerProfile,
	cm countermeasure.Countermeasure,
	existing countermeasure.Active,
	refresh bool,
	expiresAt time.Time,
	now time.Time,
	attempts int,
	err error,
) countermeasure.Outcome {
	entry := countermeasure.Active{
		Countermeasure: cm,
		Status:         countermeasure.ActiveStatusActive,
		IssuedAt:       now,
		RefreshedAt:    now,
		ExpiresAt:      expiresAt,
	}
	status := countermeasure.StatusApplied
	if refresh {
		entry.IssuedAt = existing.IssuedAt
		entry.Refreshes = existing.Refreshes + 1
		status = countermeasure.StatusRefreshed
	}

	outcome := countermeasure.Outcome{Countermeasure: cm, Attempts: attempts, ExpiresAt: expiresAt}
	if err != nil {
		d.health.failure(cm.Kind)
		entry.Status = countermeasure.ActiveStatusPending
		if refresh {
			entry.ExpiresAt = existing.ExpiresAt
		}
		outcome.Status = countermeasure.StatusFailed
		outcome.Error = err.Error()
	} else {
		if attempts > 0 {
			d.health.success(cm.Kind)
		}
		outcome.Status = status
	}
	if cm.Kind.Tracked() {
		p.ActiveCountermeasures[cm.Kind] = entry
	}
	return outcome
}

// invoke runs fn under the per-countermeasure timeout with at most one retry.
func (d *dispatcher) invoke(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	attempts := 0
	operation := func() error {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
		return fn(callCtx)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(d.cfg.RetryDelay), 1), ctx)
	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		d.logger.WithError(err).WithField("retry_in", wait.String()).Warn("enforcer call failed, retrying")
	})
	return attempts, err
}

func (d *dispatcher) alertPayload(req Request, cm countermeasure.Countermeasure, now time.Time) countermeasure.AlertPayload {
	var payload countermeasure.AlertPayload
	if cm.Alert != nil {
		payload = *cm.Alert
	}
	p := req.Profile
	if payload.SourceID == "" {
		payload.SourceID = p.SourceID
	}
	if payload.Severity == finding.SeverityNone {
		payload.Severity = req.Severity
	}
	if payload.State == "" {
		payload.State = p.State.String()
	}
	if len(payload.Kinds) == 0 {
		payload.Kinds = p.Snapshot().FindingKinds
	}
	if payload.Reason == "" {
		payload.Reason = req.Reason
	}
	if payload.IncidentID == "" {
		payload.IncidentID = req.IncidentID
	}
	if payload.CreatedAt.IsZero() {
		payload.CreatedAt = now
	}
	return payload
}

func (d *dispatcher) recordFailure(req Request, outcome countermeasure.Outcome, now time.Time) {
	message := fmt.Sprintf("%s failed after %d attempt(s): %s", outcome.Countermeasure, outcome.Attempts, outcome.Error)
	d.logger.WithFields(logrus.Fields{
		"source_id":      req.Profile.SourceID,
		"countermeasure": string(outcome.Countermeasure.Kind),
		"attempts":       outcome.Attempts,
	}).Error(message)
	if d.log == nil {
		return
	}
	record := incident.NewRecord(incident.RecordTypeEnforcementFailure, req.Profile.SourceID, req.Severity, nil)
	record.Message = message
	record.CreatedAt = now
	d.log.Append(record)
}

// Release lifts blocking and throttling after manual review.
func (d *dispatcher) Release(ctx context.Context, p *profile.AttackerProfile) error {
	if releaser, ok := d.enforcer.(countermeasure.Releaser); ok {
		if _, err := d.invoke(ctx, func(ctx context.Context) error {
			return releaser.Release(ctx, p.SourceID)
		}); err != nil {
			return domain.NewEnforcementError(p.SourceID, "release", err)
		}
	}
	delete(p.ActiveCountermeasures, countermeasure.KindBlock)
	delete(p.ActiveCountermeasures, countermeasure.KindThrottle)
	return nil
}
