package dispatcher_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/app/dispatcher"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/countermeasure"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/countermeasure/mocks"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/finding"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/honeypot"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/incident"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/profile"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

type recordingLog struct {
	mu      sync.Mutex
	records []incident.Record
}

func (l *recordingLog) Append(r incident.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, r)
}

func (l *recordingLog) Recent(_ context.Context, n int) ([]incident.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n > len(l.records) {
		n = len(l.records)
	}
	return append([]incident.Record(nil), l.records[len(l.records)-n:]...), nil
}

func (l *recordingLog) Degraded() bool { return false }

type fakeDeployer struct {
	calls []honeypot.Kind
	now   func() time.Time
}

func (f *fakeDeployer) Deploy(sourceID string, kind honeypot.Kind, aggressive bool) honeypot.Honeypot {
	f.calls = append(f.calls, kind)
	return honeypot.Honeypot{
		ID:         uuid.NewString(),
		SourceID:   sourceID,
		Kind:       kind,
		Aggressive: aggressive,
		Status:     honeypot.StatusActive,
		ExpiresAt:  f.now().Add(30 * time.Minute),
	}
}

// basicEnforcer only implements the required capabilities.
type basicEnforcer struct{}

func (basicEnforcer) Block(context.Context, string, time.Duration) error { return nil }

func (basicEnforcer) Throttle(context.Context, string, int) error { return nil }

func (basicEnforcer) Alert(context.Context, countermeasure.AlertPayload) error { return nil }

type fixture struct {
	dispatcher dispatcher.Dispatcher
	clock      *clock
	log        *recordingLog
	deployer   *fakeDeployer
}

func newFixture(t *testing.T, enforcer countermeasure.Enforcer) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	f := &fixture{
		clock: &clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)},
		log:   &recordingLog{},
	}
	f.deployer = &fakeDeployer{now: f.clock.Now}
	cfg := dispatcher.DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	d, err := dispatcher.New(logger, cfg, enforcer,
		dispatcher.WithTimeProvider(f.clock.Now),
		dispatcher.WithHoneypotDeployer(f.deployer),
		dispatcher.WithIncidentLog(f.log),
		dispatcher.WithJitter(func(int) int { return 100 }),
	)
	require.NoError(t, err)
	f.dispatcher = d
	return f
}

func (f *fixture) profile(state profile.State) *profile.AttackerProfile {
	p := profile.New("S1", f.clock.now)
	p.State = state
	return p
}

func kinds(outcomes []countermeasure.Outcome) []countermeasure.Kind {
	out := make([]countermeasure.Kind, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, o.Countermeasure.Kind)
	}
	return out
}

func TestNewTable_RejectsInvalidPolicies(t *testing.T) {
	withSeverity := func(severity string, entries []dispatcher.Entry) map[string][]dispatcher.Entry {
		policy := dispatcher.DefaultPolicy()
		policy[severity] = entries
		return policy
	}
	missing := dispatcher.DefaultPolicy()
	delete(missing, "CRITICAL")
	unknownSeverity := dispatcher.DefaultPolicy()
	unknownSeverity["SEVERE"] = []dispatcher.Entry{{Kind: "log"}}

	tests := []struct {
		name   string
		policy map[string][]dispatcher.Entry
	}{
		{name: "missing severity", policy: missing},
		{name: "unknown severity", policy: unknownSeverity},
		{name: "empty tier", policy: withSeverity("LOW", nil)},
		{name: "unknown kind", policy: withSeverity("LOW", []dispatcher.Entry{{Kind: "counterattack"}})},
		{name: "block without duration", policy: withSeverity("HIGH", []dispatcher.Entry{{Kind: "block"}})},
		{name: "throttle without delay", policy: withSeverity("MEDIUM", []dispatcher.Entry{{Kind: "throttle"}})},
		{name: "unknown honeypot", policy: withSeverity("HIGH", []dispatcher.Entry{{Kind: "deploy_honeypot", HoneypotKind: "mainframe"}})},
		{name: "duplicate kind", policy: withSeverity("LOW", []dispatcher.Entry{{Kind: "log"}, {Kind: "log"}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dispatcher.NewTable(tt.policy)
			require.Error(t, err)
			assert.True(t, domain.IsConfigurationError(err), err.Error())
		})
	}
}

func TestNewTable_DefaultPolicy(t *testing.T) {
	table, err := dispatcher.NewTable(dispatcher.DefaultPolicy())
	require.NoError(t, err)

	assert.Equal(t, []countermeasure.Countermeasure{countermeasure.Log()}, table.Plan(finding.SeverityLow))
	critical := table.Plan(finding.SeverityCritical)
	require.Len(t, critical, 3)
	assert.True(t, critical[0].Block.Permanent)
	assert.Equal(t, countermeasure.KindAlert, critical[1].Kind)
	assert.True(t, critical[2].Honeypot.Aggressive)

	critical[0].Block.Permanent = false
	assert.True(t, table.Plan(finding.SeverityCritical)[0].Block.Permanent, "plans are copies")
}

func TestNew_RequiresEnforcer(t *testing.T) {
	_, err := dispatcher.New(logrus.New(), dispatcher.DefaultConfig(), nil)
	assert.True(t, domain.IsConfigurationError(err))
}

func TestDispatch_Medium(t *testing.T) {
	enforcer := mocks.NewEnforcer(t)
	enforcer.On("Throttle", mock.Anything, "S1", 600).Return(nil).Once()
	f := newFixture(t, enforcer)
	p := f.profile(profile.StateWatched)

	outcomes := f.dispatcher.Dispatch(context.Background(), dispatcher.Request{Profile: p, Severity: finding.SeverityMedium})

	assert.Equal(t, []countermeasure.Kind{countermeasure.KindMonitor, countermeasure.KindThrottle}, kinds(outcomes))
	assert.True(t, p.EnhancedMonitoring)
	assert.Equal(t, f.clock.now.Add(10*time.Minute), p.ActiveCountermeasures[countermeasure.KindThrottle].ExpiresAt)
}

func TestDispatch_BlockIsIdempotent(t *testing.T) {
	enforcer := mocks.NewEnforcer(t)
	enforcer.On("Block", mock.Anything, "S1", time.Hour).Return(nil).Twice()
	enforcer.On("InvalidateSession", mock.Anything, "S1").Return(nil).Twice()
	f := newFixture(t, enforcer)
	p := f.profile(profile.StateWatched)
	req := dispatcher.Request{Profile: p, Severity: finding.SeverityHigh}

	first := f.dispatcher.Dispatch(context.Background(), req)
	issuedAt := f.clock.now
	f.clock.now = f.clock.now.Add(10 * time.Minute)
	second := f.dispatcher.Dispatch(context.Background(), req)

	assert.Equal(t, countermeasure.StatusApplied, first[0].Status)
	assert.Equal(t, countermeasure.StatusRefreshed, second[0].Status)

	block := p.ActiveCountermeasures[countermeasure.KindBlock]
	assert.Equal(t, issuedAt, block.IssuedAt)
	assert.Equal(t, 1, block.Refreshes)
	assert.Equal(t, f.clock.now.Add(time.Hour), block.ExpiresAt)
	assert.Len(t, f.deployer.calls, 2, "redeploys go through the registry which extends the ttl")
	assert.Equal(t, countermeasure.StatusRefreshed, second[1].Status)
}

func TestDispatch_BlockUpgradesToPermanentAndNeverDowngrades(t *testing.T) {
	enforcer := mocks.NewEnforcer(t)
	enforcer.On("Block", mock.Anything, "S1", time.Hour).Return(nil).Once()
	enforcer.On("Block", mock.Anything, "S1", time.Duration(0)).Return(nil).Twice()
	enforcer.On("InvalidateSession", mock.Anything, "S1").Return(nil)
	enforcer.On("Alert", mock.Anything, mock.Anything).Return(nil).Once()
	f := newFixture(t, enforcer)
	p := f.profile(profile.StateFlagged)

	f.dispatcher.Dispatch(context.Background(), dispatcher.Request{Profile: p, Severity: finding.SeverityHigh})
	f.dispatcher.Dispatch(context.Background(), dispatcher.Request{Profile: p, Severity: finding.SeverityCritical})
	block := p.ActiveCountermeasures[countermeasure.KindBlock]
	require.True(t, block.Countermeasure.Block.Permanent)
	assert.True(t, block.ExpiresAt.IsZero())

	f.clock.now = f.clock.now.Add(2 * time.Hour)
	f.dispatcher.Dispatch(context.Background(), dispatcher.Request{Profile: p, Severity: finding.SeverityHigh})
	block = p.ActiveCountermeasures[countermeasure.KindBlock]
	assert.True(t, block.Countermeasure.Block.Permanent)
	assert.Equal(t, 2, block.Refreshes)
}

func TestDispatch_FailedBlockStillAlerts(t *testing.T) {
	enforcer := mocks.NewEnforcer(t)
	enforcer.On("Block", mock.Anything, "S1", time.Duration(0)).Return(errors.New("gateway unreachable")).Twice()
	enforcer.On("Alert", mock.Anything, mock.MatchedBy(func(p countermeasure.AlertPayload) bool {
		return p.SourceID == "S1" && p.Severity == finding.SeverityCritical && p.IncidentID == "inc-1"
	})).Return(nil).Once()
	f := newFixture(t, enforcer)
	p := f.profile(profile.StateFlagged)

	outcomes := f.dispatcher.Dispatch(context.Background(), dispatcher.Request{
		Profile:    p,
		Severity:   finding.SeverityCritical,
		IncidentID: "inc-1",
	})

	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].Failed())
	assert.Equal(t, 2, outcomes[0].Attempts)
	assert.Equal(t, countermeasure.StatusApplied, outcomes[1].Status)
	assert.Equal(t, countermeasure.StatusApplied, outcomes[2].Status)

	assert.Equal(t, countermeasure.ActiveStatusPending, p.ActiveCountermeasures[countermeasure.KindBlock].Status)
	require.Len(t, f.log.records, 1)
	assert.Equal(t, incident.RecordTypeEnforcementFailure, f.log.records[0].Type)
	assert.Contains(t, f.log.records[0].Message, "gateway unreachable")
	assert.Equal(t, []countermeasure.Kind{countermeasure.KindBlock}, f.dispatcher.Degraded())
}

func TestDispatch_PendingEntryIsRetried(t *testing.T) {
	enforcer := mocks.NewEnforcer(t)
	enforcer.On("Block", mock.Anything, "S1", time.Hour).Return(errors.New("timeout")).Twice()
	enforcer.On("Block", mock.Anything, "S1", time.Hour).Return(nil).Once()
	enforcer.On("InvalidateSession", mock.Anything, "S1").Return(nil)
	f := newFixture(t, enforcer)
	p := f.profile(profile.StateWatched)
	req := dispatcher.Request{Profile: p, Severity: finding.SeverityHigh}

	f.dispatcher.Dispatch(context.Background(), req)
	outcomes := f.dispatcher.Dispatch(context.Background(), req)

	assert.Equal(t, countermeasure.StatusApplied, outcomes[0].Status)
	assert.Equal(t, countermeasure.ActiveStatusActive, p.ActiveCountermeasures[countermeasure.KindBlock].Status)
	assert.Empty(t, f.dispatcher.Degraded())
}

func TestDispatch_AlertCooldown(t *testing.T) {
	enforcer := mocks.NewEnforcer(t)
	enforcer.On("Block", mock.Anything, "S1", time.Duration(0)).Return(nil)
	enforcer.On("Alert", mock.Anything, mock.Anything).Return(nil).Twice()
	f := newFixture(t, enforcer)
	p := f.profile(profile.StateBlocked)
	req := dispatcher.Request{Profile: p, Severity: finding.SeverityCritical}

	f.dispatcher.Dispatch(context.Background(), req)
	f.clock.now = f.clock.now.Add(5 * time.Minute)
	suppressed := f.dispatcher.Dispatch(context.Background(), req)
	f.clock.now = f.clock.now.Add(15 * time.Minute)
	f.dispatcher.Dispatch(context.Background(), req)

	assert.Equal(t, countermeasure.StatusSkipped, suppressed[1].Status)
}

func TestDispatch_ExtrasOverrideAndAppend(t *testing.T) {
	enforcer := mocks.NewEnforcer(t)
	enforcer.On("Block", mock.Anything, "S1", time.Duration(0)).Return(nil).Once()
	enforcer.On("InvalidateSession", mock.Anything, "S1").Return(nil).Once()
	enforcer.On("Alert", mock.Anything, mock.Anything).Return(nil).Once()
	f := newFixture(t, enforcer)
	p := f.profile(profile.StateBlocked)

	outcomes := f.dispatcher.Dispatch(context.Background(), dispatcher.Request{
		Profile:  p,
		Severity: finding.SeverityHigh,
		Extras: []countermeasure.Countermeasure{
			countermeasure.PermanentBlock(),
			countermeasure.Alert(countermeasure.AlertPayload{Reason: "entered BLOCKED"}),
		},
	})

	assert.Equal(t, []countermeasure.Kind{
		countermeasure.KindBlock,
		countermeasure.KindDeployHoneypot,
		countermeasure.KindInvalidateSession,
		countermeasure.KindAlert,
	}, kinds(outcomes))
	assert.Equal(t, "entered BLOCKED", outcomes[3].Countermeasure.Alert.Reason)
}

func TestDispatch_HoneypotIDIsRecorded(t *testing.T) {
	f := newFixture(t, basicEnforcer{})
	p := f.profile(profile.StateWatched)

	outcomes := f.dispatcher.Dispatch(context.Background(), dispatcher.Request{Profile: p, Severity: finding.SeverityHigh})

	require.Len(t, outcomes, 3)
	assert.NotEmpty(t, outcomes[1].Countermeasure.Honeypot.HoneypotID)
	assert.Equal(t, []honeypot.Kind{honeypot.KindDatabase}, f.deployer.calls)
	assert.Equal(t, countermeasure.StatusSkipped, outcomes[2].Status, "session invalidation is optional")
}

func TestRelease(t *testing.T) {
	enforcer := mocks.NewEnforcer(t)
	enforcer.On("Block", mock.Anything, "S1", time.Hour).Return(nil)
	enforcer.On("InvalidateSession", mock.Anything, "S1").Return(nil)
	enforcer.On("Release", mock.Anything, "S1").Return(nil).Once()
	f := newFixture(t, enforcer)
	p := f.profile(profile.StateBlocked)
	f.dispatcher.Dispatch(context.Background(), dispatcher.Request{Profile: p, Severity: finding.SeverityHigh})

	require.NoError(t, f.dispatcher.Release(context.Background(), p))

	assert.NotContains(t, p.ActiveCountermeasures, countermeasure.KindBlock)
	assert.Contains(t, p.ActiveCountermeasures, countermeasure.KindDeployHoneypot)
}

func TestRelease_EnforcerFailure(t *testing.T) {
	enforcer := mocks.NewEnforcer(t)
	enforcer.On("Release", mock.Anything, "S1").Return(errors.New("down")).Twice()
	f := newFixture(t, enforcer)

	err := f.dispatcher.Release(context.Background(), f.profile(profile.StateBlocked))

	assert.True(t, domain.IsEnforcementError(err))
}
