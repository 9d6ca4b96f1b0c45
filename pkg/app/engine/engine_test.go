package engine_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/app/engine"
	"github.com/NeuralTrust/TrustSentinel/pkg/detection/signature"
	"github.com/NeuralTrust/TrustSentinel/pkg/detection/traffic"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/countermeasure"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/countermeasure/mocks"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/finding"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/honeypot"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/incident"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/profile"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/incidentlog"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const unionSelect = "1 UNION SELECT username FROM users"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// degradedLog is an incident log whose backing store is down.
type degradedLog struct{}

func (degradedLog) Append(incident.Record) {}

func (degradedLog) Recent(context.Context, int) ([]incident.Record, error) {
	return nil, domain.ErrLogUnavailable
}

func (degradedLog) Degraded() bool { return true }

type recordingHook struct {
	inspector engine.Inspector
}

func (h *recordingHook) Attach(inspector engine.Inspector) {
	h.inspector = inspector
}

func silentLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newLog(t *testing.T) *incidentlog.Buffered {
	t.Helper()
	log, err := incidentlog.NewBuffered(silentLogger(), incidentlog.DefaultConfig(), incidentlog.NewMemoryStore(1000))
	require.NoError(t, err)
	log.Start()
	t.Cleanup(log.Shutdown)
	return log
}

func newEngine(t *testing.T, enforcer countermeasure.Enforcer, log incident.Log, c *clock) *engine.Engine {
	t.Helper()
	library, err := signature.Default()
	require.NoError(t, err)
	e, err := engine.New(engine.Deps{
		Logger:       silentLogger(),
		Config:       engine.DefaultConfig(),
		Library:      library,
		Enforcer:     enforcer,
		Log:          log,
		TimeProvider: c.Now,
	})
	require.NoError(t, err)
	e.Start()
	t.Cleanup(e.Stop)
	return e
}

func TestNew_RequiresDependencies(t *testing.T) {
	library, err := signature.Default()
	require.NoError(t, err)
	enforcer := mocks.NewEnforcer(t)
	log := degradedLog{}

	tests := []struct {
		name string
		deps engine.Deps
	}{
		{"no library", engine.Deps{Enforcer: enforcer, Log: log}},
		{"no enforcer", engine.Deps{Library: library, Log: log}},
		{"no log", engine.Deps{Library: library, Enforcer: enforcer}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.deps.Logger = silentLogger()
			_, err := engine.New(tt.deps)
			assert.True(t, domain.IsConfigurationError(err))
		})
	}
}

func TestNew_MalformedSeverityTableIsFatal(t *testing.T) {
	library, err := signature.Default()
	require.NoError(t, err)
	cfg := engine.DefaultConfig()
	delete(cfg.Dispatcher.Policy, "CRITICAL")

	_, err = engine.New(engine.Deps{
		Logger:   silentLogger(),
		Config:   cfg,
		Library:  library,
		Enforcer: mocks.NewEnforcer(t),
		Log:      degradedLog{},
	})
	assert.True(t, domain.IsConfigurationError(err))
}

func TestNew_AttachesHook(t *testing.T) {
	library, err := signature.Default()
	require.NoError(t, err)
	hook := &recordingHook{}

	e, err := engine.New(engine.Deps{
		Logger:   silentLogger(),
		Library:  library,
		Enforcer: mocks.NewEnforcer(t),
		Log:      degradedLog{},
		Hook:     hook,
	})
	require.NoError(t, err)
	assert.Same(t, e, hook.inspector)
}

func TestEngine_UnionSelectCampaign(t *testing.T) {
	c := newClock()
	enforcer := mocks.NewEnforcer(t)
	enforcer.On("Block", mock.Anything, "S1", time.Hour).Return(nil).Twice()
	enforcer.On("Block", mock.Anything, "S1", time.Duration(0)).Return(nil).Once()
	enforcer.On("InvalidateSession", mock.Anything, "S1").Return(nil).Times(3)
	enforcer.On("Alert", mock.Anything, mock.MatchedBy(func(p countermeasure.AlertPayload) bool {
		return p.SourceID == "S1" && p.State == profile.StateBlocked.String()
	})).Return(nil).Once()

	log := newLog(t)
	e := newEngine(t, enforcer, log, c)
	ctx := context.Background()

	stream, cancel := e.Subscribe()
	defer cancel()

	var states []string
	for i := 0; i < 3; i++ {
		result := e.Scan("S1", unionSelect, "query")
		require.False(t, result.Safe)
		require.Len(t, result.Findings, 1)
		require.NoError(t, e.Flush(ctx))

		select {
		case inc := <-stream:
			assert.Equal(t, finding.SeverityHigh, inc.AssignedSeverity)
			states = append(states, inc.State)
		case <-time.After(time.Second):
			t.Fatal("incident was not published")
		}
		c.Advance(10 * time.Minute)
	}
	assert.Equal(t, []string{"WATCHED", "FLAGGED", "BLOCKED"}, states)

	snapshot, err := e.Profile(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, profile.StateBlocked, snapshot.State)

	intel := e.HoneypotIntelligence("S1")
	assert.Equal(t, 1, intel.ActiveHoneypots)

	e.Tick(ctx)
	assert.Eventually(t, func() bool {
		records, err := e.Incidents(ctx, 50)
		if err != nil {
			return false
		}
		classifications := 0
		for _, r := range records {
			if r.Type == incident.RecordTypeClassification {
				classifications++
			}
		}
		return classifications == 3
	}, time.Second, 10*time.Millisecond)

	status := e.Status(ctx)
	assert.Equal(t, finding.SeverityHigh, status.ThreatLevel)
	assert.False(t, status.Stale, "degraded: %v", status.Degraded)
	require.Len(t, status.ActiveCountermeasures, 1)
	assert.Equal(t, "S1", status.ActiveCountermeasures[0].SourceID)
	assert.Equal(t, 1, status.ActiveHoneypots)
	assert.NotEmpty(t, status.RecentIncidents)
}

func TestEngine_HungEnforcerDoesNotStallOtherSources(t *testing.T) {
	c := newClock()
	blocking := make(chan struct{})
	unblock := make(chan struct{})
	enforcer := mocks.NewEnforcer(t)
	enforcer.On("Block", mock.Anything, "A", time.Hour).Run(func(args mock.Arguments) {
		close(blocking)
		select {
		case <-unblock:
		case <-args.Get(0).(context.Context).Done():
		}
	}).Return(nil).Once()
	enforcer.On("InvalidateSession", mock.Anything, "A").Return(nil).Once()
	enforcer.On("Block", mock.Anything, "B1", time.Hour).Return(nil).Once()
	enforcer.On("InvalidateSession", mock.Anything, "B1").Return(nil).Once()

	e := newEngine(t, enforcer, newLog(t), c)
	ctx := context.Background()
	stream, cancel := e.Subscribe()
	defer cancel()

	require.False(t, e.Scan("A", unionSelect, "query").Safe)
	select {
	case <-blocking:
	case <-time.After(time.Second):
		t.Fatal("enforcer was not called for A")
	}

	require.False(t, e.Scan("B1", unionSelect, "query").Safe)
	select {
	case inc := <-stream:
		assert.Equal(t, "B1", inc.SourceID)
	case <-time.After(time.Second):
		t.Fatal("B1 was queued behind the hung enforcer call for A")
	}

	snapshot, err := e.Profile(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, profile.StateWatched, snapshot.State)
	status := e.Status(ctx)
	assert.Equal(t, finding.SeverityHigh, status.ThreatLevel)

	close(unblock)
	require.NoError(t, e.Flush(ctx))
	select {
	case inc := <-stream:
		assert.Equal(t, "A", inc.SourceID)
	case <-time.After(time.Second):
		t.Fatal("incident for A was not published")
	}
}

func TestEngine_HoneypotFeedbackLoop(t *testing.T) {
	c := newClock()
	enforcer := mocks.NewEnforcer(t)
	enforcer.On("Throttle", mock.Anything, "S2", mock.AnythingOfType("int")).Return(nil).Once()

	e := newEngine(t, enforcer, newLog(t), c)
	ctx := context.Background()

	hp := e.DeployHoneypot("S2", honeypot.KindDatabase, false)
	require.NotEmpty(t, hp.Resources)
	resource := hp.Resources[0].Path

	findings, err := e.RecordHoneypotInteraction(ctx, hp.ID, honeypot.Interaction{
		Resource: resource,
		Payload:  "name=' OR 1=1",
	})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "S2", findings[0].SourceID)
	require.NoError(t, e.Flush(ctx))

	snapshot, err := e.Profile(ctx, "S2")
	require.NoError(t, err)
	assert.Equal(t, profile.StateWatched, snapshot.State)
	assert.Equal(t, 1, snapshot.TotalFindings)

	intel := e.HoneypotIntelligence("S2")
	assert.Equal(t, 1, intel.InteractionCount)
	assert.Equal(t, honeypot.TechniqueTautologyBased, intel.DominantTechnique)

	require.NoError(t, e.TeardownHoneypot(hp.ID))
	_, err = e.RecordHoneypotInteraction(ctx, hp.ID, honeypot.Interaction{Resource: resource})
	assert.ErrorIs(t, err, domain.ErrHoneypotInactive)
}

func TestEngine_WhitelistedInputIsNotClassified(t *testing.T) {
	e := newEngine(t, mocks.NewEnforcer(t), newLog(t), newClock())

	result := e.Scan("S3", "Credit Union SELECT plan", "comment")
	require.True(t, result.Safe)
	require.NoError(t, e.Flush(context.Background()))
	assert.Empty(t, e.Profiles())
}

func TestEngine_EndpointAnomalyRaisesThreatLevelOnly(t *testing.T) {
	c := newClock()
	e := newEngine(t, mocks.NewEnforcer(t), newLog(t), c)
	ctx := context.Background()

	for i := 0; i < 600; i++ {
		e.Record(fmt.Sprintf("10.0.0.%d", i%60), "/login", traffic.Outcome{LatencyMs: 20})
	}
	e.Tick(ctx)
	require.NoError(t, e.Flush(ctx))

	status := e.Status(ctx)
	require.Len(t, status.EndpointAlerts, 1)
	assert.Equal(t, "/login", status.EndpointAlerts[0].Endpoint)
	assert.True(t, status.ThreatLevel.AtLeast(finding.SeverityMedium))
	assert.Empty(t, e.Profiles())

	c.Advance(10 * time.Minute)
	e.Tick(ctx)
	assert.Empty(t, e.Status(ctx).EndpointAlerts)
}

func TestEngine_StatusReportsDegradation(t *testing.T) {
	c := newClock()
	enforcer := mocks.NewEnforcer(t)
	enforcer.On("Throttle", mock.Anything, "S4", mock.AnythingOfType("int")).Return(errors.New("gateway down"))

	e := newEngine(t, enforcer, degradedLog{}, c)
	ctx := context.Background()

	e.Scan("S4", "admin' OR 1=1", "query")
	require.NoError(t, e.Flush(ctx))
	c.Advance(time.Minute)

	status := e.Status(ctx)
	assert.True(t, status.Stale)
	assert.ElementsMatch(t, []string{engine.DegradedIncidentLog, engine.DegradedEnforcer, engine.DegradedTick}, status.Degraded)
	assert.Contains(t, status.DegradedCountermeasures, countermeasure.KindThrottle)
	assert.Equal(t, finding.SeverityMedium, status.ThreatLevel)

	snapshot, err := e.Profile(ctx, "S4")
	require.NoError(t, err)
	for _, active := range snapshot.ActiveCountermeasures {
		if active.Countermeasure.Kind == countermeasure.KindThrottle {
			assert.Equal(t, countermeasure.ActiveStatusPending, active.Status)
		}
	}
}

func TestEngine_InspectCombinesScannerAndBehavior(t *testing.T) {
	c := newClock()
	enforcer := mocks.NewEnforcer(t)
	enforcer.On("Block", mock.Anything, "S5", time.Hour).Return(nil).Maybe()
	enforcer.On("InvalidateSession", mock.Anything, "S5").Return(nil).Maybe()
	enforcer.On("Throttle", mock.Anything, "S5", mock.AnythingOfType("int")).Return(nil).Maybe()

	e := newEngine(t, enforcer, newLog(t), c)

	result := e.Inspect(context.Background(), engine.Request{
		SourceID:  "S5",
		SessionID: "sess-5",
		Method:    "GET",
		Path:      "/search",
		Query:     "q=<script>alert(1)</script>",
		UserAgent: "Mozilla/5.0 HeadlessChrome/120.0",
	})
	require.False(t, result.Safe)

	kinds := map[finding.Kind]bool{}
	for _, f := range result.Findings {
		assert.Equal(t, "S5", f.SourceID)
		kinds[f.Kind] = true
	}
	assert.True(t, kinds[finding.KindScriptInjection])
	assert.True(t, kinds[finding.KindHeadlessClient])

	e.Complete(engine.Request{SourceID: "S5", Path: "/search"}, engine.Response{Status: 200, Latency: 15 * time.Millisecond})
	require.NoError(t, e.Flush(context.Background()))
}
