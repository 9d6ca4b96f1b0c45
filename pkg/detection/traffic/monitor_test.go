package traffic_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/detection/traffic"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/finding"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const endpoint = "/api/login"

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newMonitor(t *testing.T) (traffic.Monitor, *clock) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	c := &clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	return traffic.NewMonitor(logger, traffic.DefaultConfig(), traffic.WithTimeProvider(c.Now)), c
}

// feed records n requests spread over sources; errorEvery=k marks every k-th
// request as an error (0 disables errors).
func feed(m traffic.Monitor, n, sources, errorEvery int, latency float64) {
	for i := 0; i < n; i++ {
		m.Record(fmt.Sprintf("10.0.0.%d", i%sources), endpoint, traffic.Outcome{
			LatencyMs: latency,
			IsError:   errorEvery > 0 && i%errorEvery == 0,
		})
	}
}

func TestEvaluate_ErrorRateAloneIsTolerated(t *testing.T) {
	m, _ := newMonitor(t)
	feed(m, 50, 5, 1, 200)

	verdict := m.Evaluate(endpoint)

	assert.Equal(t, []traffic.Signal{traffic.SignalErrorRate}, verdict.Exceeded)
	assert.False(t, verdict.Anomalous)
	assert.Empty(t, verdict.Findings)
}

func TestEvaluate_VolumeAndErrorRateProduceFinding(t *testing.T) {
	m, _ := newMonitor(t)
	feed(m, 600, 5, 2, 200)

	verdict := m.Evaluate(endpoint)

	require.True(t, verdict.Anomalous)
	assert.ElementsMatch(t, []traffic.Signal{traffic.SignalVolume, traffic.SignalErrorRate}, verdict.Exceeded)
	assert.Equal(t, finding.SeverityMedium, verdict.Severity)
	require.NotEmpty(t, verdict.Findings)

	endpointFinding := verdict.Findings[0]
	assert.Equal(t, finding.KindVolumetricAnomaly, endpointFinding.Kind)
	assert.Equal(t, traffic.EndpointSourcePrefix+endpoint, endpointFinding.SourceID)
	assert.InDelta(t, verdict.Score, endpointFinding.Evidence.Metrics["score"], 1e-9)

	for _, f := range verdict.Findings[1:] {
		assert.Contains(t, f.SourceID, "10.0.0.")
	}
}

func TestEvaluate_SingleSignalSpikesAreNoise(t *testing.T) {
	tests := []struct {
		name     string
		requests int
		sources  int
		latency  float64
	}{
		{name: "volume only", requests: 600, sources: 5, latency: 200},
		{name: "latency only", requests: 50, sources: 5, latency: 900},
		{name: "unique sources only", requests: 80, sources: 80, latency: 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newMonitor(t)
			feed(m, tt.requests, tt.sources, 0, tt.latency)
			verdict := m.Evaluate(endpoint)
			assert.Len(t, verdict.Exceeded, 1)
			assert.False(t, verdict.Anomalous)
			assert.Empty(t, verdict.Findings)
		})
	}
}

func TestScoreSeverity(t *testing.T) {
	assert.Equal(t, finding.SeverityCritical, traffic.ScoreSeverity(10.5))
	assert.Equal(t, finding.SeverityHigh, traffic.ScoreSeverity(10))
	assert.Equal(t, finding.SeverityHigh, traffic.ScoreSeverity(5.1))
	assert.Equal(t, finding.SeverityMedium, traffic.ScoreSeverity(5))
	assert.Equal(t, finding.SeverityMedium, traffic.ScoreSeverity(2.5))
	assert.Equal(t, finding.SeverityLow, traffic.ScoreSeverity(2))
	assert.Equal(t, finding.SeverityNone, traffic.ScoreSeverity(1))
}

func TestBaselineIsolation(t *testing.T) {
	m, c := newMonitor(t)
	initial := traffic.DefaultConfig().InitialBaseline

	for i := 0; i < 10; i++ {
		feed(m, 600, 5, 2, 200)
		verdict := m.Evaluate(endpoint)
		require.True(t, verdict.Anomalous, "window %d", i)
		assert.False(t, verdict.BaselineUpdated)
		c.Advance(61 * time.Second)
	}

	baseline, ok := m.Baseline(endpoint)
	require.True(t, ok)
	assert.Equal(t, initial, baseline)

	previous := baseline.RequestsPerWindow
	for i := 0; i < 10; i++ {
		feed(m, 120, 10, 0, 200)
		verdict := m.Evaluate(endpoint)
		require.False(t, verdict.Anomalous, "window %d", i)
		assert.True(t, verdict.BaselineUpdated)

		baseline, _ = m.Baseline(endpoint)
		assert.Greater(t, baseline.RequestsPerWindow, previous)
		assert.Less(t, baseline.RequestsPerWindow, 120.0)
		previous = baseline.RequestsPerWindow
		c.Advance(61 * time.Second)
	}

	assert.Greater(t, baseline.ErrorRate, 0.0)
	assert.Greater(t, baseline.UniqueSourcesPerWindow, 0.0)
	assert.Greater(t, baseline.AvgResponseTimeMs, 0.0)
}

func TestEvaluate_WindowSlides(t *testing.T) {
	m, c := newMonitor(t)
	feed(m, 600, 5, 2, 200)
	c.Advance(61 * time.Second)

	verdict := m.Evaluate(endpoint)

	assert.Equal(t, 0, verdict.Snapshot.TotalRequests)
	assert.False(t, verdict.Anomalous)
	assert.False(t, verdict.BaselineUpdated)
}

func TestEvaluateAll(t *testing.T) {
	m, _ := newMonitor(t)
	feed(m, 600, 5, 2, 200)
	m.Record("10.1.1.1", "/api/health", traffic.Outcome{LatencyMs: 10})

	verdicts := m.EvaluateAll(context.Background())

	require.Len(t, verdicts, 2)
	assert.Equal(t, "/api/health", verdicts[0].Endpoint)
	assert.False(t, verdicts[0].Anomalous)
	assert.Equal(t, endpoint, verdicts[1].Endpoint)
	assert.True(t, verdicts[1].Anomalous)
}

func TestEvictIdle_KeepsLearnedBaseline(t *testing.T) {
	m, c := newMonitor(t)
	initial := traffic.DefaultConfig().InitialBaseline

	feed(m, 120, 10, 0, 50)
	require.True(t, m.Evaluate(endpoint).BaselineUpdated)
	learned, ok := m.Baseline(endpoint)
	require.True(t, ok)
	require.NotEqual(t, initial, learned)

	c.Advance(2 * time.Hour)
	m.EvaluateAll(context.Background())
	assert.Empty(t, m.EvaluateAll(context.Background()), "idle endpoint was not evicted")

	baseline, ok := m.Baseline(endpoint)
	require.True(t, ok)
	assert.Equal(t, learned, baseline)

	m.Record("10.0.0.1", endpoint, traffic.Outcome{LatencyMs: 50})
	verdict := m.Evaluate(endpoint)
	assert.Equal(t, 1, verdict.Snapshot.TotalRequests)
	assert.Equal(t, learned, verdict.Baseline)
}

func TestEvictIdle_ConcurrentRecordsAreNotLost(t *testing.T) {
	m, c := newMonitor(t)
	m.Record("10.0.0.1", endpoint, traffic.Outcome{LatencyMs: 50})
	c.Advance(2 * time.Hour)

	const writers, perWriter = 8, 200
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				m.Record(fmt.Sprintf("10.1.%d.%d", i, j), endpoint, traffic.Outcome{LatencyMs: 50})
			}
		}(i)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for evaluating := true; evaluating; {
		select {
		case <-done:
			evaluating = false
		default:
			m.EvaluateAll(context.Background())
		}
	}

	verdict := m.Evaluate(endpoint)
	assert.Equal(t, writers*perWriter, verdict.Snapshot.TotalRequests)
}
