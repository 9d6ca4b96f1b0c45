package enforcer_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/countermeasure"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/finding"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/enforcer"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedCall struct {
	Path   string
	Auth   string
	Action map[string]interface{}
}

func newGateway(t *testing.T, status *atomic.Int32) (*httptest.Server, func() []capturedCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []capturedCall
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var action map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&action)
		mu.Lock()
		calls = append(calls, capturedCall{Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Action: action})
		mu.Unlock()
		w.WriteHeader(int(status.Load()))
	}))
	t.Cleanup(server.Close)
	return server, func() []capturedCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedCall(nil), calls...)
	}
}

func TestWebhookEnforcer_SendsActions(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	server, calls := newGateway(t, &status)

	e, err := enforcer.NewWebhookEnforcer(testLogger(), enforcer.WebhookConfig{
		BaseURL: server.URL + "/",
		Token:   "secret",
	}, httpx.NewFastHTTPClient(httpx.ClientConfig{Timeout: time.Second}), nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, e.Block(ctx, "S1", time.Hour))
	require.NoError(t, e.Block(ctx, "S1", 0))
	require.NoError(t, e.Throttle(ctx, "S1", 750))
	require.NoError(t, e.Alert(ctx, countermeasure.AlertPayload{SourceID: "S1", Severity: finding.SeverityCritical}))
	require.NoError(t, e.InvalidateSession(ctx, "S1"))
	require.NoError(t, e.Release(ctx, "S1"))

	got := calls()
	require.Len(t, got, 6)
	assert.Equal(t, "/block", got[0].Path)
	assert.Equal(t, "Bearer secret", got[0].Auth)
	assert.Equal(t, 3600.0, got[0].Action["duration_seconds"])
	assert.Equal(t, true, got[1].Action["permanent"])
	assert.Equal(t, "/throttle", got[2].Path)
	assert.Equal(t, 750.0, got[2].Action["delay_ms"])
	assert.Equal(t, "/alert", got[3].Path)
	alert, ok := got[3].Action["alert"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "CRITICAL", alert["severity"])
	assert.Equal(t, "/sessions/invalidate", got[4].Path)
	assert.Equal(t, "/release", got[5].Path)
}

func TestWebhookEnforcer_ErrorStatus(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusBadGateway)
	server, _ := newGateway(t, &status)

	e, err := enforcer.NewWebhookEnforcer(testLogger(), enforcer.WebhookConfig{BaseURL: server.URL},
		httpx.NewFastHTTPClient(httpx.ClientConfig{Timeout: time.Second}), nil)
	require.NoError(t, err)

	err = e.Block(context.Background(), "S1", time.Minute)
	assert.True(t, errors.Is(err, enforcer.ErrEnforcerUnavailable))
	assert.ErrorContains(t, err, "status 502")
}

func TestWebhookEnforcer_BreakerFailsFast(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	server, calls := newGateway(t, &status)

	breaker := httpx.NewCircuitBreaker(testLogger(), "test", httpx.BreakerSettings{Timeout: time.Minute, MaxFailures: 2})
	e, err := enforcer.NewWebhookEnforcer(testLogger(), enforcer.WebhookConfig{BaseURL: server.URL},
		httpx.NewFastHTTPClient(httpx.ClientConfig{Timeout: time.Second}), breaker)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_ = e.Throttle(context.Background(), "S1", 100)
	}
	err = e.Throttle(context.Background(), "S1", 100)

	assert.True(t, errors.Is(err, httpx.ErrBreakerOpen))
	assert.True(t, errors.Is(err, enforcer.ErrEnforcerUnavailable))
	assert.Len(t, calls(), 2)
}

func TestWebhookConfig_Validate(t *testing.T) {
	assert.Error(t, enforcer.WebhookConfig{}.Validate())
	assert.Error(t, enforcer.WebhookConfig{BaseURL: "gateway:8080"}.Validate())
	assert.NoError(t, enforcer.WebhookConfig{BaseURL: "https://gateway:8080"}.Validate())
}
