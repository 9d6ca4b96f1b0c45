package middleware_test

import (
	"net/http/httptest"
	"testing"

	"github.com/NeuralTrust/TrustSentinel/pkg/common"
	"github.com/NeuralTrust/TrustSentinel/pkg/config"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/fingerprint"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/prometheus"
	"github.com/NeuralTrust/TrustSentinel/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPanicRecover(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.NewPanicRecoverMiddleware(silentLogger()).Middleware())
	app.Get("/boom", func(c *fiber.Ctx) error { panic("boom") })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	var m dto.Metric
	require.NoError(t, prometheus.HandlerPanicsTotal.WithLabelValues("/boom").Write(&m))
	assert.Equal(t, 1.0, m.GetCounter().GetValue())
}

func TestCORSGlobal(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.NewCORSGlobalMiddleware(config.CORSConfig{
		AllowOrigins: []string{"https://soc.example.com"},
		AllowMethods: []string{"GET", "POST"},
		MaxAge:       "600",
	}).Middleware())
	app.Get("/api/v1/status", func(c *fiber.Ctx) error { return c.SendString("ok") })

	req := httptest.NewRequest(fiber.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "https://soc.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://soc.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST", resp.Header.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "600", resp.Header.Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(fiber.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestTrace_SetsIdentity(t *testing.T) {
	resolver := fingerprint.NewResolver(fingerprint.ResolverConfig{TrustForwardedHeaders: true})
	app := fiber.New()
	app.Use(middleware.NewTraceMiddleware(silentLogger(), resolver).Middleware())

	var (
		traceID string
		fp      fingerprint.Fingerprint
	)
	app.Get("/", func(c *fiber.Ctx) error {
		traceID, _ = c.UserContext().Value(common.TraceIdKey).(string)
		fp = middleware.FingerprintFrom(c, resolver)
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "192.0.2.10")
	resp, err := app.Test(req)
	require.NoError(t, err)

	_, err = uuid.Parse(traceID)
	assert.NoError(t, err)
	assert.Equal(t, traceID, resp.Header.Get(middleware.TraceIDHeader))
	assert.Equal(t, "192.0.2.10", fp.SourceID())
}
