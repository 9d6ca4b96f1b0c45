package fingerprint_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NeuralTrust/TrustSentinel/pkg/infra/fingerprint"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolve(t *testing.T, handler fiber.Handler, req *http.Request) {
	t.Helper()
	app := fiber.New()
	app.Get("/", handler)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestResolver_ForwardedHeadersOnlyWhenTrusted(t *testing.T) {
	var trusted, untrusted fingerprint.Fingerprint
	trustedResolver := fingerprint.NewResolver(fingerprint.ResolverConfig{TrustForwardedHeaders: true})
	untrustedResolver := fingerprint.NewResolver(fingerprint.ResolverConfig{})

	handler := func(c *fiber.Ctx) error {
		trusted = trustedResolver.Resolve(c)
		untrusted = untrustedResolver.Resolve(c)
		return c.SendStatus(fiber.StatusOK)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	resolve(t, handler, req)

	assert.Equal(t, "203.0.113.9", trusted.SourceID())
	assert.NotEqual(t, "203.0.113.9", untrusted.SourceID())
}

func TestResolver_InvalidForwardedIPFallsBack(t *testing.T) {
	var fp fingerprint.Fingerprint
	r := fingerprint.NewResolver(fingerprint.ResolverConfig{TrustForwardedHeaders: true})
	handler := func(c *fiber.Ctx) error {
		fp = r.Resolve(c)
		return c.SendStatus(fiber.StatusOK)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "not-an-ip")
	resolve(t, handler, req)

	assert.NotEqual(t, "not-an-ip", fp.SourceID())
	assert.NotEmpty(t, fp.SourceID())
}

func TestResolver_SessionPrefersCookieThenToken(t *testing.T) {
	var fp fingerprint.Fingerprint
	r := fingerprint.NewResolver(fingerprint.ResolverConfig{SessionCookie: "sid"})
	handler := func(c *fiber.Ctx) error {
		fp = r.Resolve(c)
		return c.SendStatus(fiber.StatusOK)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	req.Header.Set("User-Agent", "curl/8.0")
	req.AddCookie(&http.Cookie{Name: "sid", Value: "abc"})
	resolve(t, handler, req)

	assert.Equal(t, "abc", fp.Session)
	assert.Equal(t, "tok-1", fp.Token)
	assert.Equal(t, "curl/8.0", fp.UserAgent)
	assert.Equal(t, fingerprint.Fingerprint{Session: "abc"}.SessionID(), fp.SessionID())
}

func TestFingerprint_SessionID(t *testing.T) {
	a := fingerprint.Fingerprint{Token: "secret-token", IP: "10.0.0.1"}
	b := fingerprint.Fingerprint{Token: "secret-token", IP: "10.0.0.2"}
	c := fingerprint.Fingerprint{IP: "10.0.0.1", UserAgent: "Mozilla"}

	assert.Equal(t, a.SessionID(), b.SessionID())
	assert.NotEqual(t, a.SessionID(), c.SessionID())
	assert.NotContains(t, a.SessionID(), "secret")
	assert.Len(t, a.SessionID(), 24)
	assert.Equal(t, "unknown", fingerprint.Fingerprint{}.SourceID())
}
