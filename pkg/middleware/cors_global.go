package middleware

import (
	"strings"

	"github.com/NeuralTrust/TrustSentinel/pkg/config"
	"github.com/gofiber/fiber/v2"
)

type corsGlobalMiddleware struct {
	allowOrigins     []string
	allowMethods     []string
	allowCredentials bool
	exposeHeaders    []string
	maxAge           string
}

// NewCORSGlobalMiddleware lets browser dashboards on allowed origins call the
// admin API. With no origins configured every cross-origin request is left
// without CORS headers.
func NewCORSGlobalMiddleware(cfg config.CORSConfig) Middleware {
	return &corsGlobalMiddleware{
		allowOrigins:     cfg.AllowOrigins,
		allowMethods:     cfg.AllowMethods,
		allowCredentials: cfg.AllowCredentials,
		exposeHeaders:    cfg.ExposeHeaders,
		maxAge:           cfg.MaxAge,
	}
}

func (m *corsGlobalMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		origin := c.Get("Origin")
		if origin == "" || !m.allowed(origin) {
			return c.Next()
		}

		c.Set("Vary", "Origin")
		if m.allowCredentials || !hasStar(m.allowOrigins) {
			c.Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Set("Access-Control-Allow-Origin", "*")
		}
		if m.allowCredentials {
			c.Set("Access-Control-Allow-Credentials", "true")
		}
		if len(m.exposeHeaders) > 0 {
			c.Set("Access-Control-Expose-Headers", strings.Join(m.exposeHeaders, ", "))
		}

		if c.Method() == fiber.MethodOptions && c.Get("Access-Control-Request-Method") != "" {
			c.Set("Access-Control-Allow-Methods", strings.Join(m.allowMethods, ", "))
			reqHeaders := c.Get("Access-Control-Request-Headers")
			if reqHeaders != "" {
				c.Set("Access-Control-Allow-Headers", reqHeaders)
			} else {
				c.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}
			if m.maxAge != "" {
				c.Set("Access-Control-Max-Age", m.maxAge)
			}
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}

func (m *corsGlobalMiddleware) allowed(origin string) bool {
	for _, o := range m.allowOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func hasStar(arr []string) bool {
	for _, v := range arr {
		if v == "*" {
			return true
		}
	}
	return false
}
