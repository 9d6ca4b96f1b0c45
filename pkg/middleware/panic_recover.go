package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/NeuralTrust/TrustSentinel/pkg/common"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/prometheus"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type panicRecoverMiddleware struct {
	logger *logrus.Logger
}

func NewPanicRecoverMiddleware(logger *logrus.Logger) Middleware {
	return &panicRecoverMiddleware{logger: logger}
}

// Middleware turns a handler panic into a 500 so one bad request cannot take
// the admin or decoy server down.
func (m *panicRecoverMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			route := c.Route().Path
			prometheus.HandlerPanicsTotal.WithLabelValues(route).Inc()
			entry := m.logger.WithFields(logrus.Fields{
				"panic":    fmt.Sprint(r),
				"method":   c.Method(),
				"route":    route,
				"trace_id": c.Locals(common.TraceIdKey),
			})
			if m.logger.IsLevelEnabled(logrus.DebugLevel) {
				entry = entry.WithField("stack", string(debug.Stack()))
			}
			entry.Error("recovered from handler panic")
			err = c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Internal server error",
			})
		}()
		return c.Next()
	}
}
