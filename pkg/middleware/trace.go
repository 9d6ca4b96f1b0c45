package middleware

import (
	"context"

	"github.com/NeuralTrust/TrustSentinel/pkg/common"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/fingerprint"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const TraceIDHeader = "X-Trace-Id"

type traceMiddleware struct {
	logger   *logrus.Logger
	resolver fingerprint.Resolver
}

// NewTraceMiddleware tags every request with a trace id and the caller's
// fingerprint so downstream handlers and the interceptor share one identity.
func NewTraceMiddleware(
	logger *logrus.Logger,
	resolver fingerprint.Resolver,
) Middleware {
	return &traceMiddleware{
		logger:   logger,
		resolver: resolver,
	}
}

func (m *traceMiddleware) Middleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		fp := m.resolver.Resolve(ctx)
		ctx.Locals(common.FingerprintKey, fp)

		id := utils.CopyString(ctx.Get(TraceIDHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		ctx.Locals(common.TraceIdKey, id)
		ctx.Set(TraceIDHeader, id)

		c := context.WithValue(ctx.UserContext(), common.TraceIdKey, id)
		ctx.SetUserContext(c)
		return ctx.Next()
	}
}

// FingerprintFrom returns the fingerprint stored by the trace middleware,
// resolving it when the middleware did not run.
func FingerprintFrom(ctx *fiber.Ctx, resolver fingerprint.Resolver) fingerprint.Fingerprint {
	if fp, ok := ctx.Locals(common.FingerprintKey).(fingerprint.Fingerprint); ok {
		return fp
	}
	return resolver.Resolve(ctx)
}
