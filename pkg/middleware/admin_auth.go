package middleware

import (
	"errors"
	"strings"

	"github.com/NeuralTrust/TrustSentinel/pkg/common"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/jwt"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const bearerPrefix = "Bearer "

var (
	errNoCredentials = errors.New("Authorization required")
	errNotBearer     = errors.New("Invalid authorization format")
	errEmptyToken    = errors.New("Empty token provided")
)

type adminAuthMiddleware struct {
	logger     *logrus.Logger
	jwtManager jwt.Manager
	disabled   bool
}

// NewAdminAuthMiddleware guards the admin API with operator tokens. The
// token subject is exposed to handlers as the operator name.
func NewAdminAuthMiddleware(
	logger *logrus.Logger,
	jwtManager jwt.Manager,
	disabled bool,
) Middleware {
	return &adminAuthMiddleware{
		logger:     logger,
		jwtManager: jwtManager,
		disabled:   disabled,
	}
}

func (m *adminAuthMiddleware) Middleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if m.disabled {
			return ctx.Next()
		}
		token, err := bearerToken(ctx)
		if err != nil {
			m.logger.WithField("path", ctx.Path()).Debug(err.Error())
			return unauthorized(ctx, err.Error())
		}
		claims, err := m.jwtManager.DecodeToken(token)
		switch {
		case errors.Is(err, jwt.ErrExpiredToken):
			return unauthorized(ctx, "Token expired")
		case err != nil:
			m.logger.WithError(err).Debug("rejected operator token")
			return unauthorized(ctx, "Invalid token")
		}
		ctx.Locals(common.OperatorContextKey, claims.Subject)
		return ctx.Next()
	}
}

// bearerToken reads the Authorization header. Websocket handshakes from a
// browser cannot carry headers, so they may pass ?token= instead.
func bearerToken(ctx *fiber.Ctx) (string, error) {
	header := ctx.Get(fiber.HeaderAuthorization)
	if header == "" {
		if q := ctx.Query("token"); q != "" && websocket.IsWebSocketUpgrade(ctx) {
			return q, nil
		}
		return "", errNoCredentials
	}
	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok {
		return "", errNotBearer
	}
	if token == "" {
		return "", errEmptyToken
	}
	return token, nil
}

func unauthorized(ctx *fiber.Ctx, msg string) error {
	return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": msg})
}
