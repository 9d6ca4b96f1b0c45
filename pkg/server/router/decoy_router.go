package router

import (
	handlers "github.com/NeuralTrust/TrustSentinel/pkg/handlers/http"
	"github.com/NeuralTrust/TrustSentinel/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

const DecoyPath = "/decoy/:honeypot_id/*"

type decoyRouter struct {
	middlewareTransport *middleware.Transport
	handlerTransport    handlers.HandlerTransport
}

// NewDecoyRouter serves honeypot resources behind panic recovery only. The
// interceptor is not mounted: the honeypot registry scans decoy payloads
// itself.
func NewDecoyRouter(
	middlewareTransport *middleware.Transport,
	handlerTransport handlers.HandlerTransport,
) ServerRouter {
	return &decoyRouter{
		middlewareTransport: middlewareTransport,
		handlerTransport:    handlerTransport,
	}
}

func (r *decoyRouter) BuildRoutes(router *fiber.App) error {
	handlerTransport, ok := r.handlerTransport.GetTransport().(*handlers.HandlerTransportDTO)
	if !ok {
		return ErrInvalidHandlerTransport
	}

	if r.middlewareTransport.RecoverMiddleware != nil {
		router.Use(r.middlewareTransport.RecoverMiddleware.Middleware())
	}

	router.All(DecoyPath, handlerTransport.DecoyHandler.Handle)
	router.Use(func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNotFound)
	})
	return nil
}
