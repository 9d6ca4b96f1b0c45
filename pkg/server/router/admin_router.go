package router

import (
	"errors"
	"time"

	handlers "github.com/NeuralTrust/TrustSentinel/pkg/handlers/http"
	wsHandlers "github.com/NeuralTrust/TrustSentinel/pkg/handlers/websocket"
	"github.com/NeuralTrust/TrustSentinel/pkg/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
)

const (
	IncidentStreamPath = "/ws/incidents"
	SwaggerPath        = "/swagger.json"
)

var (
	ErrInvalidHandlerTransport = errors.New("invalid handler transport")
)

type adminRouter struct {
	middlewareTransport *middleware.Transport
	handlerTransport    handlers.HandlerTransport
	wsHandlerTransport  wsHandlers.HandlerTransport
}

func NewAdminRouter(
	middlewareTransport *middleware.Transport,
	handlerTransport handlers.HandlerTransport,
	wsHandlerTransport wsHandlers.HandlerTransport,
) ServerRouter {
	return &adminRouter{
		middlewareTransport: middlewareTransport,
		handlerTransport:    handlerTransport,
		wsHandlerTransport:  wsHandlerTransport,
	}
}

func (r *adminRouter) BuildRoutes(router *fiber.App) error {

	handlerTransport, ok := r.handlerTransport.GetTransport().(*handlers.HandlerTransportDTO)
	if !ok {
		return ErrInvalidHandlerTransport
	}

	wsHandlerTransport, ok := r.wsHandlerTransport.GetTransport().(*wsHandlers.HandlerTransportDTO)
	if !ok {
		return ErrInvalidHandlerTransport
	}

	if middlewares := r.middlewareTransport.GetMiddlewares(); len(middlewares) > 0 {
		router.Use(middlewares...)
	}

	router.Static(SwaggerPath, "./docs/swagger.json")
	router.Get("/docs/*", swagger.New(swagger.Config{
		URL: SwaggerPath,
	}))

	router.Get("/api/v1/version", handlerTransport.GetVersionHandler.Handle)

	auth := r.middlewareTransport.AuthMiddleware.Middleware()

	v1 := router.Group("/api/v1", auth)
	{
		v1.Get("/status", handlerTransport.GetStatusHandler.Handle)
		v1.Get("/incidents", handlerTransport.ListIncidentsHandler.Handle)
		v1.Get("/intelligence/:source_id", handlerTransport.GetIntelligenceHandler.Handle)

		profiles := v1.Group("/profiles")
		{
			profiles.Get("", handlerTransport.ListProfilesHandler.Handle)
			profiles.Get("/:source_id", handlerTransport.GetProfileHandler.Handle)
			profiles.Post("/:source_id/release", handlerTransport.ReleaseProfileHandler.Handle)
		}

		honeypots := v1.Group("/honeypots")
		{
			honeypots.Post("", handlerTransport.DeployHoneypotHandler.Handle)
			honeypots.Get("/:honeypot_id", handlerTransport.GetHoneypotHandler.Handle)
			honeypots.Delete("/:honeypot_id", handlerTransport.TeardownHoneypotHandler.Handle)
		}

		// Ingest for gateways that cannot embed the interceptor
		v1.Post("/scan", handlerTransport.ScanHandler.Handle)
		events := v1.Group("/events")
		{
			events.Post("/traffic", handlerTransport.TrafficEventHandler.Handle)
			events.Post("/behavior", handlerTransport.BehaviorEventHandler.Handle)
		}
	}

	router.Get(IncidentStreamPath, auth, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}, websocket.New(
		wsHandlerTransport.IncidentStreamHandler.Handle,
		websocket.Config{
			HandshakeTimeout: 15 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	))

	return nil
}
