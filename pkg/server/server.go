package server

import (
	"fmt"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/config"
	"github.com/NeuralTrust/TrustSentinel/pkg/server/router"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const AdminHealthPath = "/__/health"

// Server interface defines the common behavior for all servers
type Server interface {
	Run() error
	Shutdown() error
}

type BaseServer struct {
	Config *config.Config
	Logger *logrus.Logger
	Router *fiber.App
}

func NewBaseServer(config *config.Config, logger *logrus.Logger) *BaseServer {
	bodyLimit := config.Server.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 8 * 1024 * 1024
	}
	r := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		Immutable:             true,
		Network:               fiber.NetworkTCP,
		EnablePrintRoutes:     false,
		BodyLimit:             bodyLimit,
		ReadTimeout:           60 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	r.Server().MaxConnsPerIP = 1024
	r.Server().NoDefaultServerHeader = true

	return &BaseServer{
		Config: config,
		Logger: logger,
		Router: r,
	}
}

// setupHealthCheck adds a health check endpoint to the server
func (s *BaseServer) setupHealthCheck() {
	s.Router.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	s.Router.Get(AdminHealthPath, func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
}

func (s *BaseServer) WithRouters(routers ...router.ServerRouter) *BaseServer {
	for _, r := range routers {
		err := r.BuildRoutes(s.Router)
		if err != nil {
			s.Logger.WithError(err).Error("failed to build routes")
		}
	}
	return s
}

func (s *BaseServer) listen(name string, port int) error {
	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, port)
	s.Logger.WithField("addr", addr).Infof("starting %s server", name)
	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Router.ListenTLS(addr, s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}
	return s.Router.Listen(addr)
}

func (s *BaseServer) Shutdown() error {
	timeout := s.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		return s.Router.Shutdown()
	}
	return s.Router.ShutdownWithTimeout(timeout)
}
