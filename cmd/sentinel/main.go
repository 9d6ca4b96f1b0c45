package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/NeuralTrust/TrustSentinel/pkg/common"
	"github.com/NeuralTrust/TrustSentinel/pkg/config"
	"github.com/NeuralTrust/TrustSentinel/pkg/dependency_container"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/jwt"
	infraLogger "github.com/NeuralTrust/TrustSentinel/pkg/infra/logger"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/prometheus"
	"github.com/NeuralTrust/TrustSentinel/pkg/server"
	"github.com/NeuralTrust/TrustSentinel/pkg/server/router"
	"github.com/NeuralTrust/TrustSentinel/pkg/version"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

//go:generate swag init -g main.go -o ../../docs --parseDependency --parseInternal

// @title						TrustSentinel Admin API
// @version					0.4.0
// @description				Incident detection and response engine: threat status, incidents, source profiles and honeypots.
// @BasePath					/
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
func main() {
	issueToken := flag.String("issue-token", "", "print an operator token for the given name and exit")
	flag.Parse()

	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if *issueToken != "" {
		token, err := jwt.NewJwtManager(&cfg.Server).CreateToken(*issueToken, common.OperatorTokenTTL)
		if err != nil {
			log.Fatalf("failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	logger, closeLogger, err := infraLogger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	prometheus.Initialize(cfg.Metrics)

	logger.WithFields(logrus.Fields{
		"version": version.Version,
		"config":  cfg.FileUsed,
	}).Info("starting " + version.AppName)

	container, err := dependency_container.NewContainer(dependency_container.ContainerDI{
		Cfg:    cfg,
		Logger: logger,
	})
	if err != nil {
		if domain.IsConfigurationError(err) {
			logger.WithError(err).Error("refusing to start with invalid configuration")
		} else {
			logger.WithError(err).Error("failed to initialize dependencies")
		}
		closeLogger()
		os.Exit(1)
	}
	container.Start()

	servers := []server.Server{
		server.NewAdminServer(server.AdminServerDI{
			Config: cfg,
			Logger: logger,
			Routers: []router.ServerRouter{
				router.NewAdminRouter(
					container.MiddlewareTransport,
					container.HandlerTransport,
					container.WSHandlerTransport,
				),
			},
		}),
	}
	if cfg.Server.DecoyPort > 0 {
		servers = append(servers, server.NewDecoyServer(server.DecoyServerDI{
			Config: cfg,
			Logger: logger,
			Routers: []router.ServerRouter{
				router.NewDecoyRouter(container.MiddlewareTransport, container.HandlerTransport),
			},
		}))
	}
	if cfg.Server.MetricsPort > 0 {
		servers = append(servers, server.NewMetricsServer(cfg, logger))
	}

	failed := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv server.Server) {
			if err := srv.Run(); err != nil {
				failed <- err
			}
		}(srv)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("shutting down")
	case err := <-failed:
		logger.WithError(err).Error("server failed")
		exitCode = 1
	}

	var shutdownErr error
	for _, srv := range servers {
		shutdownErr = errors.Join(shutdownErr, srv.Shutdown())
	}
	container.Close()
	if shutdownErr != nil {
		logger.WithError(shutdownErr).Error("error shutting down servers")
		exitCode = 1
	}
	logger.Info("sentinel stopped")
	closeLogger()
	os.Exit(exitCode)
}
