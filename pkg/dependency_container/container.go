package dependency_container

import (
	"context"
	"fmt"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/app/engine"
	"github.com/NeuralTrust/TrustSentinel/pkg/common"
	"github.com/NeuralTrust/TrustSentinel/pkg/config"
	"github.com/NeuralTrust/TrustSentinel/pkg/detection/signature"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain"
	handlers "github.com/NeuralTrust/TrustSentinel/pkg/handlers/http"
	wsHandlers "github.com/NeuralTrust/TrustSentinel/pkg/handlers/websocket"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/database"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/enforcer"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/fingerprint"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/incidentlog"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/jwt"
	_ "github.com/NeuralTrust/TrustSentinel/pkg/infra/migrations"
	"github.com/NeuralTrust/TrustSentinel/pkg/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Container struct {
	Engine              *engine.Engine
	IncidentLog         *incidentlog.Buffered
	Enforcers           *enforcer.Set
	RedisClient         *redis.Client
	DB                  *database.DB
	JWTManager          jwt.Manager
	Interceptor         *middleware.Interceptor
	MiddlewareTransport *middleware.Transport
	HandlerTransport    handlers.HandlerTransport
	WSHandlerTransport  wsHandlers.HandlerTransport
}

type ContainerDI struct {
	Cfg    *config.Config
	Logger *logrus.Logger
}

// NewContainer wires every component. Configuration problems surface as
// domain configuration errors so main can refuse to start.
func NewContainer(di ContainerDI) (*Container, error) {
	cfg := di.Cfg
	logger := di.Logger
	c := &Container{}

	if cfg.Server.SecretKey == "" && !cfg.Server.DisableAuth {
		return nil, domain.NewConfigurationError("server", "secret_key is required unless disable_auth is set", nil)
	}

	if cfg.Redis.Enabled {
		client, err := newRedisClient(cfg.Redis)
		if err != nil {
			return nil, err
		}
		c.RedisClient = client
	}

	var gormDB *gorm.DB
	if cfg.Database.Enabled {
		db, err := database.NewDB(logger, &cfg.Database.Config)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.DB = db
		gormDB = db.DB
	}

	library, err := signature.Load(cfg.Detection.SignaturesFile)
	if err != nil {
		c.Close()
		return nil, err
	}

	store, err := incidentlog.NewStore(logger, cfg.IncidentLog.Store, incidentlog.StoresDI{
		Redis: c.RedisClient,
		DB:    gormDB,
	})
	if err != nil {
		c.Close()
		return nil, domain.NewConfigurationError("incident_log", "store", err)
	}
	exporters, err := incidentlog.NewExporters(cfg.IncidentLog.Exporters)
	if err != nil {
		c.Close()
		return nil, domain.NewConfigurationError("incident_log", "exporters", err)
	}
	incidentLog, err := incidentlog.NewBuffered(logger, cfg.IncidentLog.Buffer, store, exporters...)
	if err != nil {
		c.Close()
		return nil, domain.NewConfigurationError("incident_log", "buffer", err)
	}
	c.IncidentLog = incidentLog

	enforcers, err := enforcer.Build(logger, cfg.Enforcers, c.RedisClient)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Enforcers = enforcers

	resolver := fingerprint.NewResolver(cfg.Interceptor.Resolver)
	c.Interceptor = middleware.NewInterceptor(logger, cfg.Interceptor, resolver, enforcers.Guard)

	eng, err := engine.New(engine.Deps{
		Logger:   logger,
		Config:   cfg.Engine,
		Library:  library,
		Enforcer: enforcers.Enforcer,
		Hook:     c.Interceptor,
		Log:      incidentLog,
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Engine = eng

	c.JWTManager = jwt.NewJwtManager(&cfg.Server)

	c.MiddlewareTransport = &middleware.Transport{
		AuthMiddleware:        middleware.NewAdminAuthMiddleware(logger, c.JWTManager, cfg.Server.DisableAuth),
		RecoverMiddleware:     middleware.NewPanicRecoverMiddleware(logger),
		TraceMiddleware:       middleware.NewTraceMiddleware(logger, resolver),
		InterceptorMiddleware: c.Interceptor,
		CORSMiddleware:        middleware.NewCORSGlobalMiddleware(cfg.Server.CORS),
	}

	c.HandlerTransport = &handlers.HandlerTransportDTO{
		GetVersionHandler: handlers.NewGetVersionHandler(logger),

		GetStatusHandler:       handlers.NewGetStatusHandler(logger, eng),
		ListIncidentsHandler:   handlers.NewListIncidentsHandler(logger, eng),
		GetIntelligenceHandler: handlers.NewGetIntelligenceHandler(logger, eng),

		ListProfilesHandler:   handlers.NewListProfilesHandler(logger, eng),
		GetProfileHandler:     handlers.NewGetProfileHandler(logger, eng),
		ReleaseProfileHandler: handlers.NewReleaseProfileHandler(logger, eng),

		DeployHoneypotHandler:   handlers.NewDeployHoneypotHandler(logger, eng),
		GetHoneypotHandler:      handlers.NewGetHoneypotHandler(logger, eng),
		TeardownHoneypotHandler: handlers.NewTeardownHoneypotHandler(logger, eng),

		ScanHandler:          handlers.NewScanHandler(logger, eng),
		TrafficEventHandler:  handlers.NewTrafficEventHandler(logger, eng),
		BehaviorEventHandler: handlers.NewBehaviorEventHandler(logger, eng),

		DecoyHandler: handlers.NewDecoyHandler(logger, eng, common.MaxDecoyDelay),
	}

	c.WSHandlerTransport = &wsHandlers.HandlerTransportDTO{
		IncidentStreamHandler: wsHandlers.NewIncidentStreamHandler(logger, eng),
	}

	return c, nil
}

func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// Start launches the background workers: the incident log writer first so
// the engine's first records have somewhere to go.
func (c *Container) Start() {
	c.IncidentLog.Start()
	c.Engine.Start()
}

// Close stops components in reverse dependency order. It is safe on a
// partially built container.
func (c *Container) Close() {
	if c.Engine != nil {
		c.Engine.Stop()
	}
	if c.IncidentLog != nil {
		c.IncidentLog.Shutdown()
	}
	if c.Enforcers != nil {
		c.Enforcers.Close()
	}
	if c.DB != nil {
		_ = c.DB.Close()
	}
	if c.RedisClient != nil {
		_ = c.RedisClient.Close()
	}
}
