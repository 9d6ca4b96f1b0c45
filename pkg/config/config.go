package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/app/engine"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/database"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/enforcer"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/fingerprint"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/incidentlog"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/logger"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/prometheus"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig             `mapstructure:"server"`
	Log         logger.Config            `mapstructure:"log"`
	Metrics     prometheus.MetricsConfig `mapstructure:"metrics"`
	Redis       RedisConfig              `mapstructure:"redis"`
	Database    DatabaseConfig           `mapstructure:"database"`
	Detection   DetectionConfig          `mapstructure:"detection"`
	Engine      engine.Config            `mapstructure:"engine"`
	IncidentLog IncidentLogConfig        `mapstructure:"incident_log"`
	Enforcers   []enforcer.Config        `mapstructure:"enforcers"`
	Interceptor InterceptorConfig        `mapstructure:"interceptor"`
	FileUsed    string                   `mapstructure:"-"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	AdminPort   int    `mapstructure:"admin_port"`
	DecoyPort   int    `mapstructure:"decoy_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
	SecretKey   string `mapstructure:"secret_key"`
	CertFile    string `mapstructure:"cert_file"`
	KeyFile     string `mapstructure:"key_file"`
	BodyLimit   int    `mapstructure:"body_limit"`
	// DisableAuth turns off bearer auth on the admin API. Local use only.
	DisableAuth     bool          `mapstructure:"disable_auth"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowOrigins     []string `mapstructure:"allow_origins"`
	AllowMethods     []string `mapstructure:"allow_methods"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	ExposeHeaders    []string `mapstructure:"expose_headers"`
	MaxAge           string   `mapstructure:"max_age"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type DatabaseConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	database.Config `mapstructure:",squash"`
}

type DetectionConfig struct {
	// SignaturesFile replaces the embedded signature library.
	SignaturesFile string `mapstructure:"signatures_file"`
}

type IncidentLogConfig struct {
	Buffer    incidentlog.Config           `mapstructure:"buffer"`
	Store     incidentlog.StoreConfig      `mapstructure:"store"`
	Exporters []incidentlog.ExporterConfig `mapstructure:"exporters"`
}

type InterceptorConfig struct {
	Enabled      bool                       `mapstructure:"enabled"`
	EnforceGuard bool                       `mapstructure:"enforce_guard"`
	MaxBodyBytes int                        `mapstructure:"max_body_bytes"`
	ScanHeaders  []string                   `mapstructure:"scan_headers"`
	SkipPaths    []string                   `mapstructure:"skip_paths"`
	Resolver     fingerprint.ResolverConfig `mapstructure:"resolver"`
}

var globalConfig Config

// Load reads config.yaml from configPath (then ./config and .), applies env
// overrides such as SERVER_ADMIN_PORT and fills defaults. A missing file is
// not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := defaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.FileUsed = v.ConfigFileUsed()
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	globalConfig = cfg
	return &globalConfig, nil
}

func GetConfig() *Config {
	return &globalConfig
}

// defaultConfig seeds nested component defaults. The dispatcher policy is
// left empty so a configured table replaces the default one instead of being
// merged into it.
func defaultConfig() Config {
	engineCfg := engine.DefaultConfig()
	engineCfg.Dispatcher.Policy = nil
	return Config{
		Metrics: prometheus.DefaultMetricsConfig(),
		Engine:  engineCfg,
		IncidentLog: IncidentLogConfig{
			Buffer: incidentlog.DefaultConfig(),
			Store:  incidentlog.StoreConfig{Type: incidentlog.StoreMemory},
		},
		Interceptor: InterceptorConfig{
			MaxBodyBytes: 1 << 20,
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.admin_port", 8080)
	v.SetDefault("server.decoy_port", 8082)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.body_limit", 8<<20)
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.cors.allow_methods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("server.cors.max_age", "600")
	v.SetDefault("log.level", "info")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "sentinel")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("interceptor.enabled", true)
	v.SetDefault("interceptor.scan_headers", []string{"Referer", "X-Forwarded-Host"})
	v.SetDefault("interceptor.skip_paths", []string{
		"/api/v1/scan", "/api/v1/events", "/ws", "/health", "/__/health", "/docs", "/swagger.json",
	})
}
