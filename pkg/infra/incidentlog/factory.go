package incidentlog

import (
	"fmt"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/incident"
	"github.com/go-redis/redis/v8"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type ExporterConfig struct {
	Name     string                 `mapstructure:"name"`
	Settings map[string]interface{} `mapstructure:"settings"`
}

type StoreConfig struct {
	Type     string                 `mapstructure:"type"`
	Settings map[string]interface{} `mapstructure:"settings"`
}

// StoresDI carries the shared clients a store may need.
type StoresDI struct {
	Redis *redis.Client
	DB    *gorm.DB
}

func NewStore(logger *logrus.Logger, cfg StoreConfig, di StoresDI) (incident.Store, error) {
	switch cfg.Type {
	case "", StoreMemory:
		var settings struct {
			Capacity int `mapstructure:"capacity"`
		}
		if err := mapstructure.Decode(cfg.Settings, &settings); err != nil {
			return nil, fmt.Errorf("invalid memory store config: %w", err)
		}
		if settings.Capacity <= 0 {
			settings.Capacity = 10000
		}
		return NewMemoryStore(settings.Capacity), nil
	case StoreRedis:
		if di.Redis == nil {
			return nil, fmt.Errorf("redis store requires a redis client")
		}
		var settings RedisStoreConfig
		if err := mapstructure.Decode(cfg.Settings, &settings); err != nil {
			return nil, fmt.Errorf("invalid redis store config: %w", err)
		}
		return NewRedisStore(logger, di.Redis, settings), nil
	case StorePostgres:
		if di.DB == nil {
			return nil, fmt.Errorf("postgres store requires a database connection")
		}
		return NewPostgresStore(logger, di.DB), nil
	default:
		return nil, fmt.Errorf("unknown incident store: %s", cfg.Type)
	}
}

func NewExporters(configs []ExporterConfig) ([]incident.Exporter, error) {
	exporters := make([]incident.Exporter, 0, len(configs))
	for _, c := range configs {
		switch c.Name {
		case ExporterKafka:
			exp, err := NewKafkaExporter(c.Settings)
			if err != nil {
				closeAll(exporters)
				return nil, err
			}
			exporters = append(exporters, exp)
		default:
			closeAll(exporters)
			return nil, fmt.Errorf("unknown exporter: %s", c.Name)
		}
	}
	return exporters, nil
}

func closeAll(exporters []incident.Exporter) {
	for _, e := range exporters {
		e.Close()
	}
}
