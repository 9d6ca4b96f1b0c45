package enforcer

import (
	"fmt"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/countermeasure"
	"github.com/go-redis/redis/v8"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Name     string                 `mapstructure:"name"`
	Settings map[string]interface{} `mapstructure:"settings"`
}

// Set is the assembled output stage.
type Set struct {
	Enforcer *Multi
	// Guard is nil unless a redis enforcer is configured.
	Guard  Guard
	closer []func()
}

func (s *Set) Close() {
	for _, c := range s.closer {
		c()
	}
}

// Build assembles the configured enforcers. An empty list yields the log
// enforcer. Unknown names and bad settings are configuration errors.
func Build(logger *logrus.Logger, configs []Config, redisClient *redis.Client) (*Set, error) {
	set := &Set{}
	var (
		enforcers []countermeasure.Enforcer
		alerters  []Alerter
	)
	for _, c := range configs {
		switch c.Name {
		case NameLog:
			enforcers = append(enforcers, NewLogEnforcer(logger))
		case NameRedis:
			if redisClient == nil {
				return nil, domain.NewConfigurationError("enforcer", "redis enforcer requires a redis client", nil)
			}
			var cfg RedisConfig
			if err := decode(c.Settings, &cfg); err != nil {
				return nil, domain.NewConfigurationError("enforcer", "redis settings", err)
			}
			e := NewRedisEnforcer(logger, redisClient, cfg)
			enforcers = append(enforcers, e)
			if set.Guard == nil {
				set.Guard = e
			}
		case NameWebhook:
			var cfg WebhookConfig
			if err := decode(c.Settings, &cfg); err != nil {
				return nil, domain.NewConfigurationError("enforcer", "webhook settings", err)
			}
			e, err := NewWebhookEnforcer(logger, cfg, nil, nil)
			if err != nil {
				return nil, domain.NewConfigurationError("enforcer", "webhook settings", err)
			}
			enforcers = append(enforcers, e)
		case NameNATS:
			var cfg NATSConfig
			if err := decode(c.Settings, &cfg); err != nil {
				return nil, domain.NewConfigurationError("enforcer", "nats settings", err)
			}
			a, err := DialNATSAlerter(logger, cfg)
			if err != nil {
				set.Close()
				return nil, domain.NewConfigurationError("enforcer", "nats settings", err)
			}
			alerters = append(alerters, a)
			set.closer = append(set.closer, a.Close)
		default:
			set.Close()
			return nil, domain.NewConfigurationError("enforcer", fmt.Sprintf("unknown enforcer %q", c.Name), nil)
		}
	}
	if len(enforcers) == 0 {
		enforcers = append(enforcers, NewLogEnforcer(logger))
	}
	set.Enforcer = NewMulti(enforcers, alerters...)
	return set, nil
}

// decode accepts duration strings such as "10m" in settings maps.
func decode(settings map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(settings)
}
