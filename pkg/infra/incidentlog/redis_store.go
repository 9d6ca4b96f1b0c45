package incidentlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/incident"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	StoreRedis = "redis"

	DefaultRedisKey = "sentinel:incidents"
)

type RedisStoreConfig struct {
	Key       string `mapstructure:"key"`
	MaxLength int64  `mapstructure:"max_length"`
}

// RedisStore keeps the log as a capped list, newest at the head.
type RedisStore struct {
	client *redis.Client
	logger *logrus.Logger
	cfg    RedisStoreConfig
}

func NewRedisStore(logger *logrus.Logger, client *redis.Client, cfg RedisStoreConfig) *RedisStore {
	if cfg.Key == "" {
		cfg.Key = DefaultRedisKey
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 10000
	}
	return &RedisStore{client: client, logger: logger, cfg: cfg}
}

func (s *RedisStore) Append(ctx context.Context, record incident.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal incident record: %w", err)
	}
	if err := s.client.LPush(ctx, s.cfg.Key, data).Err(); err != nil {
		return fmt.Errorf("failed to append incident record: %w", err)
	}
	if err := s.client.LTrim(ctx, s.cfg.Key, 0, s.cfg.MaxLength-1).Err(); err != nil {
		s.logger.WithError(err).Warn("failed to trim incident list")
	}
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, n int) ([]incident.Record, error) {
	if n <= 0 {
		return nil, nil
	}
	values, err := s.client.LRange(ctx, s.cfg.Key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read incident records: %w", err)
	}
	out := make([]incident.Record, 0, len(values))
	for _, v := range values {
		var record incident.Record
		if err := json.Unmarshal([]byte(v), &record); err != nil {
			s.logger.WithError(err).Warn("skipping malformed incident record")
			continue
		}
		out = append(out, record)
	}
	return out, nil
}
