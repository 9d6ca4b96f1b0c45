package enforcer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/countermeasure"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	NameRedis = "redis"

	BlockKeyPattern    = "%s:block:%s"
	ThrottleKeyPattern = "%s:throttle:%s"
	RevokedKeyPattern  = "%s:revoked:%s"
	AlertChannel       = "%s:alerts"
)

type RedisConfig struct {
	Prefix      string        `mapstructure:"prefix"`
	ThrottleTTL time.Duration `mapstructure:"throttle_ttl"`
	RevokeTTL   time.Duration `mapstructure:"revoke_ttl"`
}

// Guard answers the enforcement questions a gateway asks per request.
//
//go:generate mockery --name=Guard --dir=. --output=./mocks --filename=guard_mock.go --case=underscore --with-expecter
type Guard interface {
	IsBlocked(ctx context.Context, sourceID string) (bool, error)
	ThrottleDelay(ctx context.Context, sourceID string) (time.Duration, error)
}

// RedisEnforcer writes block and throttle keys that gateways read. Keys
// carry their own TTL, so expiry needs no cleanup job.
type RedisEnforcer struct {
	client *redis.Client
	logger *logrus.Logger
	cfg    RedisConfig
}

var (
	_ countermeasure.Enforcer           = (*RedisEnforcer)(nil)
	_ countermeasure.SessionInvalidator = (*RedisEnforcer)(nil)
	_ countermeasure.Releaser           = (*RedisEnforcer)(nil)
	_ Guard                             = (*RedisEnforcer)(nil)
)

func NewRedisEnforcer(logger *logrus.Logger, client *redis.Client, cfg RedisConfig) *RedisEnforcer {
	if cfg.Prefix == "" {
		cfg.Prefix = "sentinel"
	}
	if cfg.ThrottleTTL <= 0 {
		cfg.ThrottleTTL = 10 * time.Minute
	}
	if cfg.RevokeTTL <= 0 {
		cfg.RevokeTTL = time.Hour
	}
	return &RedisEnforcer{client: client, logger: logger, cfg: cfg}
}

func (e *RedisEnforcer) blockKey(sourceID string) string {
	return fmt.Sprintf(BlockKeyPattern, e.cfg.Prefix, sourceID)
}

func (e *RedisEnforcer) throttleKey(sourceID string) string {
	return fmt.Sprintf(ThrottleKeyPattern, e.cfg.Prefix, sourceID)
}

func (e *RedisEnforcer) Block(ctx context.Context, sourceID string, duration time.Duration) error {
	value := "permanent"
	if duration > 0 {
		value = strconv.FormatInt(int64(duration.Seconds()), 10)
	}
	if err := e.client.Set(ctx, e.blockKey(sourceID), value, duration).Err(); err != nil {
		return fmt.Errorf("%w: block %s: %v", ErrEnforcerUnavailable, sourceID, err)
	}
	return nil
}

func (e *RedisEnforcer) Throttle(ctx context.Context, sourceID string, delayMs int) error {
	err := e.client.Set(ctx, e.throttleKey(sourceID), strconv.Itoa(delayMs), e.cfg.ThrottleTTL).Err()
	if err != nil {
		return fmt.Errorf("%w: throttle %s: %v", ErrEnforcerUnavailable, sourceID, err)
	}
	return nil
}

func (e *RedisEnforcer) Alert(ctx context.Context, payload countermeasure.AlertPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	if err := e.client.Publish(ctx, fmt.Sprintf(AlertChannel, e.cfg.Prefix), data).Err(); err != nil {
		return fmt.Errorf("%w: alert %s: %v", ErrEnforcerUnavailable, payload.SourceID, err)
	}
	return nil
}

func (e *RedisEnforcer) InvalidateSession(ctx context.Context, sourceID string) error {
	key := fmt.Sprintf(RevokedKeyPattern, e.cfg.Prefix, sourceID)
	if err := e.client.Set(ctx, key, "1", e.cfg.RevokeTTL).Err(); err != nil {
		return fmt.Errorf("%w: revoke %s: %v", ErrEnforcerUnavailable, sourceID, err)
	}
	return nil
}

func (e *RedisEnforcer) Release(ctx context.Context, sourceID string) error {
	if err := e.client.Del(ctx, e.blockKey(sourceID), e.throttleKey(sourceID)).Err(); err != nil {
		return fmt.Errorf("%w: release %s: %v", ErrEnforcerUnavailable, sourceID, err)
	}
	e.logger.WithField("source_id", sourceID).Info("enforcement keys released")
	return nil
}

func (e *RedisEnforcer) IsBlocked(ctx context.Context, sourceID string) (bool, error) {
	n, err := e.client.Exists(ctx, e.blockKey(sourceID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEnforcerUnavailable, err)
	}
	return n > 0, nil
}

func (e *RedisEnforcer) ThrottleDelay(ctx context.Context, sourceID string) (time.Duration, error) {
	value, err := e.client.Get(ctx, e.throttleKey(sourceID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrEnforcerUnavailable, err)
	}
	ms, err := strconv.Atoi(value)
	if err != nil || ms < 0 {
		e.logger.WithField("source_id", sourceID).Warn("ignoring malformed throttle key")
		return 0, nil
	}
	return time.Duration(ms) * time.Millisecond, nil
}
