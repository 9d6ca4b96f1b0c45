package enforcer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/countermeasure"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/httpx"
	"github.com/sirupsen/logrus"
)

const NameWebhook = "webhook"

type WebhookConfig struct {
	BaseURL string                `mapstructure:"base_url"`
	Token   string                `mapstructure:"token"`
	Client  httpx.ClientConfig    `mapstructure:"client"`
	Breaker httpx.BreakerSettings `mapstructure:"breaker"`
}

func (c WebhookConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("webhook base_url is required")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("webhook base_url must be http(s): %s", c.BaseURL)
	}
	return nil
}

type webhookAction struct {
	SourceID        string                       `json:"source_id"`
	DurationSeconds int64                        `json:"duration_seconds,omitempty"`
	Permanent       bool                         `json:"permanent,omitempty"`
	DelayMs         int                          `json:"delay_ms,omitempty"`
	Alert           *countermeasure.AlertPayload `json:"alert,omitempty"`
}

// WebhookEnforcer calls an external gateway or firewall API. Calls go
// through a circuit breaker so a dead endpoint fails fast.
type WebhookEnforcer struct {
	logger  *logrus.Logger
	cfg     WebhookConfig
	client  httpx.Client
	breaker httpx.CircuitBreaker
}

var (
	_ countermeasure.Enforcer           = (*WebhookEnforcer)(nil)
	_ countermeasure.SessionInvalidator = (*WebhookEnforcer)(nil)
	_ countermeasure.Releaser           = (*WebhookEnforcer)(nil)
)

func NewWebhookEnforcer(
	logger *logrus.Logger,
	cfg WebhookConfig,
	client httpx.Client,
	breaker httpx.CircuitBreaker,
) (*WebhookEnforcer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if client == nil {
		client = httpx.NewFastHTTPClient(cfg.Client)
	}
	if breaker == nil {
		if cfg.Breaker.Timeout <= 0 {
			cfg.Breaker.Timeout = 30 * time.Second
		}
		breaker = httpx.NewCircuitBreaker(logger, "webhook-enforcer", cfg.Breaker)
	}
	return &WebhookEnforcer{logger: logger, cfg: cfg, client: client, breaker: breaker}, nil
}

func (e *WebhookEnforcer) Block(ctx context.Context, sourceID string, duration time.Duration) error {
	return e.post(ctx, "/block", webhookAction{
		SourceID:        sourceID,
		DurationSeconds: int64(duration.Seconds()),
		Permanent:       duration == 0,
	})
}

func (e *WebhookEnforcer) Throttle(ctx context.Context, sourceID string, delayMs int) error {
	return e.post(ctx, "/throttle", webhookAction{SourceID: sourceID, DelayMs: delayMs})
}

func (e *WebhookEnforcer) Alert(ctx context.Context, payload countermeasure.AlertPayload) error {
	return e.post(ctx, "/alert", webhookAction{SourceID: payload.SourceID, Alert: &payload})
}

func (e *WebhookEnforcer) InvalidateSession(ctx context.Context, sourceID string) error {
	return e.post(ctx, "/sessions/invalidate", webhookAction{SourceID: sourceID})
}

func (e *WebhookEnforcer) Release(ctx context.Context, sourceID string) error {
	return e.post(ctx, "/release", webhookAction{SourceID: sourceID})
}

func (e *WebhookEnforcer) post(ctx context.Context, path string, action webhookAction) error {
	body, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook action: %w", err)
	}
	err = e.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if e.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+e.cfg.Token)
		}
		resp, err := e.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusMultipleChoices {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		}
		return nil
	})
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"path":      path,
			"source_id": action.SourceID,
			"breaker":   e.breaker.State(),
		}).WithError(err).Warn("webhook enforcer call failed")
		return fmt.Errorf("%w: %s: %w", ErrEnforcerUnavailable, path, err)
	}
	return nil
}
