package enforcer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/countermeasure"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const NameNATS = "nats"

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// Publisher is the part of *nats.Conn the alerter needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Alerter delivers alerts only; it is combined with a full Enforcer through
// Multi.
type Alerter interface {
	Alert(ctx context.Context, payload countermeasure.AlertPayload) error
}

// NATSAlerter publishes alert payloads on a subject, one message per alert.
type NATSAlerter struct {
	logger    *logrus.Logger
	publisher Publisher
	subject   string
	conn      *nats.Conn
}

func NewNATSAlerter(logger *logrus.Logger, publisher Publisher, subject string) *NATSAlerter {
	if subject == "" {
		subject = "sentinel.alerts"
	}
	return &NATSAlerter{logger: logger, publisher: publisher, subject: subject}
}

// DialNATSAlerter connects to the server and owns the connection.
func DialNATSAlerter(logger *logrus.Logger, cfg NATSConfig) (*NATSAlerter, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("trust-sentinel"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.WithField("url", c.ConnectedUrl()).Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	a := NewNATSAlerter(logger, nc, cfg.Subject)
	a.conn = nc
	return a, nil
}

func (a *NATSAlerter) Alert(_ context.Context, payload countermeasure.AlertPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	subject := a.subject + "." + payload.Severity.String()
	if err := a.publisher.Publish(subject, data); err != nil {
		return fmt.Errorf("%w: nats publish: %v", ErrEnforcerUnavailable, err)
	}
	return nil
}

func (a *NATSAlerter) Close() {
	if a.conn != nil {
		if err := a.conn.Drain(); err != nil {
			a.logger.WithError(err).Warn("failed to drain nats connection")
		}
	}
}
