package enforcer

import (
	"context"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/countermeasure"
	"github.com/sirupsen/logrus"
)

const NameLog = "log"

// LogEnforcer only records decisions. Useful in shadow mode and as the
// fallback when nothing else is configured.
type LogEnforcer struct {
	logger *logrus.Logger
}

var (
	_ countermeasure.Enforcer           = (*LogEnforcer)(nil)
	_ countermeasure.SessionInvalidator = (*LogEnforcer)(nil)
	_ countermeasure.Releaser           = (*LogEnforcer)(nil)
)

func NewLogEnforcer(logger *logrus.Logger) *LogEnforcer {
	return &LogEnforcer{logger: logger}
}

func (e *LogEnforcer) Block(_ context.Context, sourceID string, duration time.Duration) error {
	e.logger.WithFields(logrus.Fields{
		"source_id": sourceID,
		"duration":  duration.String(),
		"permanent": duration == 0,
	}).Warn("block requested")
	return nil
}

func (e *LogEnforcer) Throttle(_ context.Context, sourceID string, delayMs int) error {
	e.logger.WithFields(logrus.Fields{
		"source_id": sourceID,
		"delay_ms":  delayMs,
	}).Info("throttle requested")
	return nil
}

func (e *LogEnforcer) Alert(_ context.Context, payload countermeasure.AlertPayload) error {
	e.logger.WithFields(logrus.Fields{
		"source_id":   payload.SourceID,
		"severity":    payload.Severity.String(),
		"state":       payload.State,
		"kinds":       payload.Kinds,
		"incident_id": payload.IncidentID,
	}).Error(payload.Reason)
	return nil
}

func (e *LogEnforcer) InvalidateSession(_ context.Context, sourceID string) error {
	e.logger.WithField("source_id", sourceID).Info("session invalidation requested")
	return nil
}

func (e *LogEnforcer) Release(_ context.Context, sourceID string) error {
	e.logger.WithField("source_id", sourceID).Info("release requested")
	return nil
}
