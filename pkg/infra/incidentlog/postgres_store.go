package incidentlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/incident"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const StorePostgres = "postgres"

type recordRow struct {
	ID           string         `gorm:"primaryKey"`
	Type         string         `gorm:"not null"`
	SourceID     string         `gorm:"index"`
	Severity     string         `gorm:"not null"`
	FindingKinds pq.StringArray `gorm:"type:text[]"`
	Payload      []byte         `gorm:"type:jsonb;not null"`
	CreatedAt    time.Time
}

func (recordRow) TableName() string {
	return "incident_records"
}

// PostgresStore persists records in incident_records. Redelivered ids are
// ignored.
type PostgresStore struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewPostgresStore(logger *logrus.Logger, db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) Append(ctx context.Context, record incident.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal incident record: %w", err)
	}
	kinds := make(pq.StringArray, 0, len(record.Findings))
	seen := make(map[string]struct{}, len(record.Findings))
	for _, f := range record.Findings {
		k := string(f.Kind)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		kinds = append(kinds, k)
	}
	row := recordRow{
		ID:           record.ID,
		Type:         string(record.Type),
		SourceID:     record.SourceID,
		Severity:     record.Severity.String(),
		FindingKinds: kinds,
		Payload:      payload,
		CreatedAt:    record.CreatedAt,
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to insert incident record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, n int) ([]incident.Record, error) {
	if n <= 0 {
		return nil, nil
	}
	var rows []recordRow
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query incident records: %w", err)
	}
	out := make([]incident.Record, 0, len(rows))
	for _, row := range rows {
		var record incident.Record
		if err := json.Unmarshal(row.Payload, &record); err != nil {
			s.logger.WithError(err).WithField("record_id", row.ID).Warn("skipping malformed incident record")
			continue
		}
		out = append(out, record)
	}
	return out, nil
}
