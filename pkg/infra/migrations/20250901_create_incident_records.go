package migrations

import (
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/database"
	"gorm.io/gorm"
)

func init() {
	database.RegisterMigration(database.Migration{
		ID:   "20250901_create_incident_records",
		Name: "Create incident_records table",

		Up: func(db *gorm.DB) error {
			if err := db.Exec(`
				CREATE TABLE IF NOT EXISTS incident_records (
					id            TEXT PRIMARY KEY,
					type          TEXT NOT NULL,
					source_id     TEXT,
					severity      TEXT NOT NULL,
					finding_kinds TEXT[],
					payload       JSONB NOT NULL,
					created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`).Error; err != nil {
				return err
			}

			if err := db.Exec(`
				CREATE INDEX IF NOT EXISTS idx_incident_records_created_at
				ON incident_records (created_at DESC);
			`).Error; err != nil {
				return err
			}

			return db.Exec(`
				CREATE INDEX IF NOT EXISTS idx_incident_records_source
				ON incident_records (source_id, created_at DESC);
			`).Error
		},

		Down: func(db *gorm.DB) error {
			return db.Exec(`DROP TABLE IF EXISTS incident_records;`).Error
		},
	})
}
