package database

import (
	"database/sql"
	"fmt"

	"github.com/apex/log"
)

// InitSchema creates the necessary database tables if they don't exist
func InitSchema(db *sql.DB) error {
	log.Info("Initializing safety poll database schema...")

	// Append-only: the service never issues UPDATE or DELETE against
	// this table. Corrections are new reports.
	reportsTableSQL := `
	CREATE TABLE IF NOT EXISTS safety_reports(
		seq BIGINT NOT NULL AUTO_INCREMENT,
		id CHAR(36) NOT NULL,
		location VARCHAR(200) NOT NULL,
		latitude DOUBLE NOT NULL,
		longitude DOUBLE NOT NULL,
		is_safe BOOL NOT NULL,
		comment VARCHAR(500) NOT NULL DEFAULT '',
		submitter_ref VARCHAR(128) NOT NULL DEFAULT '',
		submitted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (seq),
		UNIQUE INDEX id_index (id),
		INDEX submitted_at_index (submitted_at),
		INDEX is_safe_index (is_safe)
	)`

	if _, err := db.Exec(reportsTableSQL); err != nil {
		return fmt.Errorf("failed to create safety_reports table: %w", err)
	}
	log.Info("Safety_reports table created/verified")

	return nil
}
