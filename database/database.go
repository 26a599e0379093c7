package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	_ "github.com/go-sql-driver/mysql"

	"safety-poll-service/config"
	"safety-poll-service/models"
)

const (
	// saveAttempts bounds internal retries on a failed insert. Validation
	// and rate-limit errors are never retried; only storage failures are.
	saveAttempts = 2

	retryBackoff = 100 * time.Millisecond
)

// Database is the report store. It exclusively owns SafetyReport records;
// the geo index and aggregation engine hold only references into it.
type Database struct {
	db *sql.DB
}

// NewDatabase opens a connection pool to MySQL.
func NewDatabase(cfg *config.Config) (*Database, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	log.Infof("Database connected successfully to %s:%s/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)

	return &Database{db: db}, nil
}

// NewDatabaseFromConn wraps an existing connection, used by tests.
func NewDatabaseFromConn(db *sql.DB) *Database {
	return &Database{db: db}
}

// DB exposes the underlying handle for wiring.
func (d *Database) DB() *sql.DB {
	return d.db
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// SaveReport assigns an id and submission time to a validated request and
// persists it. The insert is a single independent append; MySQL's
// auto-increment assigns the ordering seq atomically, so concurrent
// submissions never lose writes. On storage failure it retries once, then
// surfaces models.ErrStorageUnavailable.
func (d *Database) SaveReport(ctx context.Context, req models.SubmitPollRequest, submitterRef string) (models.SafetyReport, error) {
	report := models.SafetyReport{
		ID:           uuid.NewString(),
		Location:     req.Location,
		Latitude:     *req.Latitude,
		Longitude:    *req.Longitude,
		IsSafe:       *req.IsSafe,
		Comment:      req.Comment,
		SubmitterRef: submitterRef,
		SubmittedAt:  time.Now().UTC().Truncate(time.Second),
	}

	query := `INSERT INTO safety_reports
		(id, location, latitude, longitude, is_safe, comment, submitter_ref, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var lastErr error
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		res, err := d.db.ExecContext(ctx, query,
			report.ID, report.Location, report.Latitude, report.Longitude,
			report.IsSafe, report.Comment, report.SubmitterRef, report.SubmittedAt)
		if err == nil {
			seq, err := res.LastInsertId()
			if err != nil {
				return models.SafetyReport{}, fmt.Errorf("failed to read insert id: %w", err)
			}
			report.Seq = seq
			return report, nil
		}
		lastErr = err
		log.Warnf("Insert attempt %d/%d failed: %v", attempt, saveAttempts, err)
		if attempt < saveAttempts {
			select {
			case <-ctx.Done():
				return models.SafetyReport{}, ctx.Err()
			case <-time.After(retryBackoff):
			}
		}
	}
	return models.SafetyReport{}, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, lastErr)
}

// GetReportByID returns a single report or models.ErrNotFound.
func (d *Database) GetReportByID(ctx context.Context, id string) (models.SafetyReport, error) {
	query := `SELECT seq, id, location, latitude, longitude, is_safe, comment, submitter_ref, submitted_at
		FROM safety_reports WHERE id = ?`

	var r models.SafetyReport
	err := d.db.QueryRowContext(ctx, query, id).Scan(
		&r.Seq, &r.ID, &r.Location, &r.Latitude, &r.Longitude,
		&r.IsSafe, &r.Comment, &r.SubmitterRef, &r.SubmittedAt)
	if err == sql.ErrNoRows {
		return models.SafetyReport{}, models.ErrNotFound
	}
	if err != nil {
		return models.SafetyReport{}, fmt.Errorf("failed to query report %s: %w", id, err)
	}
	return r, nil
}

// ListReports returns reports newest-first. cursor is the seq of the last
// report of the previous page (0 for the first page); the returned cursor
// is 0 when no more rows remain.
func (d *Database) ListReports(ctx context.Context, f models.ListFilter, limit int, cursor int64) ([]models.SafetyReport, int64, error) {
	var (
		conds []string
		args  []interface{}
	)
	if cursor > 0 {
		conds = append(conds, "seq < ?")
		args = append(args, cursor)
	}
	if f.IsSafe != nil {
		conds = append(conds, "is_safe = ?")
		args = append(args, *f.IsSafe)
	}
	if f.Since != nil {
		conds = append(conds, "submitted_at >= ?")
		args = append(args, *f.Since)
	}
	if f.Until != nil {
		conds = append(conds, "submitted_at <= ?")
		args = append(args, *f.Until)
	}
	if f.Seqs != nil {
		if len(f.Seqs) == 0 {
			return []models.SafetyReport{}, 0, nil
		}
		conds = append(conds, "seq IN ("+placeholders(len(f.Seqs))+")")
		for _, seq := range f.Seqs {
			args = append(args, seq)
		}
	}

	query := `SELECT seq, id, location, latitude, longitude, is_safe, comment, submitter_ref, submitted_at
		FROM safety_reports`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	reports := make([]models.SafetyReport, 0, limit)
	for rows.Next() {
		var r models.SafetyReport
		if err := rows.Scan(&r.Seq, &r.ID, &r.Location, &r.Latitude, &r.Longitude,
			&r.IsSafe, &r.Comment, &r.SubmitterRef, &r.SubmittedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, r)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating reports: %w", err)
	}

	var next int64
	if len(reports) == limit && limit > 0 {
		next = reports[len(reports)-1].Seq
	}
	return reports, next, nil
}

// GetReportsBySeqs bulk-loads reports by their sequence numbers, for
// aggregation. Missing seqs are silently skipped.
func (d *Database) GetReportsBySeqs(ctx context.Context, seqs []int64) ([]models.SafetyReport, error) {
	if len(seqs) == 0 {
		return []models.SafetyReport{}, nil
	}

	query := `SELECT seq, id, location, latitude, longitude, is_safe, comment, submitter_ref, submitted_at
		FROM safety_reports WHERE seq IN (` + placeholders(len(seqs)) + `) ORDER BY seq ASC`

	args := make([]interface{}, len(seqs))
	for i, seq := range seqs {
		args[i] = seq
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports by seqs: %w", err)
	}
	defer rows.Close()

	reports := make([]models.SafetyReport, 0, len(seqs))
	for rows.Next() {
		var r models.SafetyReport
		if err := rows.Scan(&r.Seq, &r.ID, &r.Location, &r.Latitude, &r.Longitude,
			&r.IsSafe, &r.Comment, &r.SubmitterRef, &r.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports by seqs: %w", err)
	}
	return reports, nil
}

// ListIndexRows scans the minimal projection of every report needed to
// rebuild the geo index.
func (d *Database) ListIndexRows(ctx context.Context) ([]models.IndexRow, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT seq, id, latitude, longitude FROM safety_reports ORDER BY seq ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to scan index rows: %w", err)
	}
	defer rows.Close()

	var out []models.IndexRow
	for rows.Next() {
		var row models.IndexRow
		if err := rows.Scan(&row.Seq, &row.ID, &row.Latitude, &row.Longitude); err != nil {
			return nil, fmt.Errorf("failed to scan index row: %w", err)
		}
		out = append(out, row)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating index rows: %w", err)
	}
	return out, nil
}

// GetReportsSince returns reports with seq greater than the given value,
// oldest first, for the live feed broadcast loop.
func (d *Database) GetReportsSince(ctx context.Context, sinceSeq int64) ([]models.SafetyReport, error) {
	query := `SELECT seq, id, location, latitude, longitude, is_safe, comment, submitter_ref, submitted_at
		FROM safety_reports WHERE seq > ? ORDER BY seq ASC`

	rows, err := d.db.QueryContext(ctx, query, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports since %d: %w", sinceSeq, err)
	}
	defer rows.Close()

	var reports []models.SafetyReport
	for rows.Next() {
		var r models.SafetyReport
		if err := rows.Scan(&r.Seq, &r.ID, &r.Location, &r.Latitude, &r.Longitude,
			&r.IsSafe, &r.Comment, &r.SubmitterRef, &r.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}
	return reports, nil
}

// GetLatestReportSeq returns the latest sequence number from the safety_reports table
func (d *Database) GetLatestReportSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := d.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM safety_reports").Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest report seq: %w", err)
	}
	return seq, nil
}

// GetReportCount returns the total number of reports
func (d *Database) GetReportCount(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM safety_reports").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get report count: %w", err)
	}
	return count, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
