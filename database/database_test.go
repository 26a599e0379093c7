package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jknair0/beforeeach"

	"safety-poll-service/models"
)

var (
	db   *sql.DB
	mock sqlmock.Sqlmock
	d    *Database
)

func setUp() {
	db, mock, _ = sqlmock.New()
	d = NewDatabaseFromConn(db)
}

func tearDown() {
	db.Close()
}

var it = beforeeach.Create(setUp, tearDown)

func submitRequest() models.SubmitPollRequest {
	lat, lng := 18.5204, 73.8567
	isSafe := false
	return models.SubmitPollRequest{
		Location:  "FC Road",
		Latitude:  &lat,
		Longitude: &lng,
		IsSafe:    &isSafe,
		Comment:   "poorly lit at night",
	}
}

func reportColumns() []string {
	return []string{"seq", "id", "location", "latitude", "longitude", "is_safe", "comment", "submitter_ref", "submitted_at"}
}

func TestSaveReport(t *testing.T) {
	it(func() {
		mock.ExpectExec("INSERT INTO safety_reports").
			WithArgs(sqlmock.AnyArg(), "FC Road", 18.5204, 73.8567, false, "poorly lit at night", "device-1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(42, 1))

		report, err := d.SaveReport(context.Background(), submitRequest(), "device-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Seq != 42 {
			t.Errorf("expected seq 42, got %d", report.Seq)
		}
		if report.ID == "" {
			t.Error("expected a generated report id")
		}
		if report.SubmittedAt.IsZero() {
			t.Error("expected a submission timestamp")
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestSaveReportRetriesOnce(t *testing.T) {
	it(func() {
		mock.ExpectExec("INSERT INTO safety_reports").
			WillReturnError(fmt.Errorf("connection reset"))
		mock.ExpectExec("INSERT INTO safety_reports").
			WillReturnResult(sqlmock.NewResult(7, 1))

		report, err := d.SaveReport(context.Background(), submitRequest(), "device-1")
		if err != nil {
			t.Fatalf("expected retry to succeed, got %v", err)
		}
		if report.Seq != 7 {
			t.Errorf("expected seq 7, got %d", report.Seq)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestSaveReportStorageUnavailable(t *testing.T) {
	it(func() {
		mock.ExpectExec("INSERT INTO safety_reports").
			WillReturnError(fmt.Errorf("connection reset"))
		mock.ExpectExec("INSERT INTO safety_reports").
			WillReturnError(fmt.Errorf("connection reset"))

		_, err := d.SaveReport(context.Background(), submitRequest(), "device-1")
		if !errors.Is(err, models.ErrStorageUnavailable) {
			t.Errorf("expected ErrStorageUnavailable, got %v", err)
		}
	})
}

func TestGetReportByID(t *testing.T) {
	it(func() {
		submittedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		mock.ExpectQuery("SELECT (.+) FROM safety_reports WHERE id = (.+)").
			WithArgs("abc-123").
			WillReturnRows(sqlmock.NewRows(reportColumns()).
				AddRow(5, "abc-123", "FC Road", 18.5204, 73.8567, false, "", "device-1", submittedAt))

		report, err := d.GetReportByID(context.Background(), "abc-123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Seq != 5 || report.ID != "abc-123" || report.IsSafe {
			t.Errorf("unexpected report: %+v", report)
		}
	})
}

func TestGetReportByIDNotFound(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT (.+) FROM safety_reports WHERE id = (.+)").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := d.GetReportByID(context.Background(), "missing")
		if !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestListReports(t *testing.T) {
	it(func() {
		testCases := []struct {
			name   string
			filter models.ListFilter
			limit  int
			cursor int64

			rows *sqlmock.Rows

			expectedCount  int
			expectedCursor int64
		}{
			{
				name:   "first page full",
				filter: models.ListFilter{},
				limit:  2,
				rows: sqlmock.NewRows(reportColumns()).
					AddRow(9, "r9", "A", 18.52, 73.85, true, "", "", time.Now()).
					AddRow(8, "r8", "B", 18.52, 73.85, false, "", "", time.Now()),
				expectedCount:  2,
				expectedCursor: 8,
			},
			{
				name:   "cursor page short",
				filter: models.ListFilter{},
				limit:  2,
				cursor: 8,
				rows: sqlmock.NewRows(reportColumns()).
					AddRow(7, "r7", "C", 18.52, 73.85, true, "", "", time.Now()),
				expectedCount:  1,
				expectedCursor: 0,
			},
			{
				name:           "unsafe filter no rows",
				filter:         models.ListFilter{IsSafe: boolPtr(false)},
				limit:          10,
				rows:           sqlmock.NewRows(reportColumns()),
				expectedCount:  0,
				expectedCursor: 0,
			},
		}

		for _, tc := range testCases {
			mock.ExpectQuery("SELECT (.+) FROM safety_reports(.*) ORDER BY seq DESC LIMIT (.+)").
				WillReturnRows(tc.rows)

			reports, next, err := d.ListReports(context.Background(), tc.filter, tc.limit, tc.cursor)
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", tc.name, err)
			}
			if len(reports) != tc.expectedCount {
				t.Errorf("%s: expected %d reports, got %d", tc.name, tc.expectedCount, len(reports))
			}
			if next != tc.expectedCursor {
				t.Errorf("%s: expected cursor %d, got %d", tc.name, tc.expectedCursor, next)
			}
			for i := 1; i < len(reports); i++ {
				if reports[i].Seq >= reports[i-1].Seq {
					t.Errorf("%s: reports not newest-first", tc.name)
				}
			}
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestListReportsEmptySeqFilter(t *testing.T) {
	it(func() {
		// An explicitly empty seq set means an empty bucket; no query runs.
		reports, next, err := d.ListReports(context.Background(), models.ListFilter{Seqs: []int64{}}, 10, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(reports) != 0 || next != 0 {
			t.Errorf("expected empty page, got %d reports cursor %d", len(reports), next)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unexpected query: %v", err)
		}
	})
}

func TestGetReportsBySeqs(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT (.+) FROM safety_reports WHERE seq IN (.+) ORDER BY seq ASC").
			WithArgs(int64(1), int64(3)).
			WillReturnRows(sqlmock.NewRows(reportColumns()).
				AddRow(1, "r1", "A", 18.52, 73.85, true, "", "", time.Now()).
				AddRow(3, "r3", "B", 18.52, 73.85, false, "", "", time.Now()))

		reports, err := d.GetReportsBySeqs(context.Background(), []int64{1, 3})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(reports) != 2 {
			t.Errorf("expected 2 reports, got %d", len(reports))
		}
	})
}

func TestGetReportsBySeqsEmpty(t *testing.T) {
	it(func() {
		reports, err := d.GetReportsBySeqs(context.Background(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(reports) != 0 {
			t.Errorf("expected no reports, got %d", len(reports))
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unexpected query: %v", err)
		}
	})
}

func TestListIndexRows(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT seq, id, latitude, longitude FROM safety_reports ORDER BY seq ASC").
			WillReturnRows(sqlmock.NewRows([]string{"seq", "id", "latitude", "longitude"}).
				AddRow(1, "r1", 18.5204, 73.8567).
				AddRow(2, "r2", 40.7128, -74.0060))

		rows, err := d.ListIndexRows(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(rows))
		}
		if rows[0].Seq != 1 || rows[1].Latitude != 40.7128 {
			t.Errorf("unexpected rows: %+v", rows)
		}
	})
}

func TestGetLatestReportSeq(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT COALESCE\\(MAX\\(seq\\), 0\\) FROM safety_reports").
			WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(17))

		seq, err := d.GetLatestReportSeq(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seq != 17 {
			t.Errorf("expected seq 17, got %d", seq)
		}
	})
}

func boolPtr(b bool) *bool { return &b }
