package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wlanmigrate/wlanmigrate/internal/core"
)

// Run statuses stored in migration_runs.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
	RunDiscarded = "discarded" // the session was reset while the call was in flight
)

// Run is one execute request sent to the backend.
type Run struct {
	UUID        string
	SessionUUID string
	DryRun      bool
	SSIDStatus  core.SSIDStatus
	Status      string
	StartedAt   time.Time
	CompletedAt *time.Time
	Services    int
	Assignments int
	Results     json.RawMessage
	ErrorDetail string
}

// RunStore records execute requests in the state database.
type RunStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewRunStore returns a store over a database opened with db.OpenStateDB.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db, now: time.Now}
}

// Start inserts a run in the running state.
func (s *RunStore) Start(r Run) error {
	_, err := s.db.Exec(
		`INSERT INTO migration_runs (uuid, session_uuid, dry_run, ssid_status, status, started_at, services, assignments)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UUID, r.SessionUUID, r.DryRun, string(r.SSIDStatus), RunRunning,
		s.now().UTC().Format(time.RFC3339Nano), r.Services, r.Assignments,
	)
	if err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}
	return nil
}

// Finish closes a run with its final status. results is stored verbatim.
func (s *RunStore) Finish(runUUID, status string, results json.RawMessage, errorDetail string) error {
	if len(results) == 0 {
		results = json.RawMessage(`{}`)
	}
	var detail sql.NullString
	if errorDetail != "" {
		detail = sql.NullString{String: errorDetail, Valid: true}
	}
	res, err := s.db.Exec(
		`UPDATE migration_runs SET status = ?, completed_at = ?, results = ?, error_detail = ? WHERE uuid = ?`,
		status, s.now().UTC().Format(time.RFC3339Nano), string(results), detail, runUUID,
	)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", runUUID)
	}
	return nil
}

// List returns the most recent runs, newest first. A limit of zero or less
// returns everything.
func (s *RunStore) List(limit int) ([]Run, error) {
	query := `SELECT uuid, session_uuid, dry_run, ssid_status, status, started_at, completed_at,
	                 services, assignments, results, error_detail
	          FROM migration_runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var ssidStatus, startedAt, results string
		var completedAt, errorDetail sql.NullString
		if err := rows.Scan(&r.UUID, &r.SessionUUID, &r.DryRun, &ssidStatus, &r.Status, &startedAt,
			&completedAt, &r.Services, &r.Assignments, &results, &errorDetail); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.SSIDStatus = core.SSIDStatus(ssidStatus)
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if completedAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
			r.CompletedAt = &t
		}
		r.Results = json.RawMessage(results)
		r.ErrorDetail = errorDetail.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
