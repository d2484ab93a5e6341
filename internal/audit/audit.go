// Package audit records wizard transitions in an append-only log.
// Records form a SHA-256 hash chain per instance so edits are detectable.
package audit

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// EventType categorizes audit log entries.
type EventType string

const (
	EventSourceConnected    EventType = "source_connected"
	EventTargetConnected    EventType = "target_connected"
	EventConnectFailed      EventType = "connect_failed"
	EventSelectionCommitted EventType = "selection_committed"
	EventConverted          EventType = "converted"
	EventConvertFailed      EventType = "convert_failed"
	EventAssignmentsChanged EventType = "assignments_changed"
	EventMigrationStarted   EventType = "migration_started"
	EventMigrationFinished  EventType = "migration_finished"
	EventMigrationFailed    EventType = "migration_failed"
	EventMigrationDeclined  EventType = "migration_declined"
	EventWorstSitesFetched  EventType = "worst_sites_fetched"
	EventSessionReset       EventType = "session_reset"
	EventPreferencesChanged EventType = "preferences_changed"
)

// Entry is one stored audit record.
type Entry struct {
	ID          int64
	Timestamp   time.Time
	SessionUUID string
	RunUUID     string
	Operator    string
	EventType   EventType
	Detail      string
	RecordHash  string
}

// Logger writes tamper-evident audit records to the audit database.
type Logger struct {
	db           *sql.DB
	mu           sync.Mutex
	lastHash     string
	instanceUUID string
	now          func() time.Time
}

// NewLogger creates an audit logger for the given wlanmigrate instance.
func NewLogger(db *sql.DB, instanceUUID string) (*Logger, error) {
	al := &Logger{
		db:           db,
		instanceUUID: instanceUUID,
		now:          time.Now,
	}

	// Continue the chain across restarts
	var lastHash sql.NullString
	err := db.QueryRow(
		"SELECT record_hash FROM audit_log WHERE instance_uuid = ? ORDER BY id DESC LIMIT 1",
		instanceUUID,
	).Scan(&lastHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recovering audit chain: %w", err)
	}
	if lastHash.Valid {
		al.lastHash = lastHash.String
	}

	return al, nil
}

// InstanceUUID returns the instance this logger writes for.
func (al *Logger) InstanceUUID() string { return al.instanceUUID }

// Log appends an audit event. detail is stored as JSON and must never carry credentials.
func (al *Logger) Log(eventType EventType, operator, sessionUUID, runUUID string, detail any) error {
	al.mu.Lock()
	defer al.mu.Unlock()

	detailJSON, err := json.Marshal(detail)
	if err != nil {
		detailJSON = []byte(fmt.Sprintf(`{"error":"failed to marshal detail: %s"}`, err))
	}

	ts := al.now().UTC()
	recordHash := chainHash(al.lastHash, ts.Format(time.RFC3339Nano), string(eventType), operator, string(detailJSON))

	_, err = al.db.Exec(
		`INSERT INTO audit_log (timestamp, instance_uuid, session_uuid, run_uuid, operator, event_type, detail, record_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.Format(time.RFC3339Nano),
		al.instanceUUID,
		sessionUUID,
		runUUID,
		operator,
		string(eventType),
		string(detailJSON),
		recordHash,
	)
	if err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}

	al.lastHash = recordHash
	return nil
}

// chainHash is SHA-256(previousHash + timestamp + eventType + operator + detail).
func chainHash(previous, ts, eventType, operator, detail string) string {
	h := sha256.Sum256([]byte(previous + ts + eventType + operator + detail))
	return hex.EncodeToString(h[:])
}

// Verify checks the hash chain of an instance. It returns the number of
// records checked before the first break.
func Verify(db *sql.DB, instanceUUID string) (bool, int, error) {
	rows, err := db.Query(
		"SELECT timestamp, event_type, operator, detail, record_hash FROM audit_log WHERE instance_uuid = ? ORDER BY id ASC",
		instanceUUID,
	)
	if err != nil {
		return false, 0, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var previousHash string
	count := 0

	for rows.Next() {
		var ts, eventType, operator, detail, recordHash string
		if err := rows.Scan(&ts, &eventType, &operator, &detail, &recordHash); err != nil {
			return false, count, fmt.Errorf("scanning audit row: %w", err)
		}

		if chainHash(previousHash, ts, eventType, operator, detail) != recordHash {
			return false, count, fmt.Errorf("audit chain broken at record %d", count+1)
		}

		previousHash = recordHash
		count++
	}

	return true, count, rows.Err()
}

// List returns the most recent records of an instance, oldest first.
// A limit of zero or less returns everything.
func List(db *sql.DB, instanceUUID string, limit int) ([]Entry, error) {
	query := `SELECT id, timestamp, session_uuid, run_uuid, operator, event_type, detail, record_hash
		FROM audit_log WHERE instance_uuid = ? ORDER BY id DESC`
	args := []any{instanceUUID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts, eventType string
		if err := rows.Scan(&e.ID, &ts, &e.SessionUUID, &e.RunUUID, &e.Operator, &eventType, &e.Detail, &e.RecordHash); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		e.EventType = EventType(eventType)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
