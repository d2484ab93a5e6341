package widgets

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned by Storage.Read when no document is stored under the key.
var ErrNotFound = errors.New("preference not found")

// Storage persists whole preference documents by key.
type Storage interface {
	Read(key string) ([]byte, error)
	Write(key string, data []byte) error
}

// MemoryStorage keeps documents in process memory.
type MemoryStorage struct {
	mu   sync.Mutex
	docs map[string][]byte
}

// NewMemoryStorage returns an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{docs: make(map[string][]byte)}
}

func (m *MemoryStorage) Read(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStorage) Write(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = append([]byte(nil), data...)
	return nil
}

// SQLStorage keeps documents in the preferences table of the state database.
type SQLStorage struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLStorage returns a storage backed by db, which must carry the preferences table.
func NewSQLStorage(db *sql.DB) *SQLStorage {
	return &SQLStorage{db: db, now: time.Now}
}

func (s *SQLStorage) Read(key string) ([]byte, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM preferences WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying preference %s: %w", key, err)
	}
	return []byte(value), nil
}

func (s *SQLStorage) Write(key string, data []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(data), s.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting preference %s: %w", key, err)
	}
	return nil
}
