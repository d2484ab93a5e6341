package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenStateDB(t *testing.T) {
	dir := t.TempDir()

	db, err := OpenStateDB(dir)
	if err != nil {
		t.Fatalf("OpenStateDB: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"preferences", "migration_runs"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("Table %s not found: %v", table, err)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, StateDBFile)); err != nil {
		t.Errorf("DB file not created: %v", err)
	}
}

func TestOpenStateDBTwice(t *testing.T) {
	dir := t.TempDir()

	first, err := OpenStateDB(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.Exec(
		"INSERT INTO preferences (key, value, updated_at) VALUES ('k', 'v', 'now')",
	); err != nil {
		t.Fatal(err)
	}
	first.Close()

	second, err := OpenStateDB(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	var v string
	if err := second.QueryRow("SELECT value FROM preferences WHERE key='k'").Scan(&v); err != nil || v != "v" {
		t.Errorf("value after reopen = %q, %v", v, err)
	}
}

func TestOpenAuditDB(t *testing.T) {
	dir := t.TempDir()

	db, err := OpenAuditDB(dir)
	if err != nil {
		t.Fatalf("OpenAuditDB: %v", err)
	}
	defer db.Close()

	var name string
	err = db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='audit_log'",
	).Scan(&name)
	if err != nil {
		t.Error("audit_log table not found")
	}
}

func TestEnsureDataDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")

	if err := EnsureDataDir(path); err != nil {
		t.Fatalf("EnsureDataDir: %v", err)
	}

	for _, d := range []string{path, filepath.Join(path, "exports"), filepath.Join(path, "pki")} {
		if _, err := os.Stat(d); err != nil {
			t.Errorf("Expected directory %s: %v", d, err)
		}
	}
}
