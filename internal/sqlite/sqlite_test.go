package sqlite

import (
	"path/filepath"
	"testing"
)

func TestDriverInfo(t *testing.T) {
	info := GetInfo()

	if info.DriverName == "" || info.DriverType == "" || info.Package == "" {
		t.Errorf("incomplete driver info: %+v", info)
	}
	if info.DriverName != DriverName() {
		t.Errorf("DriverName mismatch: info=%s, func=%s", info.DriverName, DriverName())
	}
	if info.IsCGO != IsCGO() {
		t.Errorf("IsCGO mismatch: info=%v, func=%v", info.IsCGO, IsCGO())
	}

	t.Logf("SQLite driver: %s (%s) from %s", info.DriverName, info.DriverType, info.Package)
}

func TestOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE cells (mask INTEGER PRIMARY KEY, glyph TEXT)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO cells (mask, glyph) VALUES (?, ?)`, 3, "⠃"); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	var glyph string
	if err := db.QueryRow(`SELECT glyph FROM cells WHERE mask = 3`).Scan(&glyph); err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if glyph != "⠃" {
		t.Errorf("expected ⠃, got %q", glyph)
	}
}

func TestOpenReadOnly(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE cells (mask INTEGER)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	db.Close()

	ro, err := OpenReadOnly(dbPath)
	if err != nil {
		t.Fatalf("failed to open read-only: %v", err)
	}
	defer ro.Close()

	var n int
	if err := ro.QueryRow(`SELECT COUNT(*) FROM cells`).Scan(&n); err != nil {
		t.Fatalf("read-only query failed: %v", err)
	}
	if _, err := ro.Exec(`INSERT INTO cells (mask) VALUES (1)`); err == nil {
		t.Error("expected write to a read-only database to fail")
	}
}
