// Package index stores generated braille tables in SQLite so entries can be
// looked up by id, print text or glyph across every loaded system.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/FocuswithJustin/braille-lib/core/errors"
	"github.com/FocuswithJustin/braille-lib/core/table"
	"github.com/FocuswithJustin/braille-lib/internal/sqlite"
	"github.com/FocuswithJustin/braille-lib/internal/validation"
)

const schema = `
CREATE TABLE IF NOT EXISTS tables (
	system_id      TEXT NOT NULL,
	name           TEXT NOT NULL,
	system_name    TEXT NOT NULL,
	schema_version TEXT NOT NULL,
	locale         TEXT NOT NULL,
	braille_type   TEXT NOT NULL,
	cell_size      INTEGER NOT NULL,
	generated_at   TEXT NOT NULL,
	entry_count    INTEGER NOT NULL,
	PRIMARY KEY (system_id, name)
);
CREATE TABLE IF NOT EXISTS entries (
	system_id  TEXT NOT NULL,
	table_name TEXT NOT NULL,
	position   INTEGER NOT NULL,
	id         TEXT NOT NULL,
	print      TEXT NOT NULL,
	dots       TEXT NOT NULL,
	braille    TEXT NOT NULL,
	unicode    TEXT NOT NULL,
	fields     TEXT NOT NULL,
	PRIMARY KEY (system_id, table_name, position),
	FOREIGN KEY (system_id, table_name) REFERENCES tables(system_id, name) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS entries_id ON entries(id);
CREATE INDEX IF NOT EXISTS entries_print ON entries(print);
CREATE INDEX IF NOT EXISTS entries_braille ON entries(braille);
`

// Index is an open table index.
type Index struct {
	db *sql.DB
}

// Open opens or creates the index database at path.
func Open(ctx context.Context, path string) (*Index, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.NewIO("create directory for", path, err)
		}
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	// One connection keeps :memory: databases and pragmas consistent.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, errors.NewIO("configure", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.NewIO("create schema in", path, err)
	}
	return &Index{db: db}, nil
}

// OpenReadOnly opens an existing index without creating or migrating it.
func OpenReadOnly(ctx context.Context, path string) (*Index, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.NotFoundError{Resource: "index", ID: path, Err: err}
		}
		return nil, errors.NewIO("stat", path, err)
	}
	db, err := sqlite.OpenReadOnly(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.NewIO("open", path, err)
	}
	return &Index{db: db}, nil
}

// Close closes the database.
func (x *Index) Close() error {
	return x.db.Close()
}

// Load stores doc under name, replacing a table of the same system previously
// loaded with the same name. Tables of other systems are kept. It returns the number of entries stored.
func (x *Index) Load(ctx context.Context, doc *table.Document, name string) (int, error) {
	if err := validation.ValidateFilename(name); err != nil {
		return 0, errors.NewValidation("name", name, err.Error())
	}
	if doc.SystemID != "" {
		if err := validation.ValidateSystemID(doc.SystemID); err != nil {
			return 0, errors.NewValidation("system_id", doc.SystemID, err.Error())
		}
	}
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE system_id = ? AND table_name = ?`, doc.SystemID, name); err != nil {
		return 0, errors.Wrapf(err, "clear table %s", name)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tables WHERE system_id = ? AND name = ?`, doc.SystemID, name); err != nil {
		return 0, errors.Wrapf(err, "clear table %s", name)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO tables
		(name, system_id, system_name, schema_version, locale, braille_type, cell_size, generated_at, entry_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		name, doc.SystemID, doc.SystemName, doc.SchemaVersion, doc.Locale, doc.BrailleType,
		doc.CellSize, doc.GeneratedAt, len(doc.Entries)); err != nil {
		return 0, errors.Wrapf(err, "insert table %s", name)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO entries
		(table_name, position, system_id, id, print, dots, braille, unicode, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, errors.Wrap(err, "prepare entry insert")
	}
	defer stmt.Close()

	for i, e := range doc.Entries {
		raw, err := e.MarshalJSON()
		if err != nil {
			return 0, errors.Wrapf(err, "encode entry %d of %s", i, name)
		}
		dots, _ := e.Get(table.FieldDots)
		if _, err := stmt.ExecContext(ctx, name, i, doc.SystemID,
			text(e, "id"), text(e, "print"), strings.Join(table.Descriptors(dots), " "),
			text(e, table.FieldBraille), text(e, table.FieldUnicode), string(raw)); err != nil {
			return 0, errors.Wrapf(err, "insert entry %d of %s", i, name)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit")
	}
	return len(doc.Entries), nil
}

// LoadFile decodes a generated JSON table and loads it under the file's stem.
// Same-stem files of different systems, such as kana/basic.json and
// ueb/basic.json, are stored side by side.
func (x *Index) LoadFile(ctx context.Context, path string) (string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", 0, &errors.NotFoundError{Resource: "table", ID: path, Err: err}
		}
		return "", 0, errors.NewIO("open", path, err)
	}
	defer f.Close()

	doc, err := table.Decode(f)
	if err != nil {
		return "", 0, errors.WrapParse("JSON", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	n, err := x.Load(ctx, doc, name)
	return name, n, err
}

// Match is one entry found by Lookup.
type Match struct {
	System   string
	Table    string
	Position int
	ID       string
	Print    string
	Dots     string
	Braille  string
	Unicode  string
	Fields   table.Fields
}

// Lookup returns entries whose id, print text or glyph equals query, ordered
// by system, table and position.
func (x *Index) Lookup(ctx context.Context, query string) ([]Match, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT system_id, table_name, position, id, print, dots, braille, unicode, fields
		FROM entries WHERE id = ?1 OR print = ?1 OR braille = ?1
		ORDER BY system_id, table_name, position`, query)
	if err != nil {
		return nil, errors.Wrap(err, "lookup")
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var raw string
		if err := rows.Scan(&m.System, &m.Table, &m.Position, &m.ID, &m.Print, &m.Dots, &m.Braille, &m.Unicode, &raw); err != nil {
			return nil, errors.Wrap(err, "scan entry")
		}
		if err := m.Fields.UnmarshalJSON([]byte(raw)); err != nil {
			return nil, errors.WrapParse("JSON", m.Table, err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// System summarizes the tables loaded for one braille system.
type System struct {
	ID      string
	Name    string
	Tables  int
	Entries int
}

// Systems lists the loaded systems in id order.
func (x *Index) Systems(ctx context.Context) ([]System, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT system_id, MAX(system_name), COUNT(*), SUM(entry_count)
		FROM tables GROUP BY system_id ORDER BY system_id`)
	if err != nil {
		return nil, errors.Wrap(err, "list systems")
	}
	defer rows.Close()

	var systems []System
	for rows.Next() {
		var s System
		if err := rows.Scan(&s.ID, &s.Name, &s.Tables, &s.Entries); err != nil {
			return nil, errors.Wrap(err, "scan system")
		}
		systems = append(systems, s)
	}
	return systems, rows.Err()
}

func text(e table.Fields, key string) string {
	v, ok := e.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
