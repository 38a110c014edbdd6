package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &paramBuilder{prefix: "?"}
}

func (d *SQLiteDialect) SchemaSQL() string {
	return sqliteSchemaSQL
}

func (d *SQLiteDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?1",
		tableName,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *SQLiteDialect) FilterCountExpr(condition string) string {
	return fmt.Sprintf("SUM(CASE WHEN %s THEN 1 ELSE 0 END)", condition)
}

func (d *SQLiteDialect) CreateDatabase(_ context.Context, _ *sql.DB, name string, dataDir string) error {
	if dataDir == "" {
		dataDir = "./data"
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, name+".db")
	// Create the file if it doesn't exist
	f, err := os.OpenFile(dbPath, os.O_CREATE|os.O_RDONLY, 0644)
	if err != nil {
		return fmt.Errorf("create database file: %w", err)
	}
	return f.Close()
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "constraint failed: UNIQUE") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	if strings.Contains(errStr, "constraint failed") {
		return fmt.Errorf("%w: %w", ErrConstraintViolation, err)
	}
	return err
}

// --- SQLite DDL ---

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS _schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS rules (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    rule_name        TEXT NOT NULL CHECK (rule_name <> ''),
    rule_description TEXT NOT NULL CHECK (rule_description <> ''),
    rule_condition   TEXT NOT NULL CHECK (rule_condition <> ''),
    error_message    TEXT NOT NULL CHECK (error_message <> ''),
    source_document  TEXT NOT NULL,
    created_at       TEXT DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_rules_source_document ON rules (source_document);

CREATE TABLE IF NOT EXISTS uploads (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    file_name       TEXT NOT NULL,
    index_reference TEXT NOT NULL,
    created_at      TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS validation_functions (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    file_name        TEXT NOT NULL,
    rule_id          INTEGER NOT NULL,
    rule_name        TEXT NOT NULL,
    function_name    TEXT NOT NULL,
    rule_description TEXT NOT NULL,
    rule_condition   TEXT NOT NULL,
    error_message    TEXT NOT NULL,
    code             TEXT NOT NULL,
    compile_error    TEXT NOT NULL DEFAULT '',
    created_at       TEXT DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_validation_functions_file ON validation_functions (file_name);

CREATE TABLE IF NOT EXISTS flagged_items (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    rule_id       INTEGER,
    rule_name     TEXT NOT NULL,
    row_index     INTEGER NOT NULL,
    field_name    TEXT NOT NULL DEFAULT '',
    field_value   TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL,
    status        TEXT NOT NULL DEFAULT 'open',
    remediation   TEXT NOT NULL DEFAULT '',
    created_at    TEXT DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_flagged_items_status ON flagged_items (status);
`

// Compile-time check
var _ Dialect = (*SQLiteDialect)(nil)
