package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &paramBuilder{prefix: "$"}
}

func (d *PostgresDialect) SchemaSQL() string {
	return pgSchemaSQL
}

func (d *PostgresDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = 'public')`,
		tableName,
	).Scan(&exists)
	return exists, err
}

func (d *PostgresDialect) FilterCountExpr(condition string) string {
	return fmt.Sprintf("COUNT(*) FILTER (WHERE %s)", condition)
}

func (d *PostgresDialect) CreateDatabase(ctx context.Context, db *sql.DB, name string, _ string) error {
	if !isValidDBName(name) {
		return fmt.Errorf("invalid database name: %s", name)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", name)); err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}
	return nil
}

// MapError classifies pgconn errors by SQLSTATE.
func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
		case "23502", "23514", "23503":
			return fmt.Errorf("%w: %w", ErrConstraintViolation, err)
		}
	}
	return err
}

// isValidDBName checks that a database name contains only safe characters.
func isValidDBName(name string) bool {
	if len(name) == 0 || len(name) > 63 {
		return false
	}
	for _, c := range name {
		if !((c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_') {
			return false
		}
	}
	return true
}

// --- PostgreSQL DDL ---

const pgSchemaSQL = `
CREATE TABLE IF NOT EXISTS _schema_version (
    version    INT PRIMARY KEY,
    applied_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS rules (
    id               BIGSERIAL PRIMARY KEY,
    rule_name        TEXT NOT NULL CHECK (rule_name <> ''),
    rule_description TEXT NOT NULL CHECK (rule_description <> ''),
    rule_condition   TEXT NOT NULL CHECK (rule_condition <> ''),
    error_message    TEXT NOT NULL CHECK (error_message <> ''),
    source_document  TEXT NOT NULL,
    created_at       TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_rules_source_document ON rules (source_document);

CREATE TABLE IF NOT EXISTS uploads (
    id              BIGSERIAL PRIMARY KEY,
    file_name       TEXT NOT NULL,
    index_reference TEXT NOT NULL,
    created_at      TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS validation_functions (
    id               BIGSERIAL PRIMARY KEY,
    file_name        TEXT NOT NULL,
    rule_id          BIGINT NOT NULL,
    rule_name        TEXT NOT NULL,
    function_name    TEXT NOT NULL,
    rule_description TEXT NOT NULL,
    rule_condition   TEXT NOT NULL,
    error_message    TEXT NOT NULL,
    code             TEXT NOT NULL,
    compile_error    TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_validation_functions_file ON validation_functions (file_name);

CREATE TABLE IF NOT EXISTS flagged_items (
    id            BIGSERIAL PRIMARY KEY,
    rule_id       BIGINT,
    rule_name     TEXT NOT NULL,
    row_index     INT NOT NULL,
    field_name    TEXT NOT NULL DEFAULT '',
    field_value   TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL,
    status        TEXT NOT NULL DEFAULT 'open',
    remediation   TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_flagged_items_status ON flagged_items (status);
`

// Compile-time check
var _ Dialect = (*PostgresDialect)(nil)
