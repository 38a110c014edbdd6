package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialect hides the differences between the two supported backends: driver
// registration, placeholders, DDL and error codes.
type Dialect interface {
	Name() string
	DriverName() string

	// NewParamBuilder returns a builder that numbers placeholders the way the
	// backend expects.
	NewParamBuilder() ParamBuilder

	// SchemaSQL returns the DDL for the pipeline tables.
	SchemaSQL() string

	TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error)

	// FilterCountExpr counts the rows of a group matching condition.
	FilterCountExpr(condition string) string

	// CreateDatabase makes sure the database exists before it is opened.
	// For SQLite this creates dataDir/name.db.
	CreateDatabase(ctx context.Context, db *sql.DB, name string, dataDir string) error

	// MapError turns driver errors into ErrUniqueViolation or
	// ErrConstraintViolation where it can.
	MapError(err error) error
}

// ParamBuilder collects query arguments and hands out their placeholders.
type ParamBuilder interface {
	Add(v any) string
	Params() []any
	Count() int
}

// NewDialect returns the dialect for driver. Anything but "postgres" is SQLite.
func NewDialect(driver string) Dialect {
	if driver == "postgres" {
		return &PostgresDialect{}
	}
	return &SQLiteDialect{}
}

// paramBuilder numbers placeholders with a fixed prefix: "$" for postgres,
// "?" for SQLite.
type paramBuilder struct {
	prefix string
	params []any
}

func (p *paramBuilder) Add(v any) string {
	p.params = append(p.params, v)
	return fmt.Sprintf("%s%d", p.prefix, len(p.params))
}

func (p *paramBuilder) Params() []any { return p.params }
func (p *paramBuilder) Count() int    { return len(p.params) }
