package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapError_PG_UniqueViolation(t *testing.T) {
	dialect := &PostgresDialect{}
	pgErr := &pgconn.PgError{
		Code:           "23505",
		Message:        "duplicate key value violates unique constraint \"uploads_pkey\"",
		ConstraintName: "uploads_pkey",
	}
	wrapped := fmt.Errorf("exec: %w", pgErr)

	mapped := MapError(dialect, wrapped)

	if !errors.Is(mapped, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got: %v", mapped)
	}

	// Original pgconn.PgError should still be extractable
	var extracted *pgconn.PgError
	if !errors.As(mapped, &extracted) {
		t.Fatal("expected pgconn.PgError to still be extractable via errors.As")
	}
	if extracted.ConstraintName != "uploads_pkey" {
		t.Fatalf("expected constraint name 'uploads_pkey', got: %s", extracted.ConstraintName)
	}
}

func TestMapError_PG_CheckViolation(t *testing.T) {
	dialect := &PostgresDialect{}
	pgErr := &pgconn.PgError{Code: "23514", ConstraintName: "rules_rule_name_check"}

	mapped := MapError(dialect, pgErr)

	if !errors.Is(mapped, ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got: %v", mapped)
	}
}

func TestMapError_PG_OtherError(t *testing.T) {
	dialect := &PostgresDialect{}
	err := fmt.Errorf("some other error")
	mapped := MapError(dialect, err)
	if mapped != err {
		t.Fatalf("expected same error back, got: %v", mapped)
	}
}

func TestMapError_Nil(t *testing.T) {
	for _, d := range []Dialect{&PostgresDialect{}, &SQLiteDialect{}} {
		if mapped := MapError(d, nil); mapped != nil {
			t.Fatalf("%s: expected nil, got: %v", d.Name(), mapped)
		}
	}
}

func TestMapError_SQLite(t *testing.T) {
	dialect := &SQLiteDialect{}

	unique := MapError(dialect, errors.New("constraint failed: UNIQUE constraint failed: uploads.id (1555)"))
	if !errors.Is(unique, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got: %v", unique)
	}

	check := MapError(dialect, errors.New("constraint failed: CHECK constraint failed: rule_name <> '' (275)"))
	if !errors.Is(check, ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got: %v", check)
	}
}

func TestParamBuilders(t *testing.T) {
	pg := NewDialect("postgres").NewParamBuilder()
	if got := pg.Add("a") + "," + pg.Add("b"); got != "$1,$2" {
		t.Fatalf("postgres placeholders = %q", got)
	}
	lite := NewDialect("sqlite").NewParamBuilder()
	if got := lite.Add("a") + "," + lite.Add("b"); got != "?1,?2" {
		t.Fatalf("sqlite placeholders = %q", got)
	}
	if lite.Count() != 2 || len(lite.Params()) != 2 {
		t.Fatalf("expected 2 params, got %d", lite.Count())
	}
}

func TestFilterCountExpr(t *testing.T) {
	if got := (&PostgresDialect{}).FilterCountExpr("x = 1"); got != "COUNT(*) FILTER (WHERE x = 1)" {
		t.Fatalf("postgres: %s", got)
	}
	if got := (&SQLiteDialect{}).FilterCountExpr("x = 1"); got != "SUM(CASE WHEN x = 1 THEN 1 ELSE 0 END)" {
		t.Fatalf("sqlite: %s", got)
	}
}
