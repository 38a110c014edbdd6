package store

import (
	"context"
	"fmt"
)

// SchemaVersion is the version of the canonical pipeline schema. Bump it
// together with the DDL in both dialects.
const SchemaVersion = 1

// Bootstrap creates the pipeline tables and records the schema version.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.SchemaSQL()); err != nil {
		return fmt.Errorf("bootstrap tables: %w", err)
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if current > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, SchemaVersion)
	}
	if current == SchemaVersion {
		return nil
	}

	pb := s.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("INSERT INTO _schema_version (version) VALUES (%s)", pb.Add(SchemaVersion))
	if _, err := Exec(ctx, s.DB, sqlStr, pb.Params()...); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

// SchemaVersion returns the highest recorded schema version, or 0.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.DB.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM _schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
