package store

import (
	"context"
	"fmt"
	"sync"

	"rulegen-backend/internal/logger"
	"rulegen-backend/internal/metadata"
)

// ValidatorRepository persists compiled validator artifacts. Artifacts are
// append-only; the newest row per rule wins on read.
type ValidatorRepository struct {
	store *Store
	log   *logger.Logger
	mu    sync.Mutex
}

func NewValidatorRepository(s *Store, log *logger.Logger) *ValidatorRepository {
	return &ValidatorRepository{store: s, log: logger.OrNop(log)}
}

// Store inserts each artifact independently and sets its ID on success.
// Failed rows are logged and skipped. Returns the number stored.
func (r *ValidatorRepository) Store(ctx context.Context, validators []metadata.CompiledValidator) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := 0
	for i := range validators {
		v := &validators[i]
		pb := r.store.Dialect.NewParamBuilder()
		sqlStr := fmt.Sprintf(
			`INSERT INTO validation_functions (file_name, rule_id, rule_name, function_name, rule_description, rule_condition, error_message, code, compile_error)
			 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s) RETURNING id`,
			pb.Add(v.FileName), pb.Add(v.RuleID), pb.Add(v.RuleName), pb.Add(v.FunctionName),
			pb.Add(v.RuleDescription), pb.Add(v.RuleCondition), pb.Add(v.ErrorMessage),
			pb.Add(v.Code), pb.Add(v.CompileError),
		)
		if err := r.store.DB.QueryRowContext(ctx, sqlStr, pb.Params()...).Scan(&v.ID); err != nil {
			r.log.Warn("validator row skipped",
				"code", "PERSISTENCE_ERROR",
				"rule_id", v.RuleID,
				"function_name", v.FunctionName,
				"error", MapError(r.store.Dialect, err),
			)
			continue
		}
		stored++
	}
	return stored
}

// List returns the newest artifact per rule, ordered by rule id. An empty
// fileName returns artifacts for every document.
func (r *ValidatorRepository) List(ctx context.Context, fileName string) ([]metadata.CompiledValidator, error) {
	pb := r.store.Dialect.NewParamBuilder()
	where := ""
	if fileName != "" {
		where = " WHERE file_name = " + pb.Add(fileName)
	}
	sqlStr := `SELECT id, file_name, rule_id, rule_name, function_name, rule_description, rule_condition,
		error_message, code, compile_error, created_at
		FROM validation_functions
		WHERE id IN (SELECT MAX(id) FROM validation_functions` + where + ` GROUP BY rule_id)
		ORDER BY rule_id ASC`

	rows, err := r.store.DB.QueryContext(ctx, sqlStr, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list validators: %w", err)
	}
	defer rows.Close()

	out := []metadata.CompiledValidator{}
	for rows.Next() {
		var v metadata.CompiledValidator
		var created any
		if err := rows.Scan(&v.ID, &v.FileName, &v.RuleID, &v.RuleName, &v.FunctionName,
			&v.RuleDescription, &v.RuleCondition, &v.ErrorMessage, &v.Code, &v.CompileError, &created); err != nil {
			return nil, fmt.Errorf("scan validator: %w", err)
		}
		v.CreatedAt = scanTime(created)
		out = append(out, v)
	}
	return out, rows.Err()
}
