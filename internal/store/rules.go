package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"rulegen-backend/internal/logger"
	"rulegen-backend/internal/metadata"
)

// RuleRepository persists extracted rules. Writes are serialized through a
// gate; reads are not.
type RuleRepository struct {
	store *Store
	log   *logger.Logger
	mu    sync.Mutex
}

func NewRuleRepository(s *Store, log *logger.Logger) *RuleRepository {
	return &RuleRepository{store: s, log: logger.OrNop(log)}
}

// Store truncates and inserts each rule in its own statement. A row that
// fails is logged and skipped; the remaining rows are still written. Returns
// the ids of the rows that were stored, in input order.
func (r *RuleRepository) Store(ctx context.Context, sourceDocument string, rules []metadata.RuleContent) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int64, 0, len(rules))
	for i, rule := range rules {
		t := rule.Truncated()
		pb := r.store.Dialect.NewParamBuilder()
		sqlStr := fmt.Sprintf(
			`INSERT INTO rules (rule_name, rule_description, rule_condition, error_message, source_document) VALUES (%s, %s, %s, %s, %s) RETURNING id`,
			pb.Add(t.RuleName), pb.Add(t.RuleDescription), pb.Add(t.RuleCondition), pb.Add(t.ErrorMessage), pb.Add(sourceDocument),
		)

		var id int64
		if err := r.store.DB.QueryRowContext(ctx, sqlStr, pb.Params()...).Scan(&id); err != nil {
			r.log.Warn("rule row skipped",
				"code", "PERSISTENCE_ERROR",
				"index", i,
				"rule_name", t.RuleName,
				"source_document", sourceDocument,
				"error", MapError(r.store.Dialect, err),
			)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

const ruleColumns = `id, rule_name, rule_description, rule_condition, error_message, source_document, created_at`

// List returns stored rules ordered by id. An empty sourceDocument returns
// every rule.
func (r *RuleRepository) List(ctx context.Context, sourceDocument string) ([]metadata.Rule, error) {
	pb := r.store.Dialect.NewParamBuilder()
	sqlStr := "SELECT " + ruleColumns + " FROM rules"
	if sourceDocument != "" {
		sqlStr += " WHERE source_document = " + pb.Add(sourceDocument)
	}
	sqlStr += " ORDER BY id ASC"

	rows, err := r.store.DB.QueryContext(ctx, sqlStr, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	rules := []metadata.Rule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

// Get returns a single rule by id or ErrNotFound.
func (r *RuleRepository) Get(ctx context.Context, id int64) (*metadata.Rule, error) {
	pb := r.store.Dialect.NewParamBuilder()
	sqlStr := "SELECT " + ruleColumns + " FROM rules WHERE id = " + pb.Add(id)
	rule, err := scanRule(r.store.DB.QueryRowContext(ctx, sqlStr, pb.Params()...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRule(s scanner) (metadata.Rule, error) {
	var rule metadata.Rule
	var created any
	err := s.Scan(&rule.ID, &rule.RuleName, &rule.RuleDescription, &rule.RuleCondition,
		&rule.ErrorMessage, &rule.SourceDocument, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rule, err
		}
		return rule, fmt.Errorf("scan rule: %w", err)
	}
	rule.CreatedAt = scanTime(created)
	return rule, nil
}
