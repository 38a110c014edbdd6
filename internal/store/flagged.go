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

// FlaggedRepository persists violations for later remediation.
type FlaggedRepository struct {
	store *Store
	log   *logger.Logger
	mu    sync.Mutex
}

func NewFlaggedRepository(s *Store, log *logger.Logger) *FlaggedRepository {
	return &FlaggedRepository{store: s, log: logger.OrNop(log)}
}

// Store inserts each item with status open and sets its ID. Failed rows are
// logged and skipped. Returns the number stored.
func (r *FlaggedRepository) Store(ctx context.Context, items []metadata.FlaggedItem) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := 0
	for i := range items {
		it := &items[i]
		if it.Status == "" {
			it.Status = metadata.FlaggedOpen
		}
		var ruleID any
		if it.RuleID != 0 {
			ruleID = it.RuleID
		}
		pb := r.store.Dialect.NewParamBuilder()
		sqlStr := fmt.Sprintf(
			`INSERT INTO flagged_items (rule_id, rule_name, row_index, field_name, field_value, error_message, status)
			 VALUES (%s, %s, %s, %s, %s, %s, %s) RETURNING id`,
			pb.Add(ruleID), pb.Add(it.RuleName), pb.Add(it.RowIndex), pb.Add(it.FieldName),
			pb.Add(it.FieldValue), pb.Add(it.ErrorMessage), pb.Add(it.Status),
		)
		if err := r.store.DB.QueryRowContext(ctx, sqlStr, pb.Params()...).Scan(&it.ID); err != nil {
			r.log.Warn("flagged row skipped",
				"code", "PERSISTENCE_ERROR",
				"rule_name", it.RuleName,
				"row_index", it.RowIndex,
				"error", MapError(r.store.Dialect, err),
			)
			continue
		}
		stored++
	}
	return stored
}

const flaggedColumns = `id, rule_id, rule_name, row_index, field_name, field_value, error_message, status, remediation, created_at`

// List returns flagged items, optionally filtered by status, ordered by id.
func (r *FlaggedRepository) List(ctx context.Context, status string) ([]metadata.FlaggedItem, error) {
	pb := r.store.Dialect.NewParamBuilder()
	sqlStr := "SELECT " + flaggedColumns + " FROM flagged_items"
	if status != "" {
		sqlStr += " WHERE status = " + pb.Add(status)
	}
	sqlStr += " ORDER BY id ASC"

	rows, err := r.store.DB.QueryContext(ctx, sqlStr, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list flagged items: %w", err)
	}
	defer rows.Close()

	items := []metadata.FlaggedItem{}
	for rows.Next() {
		it, err := scanFlagged(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Get returns one flagged item or ErrNotFound.
func (r *FlaggedRepository) Get(ctx context.Context, id int64) (*metadata.FlaggedItem, error) {
	pb := r.store.Dialect.NewParamBuilder()
	sqlStr := "SELECT " + flaggedColumns + " FROM flagged_items WHERE id = " + pb.Add(id)
	it, err := scanFlagged(r.store.DB.QueryRowContext(ctx, sqlStr, pb.Params()...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("flagged item %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// SetRemediation stores remediation text for an item.
func (r *FlaggedRepository) SetRemediation(ctx context.Context, id int64, remediation string) error {
	return r.update(ctx, id, "remediation", remediation)
}

// SetStatus changes the status of an item.
func (r *FlaggedRepository) SetStatus(ctx context.Context, id int64, status string) error {
	if status != metadata.FlaggedOpen && status != metadata.FlaggedResolved {
		return fmt.Errorf("invalid status %q", status)
	}
	return r.update(ctx, id, "status", status)
}

func (r *FlaggedRepository) update(ctx context.Context, id int64, column, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pb := r.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("UPDATE flagged_items SET %s = %s WHERE id = %s", column, pb.Add(value), pb.Add(id))
	n, err := Exec(ctx, r.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return MapError(r.store.Dialect, err)
	}
	if n == 0 {
		return fmt.Errorf("flagged item %d: %w", id, ErrNotFound)
	}
	return nil
}

// RuleSummary counts flagged items per rule.
type RuleSummary struct {
	RuleName string `json:"rule_name"`
	Total    int64  `json:"total"`
	Open     int64  `json:"open"`
}

// Summary groups flagged items by rule name, most violations first.
func (r *FlaggedRepository) Summary(ctx context.Context) ([]RuleSummary, error) {
	sqlStr := fmt.Sprintf(
		"SELECT rule_name, COUNT(*) AS total, %s AS open_count FROM flagged_items GROUP BY rule_name ORDER BY total DESC, rule_name ASC",
		r.store.Dialect.FilterCountExpr("status = 'open'"),
	)
	rows, err := QueryRows(ctx, r.store.DB, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("flagged summary: %w", err)
	}
	out := make([]RuleSummary, 0, len(rows))
	for _, row := range rows {
		name, _ := row["rule_name"].(string)
		out = append(out, RuleSummary{
			RuleName: name,
			Total:    toInt64(row["total"]),
			Open:     toInt64(row["open_count"]),
		})
	}
	return out, nil
}

func scanFlagged(s scanner) (metadata.FlaggedItem, error) {
	var it metadata.FlaggedItem
	var ruleID sql.NullInt64
	var created any
	err := s.Scan(&it.ID, &ruleID, &it.RuleName, &it.RowIndex, &it.FieldName, &it.FieldValue,
		&it.ErrorMessage, &it.Status, &it.Remediation, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return it, err
		}
		return it, fmt.Errorf("scan flagged item: %w", err)
	}
	it.RuleID = ruleID.Int64
	it.CreatedAt = scanTime(created)
	return it, nil
}
