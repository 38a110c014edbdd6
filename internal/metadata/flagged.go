package metadata

import "time"

const (
	FlaggedOpen     = "open"
	FlaggedResolved = "resolved"
)

// DiagnosticRow is the row index of a violation that describes a broken rule
// rather than a bad data row.
const DiagnosticRow = -1

// FlaggedItem is a persisted violation awaiting remediation.
type FlaggedItem struct {
	ID           int64     `json:"id"`
	RuleID       int64     `json:"rule_id"`
	RuleName     string    `json:"rule_name"`
	RowIndex     int       `json:"row_index"`
	FieldName    string    `json:"field_name"`
	FieldValue   string    `json:"field_value"`
	ErrorMessage string    `json:"error_message"`
	Status       string    `json:"status"`
	Remediation  string    `json:"remediation"`
	CreatedAt    time.Time `json:"created_at"`
}
