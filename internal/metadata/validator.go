package metadata

import "time"

// CompiledValidator is the generated artifact for one Rule. It is derived
// entirely from the rule's content and can be regenerated at any time.
type CompiledValidator struct {
	ID              int64     `json:"id,omitempty"`
	FileName        string    `json:"file_name"`
	RuleID          int64     `json:"rule_id"`
	RuleName        string    `json:"rule_name"`
	FunctionName    string    `json:"function_name"`
	RuleDescription string    `json:"rule_description"`
	RuleCondition   string    `json:"rule_condition"`
	ErrorMessage    string    `json:"error_message"`
	Code            string    `json:"code"`
	CompileError    string    `json:"compile_error,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
}
