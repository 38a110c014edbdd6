package metadata

import (
	"fmt"
	"time"
)

// Stored column limits, in characters.
const (
	MaxRuleNameLen        = 100
	MaxRuleDescriptionLen = 500
	MaxRuleConditionLen   = 500
	MaxErrorMessageLen    = 200
)

// RuleContent is the model-authored part of a rule, before it has an identity.
type RuleContent struct {
	RuleName        string `json:"rule_name"`
	RuleDescription string `json:"rule_description"`
	RuleCondition   string `json:"rule_condition"`
	ErrorMessage    string `json:"error_message"`
}

// Rule is a persisted validation rule. Rows are never updated; a new
// extraction run appends new rows.
type Rule struct {
	ID             int64     `json:"id"`
	SourceDocument string    `json:"source_document"`
	CreatedAt      time.Time `json:"created_at"`
	RuleContent
}

// Validate checks that all four content fields are present.
func (c RuleContent) Validate() error {
	switch {
	case c.RuleName == "":
		return fmt.Errorf("rule_name is required")
	case c.RuleDescription == "":
		return fmt.Errorf("rule_description is required")
	case c.RuleCondition == "":
		return fmt.Errorf("rule_condition is required")
	case c.ErrorMessage == "":
		return fmt.Errorf("error_message is required")
	}
	return nil
}

// Truncated returns a copy clipped to the stored column limits.
func (c RuleContent) Truncated() RuleContent {
	return RuleContent{
		RuleName:        Truncate(c.RuleName, MaxRuleNameLen),
		RuleDescription: Truncate(c.RuleDescription, MaxRuleDescriptionLen),
		RuleCondition:   Truncate(c.RuleCondition, MaxRuleConditionLen),
		ErrorMessage:    Truncate(c.ErrorMessage, MaxErrorMessageLen),
	}
}

// Truncate clips s to at most n runes.
func Truncate(s string, n int) string {
	if n < 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
