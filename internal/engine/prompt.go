package engine

import (
	"fmt"
	"strings"

	"rulegen-backend/internal/docindex"
	"rulegen-backend/internal/metadata"
)

const extractionPrompt = `You are a regulatory compliance expert analyzing financial documents.
Extract all necessary data validation rules from the given context in this SPECIFIC JSON format:

{
  "rules": [
    {
      "rule_name": "exact_rule_name",
      "rule_description": "detailed description",
      "rule_condition": "validation logic",
      "error_message": "template message"
    }
  ]
}

Rules should cover:
- Data type validations
- Value range checks
- Cross-field relationships
- Format requirements
- Business logic constraints

Each rule_condition must be a single boolean expression over the dataset's column names
that is true for a valid row, for example: 18 <= age <= 65 and income > 0

Context:
%s

Query: %s

Respond ONLY with valid JSON. No additional text or explanations.`

// BuildExtractionPrompt renders the rule extraction prompt from the
// retrieved chunks and the user's query.
func BuildExtractionPrompt(query string, chunks []docindex.Chunk) string {
	var sb strings.Builder
	for i, ch := range chunks {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		fmt.Fprintf(&sb, "[%s #%d]\n%s", ch.Source, ch.Position, strings.TrimSpace(ch.Text))
	}
	return fmt.Sprintf(extractionPrompt, sb.String(), strings.TrimSpace(query))
}

const remediationPrompt = `You are a data quality analyst. A record failed a validation rule.

Rule: %s
Rule description: %s
Rule condition: %s
Error message: %s

Row index: %d
Field: %s
Value: %s

Explain in markdown why the value violates the rule and list concrete steps to remediate it.`

// BuildRemediationPrompt renders the remediation prompt for one flagged
// item. rule may be nil when the rule no longer exists.
func BuildRemediationPrompt(item *metadata.FlaggedItem, rule *metadata.Rule) string {
	var desc, cond string
	if rule != nil {
		desc, cond = rule.RuleDescription, rule.RuleCondition
	}
	return fmt.Sprintf(remediationPrompt,
		item.RuleName, desc, cond, item.ErrorMessage,
		item.RowIndex, item.FieldName, item.FieldValue)
}
