package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"rulegen-backend/internal/metadata"
)

var ruleFields = []string{"rule_name", "rule_description", "rule_condition", "error_message"}

// StripFences removes surrounding whitespace and a markdown code fence.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimSpace(s[len("```json"):])
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimSpace(s[len("```"):])
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSpace(s[:len(s)-len("```")])
	}
	return s
}

// ParseRules turns a raw model response into validated rule contents.
// Strict JSON parsing is tried first; the lossy repair only runs when it
// fails, and repaired reports whether it was needed. Any element that is not
// an object with the four non-empty string fields rejects the whole batch.
func ParseRules(raw string) (rules []metadata.RuleContent, repaired bool, err error) {
	body := StripFences(raw)

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		fixed, ok := repairJSON(body)
		if !ok {
			return nil, false, MalformedResponseError(raw)
		}
		doc, repaired = fixed, true
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, repaired, SchemaError(raw, []ErrorDetail{{Message: "response must be a JSON object with a \"rules\" array"}})
	}
	list, ok := obj["rules"].([]any)
	if !ok {
		return nil, repaired, SchemaError(raw, []ErrorDetail{{Field: "rules", Message: "missing \"rules\" array"}})
	}

	var details []ErrorDetail
	rules = make([]metadata.RuleContent, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			details = append(details, ErrorDetail{Field: fmt.Sprintf("rules[%d]", i), Message: "rule must be an object"})
			continue
		}
		values := make(map[string]string, len(ruleFields))
		for _, f := range ruleFields {
			s, ok := m[f].(string)
			if !ok || strings.TrimSpace(s) == "" {
				details = append(details, ErrorDetail{
					Field:   fmt.Sprintf("rules[%d].%s", i, f),
					Rule:    "required",
					Message: f + " must be a non-empty string",
				})
				continue
			}
			values[f] = s
		}
		rules = append(rules, metadata.RuleContent{
			RuleName:        values["rule_name"],
			RuleDescription: values["rule_description"],
			RuleCondition:   values["rule_condition"],
			ErrorMessage:    values["error_message"],
		})
	}
	if len(details) > 0 {
		return nil, repaired, SchemaError(raw, details)
	}
	return rules, repaired, nil
}

// repairJSON drops backslashes that do not start a valid JSON escape, then
// clips to the outermost object. If that does not parse, the outermost array
// is taken as the rules list.
func repairJSON(s string) (any, bool) {
	s = dropInvalidEscapes(s)

	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		var obj map[string]any
		if json.Unmarshal([]byte(s[start:end+1]), &obj) == nil {
			return obj, true
		}
	}
	if start, end := strings.Index(s, "["), strings.LastIndex(s, "]"); start >= 0 && end > start {
		var arr []any
		if json.Unmarshal([]byte(s[start:end+1]), &arr) == nil {
			return map[string]any{"rules": arr}, true
		}
	}
	return nil, false
}

func dropInvalidEscapes(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			sb.WriteByte(c)
			continue
		}
		if i+1 < len(s) {
			next := s[i+1]
			if strings.IndexByte(`"\/bfnrt`, next) >= 0 {
				sb.WriteByte(c)
				sb.WriteByte(next)
				i++
				continue
			}
			if next == 'u' && i+5 < len(s) && isHex4(s[i+2:i+6]) {
				sb.WriteString(s[i : i+6])
				i += 5
				continue
			}
		}
		// stray backslash, dropped
	}
	return sb.String()
}

func isHex4(s string) bool {
	if len(s) != 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
