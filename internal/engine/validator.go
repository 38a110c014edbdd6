package engine

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"

	"rulegen-backend/internal/metadata"
)

// Violation is one row that failed a rule, or a single diagnostic row
// (RowIndex -1) when the rule could not be evaluated at all.
type Violation struct {
	RuleID       int64  `json:"rule_id,omitempty"`
	RuleName     string `json:"rule_name"`
	RowIndex     int    `json:"row_index"`
	FieldName    string `json:"field_name,omitempty"`
	FieldValue   string `json:"field_value,omitempty"`
	ErrorMessage string `json:"error_message"`
	Code         string `json:"code,omitempty"`
	Detail       string `json:"detail,omitempty"`
}

// IsDiagnostic reports whether v describes an evaluation failure rather
// than a failing row.
func (v Violation) IsDiagnostic() bool {
	return v.RowIndex == metadata.DiagnosticRow
}

// Validator evaluates one rule condition against every row of a dataset.
type Validator struct {
	RuleName     string
	Condition    string
	ErrorMessage string

	program *vm.Program
	columns []string
	err     error
}

// NewValidator compiles condition. A condition that does not compile still
// yields a usable Validator; Err reports the problem and Validate turns it
// into a diagnostic violation.
func NewValidator(ruleName, condition, errorMessage string) *Validator {
	v := &Validator{RuleName: ruleName, Condition: condition, ErrorMessage: errorMessage}
	v.program, v.columns, v.err = CompileCondition(condition)
	return v
}

// Err returns the compile error of the condition, if any.
func (v *Validator) Err() error { return v.err }

// Columns returns the dataset columns the condition reads, sorted.
func (v *Validator) Columns() []string { return v.columns }

// Validate evaluates the condition for each row. It never panics and never
// fails: problems with the rule itself come back as one diagnostic violation.
func (v *Validator) Validate(ds Dataset) (out []Violation) {
	defer func() {
		if r := recover(); r != nil {
			out = []Violation{v.diagnostic(strings.Join(v.columns, ","), fmt.Sprintf("validator panicked: %v", r))}
		}
	}()

	if v.err != nil {
		return []Violation{v.diagnostic("", v.err.Error())}
	}

	present := make(map[string]bool)
	for _, c := range ds.Columns() {
		present[c] = true
	}
	var missing []string
	for _, c := range v.columns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return []Violation{v.diagnostic(strings.Join(missing, ","), "condition references missing column(s): "+strings.Join(missing, ", "))}
	}

	out = []Violation{}
	for i := 0; i < ds.Len(); i++ {
		row := ds.Row(i)
		env := make(map[string]any, len(row)+4)
		env["True"], env["False"], env["None"] = true, false, nil
		for k, val := range row {
			env[k] = val
		}
		// row always names the whole row, even next to a column called row.
		env["row"] = row

		result, err := expr.Run(v.program, env)
		var code, detail string
		switch ok, isBool := result.(bool); {
		case err != nil:
			code, detail = CodeRuntimeEvaluation, err.Error()
		case !isBool:
			code, detail = CodeRuntimeEvaluation, fmt.Sprintf("condition returned %T, expected bool", result)
		case ok:
			continue
		}
		out = append(out, v.rowViolation(i, row, code, detail))
	}
	return out
}

func (v *Validator) rowViolation(i int, row map[string]any, code, detail string) Violation {
	values := make([]string, len(v.columns))
	for j, c := range v.columns {
		values[j] = formatValue(row[c])
	}
	return Violation{
		RuleName:     v.RuleName,
		RowIndex:     i,
		FieldName:    strings.Join(v.columns, ","),
		FieldValue:   strings.Join(values, ","),
		ErrorMessage: v.ErrorMessage,
		Code:         code,
		Detail:       detail,
	}
}

func (v *Validator) diagnostic(field, detail string) Violation {
	return Violation{
		RuleName:     v.RuleName,
		RowIndex:     metadata.DiagnosticRow,
		FieldName:    field,
		ErrorMessage: v.ErrorMessage,
		Code:         CodeRuntimeEvaluation,
		Detail:       detail,
	}
}

func formatValue(val any) string {
	switch x := val.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// CompileCondition normalises condition and compiles it. It returns the
// program and the dataset columns the condition reads.
func CompileCondition(condition string) (prog *vm.Program, columns []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			prog, columns, err = nil, nil, fmt.Errorf("compile condition: %v", r)
		}
	}()

	normalized := NormalizeCondition(condition)
	if normalized == "" {
		return nil, nil, fmt.Errorf("compile condition: empty condition")
	}

	visitor := newConditionVisitor()
	opts := append([]expr.Option{expr.Patch(visitor)}, helperFunctions...)
	prog, err = expr.Compile(normalized, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("compile condition: %w", err)
	}
	return prog, visitor.columns(), nil
}

var pythonisms = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\bis\s+not\s+None\b`), "!= nil"},
	{regexp.MustCompile(`\bis\s+None\b`), "== nil"},
	{regexp.MustCompile(`\bNone\b`), "nil"},
	{regexp.MustCompile(`\bTrue\b`), "true"},
	{regexp.MustCompile(`\bFalse\b`), "false"},
}

// NormalizeCondition rewrites Python-style literals and identity checks
// outside string literals.
func NormalizeCondition(condition string) string {
	condition = strings.TrimSpace(condition)
	var sb strings.Builder
	var seg strings.Builder
	flush := func() {
		s := seg.String()
		for _, p := range pythonisms {
			s = p.re.ReplaceAllString(s, p.repl)
		}
		sb.WriteString(s)
		seg.Reset()
	}

	var quote rune
	escaped := false
	for _, r := range condition {
		if quote != 0 {
			sb.WriteRune(r)
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote:
				quote = 0
			}
			continue
		}
		if r == '"' || r == '\'' || r == '`' {
			flush()
			quote = r
			sb.WriteRune(r)
			continue
		}
		seg.WriteRune(r)
	}
	flush()
	return sb.String()
}

// conditionVisitor records the identifiers a condition reads. Chained
// comparisons such as 0 <= age <= 120 are expanded by the expr parser.
type conditionVisitor struct {
	idents   map[string]bool
	declared map[string]bool
	callees  map[string]bool
}

func newConditionVisitor() *conditionVisitor {
	return &conditionVisitor{
		idents:   make(map[string]bool),
		declared: make(map[string]bool),
		callees:  make(map[string]bool),
	}
}

func (c *conditionVisitor) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		c.idents[n.Value] = true
	case *ast.VariableDeclaratorNode:
		c.declared[n.Name] = true
	case *ast.CallNode:
		if id, ok := n.Callee.(*ast.IdentifierNode); ok {
			c.callees[id.Value] = true
		}
	}
}

func (c *conditionVisitor) columns() []string {
	out := []string{}
	for name := range c.idents {
		if c.declared[name] || c.callees[name] || reservedIdents[name] || strings.HasPrefix(name, "$") {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

var reservedIdents = map[string]bool{
	"row": true, "True": true, "False": true, "None": true,
	"is_null": true, "not_null": true, "is_numeric": true, "is_date": true,
}

var helperFunctions = []expr.Option{
	expr.Function("is_null", func(params ...any) (any, error) {
		if len(params) != 1 {
			return nil, fmt.Errorf("is_null expects 1 argument, got %d", len(params))
		}
		return isNull(params[0]), nil
	}),
	expr.Function("not_null", func(params ...any) (any, error) {
		if len(params) != 1 {
			return nil, fmt.Errorf("not_null expects 1 argument, got %d", len(params))
		}
		return !isNull(params[0]), nil
	}),
	expr.Function("is_numeric", func(params ...any) (any, error) {
		if len(params) != 1 {
			return nil, fmt.Errorf("is_numeric expects 1 argument, got %d", len(params))
		}
		return isNumeric(params[0]), nil
	}),
	expr.Function("is_date", func(params ...any) (any, error) {
		if len(params) < 1 || len(params) > 2 {
			return nil, fmt.Errorf("is_date expects 1 or 2 arguments, got %d", len(params))
		}
		layouts := dateLayouts
		if len(params) == 2 {
			layout, ok := params[1].(string)
			if !ok {
				return nil, fmt.Errorf("is_date layout must be a string")
			}
			layouts = []string{layout}
		}
		return isDate(params[0], layouts), nil
	}),
}

func isNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case float64:
		return math.IsNaN(x)
	}
	return false
}

func isNumeric(v any) bool {
	switch x := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32:
		return true
	case float64:
		return !math.IsNaN(x)
	case string:
		s := strings.TrimSpace(x)
		if !strings.ContainsAny(s, "0123456789") {
			return false
		}
		_, err := strconv.ParseFloat(s, 64)
		return err == nil
	}
	return false
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05", "01/02/2006"}

func isDate(v any, layouts []string) bool {
	switch x := v.(type) {
	case time.Time:
		return !x.IsZero()
	case string:
		s := strings.TrimSpace(x)
		for _, l := range layouts {
			if _, err := time.Parse(l, s); err == nil {
				return true
			}
		}
	}
	return false
}
