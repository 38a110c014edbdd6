package engine

import (
	"bytes"
	"context"
	"fmt"
	"go/format"
	"go/token"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"rulegen-backend/internal/instrument"
	"rulegen-backend/internal/logger"
	"rulegen-backend/internal/metadata"
)

var nonIdentRun = regexp.MustCompile(`[^a-z0-9]+`)

// Names that cannot be declared at package level in the generated file.
var reservedFuncNames = map[string]bool{"init": true, "main": true, "engine": true}

// FunctionName derives a Go identifier from a rule name.
func FunctionName(ruleName string) string {
	name := nonIdentRun.ReplaceAllString(strings.ToLower(ruleName), "_")
	if strings.Trim(name, "_") == "" {
		return "rule"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "rule_" + name
	}
	if token.IsKeyword(name) || reservedFuncNames[name] {
		name += "_"
	}
	return name
}

// FunctionNames assigns a unique function name to every rule. Rules are
// expected in ascending id order; the first rule keeps the plain name and
// later collisions get the rule id appended.
func FunctionNames(rules []metadata.Rule) map[int64]string {
	taken := make(map[string]bool, len(rules))
	names := make(map[int64]string, len(rules))
	for _, r := range rules {
		base := FunctionName(r.RuleName)
		name := base
		if taken[name] {
			name = fmt.Sprintf("%s_%d", base, r.ID)
			for n := 2; taken[name]; n++ {
				name = fmt.Sprintf("%s_%d_%d", base, r.ID, n)
			}
		}
		taken[name] = true
		names[r.ID] = name
	}
	return names
}

var sourceTemplate = template.Must(template.New("validator").Parse(`// Code generated by rulegen. DO NOT EDIT.

package validators

import "rulegen-backend/internal/engine"

// {{.FunctionName}} validates rule {{.RuleID}}.{{if .Description}}
// {{.Description}}{{end}}
func {{.FunctionName}}(ds engine.Dataset) []engine.Violation {
	const (
		ruleName  = {{.RuleName}}
		condition = {{.Condition}}
		message   = {{.Message}}
	)
	return engine.NewValidator(ruleName, condition, message).Validate(ds)
}
`))

type sourceData struct {
	FunctionName string
	RuleID       int64
	Description  string
	RuleName     string
	Condition    string
	Message      string
}

// GenerateSource renders the Go source of the validator for rule. Every
// string taken from the rule is emitted as a quoted literal.
func GenerateSource(functionName string, rule metadata.Rule) (string, error) {
	data := sourceData{
		FunctionName: functionName,
		RuleID:       rule.ID,
		Description:  strings.Join(strings.Fields(rule.RuleDescription), " "),
		RuleName:     strconv.Quote(rule.RuleName),
		Condition:    strconv.Quote(rule.RuleCondition),
		Message:      strconv.Quote(rule.ErrorMessage),
	}
	var buf bytes.Buffer
	if err := sourceTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render validator: %w", err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return buf.String(), fmt.Errorf("format validator: %w", err)
	}
	return string(src), nil
}

// Compiler turns stored rules into validator artifacts.
type Compiler struct {
	rules      RuleStore
	validators ValidatorStore
	log        *logger.Logger
}

func NewCompiler(rules RuleStore, validators ValidatorStore, log *logger.Logger) *Compiler {
	return &Compiler{rules: rules, validators: validators, log: logger.OrNop(log)}
}

// Compile builds one artifact per rule of sourceDocument (all rules when
// empty). Artifacts whose condition or source fails carry CompileError; they
// are kept and persisted like the rest. The full list is returned even when
// some rows could not be stored.
func (c *Compiler) Compile(ctx context.Context, sourceDocument string) ([]metadata.CompiledValidator, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "compiler", "compile")
	defer span.End()
	span.SetMetadata("document", sourceDocument)

	rules, err := c.rules.List(ctx, sourceDocument)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("list rules: %w", err)
	}

	names := FunctionNames(rules)
	out := make([]metadata.CompiledValidator, 0, len(rules))
	failed := 0
	for _, r := range rules {
		cv := metadata.CompiledValidator{
			FileName:        r.SourceDocument,
			RuleID:          r.ID,
			RuleName:        r.RuleName,
			FunctionName:    names[r.ID],
			RuleDescription: r.RuleDescription,
			RuleCondition:   r.RuleCondition,
			ErrorMessage:    r.ErrorMessage,
		}

		src, err := GenerateSource(cv.FunctionName, r)
		cv.Code = src
		if err == nil {
			_, _, err = CompileCondition(r.RuleCondition)
		}
		if err != nil {
			cv.CompileError = err.Error()
			failed++
			c.log.Warn("validator did not compile",
				"code", CodeCompileError,
				"rule_id", r.ID,
				"function_name", cv.FunctionName,
				"error", err,
			)
		}
		out = append(out, cv)
	}

	stored := c.validators.Store(ctx, out)
	span.SetMetadata("validators", len(out))
	span.SetMetadata("compile_errors", failed)
	c.log.Info("validators compiled",
		"document", sourceDocument,
		"count", len(out),
		"stored", stored,
		"compile_errors", failed,
	)
	return out, nil
}
