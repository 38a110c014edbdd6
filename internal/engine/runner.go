package engine

import (
	"context"
	"fmt"

	"rulegen-backend/internal/instrument"
	"rulegen-backend/internal/logger"
	"rulegen-backend/internal/metadata"
)

// RuleResult is the outcome of one validator over the dataset.
type RuleResult struct {
	RuleID       int64  `json:"rule_id"`
	RuleName     string `json:"rule_name"`
	FunctionName string `json:"function_name"`
	Violations   int    `json:"violations"`
	CompileError string `json:"compile_error,omitempty"`
}

// RunReport summarises a validation run.
type RunReport struct {
	SourceDocument string       `json:"source_document"`
	Rows           int          `json:"rows"`
	Results        []RuleResult `json:"results"`
	Violations     []Violation  `json:"violations"`
	Flagged        int          `json:"flagged"`
}

// Runner applies a document's validators to a dataset and records the
// violations as flagged items.
type Runner struct {
	compiler   *Compiler
	validators ValidatorStore
	flagged    FlaggedStore
	cache      *ValidatorCache
	log        *logger.Logger
}

func NewRunner(compiler *Compiler, validators ValidatorStore, flagged FlaggedStore, log *logger.Logger) *Runner {
	return &Runner{
		compiler:   compiler,
		validators: validators,
		flagged:    flagged,
		cache:      NewValidatorCache(),
		log:        logger.OrNop(log),
	}
}

// Run validates ds against the stored validators of sourceDocument. When a
// rule of the document has no artifact yet the document is compiled first. A non-nil ruleID restricts the run
// to that rule.
func (r *Runner) Run(ctx context.Context, sourceDocument string, ds Dataset, ruleID *int64) (*RunReport, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "runner", "run")
	defer span.End()
	span.SetMetadata("document", sourceDocument)

	report, err := r.run(ctx, sourceDocument, ds, ruleID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	span.SetMetadata("rows", report.Rows)
	span.SetMetadata("violations", len(report.Violations))
	return report, nil
}

func (r *Runner) run(ctx context.Context, sourceDocument string, ds Dataset, ruleID *int64) (*RunReport, error) {
	if ds == nil {
		return nil, InvalidPayloadError("data is required")
	}

	validators, err := r.validators.List(ctx, sourceDocument)
	if err != nil {
		return nil, fmt.Errorf("list validators: %w", err)
	}
	stale, err := r.uncompiled(ctx, sourceDocument, validators)
	if err != nil {
		return nil, err
	}
	if stale {
		validators, err = r.compiler.Compile(ctx, sourceDocument)
		if err != nil {
			return nil, err
		}
	}
	if ruleID != nil {
		var only []metadata.CompiledValidator
		for _, v := range validators {
			if v.RuleID == *ruleID {
				only = append(only, v)
			}
		}
		if len(only) == 0 {
			return nil, NotFoundError("rule", *ruleID)
		}
		validators = only
	}
	if len(validators) == 0 {
		return nil, NewAppError(CodeNotFound, 404, fmt.Sprintf("No rules found for document %q", sourceDocument))
	}

	report := &RunReport{
		SourceDocument: sourceDocument,
		Rows:           ds.Len(),
		Results:        make([]RuleResult, 0, len(validators)),
		Violations:     []Violation{},
	}
	for _, cv := range validators {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		violations := r.cache.Get(cv.RuleName, cv.RuleCondition, cv.ErrorMessage).Validate(ds)
		for i := range violations {
			violations[i].RuleID = cv.RuleID
		}
		report.Results = append(report.Results, RuleResult{
			RuleID:       cv.RuleID,
			RuleName:     cv.RuleName,
			FunctionName: cv.FunctionName,
			Violations:   len(violations),
			CompileError: cv.CompileError,
		})
		report.Violations = append(report.Violations, violations...)
	}

	if len(report.Violations) > 0 {
		items := make([]metadata.FlaggedItem, len(report.Violations))
		for i, v := range report.Violations {
			msg := v.ErrorMessage
			if v.Detail != "" {
				msg = fmt.Sprintf("%s (%s)", msg, v.Detail)
			}
			items[i] = metadata.FlaggedItem{
				RuleID:       v.RuleID,
				RuleName:     v.RuleName,
				RowIndex:     v.RowIndex,
				FieldName:    v.FieldName,
				FieldValue:   v.FieldValue,
				ErrorMessage: metadata.Truncate(msg, 1000),
				Status:       metadata.FlaggedOpen,
			}
		}
		report.Flagged = r.flagged.Store(ctx, items)
	}

	r.log.Info("dataset validated",
		"document", sourceDocument,
		"rows", report.Rows,
		"rules", len(report.Results),
		"violations", len(report.Violations),
		"flagged", report.Flagged,
	)
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, "data.validated", sourceDocument, map[string]any{
		"rows":       report.Rows,
		"violations": len(report.Violations),
	})
	return report, nil
}

// uncompiled reports whether any rule of sourceDocument has no stored artifact.
func (r *Runner) uncompiled(ctx context.Context, sourceDocument string, validators []metadata.CompiledValidator) (bool, error) {
	rules, err := r.compiler.rules.List(ctx, sourceDocument)
	if err != nil {
		return false, fmt.Errorf("list rules: %w", err)
	}
	compiled := make(map[int64]bool, len(validators))
	for _, v := range validators {
		compiled[v.RuleID] = true
	}
	for _, rule := range rules {
		if !compiled[rule.ID] {
			return true, nil
		}
	}
	return false, nil
}
