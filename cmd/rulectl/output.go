package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"rulegen-backend/internal/engine"
	"rulegen-backend/internal/metadata"
	"rulegen-backend/internal/store"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// clip shortens s for table output.
func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return metadata.Truncate(s, n-3) + "..."
}

func printRuleContents(w io.Writer, rules []metadata.RuleContent) error {
	if outputFmt == "json" {
		return printJSON(w, rules)
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "NAME\tCONDITION\tMESSAGE")
	for _, r := range rules {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.RuleName, clip(r.RuleCondition, 60), clip(r.ErrorMessage, 40))
	}
	return tw.Flush()
}

func printRules(w io.Writer, rules []metadata.Rule) error {
	if outputFmt == "json" {
		return printJSON(w, rules)
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tSOURCE\tNAME\tCONDITION")
	for _, r := range rules {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.ID, r.SourceDocument, r.RuleName, clip(r.RuleCondition, 60))
	}
	return tw.Flush()
}

func printValidators(w io.Writer, validators []metadata.CompiledValidator, showCode bool) error {
	if outputFmt == "json" {
		return printJSON(w, validators)
	}
	if showCode {
		for _, v := range validators {
			if _, err := fmt.Fprintln(w, v.Code); err != nil {
				return err
			}
		}
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "RULE\tFUNCTION\tSTATUS")
	for _, v := range validators {
		status := "ok"
		if v.CompileError != "" {
			status = clip(v.CompileError, 60)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", v.RuleID, v.FunctionName, status)
	}
	return tw.Flush()
}

func printReport(w io.Writer, report *engine.RunReport) error {
	if outputFmt == "json" {
		return printJSON(w, report)
	}
	fmt.Fprintf(w, "Document: %s\nRows: %d\nViolations: %d (flagged %d)\n\n",
		report.SourceDocument, report.Rows, len(report.Violations), report.Flagged)

	tw := newTable(w)
	fmt.Fprintln(tw, "RULE\tFUNCTION\tVIOLATIONS")
	for _, r := range report.Results {
		fmt.Fprintf(tw, "%d\t%s\t%d\n", r.RuleID, r.FunctionName, r.Violations)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(report.Violations) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw = newTable(w)
	fmt.Fprintln(tw, "ROW\tRULE\tFIELD\tVALUE\tMESSAGE")
	for _, v := range report.Violations {
		row := rowLabel(v.RowIndex)
		msg := v.ErrorMessage
		if v.Detail != "" {
			msg += " (" + v.Detail + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", row, v.RuleName, v.FieldName, clip(v.FieldValue, 30), clip(msg, 60))
	}
	return tw.Flush()
}

func rowLabel(row int) string {
	if row == metadata.DiagnosticRow {
		return "-"
	}
	return fmt.Sprint(row)
}

func printFlagged(w io.Writer, items []metadata.FlaggedItem) error {
	if outputFmt == "json" {
		return printJSON(w, items)
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tRULE\tROW\tFIELD\tVALUE\tSTATUS")
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			it.ID, it.RuleName, rowLabel(it.RowIndex), it.FieldName, clip(it.FieldValue, 30), it.Status)
	}
	return tw.Flush()
}

func printSummary(w io.Writer, summary []store.RuleSummary) error {
	if outputFmt == "json" {
		return printJSON(w, summary)
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "RULE\tTOTAL\tOPEN")
	for _, s := range summary {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", s.RuleName, s.Total, s.Open)
	}
	return tw.Flush()
}
