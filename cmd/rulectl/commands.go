package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"rulegen-backend/internal/app"
	"rulegen-backend/internal/config"
	"rulegen-backend/internal/engine"
	"rulegen-backend/internal/instrument"
	"rulegen-backend/internal/logger"
)

// openApp loads configuration and wires the pipeline for one command.
func openApp(ctx context.Context) (*app.App, context.Context, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, ctx, err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, ctx, fmt.Errorf("create logger: %w", err)
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, ctx, err
	}
	return a, instrument.WithInstrumenter(ctx, a.Tracer), nil
}

func extractCmd() *cobra.Command {
	var files []string
	var query, source string

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Index documents and extract validation rules from them",
		Long: `Index one or more documents and ask the language model for the
validation rules they describe. The rules are stored under the source
document name (the last file by default).

Examples:
  rulectl extract -f policy.pdf -q "applicant eligibility rules"
  rulectl extract -f a.docx -f b.md -q "limits" --source lending`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(files) == 0 {
				return fmt.Errorf("at least one --file is required")
			}
			a, ctx, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			uploads := make([]engine.UploadFile, 0, len(files))
			for _, path := range files {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				uploads = append(uploads, engine.UploadFile{Name: filepath.Base(path), Content: f})
			}

			upload, handle, err := a.Services.Ingestor.Ingest(ctx, uploads)
			if err != nil {
				return err
			}
			if source == "" {
				source = upload.FileName
			}
			rules, err := a.Services.Extractor.Extract(ctx, handle, source, query)
			if err != nil {
				return err
			}
			return printRuleContents(cmd.OutOrStdout(), rules)
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Document to index (repeatable)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "What rules to extract")
	cmd.Flags().StringVar(&source, "source", "", "Source document name to store the rules under")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func rulesCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List stored rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rules, err := a.Services.Rules.List(ctx, source)
			if err != nil {
				return err
			}
			return printRules(cmd.OutOrStdout(), rules)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Only rules of this source document")
	return cmd
}

func compileCmd() *cobra.Command {
	var source string
	var showCode bool

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile the rules of a document into validators",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			validators, err := a.Services.Compiler.Compile(ctx, source)
			if err != nil {
				return err
			}
			return printValidators(cmd.OutOrStdout(), validators, showCode)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Source document whose rules to compile")
	cmd.Flags().BoolVar(&showCode, "code", false, "Print the generated Go source")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func validateCmd() *cobra.Command {
	var source, csvPath string
	var ruleID int64

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run a document's validators over a CSV file",
		Long: `Run the validators of a source document over a CSV file with a
header row. Violations are stored as flagged items.

Examples:
  rulectl validate --source policy.pdf --csv applicants.csv
  rulectl validate --source policy.pdf --csv applicants.csv --rule 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(csvPath)
			if err != nil {
				return err
			}
			defer f.Close()
			table, err := engine.TableFromCSV(f)
			if err != nil {
				return err
			}

			a, ctx, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var only *int64
			if cmd.Flags().Changed("rule") {
				only = &ruleID
			}
			report, err := a.Services.Runner.Run(ctx, source, table, only)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Source document whose validators to run")
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file with a header row")
	cmd.Flags().Int64Var(&ruleID, "rule", 0, "Only run this rule id")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

func flaggedCmd() *cobra.Command {
	var status string
	var summary bool

	cmd := &cobra.Command{
		Use:   "flagged",
		Short: "List flagged items",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if summary {
				s, err := a.Services.Flagged.Summary(ctx)
				if err != nil {
					return err
				}
				return printSummary(cmd.OutOrStdout(), s)
			}
			items, err := a.Services.Flagged.List(ctx, status)
			if err != nil {
				return err
			}
			return printFlagged(cmd.OutOrStdout(), items)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status: open, resolved")
	cmd.Flags().BoolVar(&summary, "summary", false, "Show counts per rule instead of items")
	return cmd
}

func remediateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remediate <flagged-id>",
		Short: "Generate remediation steps for a flagged item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid flagged id %q", args[0])
			}
			a, ctx, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			text, err := a.Services.Remediator.Remediate(ctx, id)
			if err != nil {
				return err
			}
			if outputFmt == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]any{"flagged_id": id, "remediation": text})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
	return cmd
}
