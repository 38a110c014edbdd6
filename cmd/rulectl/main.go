// rulectl runs the rule pipeline from the command line against the same
// database and configuration as the server.
//
// Usage:
//
//	rulectl extract -f policy.pdf -q "age and income limits"
//	rulectl rules --source policy.pdf
//	rulectl compile --source policy.pdf
//	rulectl validate --source policy.pdf --csv applicants.csv
//	rulectl flagged --status open
//	rulectl remediate 42
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	outputFmt string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rulectl",
		Short: "Extract, compile and run document-derived validation rules",
		Long: `rulectl drives the rule pipeline locally.

It indexes documents, asks the configured language model for validation
rules, compiles them into validators and runs them over CSV data. It reads
app.yaml and RULEGEN_* environment variables like the server does.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json")

	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(compileCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(flaggedCmd())
	rootCmd.AddCommand(remediateCmd())
	return rootCmd
}
