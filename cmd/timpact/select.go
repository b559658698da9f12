package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/timpact/internal/analysis"
	"github.com/rohankatakam/timpact/internal/output"
)

var (
	forceFull    bool
	outputFormat string
	skipFile     string
	runFile      string
)

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Select the test suites affected by the current change",
	Long: `Compare the current revision with the one the stored mapping was recorded
at and print the suites that must run.

Examples:
  # Human summary in a terminal, plain list when piped
  timpact select

  # Write a filter file for the test framework
  timpact select --skip-file build/timpact-skip.txt

  # Ignore the mapping and run everything
  timpact select --force`,
	RunE: runSelect,
}

func init() {
	selectCmd.Flags().BoolVar(&forceFull, "force", false, "run every suite regardless of the stored mapping")
	selectCmd.Flags().StringVarP(&outputFormat, "format", "f", "", "output format: list, summary, json, yaml (default: summary on a terminal, list otherwise)")
	selectCmd.Flags().StringVar(&skipFile, "skip-file", "", "write the suites to skip to this file, one per line")
	selectCmd.Flags().StringVar(&runFile, "run-file", "", "write the suites to run to this file, one per line")
}

func runSelect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	format := output.DefaultFormat(os.Stdout)
	if outputFormat != "" {
		f, err := output.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		format = f
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	suites, err := analysis.DiscoverSuites(ctx, s.repo.Root(), cfg.Analysis.TestDirs)
	if err != nil {
		return err
	}

	plan, err := s.analyzer.Select(ctx, suites, forceFull)
	if err != nil {
		return err
	}
	report := newSelectionReport(s.branch, plan)

	if err := s.saveSelection(report); err != nil {
		logger.WithError(err).Warn("failed to save selection for record")
	}
	if skipFile != "" {
		if err := output.WriteSuiteFile(skipFile, report.Skip); err != nil {
			return err
		}
	}
	if runFile != "" {
		if err := output.WriteSuiteFile(runFile, report.Run); err != nil {
			return err
		}
	}

	return output.NewFormatter(format).Format(report, cmd.OutOrStdout())
}
