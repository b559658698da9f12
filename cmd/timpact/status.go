package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/timpact/internal/output"
)

var (
	statusFormat      string
	statusAllBranches bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored impact mapping of the current branch",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", "", "output format: summary, json, yaml")
	statusCmd.Flags().BoolVar(&statusAllBranches, "all-branches", false, "list every branch with a stored mapping and its base revision")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	format := output.DefaultFormat(os.Stdout)
	if statusFormat != "" {
		f, err := output.ParseFormat(statusFormat)
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

	if statusAllBranches {
		return writeBranches(cmd, s, format)
	}

	mapping, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	return output.WriteStatus(output.NewStatusReport(mapping), format, cmd.OutOrStdout())
}

func writeBranches(cmd *cobra.Command, s *session, format output.Format) error {
	ctx := cmd.Context()
	names, err := s.backend.Branches(ctx)
	if err != nil {
		return err
	}

	branches := make([]output.BranchStatus, 0, len(names))
	for _, name := range names {
		rev, err := s.backend.Revision(ctx, name)
		if err != nil {
			return err
		}
		branches = append(branches, output.BranchStatus{Branch: name, BaseRevision: rev})
	}
	return output.WriteBranches(branches, format, cmd.OutOrStdout())
}
