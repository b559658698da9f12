package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/timpact/internal/analysis"
	"github.com/rohankatakam/timpact/internal/coverage"
	"github.com/rohankatakam/timpact/internal/selector"
)

var (
	observationsDir string
	recordForce     bool
	cleanAfter      bool
	aggregateBuffer int
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Fold the coverage of executed suites into the stored mapping",
	Long: `Read the observation files written by the instrumented test run, merge them
per suite and commit the updated mapping as valid for the current revision.

Every test process appends JSON observations, one per line, to a *.jsonl file
in the observations directory:

  {"suite":"com.acme.OrderTest","invocations":[{"class":"com.acme.OrderService","method":"calcTotal","descriptor":"(int,int)"}]}`,
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVar(&observationsDir, "observations", filepath.Join(".timpact", "observations"), "directory holding *.jsonl observation files")
	recordCmd.Flags().BoolVar(&recordForce, "force", false, "treat every suite as selected, as after 'select --force'")
	recordCmd.Flags().BoolVar(&cleanAfter, "clean", false, "delete observation files after a successful record")
	recordCmd.Flags().IntVar(&aggregateBuffer, "buffer", 256, "observations buffered ahead of the merge")
}

func runRecord(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	suites, err := analysis.DiscoverSuites(ctx, s.repo.Root(), cfg.Analysis.TestDirs)
	if err != nil {
		return err
	}
	plan, err := s.analyzer.Select(ctx, suites, recordForce)
	if err != nil {
		return err
	}

	// the suites actually asked to run are those of the last select at this revision
	saved, err := s.loadSelection()
	if err != nil {
		logger.WithError(err).Warn("ignoring unreadable saved selection")
	} else if saved != nil && saved.Branch == s.branch && saved.HeadRevision == plan.HeadRevision && !recordForce {
		plan.Selection = &selector.Selection{Run: saved.Run, Skip: saved.Skip, Reasons: saved.Reasons}
	}

	agg := coverage.NewAggregator(aggregateBuffer, fieldLogger(), runMetrics)
	if err := agg.Open(); err != nil {
		return err
	}
	count, ingestErr := coverage.IngestDir(ctx, observationsDir, agg.Recorder())
	if err := agg.Close(); err != nil {
		return err
	}
	if ingestErr != nil {
		return ingestErr
	}

	drained, err := agg.Drain()
	if err != nil {
		return err
	}
	for _, c := range agg.Conflicts() {
		logger.WithError(c).Warn("coverage merge conflict")
	}

	result, err := s.analyzer.Record(ctx, plan, drained)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Recorded %d observations from %d suites (session %s)\n", count, len(drained), agg.ID())
	fmt.Fprintf(out, "Replaced: %d  Removed: %d  Dropped: %d  Refreshed: %d  Downgraded: %d  Unresolved: %d\n",
		len(result.Replaced), len(result.Removed), len(result.Dropped),
		result.Refreshed, result.Downgraded, result.Unresolved)

	if cleanAfter {
		paths, _ := filepath.Glob(filepath.Join(observationsDir, "*"+coverage.ObservationFileExt))
		for _, p := range paths {
			if err := os.Remove(p); err != nil {
				logger.WithError(err).WithField("path", p).Warn("failed to remove observation file")
			}
		}
	}
	return nil
}
