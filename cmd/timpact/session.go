package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rohankatakam/timpact/internal/analysis"
	"github.com/rohankatakam/timpact/internal/git"
	"github.com/rohankatakam/timpact/internal/output"
	"github.com/rohankatakam/timpact/internal/storage"
)

const lastSelectionFile = "last-selection.json"

// session bundles what every analysis command opens
type session struct {
	repo     *git.CLIRepository
	backend  storage.Backend
	store    *storage.ImpactStore
	analyzer *analysis.Analyzer
	branch   string
}

func openSession(ctx context.Context) (*session, error) {
	for _, w := range cfg.Validate().Warnings {
		logger.Warn(w)
	}
	if err := cfg.ValidateOrError(); err != nil {
		return nil, err
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	repo, err := git.NewCLIRepository(ctx, wd)
	if err != nil {
		return nil, err
	}

	branch := cfg.Analysis.Branch
	if branch == "" {
		branch, err = repo.CurrentBranch(ctx)
		if err != nil {
			return nil, fmt.Errorf("cannot determine branch (set analysis.branch): %w", err)
		}
	}
	cfg.Analysis.Branch = branch

	storageCfg := cfg.Storage
	if storageCfg.LocalPath != "" && !filepath.IsAbs(storageCfg.LocalPath) {
		storageCfg.LocalPath = filepath.Join(repo.Root(), storageCfg.LocalPath)
	}
	backend, err := storage.Open(storageCfg, logger.Logger)
	if err != nil {
		return nil, err
	}

	store := storage.NewImpactStore(backend, branch, fieldLogger().WithField("branch", branch))
	return &session{
		repo:     repo,
		backend:  backend,
		store:    store,
		analyzer: analysis.NewAnalyzer(repo, store, cfg.Analysis, fieldLogger(), runMetrics),
		branch:   branch,
	}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

func (s *session) selectionPath() string {
	return filepath.Join(s.repo.Root(), ".timpact", lastSelectionFile)
}

// saveSelection remembers what select decided so record can tell selected
// suites that produced no coverage from suites that were never asked to run
func (s *session) saveSelection(report *output.SelectionReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	path := s.selectionPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// loadSelection returns the saved selection, or nil when there is none
func (s *session) loadSelection() (*output.SelectionReport, error) {
	data, err := os.ReadFile(s.selectionPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var report output.SelectionReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func newSelectionReport(branch string, plan *analysis.Plan) *output.SelectionReport {
	return &output.SelectionReport{
		Branch:       branch,
		HeadRevision: plan.HeadRevision,
		BaseRevision: plan.BaseRevision,
		Cold:         plan.Cold,
		ForceFull:    plan.ForceFull,
		Changed:      len(plan.Deltas),
		Run:          plan.Selection.Run,
		Skip:         plan.Selection.Skip,
		Reasons:      plan.Selection.Reasons,
	}
}
