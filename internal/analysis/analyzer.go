package analysis

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/timpact/internal/config"
	"github.com/rohankatakam/timpact/internal/coverage"
	"github.com/rohankatakam/timpact/internal/errors"
	"github.com/rohankatakam/timpact/internal/fingerprint"
	"github.com/rohankatakam/timpact/internal/git"
	"github.com/rohankatakam/timpact/internal/metrics"
	"github.com/rohankatakam/timpact/internal/models"
	"github.com/rohankatakam/timpact/internal/selector"
	"github.com/rohankatakam/timpact/internal/updater"
)

// Store is the persistence the analyzer needs; storage.ImpactStore satisfies it
type Store interface {
	Load(ctx context.Context) (*models.StoredMapping, error)
	updater.Committer
}

// Plan is the outcome of the selection phase, carried into Record once the
// chosen suites have executed
type Plan struct {
	HeadRevision string              `json:"head_revision"`
	BaseRevision string              `json:"base_revision,omitempty"`
	Selection    *selector.Selection `json:"selection"`
	Cold         bool                `json:"cold"`
	ForceFull    bool                `json:"force_full"`
	// IncludedLocalChanges marks a session whose view of head is the working tree
	IncludedLocalChanges bool `json:"included_local_changes"`

	Mapping     *models.StoredMapping    `json:"-"`
	Deltas      []*fingerprint.FileDelta `json:"-"`
	KnownSuites []models.SuiteRef        `json:"-"`
}

// Analyzer runs one analysis session: selection before the tests, mapping
// update after them
type Analyzer struct {
	repo     git.Repository
	store    Store
	resolver *fingerprint.Resolver
	cfg      config.AnalysisConfig
	logger   logrus.FieldLogger
	metrics  *metrics.Metrics
}

// NewAnalyzer wires a session; m may be nil
func NewAnalyzer(repo git.Repository, store Store, cfg config.AnalysisConfig, logger logrus.FieldLogger, m *metrics.Metrics) *Analyzer {
	return &Analyzer{
		repo:     repo,
		store:    store,
		resolver: fingerprint.NewResolver(cfg.Workers, cfg.SourceDirs, logger, m),
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
	}
}

// Select decides which of knownSuites must run. Problems with the stored
// mapping or the version control view never fail the session: they widen the
// selection instead.
func (a *Analyzer) Select(ctx context.Context, knownSuites []models.SuiteRef, forceFull bool) (*Plan, error) {
	plan := &Plan{
		ForceFull:            forceFull,
		IncludedLocalChanges: a.cfg.IncludeLocalChanges,
		KnownSuites:          knownSuites,
	}

	head, err := a.repo.HeadRevision(ctx)
	if err != nil {
		a.logger.WithError(err).Warn("cannot determine head revision, running every suite")
		plan.ForceFull = true
	}
	plan.HeadRevision = head

	mapping, err := a.store.Load(ctx)
	switch {
	case err == nil:
	case errors.IsType(err, errors.ErrorTypeStoreCorrupt):
		a.logger.WithError(err).Warn("stored impact mapping is unreadable, starting cold")
		mapping = models.NewStoredMapping(a.cfg.Branch)
	default:
		return nil, err
	}
	plan.Mapping = mapping
	plan.Cold = mapping.IsCold()
	plan.BaseRevision = mapping.BaseRevision

	if !plan.Cold && head != "" {
		diffs, err := a.repo.BuildDiff(ctx, mapping.BaseRevision, a.cfg.SourceDirs, a.cfg.TestDirs, a.cfg.IncludeLocalChanges)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.WithError(err).WithField("base", mapping.BaseRevision).Warn("change set unavailable, running every suite")
			plan.ForceFull = true
		} else {
			plan.Deltas, err = a.resolver.ResolveAll(ctx, diffs)
			if err != nil {
				return nil, err
			}
		}
	}

	plan.Selection = selector.Select(selector.Input{
		Mapping:     mapping,
		Deltas:      plan.Deltas,
		KnownSuites: knownSuites,
		ForceFull:   plan.ForceFull,
	})

	if a.metrics != nil {
		a.metrics.SuitesSelected.WithLabelValues("run").Add(float64(len(plan.Selection.Run)))
		a.metrics.SuitesSelected.WithLabelValues("skip").Add(float64(len(plan.Selection.Skip)))
	}
	a.logger.WithFields(logrus.Fields{
		"head":    head,
		"base":    plan.BaseRevision,
		"changed": len(plan.Deltas),
		"run":     len(plan.Selection.Run),
		"skip":    len(plan.Selection.Skip),
		"cold":    plan.Cold,
	}).Info("test selection computed")
	return plan, nil
}

// Record folds the coverage of the executed suites into the mapping and
// commits it as valid for the plan's head revision. A session that analysed
// uncommitted changes is applied but not persisted unless CommitDirty is set.
func (a *Analyzer) Record(ctx context.Context, plan *Plan, drained coverage.Drained) (*updater.Result, error) {
	if plan == nil || plan.Mapping == nil {
		return nil, errors.ValidationErrorf("record needs a selection plan")
	}
	if plan.HeadRevision == "" {
		return nil, errors.New(errors.ErrorTypeVCSAnalysis, errors.SeverityHigh, "head revision unknown, mapping not recorded")
	}

	revision := plan.HeadRevision
	if plan.IncludedLocalChanges {
		revision = ""
	}
	reader := updater.SourceReaderFunc(func(ctx context.Context, path string) (string, error) {
		return a.repo.ReadFile(ctx, revision, path)
	})
	index := updater.NewClassIndex(a.resolver, reader, a.cfg.SourceDirs, a.logger)
	u := updater.New(index, a.logger)

	in := updater.Input{
		Mapping:    plan.Mapping.Clone(),
		Drained:    drained,
		Deltas:     plan.Deltas,
		SuitePaths: make(map[string]string, len(plan.KnownSuites)),
	}
	if plan.Selection != nil {
		in.Selected = plan.Selection.Run
	}
	for _, s := range plan.KnownSuites {
		in.SuitePaths[s.Name] = s.SourcePath
	}

	if plan.IncludedLocalChanges && !a.cfg.CommitDirty {
		result := u.Apply(ctx, in)
		a.logger.Warn("session includes uncommitted changes, mapping not persisted")
		return result, nil
	}

	result, err := u.Update(ctx, a.store, in, plan.HeadRevision)
	if err != nil {
		if a.metrics != nil {
			a.metrics.StoreCommits.WithLabelValues("failure").Inc()
		}
		return result, err
	}
	if a.metrics != nil {
		a.metrics.StoreCommits.WithLabelValues("success").Inc()
		a.metrics.MappedSuites.Set(float64(len(in.Mapping.Suites)))
	}
	return result, nil
}
