package analysis

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/timpact/internal/config"
	"github.com/rohankatakam/timpact/internal/coverage"
	"github.com/rohankatakam/timpact/internal/logging"
	"github.com/rohankatakam/timpact/internal/metrics"
	"github.com/rohankatakam/timpact/internal/models"
	"github.com/rohankatakam/timpact/internal/selector"
	"github.com/rohankatakam/timpact/internal/storage"
)

const (
	orderPath  = "src/main/java/com/acme/OrderService.java"
	orderClass = "com.acme.OrderService"
)

const orderBase = `package com.acme;

public class OrderService {
    public int calcTotal(int a, int b) {
        return a + b;
    }

    public boolean validate(int total) {
        return total > 0;
    }
}
`

const orderHead = `package com.acme;

public class OrderService {
    public int calcTotal(int a, int b) {
        int sum = a + b;
        return sum;
    }

    public boolean validate(int total) {
        return total > 0;
    }
}
`

var knownSuites = []models.SuiteRef{
	{Name: "com.acme.MathTest", SourcePath: "src/test/java/com/acme/MathTest.java"},
	{Name: "com.acme.OrderTest", SourcePath: "src/test/java/com/acme/OrderTest.java"},
}

type fakeRepo struct {
	head    string
	headErr error
	diffs   []*models.SourceFileDiffContext
	diffErr error
	files   map[string]string

	diffBases []string
	reads     []string
}

func (r *fakeRepo) HeadRevision(context.Context) (string, error) { return r.head, r.headErr }

func (r *fakeRepo) CurrentBranch(context.Context) (string, error) { return "main", nil }

func (r *fakeRepo) BuildDiff(_ context.Context, base string, _, _ []string, _ bool) ([]*models.SourceFileDiffContext, error) {
	r.diffBases = append(r.diffBases, base)
	return r.diffs, r.diffErr
}

func (r *fakeRepo) ReadFile(_ context.Context, revision, path string) (string, error) {
	r.reads = append(r.reads, revision+":"+path)
	content, ok := r.files[path]
	if !ok {
		return "", os.ErrNotExist
	}
	return content, nil
}

func str(s string) *string { return &s }

func analysisConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		SourceDirs: []string{"src/main/java"},
		TestDirs:   []string{"src/test/java"},
		Branch:     "main",
		Workers:    2,
	}
}

func newStore(t *testing.T) (*storage.ImpactStore, *storage.BoltBackend) {
	t.Helper()
	backend, err := storage.NewBoltBackend(filepath.Join(t.TempDir(), "impact.db"), logging.Discard())
	require.NoError(t, err)
	store := storage.NewImpactStore(backend, "main", logging.Discard())
	t.Cleanup(func() { store.Close() })
	return store, backend
}

func drain(t *testing.T, observations ...models.CoverageObservation) coverage.Drained {
	t.Helper()
	agg := coverage.NewAggregator(len(observations)+1, logging.Discard(), nil)
	require.NoError(t, agg.Open())
	for _, o := range observations {
		require.NoError(t, agg.Record(context.Background(), o))
	}
	require.NoError(t, agg.Close())
	d, err := agg.Drain()
	require.NoError(t, err)
	return d
}

func invoked(suite, method string) models.CoverageObservation {
	return models.CoverageObservation{
		SuiteName:   suite,
		Invocations: []models.Invocation{{ClassName: orderClass, MethodName: method}},
	}
}

// seed runs a cold session at h1 in which both suites execute
func seed(t *testing.T, store *storage.ImpactStore) {
	t.Helper()
	repo := &fakeRepo{head: "h1", files: map[string]string{orderPath: orderBase}}
	a := NewAnalyzer(repo, store, analysisConfig(), logging.Discard(), nil)

	plan, err := a.Select(context.Background(), knownSuites, false)
	require.NoError(t, err)
	require.True(t, plan.Cold)

	_, err = a.Record(context.Background(), plan, drain(t,
		invoked("com.acme.OrderTest", "calcTotal"),
		invoked("com.acme.MathTest", "validate"),
	))
	require.NoError(t, err)
}

func TestSelectColdStartRunsEverything(t *testing.T) {
	store, _ := newStore(t)
	repo := &fakeRepo{head: "h1"}
	m := metrics.New()
	a := NewAnalyzer(repo, store, analysisConfig(), logging.Discard(), m)

	plan, err := a.Select(context.Background(), knownSuites, false)
	require.NoError(t, err)

	assert.True(t, plan.Cold)
	assert.Equal(t, "h1", plan.HeadRevision)
	assert.Empty(t, repo.diffBases, "no diff without a base revision")
	assert.Equal(t, []string{"com.acme.MathTest", "com.acme.OrderTest"}, plan.Selection.Run)
	assert.Equal(t, selector.ReasonColdStart, plan.Selection.Reasons["com.acme.OrderTest"])
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SuitesSelected.WithLabelValues("run")))
}

func TestRecordThenSelectSkipsUnaffected(t *testing.T) {
	store, _ := newStore(t)
	seed(t, store)

	repo := &fakeRepo{
		head: "h2",
		diffs: []*models.SourceFileDiffContext{{
			OldPath: orderPath, NewPath: orderPath, ChangeKind: models.ChangeModified,
			ContentAtBase: str(orderBase), ContentAtHead: str(orderHead),
		}},
		files: map[string]string{orderPath: orderHead},
	}
	m := metrics.New()
	a := NewAnalyzer(repo, store, analysisConfig(), logging.Discard(), m)

	plan, err := a.Select(context.Background(), knownSuites, false)
	require.NoError(t, err)
	assert.False(t, plan.Cold)
	assert.Equal(t, []string{"h1"}, repo.diffBases)
	assert.Equal(t, []string{"com.acme.OrderTest"}, plan.Selection.Run)
	assert.Equal(t, []string{"com.acme.MathTest"}, plan.Selection.Skip)
	assert.Equal(t, selector.ReasonMethodChanged, plan.Selection.Reasons["com.acme.OrderTest"])

	result, err := a.Record(context.Background(), plan, drain(t, invoked("com.acme.OrderTest", "calcTotal")))
	require.NoError(t, err)
	assert.Equal(t, []string{"com.acme.OrderTest"}, result.Replaced)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StoreCommits.WithLabelValues("success")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.MappedSuites))

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "h2", stored.BaseRevision)

	validate := stored.Suites["com.acme.MathTest"].Classes[0].Methods[0]
	assert.Equal(t, "validate", validate.Name)
	assert.Equal(t, 9, validate.LineStart)
	assert.Equal(t, 11, validate.LineEnd)

	calc := stored.Suites["com.acme.OrderTest"].Classes[0].Methods[0]
	assert.Equal(t, 4, calc.LineStart)
	assert.Equal(t, 7, calc.LineEnd)

	// a follow-up session with no changes runs nothing
	repo.diffs = nil
	repo.head = "h3"
	plan, err = a.Select(context.Background(), knownSuites, false)
	require.NoError(t, err)
	assert.Empty(t, plan.Selection.Run)
}

func TestSelectFallsBackToFullRunWhenDiffFails(t *testing.T) {
	store, _ := newStore(t)
	seed(t, store)

	repo := &fakeRepo{head: "h2", diffErr: stderrors.New("bad object h1")}
	a := NewAnalyzer(repo, store, analysisConfig(), logging.Discard(), nil)

	plan, err := a.Select(context.Background(), knownSuites, false)
	require.NoError(t, err)
	assert.True(t, plan.ForceFull)
	assert.Len(t, plan.Selection.Run, 2)
	assert.Equal(t, selector.ReasonForced, plan.Selection.Reasons["com.acme.MathTest"])
}

func TestSelectUnknownHeadRunsEverythingAndRecordRefuses(t *testing.T) {
	store, _ := newStore(t)
	seed(t, store)

	repo := &fakeRepo{headErr: stderrors.New("not a git repository")}
	a := NewAnalyzer(repo, store, analysisConfig(), logging.Discard(), nil)

	plan, err := a.Select(context.Background(), knownSuites, false)
	require.NoError(t, err)
	assert.True(t, plan.ForceFull)
	assert.Len(t, plan.Selection.Run, 2)

	_, err = a.Record(context.Background(), plan, drain(t))
	require.Error(t, err)

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "h1", stored.BaseRevision)
}

func TestSelectTreatsCorruptStoreAsCold(t *testing.T) {
	store, backend := newStore(t)
	require.NoError(t, backend.Replace(context.Background(), "main", []byte("{not json"), "h0"))

	a := NewAnalyzer(&fakeRepo{head: "h1"}, store, analysisConfig(), logging.Discard(), nil)
	plan, err := a.Select(context.Background(), knownSuites, false)
	require.NoError(t, err)
	assert.True(t, plan.Cold)
	assert.Len(t, plan.Selection.Run, 2)
}

func TestRecordDirtySessionIsNotPersisted(t *testing.T) {
	store, _ := newStore(t)
	cfg := analysisConfig()
	cfg.IncludeLocalChanges = true

	repo := &fakeRepo{head: "h1", files: map[string]string{orderPath: orderHead}}
	a := NewAnalyzer(repo, store, cfg, logging.Discard(), nil)

	plan, err := a.Select(context.Background(), knownSuites, false)
	require.NoError(t, err)
	result, err := a.Record(context.Background(), plan, drain(t, invoked("com.acme.OrderTest", "calcTotal")))
	require.NoError(t, err)
	assert.Equal(t, []string{"com.acme.OrderTest"}, result.Replaced)
	assert.Contains(t, repo.reads, ":"+orderPath, "working tree is read")

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, stored.IsCold())

	cfg.CommitDirty = true
	a = NewAnalyzer(repo, store, cfg, logging.Discard(), nil)
	_, err = a.Record(context.Background(), plan, drain(t, invoked("com.acme.OrderTest", "calcTotal")))
	require.NoError(t, err)
	stored, err = store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "h1", stored.BaseRevision)
}

type failingStore struct{}

func (failingStore) Load(context.Context) (*models.StoredMapping, error) {
	return models.NewStoredMapping("main"), nil
}

func (failingStore) Commit(context.Context, *models.StoredMapping, string) error {
	return stderrors.New("disk full")
}

func TestRecordReturnsCommitFailure(t *testing.T) {
	m := metrics.New()
	a := NewAnalyzer(&fakeRepo{head: "h1"}, failingStore{}, analysisConfig(), logging.Discard(), m)

	plan, err := a.Select(context.Background(), knownSuites, false)
	require.NoError(t, err)
	_, err = a.Record(context.Background(), plan, drain(t))
	require.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StoreCommits.WithLabelValues("failure")))
}

func TestRecordRequiresPlan(t *testing.T) {
	a := NewAnalyzer(&fakeRepo{head: "h1"}, failingStore{}, analysisConfig(), logging.Discard(), nil)
	_, err := a.Record(context.Background(), nil, nil)
	assert.Error(t, err)
}
