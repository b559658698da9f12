package fingerprint

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/timpact/internal/errors"
	"github.com/rohankatakam/timpact/internal/metrics"
	"github.com/rohankatakam/timpact/internal/models"
)

// MethodChange pairs the base and head versions of a method whose signature
// survived but whose fingerprint did not
type MethodChange struct {
	Before models.MethodFingerprint `json:"before"`
	After  models.MethodFingerprint `json:"after"`
}

// FileDelta is the method-level difference of one source file
type FileDelta struct {
	Diff *models.SourceFileDiffContext

	Added   []models.MethodFingerprint
	Removed []models.MethodFingerprint
	Changed []MethodChange

	// Current is the full method set at head, nil when the file is gone or
	// could not be parsed
	Current     []models.MethodFingerprint
	BaseMethods []models.MethodFingerprint
	BaseClasses []string
	HeadClasses []string

	// WholeFile marks a file that could not be diffed method by method;
	// every method it declared counts as changed
	WholeFile bool
	ParseErr  error
}

// ImpactedFingerprints returns the ids a stored mapping may reference that
// no longer exist unchanged at head
func (d *FileDelta) ImpactedFingerprints() []string {
	ids := make([]string, 0, len(d.Removed)+len(d.Changed))
	for _, m := range d.Removed {
		ids = append(ids, m.FingerprintID)
	}
	for _, c := range d.Changed {
		ids = append(ids, c.Before.FingerprintID)
	}
	return ids
}

// Classes returns every class declared at base or head
func (d *FileDelta) Classes() []string {
	seen := make(map[string]bool, len(d.BaseClasses)+len(d.HeadClasses))
	var out []string
	for _, list := range [][]string{d.BaseClasses, d.HeadClasses} {
		for _, c := range list {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// Resolver turns diff contexts into method deltas
type Resolver struct {
	workers     int
	sourceRoots []string
	logger      logrus.FieldLogger
	metrics     *metrics.Metrics
}

// NewResolver creates a resolver that parses up to workers files at once.
// sourceRoots are passed on to ParseSource. m may be nil.
func NewResolver(workers int, sourceRoots []string, logger logrus.FieldLogger, m *metrics.Metrics) *Resolver {
	if workers < 1 {
		workers = 1
	}
	return &Resolver{workers: workers, sourceRoots: sourceRoots, logger: logger, metrics: m}
}

// ResolveAll resolves every diff on a bounded worker pool. Results keep the
// order of diffs; the call returns only once every file is done.
func (r *Resolver) ResolveAll(ctx context.Context, diffs []*models.SourceFileDiffContext) ([]*FileDelta, error) {
	deltas := make([]*FileDelta, len(diffs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, d := range diffs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			deltas[i] = r.Resolve(ctx, d)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return deltas, nil
}

// Resolve computes the method delta of a single file. Parse failures never
// escape: they mark the delta WholeFile instead.
func (r *Resolver) Resolve(ctx context.Context, diff *models.SourceFileDiffContext) *FileDelta {
	start := time.Now()
	delta := &FileDelta{Diff: diff}

	switch diff.ChangeKind {
	case models.ChangeAdded:
		head, err := r.parseSide(ctx, diff.NewPath, diff.ContentAtHead)
		if err != nil {
			delta.markWholeFile(err)
			break
		}
		delta.Added = head.Methods
		delta.Current = head.Methods
		delta.HeadClasses = head.Classes

	case models.ChangeDeleted:
		base, err := r.parseSide(ctx, diff.OldPath, diff.ContentAtBase)
		if err != nil {
			delta.markWholeFile(err)
			break
		}
		delta.Removed = base.Methods
		delta.BaseMethods = base.Methods
		delta.BaseClasses = base.Classes

	default:
		basePath := diff.OldPath
		if basePath == "" {
			basePath = diff.Path()
		}
		base, baseErr := r.parseSide(ctx, basePath, diff.ContentAtBase)
		head, headErr := r.parseSide(ctx, diff.Path(), diff.ContentAtHead)
		if base != nil {
			delta.BaseMethods = base.Methods
			delta.BaseClasses = base.Classes
		}
		if head != nil {
			delta.Current = head.Methods
			delta.HeadClasses = head.Classes
		}
		if baseErr != nil {
			delta.markWholeFile(baseErr)
			break
		}
		if headErr != nil {
			delta.markWholeFile(headErr)
			break
		}
		delta.Added, delta.Removed, delta.Changed = DiffMethods(base.Methods, head.Methods)
	}

	outcome := "ok"
	if delta.WholeFile {
		outcome = "whole_file"
		r.logger.WithError(delta.ParseErr).WithFields(logrus.Fields{
			"path":   diff.Path(),
			"change": diff.ChangeKind,
		}).Warn("method diff unavailable, treating whole file as changed")
	}
	if r.metrics != nil {
		r.metrics.FilesResolved.WithLabelValues(outcome).Inc()
		r.metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	}
	return delta
}

// ParseFile parses one revision of a file outside of any diff
func (r *Resolver) ParseFile(ctx context.Context, path, content string) (*FileMethods, error) {
	return ParseSource(ctx, path, content, r.sourceRoots...)
}

func (r *Resolver) parseSide(ctx context.Context, path string, content *string) (*FileMethods, error) {
	if content == nil {
		return nil, errors.ParseError(path, "content unavailable")
	}
	return ParseSource(ctx, path, *content, r.sourceRoots...)
}

func (d *FileDelta) markWholeFile(err error) {
	d.WholeFile = true
	d.ParseErr = err
}

// DiffMethods set-diffs two method lists by fingerprint. A base method whose
// id is gone at head is paired with a new head method of the same signature
// when there is one (changed), otherwise it is removed; unpaired new head
// methods are added.
func DiffMethods(base, head []models.MethodFingerprint) (added, removed []models.MethodFingerprint, changed []MethodChange) {
	baseIDs := make(map[string]bool, len(base))
	for _, m := range base {
		baseIDs[m.FingerprintID] = true
	}
	headIDs := make(map[string]bool, len(head))
	for _, m := range head {
		headIDs[m.FingerprintID] = true
	}

	// candidates for pairing: head methods with an id unknown at base
	fresh := make(map[string][]int)
	for i, m := range head {
		if !baseIDs[m.FingerprintID] {
			fresh[m.SignatureKey()] = append(fresh[m.SignatureKey()], i)
		}
	}

	paired := make(map[int]bool)
	for _, m := range base {
		if headIDs[m.FingerprintID] {
			continue
		}
		key := m.SignatureKey()
		if idx := fresh[key]; len(idx) > 0 {
			fresh[key] = idx[1:]
			paired[idx[0]] = true
			changed = append(changed, MethodChange{Before: m, After: head[idx[0]]})
			continue
		}
		removed = append(removed, m)
	}

	for i, m := range head {
		if !baseIDs[m.FingerprintID] && !paired[i] {
			added = append(added, m)
		}
	}
	return added, removed, changed
}
