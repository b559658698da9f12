package updater

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/timpact/internal/coverage"
	"github.com/rohankatakam/timpact/internal/fingerprint"
	"github.com/rohankatakam/timpact/internal/models"
)

// Input is one session's worth of observations to fold into a mapping
type Input struct {
	// Mapping is updated in place
	Mapping *models.StoredMapping
	Drained coverage.Drained
	Deltas  []*fingerprint.FileDelta
	// Selected are the suites the selection asked to run
	Selected []string
	// SuitePaths maps known suite names to their source files
	SuitePaths map[string]string
}

// Result summarizes what Apply changed
type Result struct {
	Replaced   []string `json:"replaced"`
	Removed    []string `json:"removed"`
	Dropped    []string `json:"dropped"`
	Refreshed  int      `json:"refreshed"`
	Downgraded int      `json:"downgraded"`
	Unresolved int      `json:"unresolved"`
}

// Committer persists a mapping as valid for a revision
type Committer interface {
	Commit(ctx context.Context, mapping *models.StoredMapping, newBaseRevision string) error
}

// Updater folds drained coverage into a stored mapping
type Updater struct {
	index  *ClassIndex
	logger logrus.FieldLogger
	now    func() time.Time
}

// New creates an updater resolving classes through index
func New(index *ClassIndex, logger logrus.FieldLogger) *Updater {
	return &Updater{index: index, logger: logger, now: time.Now}
}

// Update applies in and commits the result as valid for headRevision. A
// failed commit is returned as is; the caller decides whether to retry.
func (u *Updater) Update(ctx context.Context, store Committer, in Input, headRevision string) (*Result, error) {
	result := u.Apply(ctx, in)
	if err := store.Commit(ctx, in.Mapping, headRevision); err != nil {
		return result, err
	}
	return result, nil
}

// Apply mutates in.Mapping:
//   - drained suites get their record replaced by what was observed
//   - suites that were asked to run but reported nothing, and suites whose
//     source file is gone, are removed so they run again next time
//   - every method of a class whose file changed is re-anchored to its head
//     lines by fingerprint, or downgraded to unresolved when it vanished
//   - the class catalog follows the classes still referenced
func (u *Updater) Apply(ctx context.Context, in Input) *Result {
	m := in.Mapping
	result := &Result{}
	u.index.AddDeltas(in.Deltas)

	gone := make(map[string]bool)
	for _, d := range in.Deltas {
		if d == nil || d.Diff == nil {
			continue
		}
		switch d.Diff.ChangeKind {
		case models.ChangeDeleted, models.ChangeRenamed:
			gone[d.Diff.OldPath] = true
		}
	}

	for _, name := range m.SuiteNames() {
		if _, ran := in.Drained[name]; ran {
			continue
		}
		if gone[m.Suites[name].SourcePath] {
			delete(m.Suites, name)
			result.Removed = append(result.Removed, name)
		}
	}
	for _, name := range in.Selected {
		if _, ran := in.Drained[name]; ran {
			continue
		}
		if _, ok := m.Suites[name]; ok {
			delete(m.Suites, name)
			result.Dropped = append(result.Dropped, name)
		}
	}

	now := u.now().UTC()
	for _, name := range in.Drained.SuiteNames() {
		record := u.buildRecord(ctx, in.Drained[name], m.Suites[name], in.SuitePaths, result)
		record.UpdatedAt = now
		m.Suites[name] = record
		result.Replaced = append(result.Replaced, name)
	}

	drained := make(map[string]bool, len(in.Drained))
	for name := range in.Drained {
		drained[name] = true
	}
	for _, name := range m.SuiteNames() {
		if drained[name] {
			continue
		}
		suite := m.Suites[name]
		for i := range suite.Classes {
			u.refreshClass(&suite.Classes[i], result)
		}
	}

	u.rebuildCatalog(m)
	m.UpdatedAt = now

	u.logger.WithFields(logrus.Fields{
		"replaced":   len(result.Replaced),
		"removed":    len(result.Removed),
		"dropped":    len(result.Dropped),
		"refreshed":  result.Refreshed,
		"downgraded": result.Downgraded,
		"unresolved": result.Unresolved,
	}).Info("impact mapping updated")
	return result
}

// buildRecord turns one suite's observations into a fresh record
func (u *Updater) buildRecord(ctx context.Context, obs *coverage.SuiteInvocations, previous *models.TestSuiteRecord, suitePaths map[string]string, result *Result) *models.TestSuiteRecord {
	record := &models.TestSuiteRecord{
		SuiteName:  obs.SuiteName,
		SourcePath: obs.SuitePath,
		Classes:    make([]models.ClassImpactRecord, 0, len(obs.Classes)),
	}
	if record.SourcePath == "" {
		record.SourcePath = suitePaths[obs.SuiteName]
	}
	if record.SourcePath == "" && previous != nil {
		record.SourcePath = previous.SourcePath
	}

	for _, className := range obs.ClassNames() {
		invoked := obs.Classes[className]
		catalog := u.index.Lookup(ctx, className, invoked.SourcePath)

		class := models.ClassImpactRecord{ClassName: className, SourcePath: invoked.SourcePath}
		if catalog != nil {
			class.SourcePath = catalog.SourcePath
		}

		seen := make(map[string]bool)
		add := func(method models.MethodFingerprint) {
			if key := method.SignatureKey() + "@" + method.FingerprintID; !seen[key] {
				seen[key] = true
				class.Methods = append(class.Methods, method)
			}
		}

		for _, inv := range invoked.Invocations() {
			matches := matchInvocation(catalog, inv)
			if len(matches) == 0 {
				result.Unresolved++
				add(models.MethodFingerprint{OwnerClass: className, Name: inv.MethodName, Descriptor: inv.Descriptor})
				continue
			}
			for _, method := range matches {
				add(method)
			}
		}

		// loading a class runs its initializers
		for _, method := range initializers(catalog) {
			add(method)
		}

		if class.Methods == nil {
			class.Methods = []models.MethodFingerprint{}
		}
		record.Classes = append(record.Classes, class)
	}

	u.addEnclosingInits(record)
	models.SortClassRecords(record.Classes)
	return record
}

// addEnclosingInits records the top-level state of the package or module
// around every invoked class, which runs before the class is usable
func (u *Updater) addEnclosingInits(record *models.TestSuiteRecord) {
	present := make(map[string]bool, len(record.Classes))
	for _, class := range record.Classes {
		present[class.ClassName] = true
	}

	invoked := len(record.Classes)
	for i := 0; i < invoked; i++ {
		class := record.Classes[i]
		for _, owner := range fingerprint.EnclosingOwners(class.ClassName, class.SourcePath) {
			if present[owner] {
				continue
			}
			catalog := u.index.Known(owner)
			inits := initializers(catalog)
			if len(inits) == 0 {
				continue
			}
			present[owner] = true
			record.Classes = append(record.Classes, models.ClassImpactRecord{
				ClassName:  owner,
				SourcePath: catalog.SourcePath,
				Methods:    inits,
			})
		}
	}
}

func initializers(catalog *models.ClassCatalog) []models.MethodFingerprint {
	if catalog == nil {
		return nil
	}
	var out []models.MethodFingerprint
	for _, method := range catalog.Methods {
		if method.Name == fingerprint.ClassInitName {
			out = append(out, method)
		}
	}
	return out
}

// refreshClass re-anchors a retained class record to head. Classes in files
// untouched by the change set are left alone: their lines cannot have moved.
func (u *Updater) refreshClass(class *models.ClassImpactRecord, result *Result) {
	catalog := u.index.Known(class.ClassName)
	if catalog == nil && !u.index.Touched(class.SourcePath) {
		return
	}

	byID := make(map[string]models.MethodFingerprint)
	if catalog != nil {
		class.SourcePath = catalog.SourcePath
		for _, m := range catalog.Methods {
			byID[m.FingerprintID] = m
		}
	}

	for i := range class.Methods {
		method := &class.Methods[i]
		if method.Unresolved() {
			continue
		}
		if current, ok := byID[method.FingerprintID]; ok {
			method.LineStart = current.LineStart
			method.LineEnd = current.LineEnd
			result.Refreshed++
			continue
		}
		method.FingerprintID = ""
		method.LineStart = 0
		method.LineEnd = 0
		result.Downgraded++
	}
	models.SortMethods(class.Methods)
}

// rebuildCatalog keeps one catalog entry per referenced class, taking the
// head state from the index where the class was parsed this session
func (u *Updater) rebuildCatalog(m *models.StoredMapping) {
	referenced := make(map[string]bool)
	for _, suite := range m.Suites {
		for _, class := range suite.Classes {
			referenced[class.ClassName] = true
		}
	}

	for name := range m.Classes {
		if !referenced[name] {
			delete(m.Classes, name)
		}
	}

	for name := range referenced {
		if catalog := u.index.Known(name); catalog != nil {
			cp := *catalog
			cp.Methods = append([]models.MethodFingerprint(nil), catalog.Methods...)
			models.SortMethods(cp.Methods)
			m.Classes[name] = &cp
			continue
		}
		if existing := m.Classes[name]; existing != nil && u.index.Touched(existing.SourcePath) {
			// its file changed and no longer declares it
			delete(m.Classes, name)
		}
	}
}

// matchInvocation finds the methods an invocation refers to. An empty
// descriptor matches every overload.
func matchInvocation(catalog *models.ClassCatalog, inv models.Invocation) []models.MethodFingerprint {
	if catalog == nil {
		return nil
	}
	var out []models.MethodFingerprint
	for _, m := range catalog.Methods {
		if m.Name != inv.MethodName {
			continue
		}
		if inv.Descriptor == "" || inv.Descriptor == m.Descriptor {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LineStart < out[j].LineStart })
	return out
}
