package selector

import (
	"sort"

	"github.com/rohankatakam/timpact/internal/fingerprint"
	"github.com/rohankatakam/timpact/internal/models"
)

// Reason explains why a suite was put in the run set
type Reason string

const (
	ReasonColdStart        Reason = "cold-start"
	ReasonForced           Reason = "forced"
	ReasonSuiteChanged     Reason = "suite-changed"
	ReasonNewSuite         Reason = "new-suite"
	ReasonClassDeleted     Reason = "class-deleted"
	ReasonWholeFile        Reason = "whole-file"
	ReasonMethodChanged    Reason = "method-changed"
	ReasonUnresolved       Reason = "unresolved"
	ReasonStaleFingerprint Reason = "stale-fingerprint"
)

// Input is everything a selection is computed from
type Input struct {
	Mapping     *models.StoredMapping
	Deltas      []*fingerprint.FileDelta
	KnownSuites []models.SuiteRef
	// ForceFull runs every suite, used when the change set itself is unknown
	ForceFull bool
}

// Selection partitions the known suites. Run and Skip are sorted by name.
type Selection struct {
	Run     []string          `json:"run" yaml:"run"`
	Skip    []string          `json:"skip" yaml:"skip"`
	Reasons map[string]Reason `json:"reasons" yaml:"reasons"`
}

// ShouldRun reports whether suite is in the run set
func (s *Selection) ShouldRun(suite string) bool {
	_, ok := s.Reasons[suite]
	return ok
}

// Select decides for every known suite whether it must run. The decision
// only ever errs toward running: any doubt about a suite's dependencies puts
// it in the run set.
func Select(in Input) *Selection {
	suites := uniqueSuites(in.KnownSuites)
	sel := &Selection{
		Run:     []string{},
		Skip:    []string{},
		Reasons: make(map[string]Reason),
	}

	global := Reason("")
	switch {
	case in.ForceFull:
		global = ReasonForced
	case in.Mapping.IsCold():
		global = ReasonColdStart
	}

	changes := indexChanges(in.Deltas)
	for _, suite := range suites {
		reason := global
		if reason == "" {
			reason = changes.evaluate(suite, in.Mapping.Suite(suite.Name))
		}
		if reason == "" {
			sel.Skip = append(sel.Skip, suite.Name)
			continue
		}
		sel.Run = append(sel.Run, suite.Name)
		sel.Reasons[suite.Name] = reason
	}
	return sel
}

// changeIndex flattens the file deltas into lookups by path, class and id
type changeIndex struct {
	touchedPaths map[string]bool

	gonePaths   map[string]bool
	goneClasses map[string]bool

	wholeFilePaths   map[string]bool
	wholeFileClasses map[string]bool

	modifiedPaths   map[string]bool
	modifiedClasses map[string]bool

	impactedIDs map[string]bool
	// every id a modified class has at base or head
	knownIDs map[string]map[string]bool
}

func indexChanges(deltas []*fingerprint.FileDelta) *changeIndex {
	idx := &changeIndex{
		touchedPaths:     make(map[string]bool),
		gonePaths:        make(map[string]bool),
		goneClasses:      make(map[string]bool),
		wholeFilePaths:   make(map[string]bool),
		wholeFileClasses: make(map[string]bool),
		modifiedPaths:    make(map[string]bool),
		modifiedClasses:  make(map[string]bool),
		impactedIDs:      make(map[string]bool),
		knownIDs:         make(map[string]map[string]bool),
	}

	for _, d := range deltas {
		if d == nil || d.Diff == nil {
			continue
		}
		diff := d.Diff
		for _, p := range diff.Paths() {
			idx.touchedPaths[p] = true
		}

		if d.WholeFile {
			for _, p := range diff.Paths() {
				idx.wholeFilePaths[p] = true
			}
			for _, c := range d.Classes() {
				idx.wholeFileClasses[c] = true
			}
		}

		switch diff.ChangeKind {
		case models.ChangeAdded:
			// nothing stored can reference a new file

		case models.ChangeDeleted:
			idx.gonePaths[diff.OldPath] = true
			for _, c := range d.BaseClasses {
				idx.goneClasses[c] = true
			}

		case models.ChangeRenamed:
			// the old location is gone; the new content is still compared
			// method by method below
			idx.gonePaths[diff.OldPath] = true
			for _, c := range d.BaseClasses {
				idx.goneClasses[c] = true
			}
			idx.addModified(d)

		default:
			idx.addModified(d)
		}

		for _, id := range d.ImpactedFingerprints() {
			idx.impactedIDs[id] = true
		}
	}
	return idx
}

func (idx *changeIndex) addModified(d *fingerprint.FileDelta) {
	for _, p := range d.Diff.Paths() {
		idx.modifiedPaths[p] = true
	}
	for _, c := range d.Classes() {
		idx.modifiedClasses[c] = true
	}
	if d.WholeFile {
		return
	}
	for _, list := range [][]models.MethodFingerprint{d.BaseMethods, d.Current} {
		for _, m := range list {
			ids := idx.knownIDs[m.OwnerClass]
			if ids == nil {
				ids = make(map[string]bool)
				idx.knownIDs[m.OwnerClass] = ids
			}
			ids[m.FingerprintID] = true
		}
	}
}

// evaluate applies the per-suite rules, most decisive first, and returns the
// empty reason when the suite can be skipped
func (idx *changeIndex) evaluate(suite models.SuiteRef, record *models.TestSuiteRecord) Reason {
	if idx.touchedPaths[suite.SourcePath] {
		return ReasonSuiteChanged
	}
	if record == nil {
		return ReasonNewSuite
	}
	if record.SourcePath != "" && suite.SourcePath != "" && record.SourcePath != suite.SourcePath {
		// profiled under another location
		return ReasonSuiteChanged
	}
	if idx.touchedPaths[record.SourcePath] {
		return ReasonSuiteChanged
	}

	var fallback Reason
	for i := range record.Classes {
		class := &record.Classes[i]

		if idx.goneClasses[class.ClassName] || idx.matchesPath(class, idx.gonePaths) {
			return ReasonClassDeleted
		}
		if idx.wholeFileClasses[class.ClassName] || idx.matchesPath(class, idx.wholeFilePaths) {
			return ReasonWholeFile
		}

		modified := idx.modifiedClasses[class.ClassName] || idx.matchesPath(class, idx.modifiedPaths)
		known := idx.knownIDs[class.ClassName]
		for _, m := range class.Methods {
			if m.Unresolved() {
				if modified && fallback == "" {
					fallback = ReasonUnresolved
				}
				continue
			}
			if idx.impactedIDs[m.FingerprintID] {
				return ReasonMethodChanged
			}
			if known != nil && !known[m.FingerprintID] && fallback == "" {
				fallback = ReasonStaleFingerprint
			}
		}
		if modified && len(class.Methods) == 0 && fallback == "" {
			fallback = ReasonUnresolved
		}
	}
	return fallback
}

// matchesPath reports whether the class's source file is one of paths. A
// class stored without a path is matched against every conventional
// location of its name.
func (idx *changeIndex) matchesPath(class *models.ClassImpactRecord, paths map[string]bool) bool {
	if len(paths) == 0 {
		return false
	}
	if class.SourcePath != "" {
		return paths[class.SourcePath]
	}
	for p := range paths {
		if fingerprint.MayDeclare(class.ClassName, p) {
			return true
		}
	}
	return false
}

func uniqueSuites(refs []models.SuiteRef) []models.SuiteRef {
	seen := make(map[string]int, len(refs))
	out := make([]models.SuiteRef, 0, len(refs))
	for _, r := range refs {
		if i, ok := seen[r.Name]; ok {
			if out[i].SourcePath == "" {
				out[i].SourcePath = r.SourcePath
			}
			continue
		}
		seen[r.Name] = len(out)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
